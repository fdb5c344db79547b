package multicast

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// multicastTTL keeps discovery traffic close to the local network.
const multicastTTL = 4

// receiveBufferSize fits any UDP datagram we care about, including
// jumbo-frame mDNS responses.
const receiveBufferSize = 9000

// listMulticastAddresses enumerates the addresses the engine should
// serve: one entry per usable address of every running, multicast
// capable, non-loopback, non-point-to-point interface. IPv4 addresses
// are always usable, IPv6 addresses only when link-local.
func listMulticastAddresses() ([]ifaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	var found []ifaceAddr
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagRunning == 0 {
			continue
		}
		if ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagPointToPoint != 0 {
			continue
		}

		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()

			if addr.Is4() || addr.IsLinkLocalUnicast() {
				found = append(found, ifaceAddr{iface: ifi, addr: addr})
			}
		}
	}

	return found, nil
}

// udpSocket is the engine's production socket: a UDP connection joined
// to the protocol's multicast group on one interface.
type udpSocket struct {
	conn *net.UDPConn
}

func (s *udpSocket) Send(payload []byte, dst netip.AddrPort) error {
	_, err := s.conn.WriteToUDPAddrPort(payload, dst)
	return err
}

func (s *udpSocket) Close() error {
	// Closing the connection departs the group and unblocks the reader.
	return s.conn.Close()
}

// openUDPSocket creates the socket for one local address: bound to the
// wildcard address of the matching family (sharing the protocol port
// when the protocol requires a fixed one), joined to the group on the
// given interface, with the multicast TTL pinned to the local network.
func openUDPSocket(e *Engine, ifi net.Interface, addr netip.Addr) (socket, error) {
	group := e.proto.Group(addr)
	bindPort := e.proto.BindPort()

	var (
		conn *net.UDPConn
		err  error
	)

	if addr.Is4() {
		groupAddr := &net.UDPAddr{IP: group.AsSlice(), Port: e.proto.Port()}

		if bindPort > 0 {
			// ListenMulticastUDP binds with address reuse and joins the
			// group, so several resolvers can share the protocol port.
			conn, err = net.ListenMulticastUDP("udp4", &ifi, &net.UDPAddr{IP: group.AsSlice(), Port: bindPort})
			if err != nil {
				return nil, fmt.Errorf("failed to bind multicast socket: %w", err)
			}
		} else {
			conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
			if err != nil {
				return nil, fmt.Errorf("failed to bind socket: %w", err)
			}
		}

		p := ipv4.NewPacketConn(conn)
		if bindPort == 0 {
			if err := p.JoinGroup(&ifi, groupAddr); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to join group %s on %s: %w", group, ifi.Name, err)
			}
		}
		_ = p.SetMulticastTTL(multicastTTL)
		_ = p.SetMulticastInterface(&ifi)
	} else {
		groupAddr := &net.UDPAddr{IP: group.AsSlice(), Port: e.proto.Port()}

		if bindPort > 0 {
			conn, err = net.ListenMulticastUDP("udp6", &ifi, &net.UDPAddr{IP: group.AsSlice(), Port: bindPort})
			if err != nil {
				return nil, fmt.Errorf("failed to bind multicast socket: %w", err)
			}
		} else {
			conn, err = net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: 0})
			if err != nil {
				return nil, fmt.Errorf("failed to bind socket: %w", err)
			}
		}

		p := ipv6.NewPacketConn(conn)
		if bindPort == 0 {
			if err := p.JoinGroup(&ifi, groupAddr); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to join group %s on %s: %w", group, ifi.Name, err)
			}
		}
		_ = p.SetMulticastHopLimit(multicastTTL)
		_ = p.SetMulticastInterface(&ifi)
	}

	_ = conn.SetReadBuffer(64 * 1024)

	s := &udpSocket{conn: conn}
	go readLoop(e, conn)

	return s, nil
}

// readLoop drains the socket and hands payloads to the engine until the
// socket is closed.
func readLoop(e *Engine, conn *net.UDPConn) {
	buf := make([]byte, receiveBufferSize)
	for {
		n, sender, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		e.deliver(payload, netip.AddrPortFrom(sender.Addr().Unmap(), sender.Port()))
	}
}
