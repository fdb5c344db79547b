package multicast

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/logging"
)

// Protocol is the per-protocol behavior plugged into an Engine. The
// former resolver class hierarchy is collapsed into this single trait:
// a protocol names its ports and groups, finalizes query templates per
// address, and decodes incoming datagrams.
type Protocol interface {
	// Port is the destination port queries are sent to, and the sender
	// port expected from self-echoed datagrams.
	Port() int

	// BindPort is the local port sockets bind to; zero selects a random
	// ephemeral port.
	BindPort() int

	// Group returns the multicast group matching the address family of
	// the local address.
	Group(addr netip.Addr) netip.Addr

	// FinalizeQuery rewrites a query template for the socket address it
	// is about to be sent from. Protocols without templates return the
	// query unchanged.
	FinalizeQuery(addr netip.Addr, query []byte) []byte

	// ProcessDatagram decodes one received payload. It runs on the
	// engine loop goroutine.
	ProcessDatagram(payload []byte, sender netip.AddrPort)
}

// socket is one sending/receiving endpoint owned by the engine.
type socket interface {
	Send(payload []byte, dst netip.AddrPort) error
	Close() error
}

// datagram is one received payload with its sender.
type datagram struct {
	payload []byte
	sender  netip.AddrPort
}

// ifaceAddr is a usable address found during an interface scan.
type ifaceAddr struct {
	iface net.Interface
	addr  netip.Addr
}

// DefaultInterval is the scan interval used when none is configured.
const DefaultInterval = 15 * time.Second

// Engine drives one protocol: it owns the timer, the socket table and
// the query set.
type Engine struct {
	proto Protocol

	mu       sync.Mutex
	interval time.Duration
	queries  [][]byte
	sockets  map[netip.Addr]socket
	order    []netip.Addr

	datagrams chan datagram
	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	started   bool
	closed    bool

	listAddresses func() ([]ifaceAddr, error)
	openSocket    func(e *Engine, ifi net.Interface, addr netip.Addr) (socket, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the scan interval.
func WithInterval(interval time.Duration) Option {
	return func(e *Engine) { e.interval = interval }
}

// NewEngine returns an engine for the protocol. Call Start to begin
// scanning and Close to release all sockets.
func NewEngine(proto Protocol, opts ...Option) *Engine {
	e := &Engine{
		proto:         proto,
		interval:      DefaultInterval,
		sockets:       make(map[netip.Addr]socket),
		datagrams:     make(chan datagram, 64),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		listAddresses: listMulticastAddresses,
		openSocket:    openUDPSocket,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Interval returns the scan interval.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// SetInterval changes the scan interval. A running engine reschedules
// its next tick immediately.
func (e *Engine) SetInterval(interval time.Duration) {
	e.mu.Lock()
	changed := e.interval != interval
	e.interval = interval
	started := e.started
	e.mu.Unlock()

	if changed && started {
		e.Kick()
	}
}

// AddQuery appends a query to the set unless an equal query is already
// present. It reports whether the set changed. Queries are sent on every
// subsequent tick; a running engine also sends them right away.
func (e *Engine) AddQuery(query []byte) bool {
	e.mu.Lock()
	for _, q := range e.queries {
		if bytes.Equal(q, query) {
			e.mu.Unlock()
			return false
		}
	}
	e.queries = append(e.queries, query)
	started := e.started
	e.mu.Unlock()

	if started {
		e.Kick()
	}
	return true
}

// Queries returns a copy of the query set in insertion order.
func (e *Engine) Queries() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	queries := make([][]byte, len(e.queries))
	for i, q := range e.queries {
		queries[i] = append([]byte(nil), q...)
	}
	return queries
}

// Start launches the engine loop. The first scan happens immediately.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()
}

// Kick schedules an immediate tick on a running engine.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Close stops the timer, releases every socket (which departs its
// multicast group) and waits for the loop to finish. Pending callbacks
// are not invoked after Close returns.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	close(e.done)
	if started {
		e.wg.Wait()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for addr, s := range e.sockets {
		if err := s.Close(); err != nil {
			logging.Warn("Error closing socket",
				zap.String("address", addr.String()),
				zap.Error(err),
			)
		}
	}
	e.sockets = map[netip.Addr]socket{}
	e.order = nil
	return nil
}

func (e *Engine) run() {
	defer e.wg.Done()

	timer := time.NewTimer(0) // first tick right away
	defer timer.Stop()

	for {
		select {
		case <-e.done:
			return

		case <-timer.C:
			e.tick()
			timer.Reset(e.Interval())

		case <-e.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			e.tick()
			timer.Reset(e.Interval())

		case d := <-e.datagrams:
			if !e.isOwnMessage(d) {
				e.proto.ProcessDatagram(d.payload, d.sender)
			}
		}
	}
}

// tick reconciles the socket table with the current interface addresses
// and fans the query set out on every socket.
func (e *Engine) tick() {
	e.scanInterfaces()
	e.submitQueries()
}

func (e *Engine) scanInterfaces() {
	found, err := e.listAddresses()
	if err != nil {
		logging.Warn("Interface scan failed", zap.Error(err))
		return
	}

	next := make(map[netip.Addr]socket, len(found))
	var order []netip.Addr

	e.mu.Lock()
	current := e.sockets
	e.mu.Unlock()

	for _, fa := range found {
		if _, ok := next[fa.addr]; ok {
			continue
		}

		if s, ok := current[fa.addr]; ok {
			next[fa.addr] = s
			order = append(order, fa.addr)
			continue
		}

		logging.Info("Creating socket",
			zap.String("address", fa.addr.String()),
			zap.String("interface", fa.iface.Name),
		)

		s, err := e.openSocket(e, fa.iface, fa.addr)
		if err != nil {
			// Skip this address now; the next tick retries.
			logging.Warn("Could not create multicast socket",
				zap.String("address", fa.addr.String()),
				zap.String("interface", fa.iface.Name),
				zap.Error(err),
			)
			continue
		}
		next[fa.addr] = s
		order = append(order, fa.addr)
	}

	// Release sockets whose address disappeared.
	for addr, s := range current {
		if _, ok := next[addr]; !ok {
			logging.Info("Releasing socket", zap.String("address", addr.String()))
			if err := s.Close(); err != nil {
				logging.Warn("Error closing socket",
					zap.String("address", addr.String()),
					zap.Error(err),
				)
			}
		}
	}

	e.mu.Lock()
	e.sockets = next
	e.order = order
	e.mu.Unlock()
}

func (e *Engine) submitQueries() {
	e.mu.Lock()
	queries := e.queries
	order := e.order
	sockets := e.sockets
	e.mu.Unlock()

	port := uint16(e.proto.Port())

	for _, addr := range order {
		s, ok := sockets[addr]
		if !ok {
			continue
		}

		group := e.proto.Group(addr)
		dst := netip.AddrPortFrom(group, port)

		for _, query := range queries {
			payload := e.proto.FinalizeQuery(addr, query)
			if err := s.Send(payload, dst); err != nil {
				logging.Warn("Could not send query",
					zap.String("address", addr.String()),
					zap.String("group", dst.String()),
					zap.Error(err),
				)
				continue
			}
			logging.LogDatagram("sent", dst.String(), payload)
		}
	}
}

// isOwnMessage reports whether a datagram is one of this engine's own
// queries observed back through the multicast group: the sender port is
// the protocol port, the sender address is one the engine sends from,
// and the payload matches a query in the set.
func (e *Engine) isOwnMessage(d datagram) bool {
	if int(d.sender.Port()) != e.proto.Port() {
		return false
	}

	sender := d.sender.Addr().Unmap()

	e.mu.Lock()
	_, local := e.sockets[sender]
	queries := e.queries
	e.mu.Unlock()

	if !local {
		return false
	}

	for _, q := range queries {
		if bytes.Equal(q, d.payload) {
			return true
		}
		if bytes.Equal(e.proto.FinalizeQuery(sender, q), d.payload) {
			return true
		}
	}
	return false
}

// deliver hands a received datagram to the engine loop. It waits while
// the queue is full and drops the datagram only when the engine is
// shutting down.
func (e *Engine) deliver(payload []byte, sender netip.AddrPort) {
	select {
	case e.datagrams <- datagram{payload: payload, sender: sender}:
	case <-e.done:
	}
}
