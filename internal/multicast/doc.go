// Package multicast runs the shared resolver loop behind the mDNS and
// SSDP protocol layers.
//
// An Engine owns a periodic timer, a table of per-address UDP sockets
// and an ordered, deduplicated set of opaque queries. On every tick it
// enumerates the network interfaces, reconciles the socket table against
// the addresses it finds (creating sockets for new addresses, releasing
// sockets whose address disappeared) and sends every query once per
// socket, letting the protocol finalize per-address templates first.
//
// Incoming datagrams pass a self-echo filter before reaching the
// protocol: queries observed back because the sending socket joined the
// multicast group are dropped. All protocol callbacks run on the
// engine's single loop goroutine, so protocol state needs no locking.
package multicast
