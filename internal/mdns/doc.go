// Package mdns implements multicast DNS host and service discovery on
// top of the shared multicast engine.
//
// A Resolver periodically submits the questions registered through its
// lookup methods and interprets every response on the group: A and AAAA
// records become host events, SRV records (with the TXT data of the same
// owner name, if any) become service events.
// Names are qualified with the configured search domain (normally
// "local") on the way out and stripped of it on the way in.
//
// Questions are deduplicated individually, so looking up an overlapping
// set of names only adds the questions not yet on the wire.
package mdns
