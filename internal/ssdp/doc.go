// Package ssdp discovers services via the Simple Service Discovery
// Protocol on top of the shared multicast engine.
//
// A Resolver periodically sends M-SEARCH queries to the SSDP groups and
// interprets NOTIFY advertisements and search responses. Alive messages
// become service events carrying the advertised locations and a cache
// expiry computed from the HTTP headers; byebye messages become loss
// events.
package ssdp
