// Package httpmsg parses the HTTP/1.1-shaped text messages that SSDP
// sends in single UDP datagrams.
//
// The parser is deliberately tolerant: it frames the payload as CRLF
// terminated lines, classifies the first line as a request or response,
// collects headers into an ordered, case-insensitively searchable list,
// folds continuation lines into the preceding header, and drops
// malformed lines with a warning instead of failing the message.
//
// The package also provides the RFC 9110 date parsing (RFC 1123, RFC 850
// and asctime formats) and the cache expiry computation shared by the
// SSDP and UPnP resolvers.
package httpmsg
