package ssdp

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/httpmsg"
	"github.com/muurk/lanprobe/internal/logging"
)

// NotifyType classifies a parsed SSDP message.
type NotifyType int

const (
	// Invalid marks messages that are not SSDP notifications.
	Invalid NotifyType = iota

	// Alive marks ssdp:alive notifications and search responses.
	Alive

	// ByeBye marks ssdp:byebye notifications.
	ByeBye
)

// NotifyMessage is a parsed SSDP notification or search response.
type NotifyMessage struct {
	Type         NotifyType
	ServiceName  string
	ServiceType  string
	Locations    []*url.URL
	AltLocations []*url.URL

	// Expiry is when the advertisement lapses; the zero time means it
	// never does.
	Expiry time.Time
}

// ParseNotify classifies one datagram payload. Valid inputs are NOTIFY
// requests for the "*" resource with an ssdp:alive or ssdp:byebye
// subtype, and 200 responses to M-SEARCH. Everything else yields an
// Invalid message. M-SEARCH requests from other control points are
// ignored silently.
func ParseNotify(data []byte, now time.Time) NotifyMessage {
	message := httpmsg.Parse(data)

	if message.IsInvalid() {
		logging.Warn("Ignoring malformed HTTP message")
		return NotifyMessage{}
	}

	if message.Protocol() != "HTTP/1.1" {
		logging.Warn("Ignoring unknown protocol", zap.String("protocol", message.Protocol()))
		return NotifyMessage{}
	}

	switch message.Type() {
	case httpmsg.Request:
		if message.Verb() == "M-SEARCH" {
			return NotifyMessage{}
		}
		if message.Verb() != "NOTIFY" {
			logging.Debug("Ignoring unsupported verb", zap.String("verb", message.Verb()))
			return NotifyMessage{}
		}
		if message.Resource() != "*" {
			logging.Debug("Ignoring unsupported resource", zap.String("resource", message.Resource()))
			return NotifyMessage{}
		}

	case httpmsg.Response:
		if code, ok := message.StatusCode(); !ok || code != 200 {
			logging.Debug("Ignoring unsupported status code", zap.String("status", message.StatusPhrase()))
			return NotifyMessage{}
		}
	}

	var (
		notify       NotifyMessage
		notifyType   string
		cacheControl string
		expires      string
	)

	for _, header := range message.Headers() {
		switch {
		case strings.EqualFold(header.Name, "USN"):
			notify.ServiceName = header.Value
		case strings.EqualFold(header.Name, "NT"), strings.EqualFold(header.Name, "ST"):
			notify.ServiceType = header.Value
		case strings.EqualFold(header.Name, "NTS"):
			notifyType = header.Value
		case strings.EqualFold(header.Name, "Cache-Control"):
			cacheControl = header.Value
		case strings.EqualFold(header.Name, "Expires"):
			expires = header.Value
		case strings.EqualFold(header.Name, "Location"):
			if u, err := url.Parse(header.Value); err == nil {
				notify.Locations = append(notify.Locations, u)
			}
		case strings.EqualFold(header.Name, "AL"):
			notify.AltLocations = append(notify.AltLocations, parseAlternativeLocations(header.Value)...)
		}
	}

	switch message.Type() {
	case httpmsg.Request:
		switch notifyType {
		case "ssdp:alive":
			notify.Type = Alive
		case "ssdp:byebye":
			notify.Type = ByeBye
		default:
			return NotifyMessage{}
		}
	case httpmsg.Response:
		notify.Type = Alive
	}

	notify.Expiry = httpmsg.Expiry(cacheControl, expires, now)

	return notify
}

// parseAlternativeLocations splits an AL header of the form
// "<url1><url2>..." into its URLs, tolerating trailing text and missing
// closing brackets.
func parseAlternativeLocations(text string) []*url.URL {
	var locations []*url.URL

	for {
		start := strings.IndexByte(text, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(text[start+1:], '>')
		if end < 0 {
			break
		}

		if u, err := url.Parse(text[start+1 : start+1+end]); err == nil {
			locations = append(locations, u)
		}
		text = text[start+end+2:]
	}

	return locations
}
