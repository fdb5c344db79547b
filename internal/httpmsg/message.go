package httpmsg

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/logging"
)

// MessageType classifies a parsed datagram.
type MessageType int

const (
	// Invalid marks payloads whose first line is neither a request nor a
	// status line.
	Invalid MessageType = iota

	// Request marks `<verb> <resource> <protocol>` messages.
	Request

	// Response marks `<protocol> <code> <phrase>` messages.
	Response
)

// Header is a single header field with its original name and value.
type Header struct {
	Name  string
	Value string
}

// Message is a parsed HTTP-shaped datagram payload.
type Message struct {
	msgType MessageType
	status  [3]string
	headers []Header
}

// Type returns the message classification.
func (m Message) Type() MessageType { return m.msgType }

// IsInvalid reports whether the payload could not be classified.
func (m Message) IsInvalid() bool { return m.msgType == Invalid }

// Protocol returns the protocol field of the first line, for example
// "HTTP/1.1".
func (m Message) Protocol() string {
	switch m.msgType {
	case Request:
		return m.status[2]
	case Response:
		return m.status[0]
	default:
		return ""
	}
}

// Verb returns the request verb, or "" for responses.
func (m Message) Verb() string { return m.statusField(Request, 0) }

// Resource returns the request resource, or "" for responses.
func (m Message) Resource() string { return m.statusField(Request, 1) }

// StatusCode returns the response status code. The second value is false
// for requests and unparseable codes.
func (m Message) StatusCode() (int, bool) {
	code, err := strconv.Atoi(m.statusField(Response, 1))
	if err != nil {
		return 0, false
	}
	return code, true
}

// StatusPhrase returns the response status phrase, or "" for requests.
func (m Message) StatusPhrase() string { return m.statusField(Response, 2) }

func (m Message) statusField(expected MessageType, index int) string {
	if m.msgType != expected {
		return ""
	}
	return m.status[index]
}

// Headers returns the header fields in wire order.
func (m Message) Headers() []Header { return m.headers }

// Get returns the value of the first header whose name matches
// case-insensitively, and whether such a header exists.
func (m Message) Get(name string) (string, bool) {
	for _, h := range m.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Values returns the values of all headers matching name, in order.
func (m Message) Values(name string) []string {
	var values []string
	for _, h := range m.headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

const protocolPrefix = "HTTP/"

// parseStatusLine classifies the first line of a payload. A line whose
// first token starts with "HTTP/" is a status line; one whose last token
// does is a request line. Anything else leaves the message invalid.
func parseStatusLine(line string) Message {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 {
		return Message{}
	}

	var m Message
	switch {
	case strings.HasPrefix(fields[0], protocolPrefix):
		m.msgType = Response
		copy(m.status[:], fields)
	case strings.HasPrefix(fields[2], protocolPrefix):
		m.msgType = Request
		copy(m.status[:], fields)
	}
	return m
}

// Parse frames a datagram payload into a message. Headers end at the
// first empty line; any body beyond it is ignored. Lines starting with
// space or tab continue the previous header value. Lines without a colon
// are dropped with a warning.
func Parse(data []byte) Message {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	if !scanner.Scan() {
		return Message{}
	}

	m := parseStatusLine(scanner.Text())
	if m.IsInvalid() {
		return Message{}
	}

	for scanner.Scan() {
		line := scanner.Text()
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			if len(m.headers) == 0 {
				logging.Warn("Ignoring invalid header line", zap.String("line", line))
				continue
			}
			last := &m.headers[len(m.headers)-1]
			last.Value += trimmed
			continue
		}

		if colon := strings.IndexByte(line, ':'); colon > 0 {
			m.headers = append(m.headers, Header{
				Name:  strings.TrimSpace(line[:colon]),
				Value: strings.TrimSpace(line[colon+1:]),
			})
		} else {
			logging.Warn("Ignoring invalid header line", zap.String("line", line))
		}
	}

	return m
}
