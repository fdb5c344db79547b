package dnswire

import (
	"encoding/binary"
	"fmt"
)

// Type identifies a DNS record type.
type Type uint16

// Record types understood by the codec. Other types are carried opaquely.
const (
	TypeA     Type = 1
	TypeNS    Type = 2
	TypeCNAME Type = 5
	TypePTR   Type = 12
	TypeMX    Type = 15
	TypeTXT   Type = 16
	TypeAAAA  Type = 28
	TypeSRV   Type = 33
	TypeOPT   Type = 41
	TypeNSEC  Type = 47
	TypeANY   Type = 255
)

// String returns the conventional mnemonic for the record type.
func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypePTR:
		return "PTR"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeOPT:
		return "OPT"
	case TypeNSEC:
		return "NSEC"
	case TypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// Class identifies a DNS network class.
type Class uint16

// ClassIN is the Internet class, the only class used by mDNS.
const ClassIN Class = 1

// flushBit is the top bit of the class field. In multicast DNS it carries
// the cache-flush request on resource records and the unicast-response
// request on questions (RFC 6762 section 10.2 and 5.4).
const flushBit = 0x8000

// Flags is the 16-bit flag field of a message header.
type Flags uint16

// Header flag bits (RFC 1035 section 4.1.1).
const (
	FlagResponse            Flags = 1 << 15
	FlagAuthoritativeAnswer Flags = 1 << 10
	FlagTruncated           Flags = 1 << 9
	FlagRecursionDesired    Flags = 1 << 8
	FlagRecursionAvailable  Flags = 1 << 7
)

// Fixed header layout (RFC 1035 section 4.1.1).
const (
	serialOffset          = 0
	flagsOffset           = 2
	questionCountOffset   = 4
	answerCountOffset     = 6
	authorityCountOffset  = 8
	additionalCountOffset = 10
	headerSize            = 12
)

// Message is a DNS message over an immutable byte buffer. The zero value
// is an empty, invalid message. Reads on truncated buffers yield zeros.
type Message struct {
	data []byte
}

// NewQuery returns an empty query message with a zeroed header, ready for
// AddQuestion. The serial stays zero for multicast queries.
func NewQuery() Message {
	return Message{data: make([]byte, headerSize)}
}

// ParseMessage wraps a received datagram payload. The payload is not
// copied; callers must not modify it afterwards.
func ParseMessage(data []byte) Message {
	return Message{data: data}
}

// Data returns the raw wire bytes of the message.
func (m Message) Data() []byte { return m.data }

// IsValid reports whether the buffer is large enough to hold a header.
func (m Message) IsValid() bool { return len(m.data) >= headerSize }

// Serial returns the transaction identifier.
func (m Message) Serial() int { return int(u16(m.data, serialOffset)) }

// Flags returns the header flag field.
func (m Message) Flags() Flags { return Flags(u16(m.data, flagsOffset)) }

// IsResponse reports whether the response bit is set.
func (m Message) IsResponse() bool { return m.Flags()&FlagResponse != 0 }

// IsQuery reports whether the response bit is clear.
func (m Message) IsQuery() bool { return !m.IsResponse() }

// QuestionCount returns the question section count from the header.
func (m Message) QuestionCount() int { return int(u16(m.data, questionCountOffset)) }

// AnswerCount returns the answer section count from the header.
func (m Message) AnswerCount() int { return int(u16(m.data, answerCountOffset)) }

// AuthorityCount returns the authority section count from the header.
func (m Message) AuthorityCount() int { return int(u16(m.data, authorityCountOffset)) }

// AdditionalCount returns the additional section count from the header.
func (m Message) AdditionalCount() int { return int(u16(m.data, additionalCountOffset)) }

// ResponseCount returns the combined count of the answer, authority and
// additional sections.
func (m Message) ResponseCount() int {
	return m.AnswerCount() + m.AuthorityCount() + m.AdditionalCount()
}

// Question returns the i-th question, or an invalid question when the
// index is out of range or the buffer too short. Entries are located by
// sequential traversal from the start of the section.
func (m Message) Question(i int) Question {
	if i < 0 || i >= m.QuestionCount() {
		return Question{}
	}

	offset := headerSize
	for n := 0; n < i; n++ {
		q := Question{entry{m.data, offset}}
		offset = q.NextOffset()
	}
	return Question{entry{m.data, offset}}
}

// questionsEnd returns the offset just past the question section.
func (m Message) questionsEnd() int {
	offset := headerSize
	for n := 0; n < m.QuestionCount(); n++ {
		offset = Question{entry{m.data, offset}}.NextOffset()
	}
	return offset
}

// resourceAt walks count resources starting at offset and returns the
// i-th one, together with the offset just past the section.
func (m Message) resourceAt(offset, count, i int) (Resource, int) {
	var found Resource
	for n := 0; n < count; n++ {
		r := Resource{entry{m.data, offset}}
		if n == i {
			found = r
		}
		offset = r.NextOffset()
	}
	return found, offset
}

// Answer returns the i-th answer record, or an invalid resource.
func (m Message) Answer(i int) Resource {
	if i < 0 || i >= m.AnswerCount() {
		return Resource{}
	}
	r, _ := m.resourceAt(m.questionsEnd(), m.AnswerCount(), i)
	return r
}

// Authority returns the i-th authority record, or an invalid resource.
func (m Message) Authority(i int) Resource {
	if i < 0 || i >= m.AuthorityCount() {
		return Resource{}
	}
	_, answersEnd := m.resourceAt(m.questionsEnd(), m.AnswerCount(), -1)
	r, _ := m.resourceAt(answersEnd, m.AuthorityCount(), i)
	return r
}

// Additional returns the i-th additional record, or an invalid resource.
func (m Message) Additional(i int) Resource {
	if i < 0 || i >= m.AdditionalCount() {
		return Resource{}
	}
	_, answersEnd := m.resourceAt(m.questionsEnd(), m.AnswerCount(), -1)
	_, authoritiesEnd := m.resourceAt(answersEnd, m.AuthorityCount(), -1)
	r, _ := m.resourceAt(authoritiesEnd, m.AdditionalCount(), i)
	return r
}

// Responses returns the records of the answer, authority and additional
// sections in one sequential traversal, in that order. The walk stops
// early when the buffer ends before the declared counts are satisfied,
// so inflated headers cannot force quadratic work on the caller.
func (m Message) Responses() []Resource {
	count := m.ResponseCount()

	var resources []Resource
	offset := m.questionsEnd()
	for n := 0; n < count && offset >= headerSize && offset < len(m.data); n++ {
		r := Resource{entry{m.data, offset}}
		resources = append(resources, r)
		offset = r.NextOffset()
	}
	return resources
}

// Response returns the i-th record across the answer, authority and
// additional sections, traversed in that order.
func (m Message) Response(i int) Resource {
	if i < 0 {
		return Resource{}
	}
	if i < m.AnswerCount() {
		return m.Answer(i)
	}
	i -= m.AnswerCount()
	if i < m.AuthorityCount() {
		return m.Authority(i)
	}
	i -= m.AuthorityCount()
	return m.Additional(i)
}

// AddQuestion appends a question for name with class IN to the message
// and increments the question count. Appending questions is only valid
// while the message carries no resource records.
func (m *Message) AddQuestion(name string, qtype Type) error {
	return m.addQuestion(name, qtype, ClassIN, false)
}

// AddUnicastQuestion appends a question with the unicast-response bit
// set, asking responders to reply via unicast instead of the group.
func (m *Message) AddUnicastQuestion(name string, qtype Type) error {
	return m.addQuestion(name, qtype, ClassIN, true)
}

func (m *Message) addQuestion(name string, qtype Type, class Class, unicast bool) error {
	if m.AnswerCount() != 0 || m.AuthorityCount() != 0 || m.AdditionalCount() != 0 {
		return fmt.Errorf("cannot add question after resource records")
	}

	encoded, err := EncodeName(name)
	if err != nil {
		return err
	}

	if m.data == nil {
		m.data = make([]byte, headerSize)
	}

	flags := uint16(class) & ^uint16(flushBit)
	if unicast {
		flags |= flushBit
	}

	m.data = append(m.data, encoded...)
	m.data = binary.BigEndian.AppendUint16(m.data, uint16(qtype))
	m.data = binary.BigEndian.AppendUint16(m.data, flags)
	binary.BigEndian.PutUint16(m.data[questionCountOffset:], uint16(m.QuestionCount()+1))

	return nil
}

// entry is a positional view into a message buffer.
type entry struct {
	data   []byte
	offset int
}

func (e entry) isValid() bool { return e.data != nil && e.offset >= 0 && e.offset < len(e.data) }

// Bounds-checked big-endian reads. Out-of-range reads yield zero, which
// keeps decoding of truncated datagrams from panicking.

func u8(data []byte, offset int) uint8 {
	if offset < 0 || offset >= len(data) {
		return 0
	}
	return data[offset]
}

func u16(data []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(data) {
		return 0
	}
	return binary.BigEndian.Uint16(data[offset:])
}

func u32(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}
	return binary.BigEndian.Uint32(data[offset:])
}
