package dnswire

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	// maxNameLength bounds the decoded length of a name (RFC 1035).
	maxNameLength = 255

	// maxLabelLength bounds a single label (RFC 1035).
	maxLabelLength = 63

	// maxPointerHops bounds compression pointer chains. Combined with the
	// strictly-decreasing offset rule this makes pointer cycles unreachable.
	maxPointerHops = 128
)

// Label is a single element of a name: a literal label, a compression
// pointer, or the terminator, distinguished by the two high bits of the
// length byte.
type Label struct {
	entry
}

// IsLiteral reports whether the label carries text.
func (l Label) IsLiteral() bool { return u8(l.data, l.offset)&0xc0 == 0x00 }

// IsPointer reports whether the label is a compression pointer.
func (l Label) IsPointer() bool { return u8(l.data, l.offset)&0xc0 == 0xc0 }

// Length returns the text length of a literal label, zero otherwise.
func (l Label) Length() int {
	if !l.IsLiteral() {
		return 0
	}
	return int(u8(l.data, l.offset))
}

// Text returns the label text, or nil when the label would run past the
// end of the buffer.
func (l Label) Text() []byte {
	n := l.Length()
	if n == 0 || l.offset+1+n > len(l.data) {
		return nil
	}
	return l.data[l.offset+1 : l.offset+1+n]
}

// Pointer returns the 14-bit target offset of a compression pointer.
func (l Label) Pointer() int { return int(u16(l.data, l.offset) & 0x3fff) }

// Size returns the number of bytes the label occupies in the buffer.
func (l Label) Size() int {
	if l.IsPointer() {
		return 2
	}
	if n := l.Length(); n > 0 {
		return 1 + n
	}
	return 1
}

// NextOffset returns the offset just past the label.
func (l Label) NextOffset() int { return l.offset + l.Size() }

// Name is a domain name at a fixed offset of a message buffer. The zero
// value is the invalid, empty name.
type Name struct {
	entry
}

// NameAt returns the name starting at offset within data.
func NameAt(data []byte, offset int) Name {
	return Name{entry{data, offset}}
}

// IsEmpty reports whether the name refers to no buffer data.
func (n Name) IsEmpty() bool { return !n.isValid() }

// Size returns the number of bytes the name occupies at its own offset,
// counting the terminator or pointer pair but never the bytes reached
// through a pointer.
func (n Name) Size() int {
	if !n.isValid() {
		return 0
	}

	size := 0
	offset := n.offset
	for offset < len(n.data) {
		l := Label{entry{n.data, offset}}
		size += l.Size()

		if l.IsPointer() || l.Length() == 0 {
			break
		}
		offset = l.NextOffset()
	}
	return size
}

// NextOffset returns the offset just past the name.
func (n Name) NextOffset() int { return n.offset + n.Size() }

// walk calls fn for each literal label of the name in order, following
// compression pointers. Traversal stops when fn returns false, when the
// hop budget is exhausted, when a pointer does not strictly decrease the
// offset, or when the decoded length limit is reached.
func (n Name) walk(fn func(label []byte) bool) {
	if !n.isValid() {
		return
	}

	offset := n.offset
	hops := 0
	decoded := 0

	for offset >= 0 && offset < len(n.data) {
		l := Label{entry{n.data, offset}}

		switch {
		case l.IsPointer():
			target := l.Pointer()
			if target >= offset || hops >= maxPointerHops {
				return
			}
			hops++
			offset = target

		case l.Length() > 0:
			text := l.Text()
			if text == nil {
				return
			}
			decoded += len(text) + 1
			if decoded > maxNameLength {
				return
			}
			if !fn(text) {
				return
			}
			offset = l.NextOffset()

		default:
			return
		}
	}
}

// Labels returns the literal labels of the name in order.
func (n Name) Labels() [][]byte {
	var labels [][]byte
	n.walk(func(label []byte) bool {
		labels = append(labels, label)
		return true
	})
	return labels
}

// String returns the dotted representation of the name with a trailing
// dot, or the empty string for the root or an invalid name.
func (n Name) String() string {
	var b strings.Builder
	n.walk(func(label []byte) bool {
		b.Write(label)
		b.WriteByte('.')
		return true
	})
	return b.String()
}

// EncodeName serializes a dotted name into uncompressed wire form: each
// label as a length byte followed by its text, ending with a zero byte.
// A single trailing dot is allowed and ignored.
func EncodeName(name string) ([]byte, error) {
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")

	encoded := make([]byte, 0, len(name)+2)
	for _, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("empty label in name %q", name)
		}
		if len(label) > maxLabelLength {
			return nil, fmt.Errorf("label %q exceeds %d bytes", label, maxLabelLength)
		}
		encoded = append(encoded, byte(len(label)))
		encoded = append(encoded, label...)
	}
	encoded = append(encoded, 0)

	if len(encoded) > maxNameLength {
		return nil, fmt.Errorf("name %q exceeds %d bytes", name, maxNameLength)
	}
	return encoded, nil
}

// ReverseName returns the reverse-lookup name for an IP address: the
// in-addr.arpa form for IPv4 and the nibble-wise ip6.arpa form, with
// lowercase hex digits, for IPv6.
func ReverseName(addr netip.Addr) string {
	const hexDigits = "0123456789abcdef"

	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", b[3], b[2], b[1], b[0])
	}

	b := addr.As16()
	var sb strings.Builder
	for i := len(b) - 1; i >= 0; i-- {
		sb.WriteByte(hexDigits[b[i]&0xf])
		sb.WriteByte('.')
		sb.WriteByte(hexDigits[b[i]>>4])
		sb.WriteByte('.')
	}
	sb.WriteString("ip6.arpa")
	return sb.String()
}
