package dnswire

import "net/netip"

// Question is a single entry of the question section.
type Question struct {
	entry
}

const questionFieldsSize = 4

// IsValid reports whether the question refers to buffer data.
func (q Question) IsValid() bool { return q.isValid() }

// Name returns the question name.
func (q Question) Name() Name { return Name{q.entry} }

// fieldsOffset is the offset of the fixed fields after the name.
func (q Question) fieldsOffset() int { return q.offset + q.Name().Size() }

// Type returns the queried record type.
func (q Question) Type() Type { return Type(u16(q.data, q.fieldsOffset())) }

// Class returns the network class, with the unicast-response bit masked.
func (q Question) Class() Class { return Class(u16(q.data, q.fieldsOffset()+2) & ^uint16(flushBit)) }

// UnicastResponse reports whether the unicast-response bit is set.
func (q Question) UnicastResponse() bool { return u16(q.data, q.fieldsOffset()+2)&flushBit != 0 }

// Size returns the number of bytes the question occupies.
func (q Question) Size() int { return q.Name().Size() + questionFieldsSize }

// NextOffset returns the offset just past the question.
func (q Question) NextOffset() int { return q.offset + q.Size() }

// Resource is a single record of the answer, authority or additional
// section.
type Resource struct {
	entry
}

const resourceFieldsSize = 10

// IsValid reports whether the resource refers to buffer data.
func (r Resource) IsValid() bool { return r.isValid() }

// Name returns the record owner name.
func (r Resource) Name() Name { return Name{r.entry} }

func (r Resource) fieldsOffset() int { return r.offset + r.Name().Size() }

// Type returns the record type.
func (r Resource) Type() Type { return Type(u16(r.data, r.fieldsOffset())) }

// Class returns the network class, with the cache-flush bit masked.
func (r Resource) Class() Class { return Class(u16(r.data, r.fieldsOffset()+2) & ^uint16(flushBit)) }

// CacheFlush reports whether the cache-flush bit is set.
func (r Resource) CacheFlush() bool { return u16(r.data, r.fieldsOffset()+2)&flushBit != 0 }

// TimeToLive returns the record TTL in seconds.
func (r Resource) TimeToLive() uint32 { return u32(r.data, r.fieldsOffset()+4) }

// DataSize returns the length of the record data.
func (r Resource) DataSize() int { return int(u16(r.data, r.fieldsOffset()+8)) }

// DataOffset returns the offset of the record data.
func (r Resource) DataOffset() int { return r.fieldsOffset() + resourceFieldsSize }

// Size returns the number of bytes the record occupies.
func (r Resource) Size() int { return r.Name().Size() + resourceFieldsSize + r.DataSize() }

// NextOffset returns the offset just past the record.
func (r Resource) NextOffset() int { return r.offset + r.Size() }

// Address returns the address of an A or AAAA record, or the zero
// address for other types and malformed data.
func (r Resource) Address() netip.Addr {
	offset := r.DataOffset()

	switch {
	case r.Type() == TypeA && r.DataSize() == 4 && offset+4 <= len(r.data):
		return netip.AddrFrom4([4]byte(r.data[offset : offset+4]))

	case r.Type() == TypeAAAA && r.DataSize() == 16 && offset+16 <= len(r.data):
		return netip.AddrFrom16([16]byte(r.data[offset : offset+16]))

	default:
		return netip.Addr{}
	}
}

// Pointer returns the target name of a PTR record, or the empty name.
func (r Resource) Pointer() Name {
	if r.Type() != TypePTR || r.DataSize() <= 0 {
		return Name{}
	}
	return NameAt(r.data, r.DataOffset())
}

// Text returns the raw data of a TXT record, or nil. The blob is a
// sequence of length-prefixed character strings (RFC 1035 section 3.3.14).
func (r Resource) Text() []byte {
	offset, size := r.DataOffset(), r.DataSize()
	if r.Type() != TypeTXT || size <= 0 || offset+size > len(r.data) {
		return nil
	}
	return r.data[offset : offset+size]
}

// ServiceRecord is the decoded data of an SRV record.
type ServiceRecord struct {
	entry
}

// IsValid reports whether the record refers to buffer data.
func (s ServiceRecord) IsValid() bool { return s.isValid() }

// Priority returns the target host priority.
func (s ServiceRecord) Priority() int { return int(u16(s.data, s.offset)) }

// Weight returns the relative weight among records of equal priority.
func (s ServiceRecord) Weight() int { return int(u16(s.data, s.offset+2)) }

// Port returns the service port on the target host.
func (s ServiceRecord) Port() int { return int(u16(s.data, s.offset+4)) }

// Target returns the target host name.
func (s ServiceRecord) Target() Name { return NameAt(s.data, s.offset+6) }

// Service returns the decoded SRV data, or an invalid record for other
// types and truncated data.
func (r Resource) Service() ServiceRecord {
	if r.Type() != TypeSRV || r.DataSize() < 8 {
		return ServiceRecord{}
	}
	return ServiceRecord{entry{r.data, r.DataOffset()}}
}
