package mdns

import (
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/dnswire"
	"github.com/muurk/lanprobe/internal/logging"
)

// ServiceDescription is a resolved DNS-SD service instance.
type ServiceDescription struct {
	// Name is the service instance name, for example "Living Room TV".
	Name string

	// Type is the DNS-SD service type, for example "_googlecast._tcp".
	Type string

	// Target is the host providing the service, with the search domain
	// stripped.
	Target string

	// Port is the service port on the target host.
	Port int

	// Priority and Weight order multiple providers of a service.
	Priority int
	Weight   int

	// Info carries the TXT record entries as "key=value" or bare "key"
	// strings, in record order.
	Info []string
}

// newServiceDescription builds the description from an SRV record and
// its TXT blob. The fully-qualified instance name splits at the first
// dot into instance name and service type.
func newServiceDescription(domain, name string, service dnswire.ServiceRecord, text []byte) ServiceDescription {
	desc := ServiceDescription{
		Name:     unqualified(name, domain),
		Target:   unqualified(service.Target().String(), domain),
		Port:     service.Port(),
		Priority: service.Priority(),
		Weight:   service.Weight(),
		Info:     parseTextRecord(text),
	}

	if separator := strings.IndexByte(desc.Name, '.'); separator >= 0 {
		desc.Type = desc.Name[separator+1:]
		desc.Name = desc.Name[:separator]
	}

	return desc
}

// InfoValue looks up a TXT entry by key. Bare keys yield an empty value
// with ok true.
func (s ServiceDescription) InfoValue(key string) (string, bool) {
	for _, entry := range s.Info {
		if entry == key {
			return "", true
		}
		if strings.HasPrefix(entry, key) && len(entry) > len(key) && entry[len(key)] == '=' {
			return entry[len(key)+1:], true
		}
	}
	return "", false
}

// parseTextRecord splits a TXT blob into its length-prefixed character
// strings. An entry reaching past the blob ends parsing; the entries
// before it are kept.
func parseTextRecord(text []byte) []string {
	var entries []string

	for offset := 0; offset < len(text); {
		length := int(text[offset])
		offset++

		if offset+length > len(text) {
			logging.Warn("Truncated TXT record entry",
				zap.Int("offset", offset-1),
				zap.Int("length", length),
			)
			break
		}
		if length > 0 {
			entries = append(entries, string(text[offset:offset+length]))
		}
		offset += length
	}

	return entries
}
