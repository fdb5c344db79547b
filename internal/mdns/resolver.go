package mdns

import (
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/dnswire"
	"github.com/muurk/lanprobe/internal/logging"
	"github.com/muurk/lanprobe/internal/multicast"
)

const (
	// Port is the mDNS port (RFC 6762).
	Port = 5353

	// DefaultDomain is the mDNS search domain.
	DefaultDomain = "local"

	// DefaultInterval is the query resubmission interval.
	DefaultInterval = 2 * time.Second
)

var (
	groupIPv4 = netip.MustParseAddr("224.0.0.251")
	groupIPv6 = netip.MustParseAddr("ff02::fb")
)

// question identifies one submitted question for deduplication.
type question struct {
	name  string
	qtype dnswire.Type
}

// Resolver discovers hosts and services via multicast DNS. Configure the
// callbacks before calling Start; they run on the engine loop goroutine.
type Resolver struct {
	engine *multicast.Engine

	mu              sync.Mutex
	domain          string
	seen            map[question]struct{}
	hostNameQueries []string
	serviceQueries  []string

	// HostFound reports resolved addresses for a host name, with the
	// search domain stripped.
	HostFound func(hostname string, addresses []netip.Addr)

	// ServiceFound reports a resolved service instance.
	ServiceFound func(service ServiceDescription)

	// MessageReceived reports every accepted message after its record
	// events, mainly for diagnostics.
	MessageReceived func(msg dnswire.Message)

	// HostNameQueriesChanged reports changes to the host query list.
	HostNameQueriesChanged func(queries []string)

	// ServiceQueriesChanged reports changes to the service query list.
	ServiceQueriesChanged func(queries []string)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDomain sets the search domain, without leading or trailing dots.
func WithDomain(domain string) Option {
	return func(r *Resolver) { r.domain = domain }
}

// WithInterval sets the query resubmission interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Resolver) { r.engine.SetInterval(interval) }
}

// NewResolver returns an idle resolver. Call Start to begin scanning.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		domain: DefaultDomain,
		seen:   make(map[question]struct{}),
	}
	r.engine = multicast.NewEngine(&protocol{r}, multicast.WithInterval(DefaultInterval))

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the resolver.
func (r *Resolver) Start() { r.engine.Start() }

// Close releases all sockets and stops the resolver.
func (r *Resolver) Close() error { return r.engine.Close() }

// Interval returns the query resubmission interval.
func (r *Resolver) Interval() time.Duration { return r.engine.Interval() }

// SetInterval changes the query resubmission interval.
func (r *Resolver) SetInterval(interval time.Duration) { r.engine.SetInterval(interval) }

// Domain returns the search domain.
func (r *Resolver) Domain() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.domain
}

// SetDomain changes the search domain for subsequent lookups and
// response normalization.
func (r *Resolver) SetDomain(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domain = domain
}

// qualified appends the search domain unless the name already carries
// it. A trailing dot is stripped in either case.
func qualified(name, domain string) string {
	name = strings.TrimSuffix(name, ".")
	if name == domain || strings.HasSuffix(name, "."+domain) {
		return name
	}
	return name + "." + domain
}

// unqualified strips a trailing dot and the search domain suffix.
func unqualified(name, domain string) string {
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimSuffix(name, "."+domain)
	return name
}

// isReverseName reports whether a name belongs to the reverse-lookup
// trees rather than to a service type.
func isReverseName(name string) bool {
	name = strings.TrimSuffix(name, ".")
	return strings.HasSuffix(name, ".in-addr.arpa") || strings.HasSuffix(name, ".ip6.arpa")
}

// LookupHostNames submits A and AAAA questions for the given host names.
// It reports whether any new question was added; names already being
// looked up are skipped.
func (r *Resolver) LookupHostNames(hostNames []string) bool {
	msg := dnswire.NewQuery()

	r.mu.Lock()
	domain := r.domain
	added := false
	var hostsChanged bool

	for _, name := range hostNames {
		qname := qualified(name, domain)
		for _, qtype := range []dnswire.Type{dnswire.TypeA, dnswire.TypeAAAA} {
			if !r.addQuestionLocked(&msg, qname, qtype) {
				continue
			}
			added = true
			hostsChanged = r.trackHostQueryLocked(qname) || hostsChanged
		}
	}
	hosts := append([]string(nil), r.hostNameQueries...)
	r.mu.Unlock()

	if !added {
		return false
	}

	r.engine.AddQuery(msg.Data())
	if hostsChanged && r.HostNameQueriesChanged != nil {
		r.HostNameQueriesChanged(hosts)
	}
	return true
}

// LookupServices submits PTR questions for the given DNS-SD service
// types, for example "_http._tcp". It reports whether any new question
// was added.
func (r *Resolver) LookupServices(serviceTypes []string) bool {
	msg := dnswire.NewQuery()

	r.mu.Lock()
	domain := r.domain
	added := false
	var servicesChanged bool

	for _, serviceType := range serviceTypes {
		qname := qualified(serviceType, domain)
		if !r.addQuestionLocked(&msg, qname, dnswire.TypePTR) {
			continue
		}
		added = true
		servicesChanged = r.trackServiceQueryLocked(qname) || servicesChanged
	}
	services := append([]string(nil), r.serviceQueries...)
	r.mu.Unlock()

	if !added {
		return false
	}

	r.engine.AddQuery(msg.Data())
	if servicesChanged && r.ServiceQueriesChanged != nil {
		r.ServiceQueriesChanged(services)
	}
	return true
}

// LookupAddress submits a reverse PTR question for an IP address.
func (r *Resolver) LookupAddress(addr netip.Addr) bool {
	msg := dnswire.NewQuery()
	if err := msg.AddQuestion(dnswire.ReverseName(addr), dnswire.TypePTR); err != nil {
		logging.Warn("Could not build reverse question",
			zap.String("address", addr.String()),
			zap.Error(err),
		)
		return false
	}
	return r.Lookup(msg)
}

// Lookup submits a raw query message. Questions already on the wire are
// filtered out individually; the remaining ones are submitted as one new
// message. It reports whether any question was new.
func (r *Resolver) Lookup(msg dnswire.Message) bool {
	out := dnswire.NewQuery()

	r.mu.Lock()
	added := false
	var hostsChanged, servicesChanged bool

	for i := 0; i < msg.QuestionCount(); i++ {
		q := msg.Question(i)
		name := strings.TrimSuffix(q.Name().String(), ".")
		if name == "" {
			continue
		}

		if !r.addQuestionLocked(&out, name, q.Type()) {
			continue
		}
		added = true

		switch q.Type() {
		case dnswire.TypeA, dnswire.TypeAAAA:
			hostsChanged = r.trackHostQueryLocked(name) || hostsChanged
		case dnswire.TypePTR:
			if !isReverseName(name) {
				servicesChanged = r.trackServiceQueryLocked(name) || servicesChanged
			}
		}
	}
	hosts := append([]string(nil), r.hostNameQueries...)
	services := append([]string(nil), r.serviceQueries...)
	r.mu.Unlock()

	if !added {
		return false
	}

	r.engine.AddQuery(out.Data())
	if hostsChanged && r.HostNameQueriesChanged != nil {
		r.HostNameQueriesChanged(hosts)
	}
	if servicesChanged && r.ServiceQueriesChanged != nil {
		r.ServiceQueriesChanged(services)
	}
	return true
}

// addQuestionLocked appends the question unless it was submitted before.
func (r *Resolver) addQuestionLocked(msg *dnswire.Message, name string, qtype dnswire.Type) bool {
	key := question{name: name, qtype: qtype}
	if _, ok := r.seen[key]; ok {
		return false
	}
	if err := msg.AddQuestion(name, qtype); err != nil {
		logging.Warn("Could not encode question",
			zap.String("name", name),
			zap.Error(err),
		)
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

func (r *Resolver) trackHostQueryLocked(name string) bool {
	for _, existing := range r.hostNameQueries {
		if existing == name {
			return false
		}
	}
	r.hostNameQueries = append(r.hostNameQueries, name)
	return true
}

func (r *Resolver) trackServiceQueryLocked(name string) bool {
	for _, existing := range r.serviceQueries {
		if existing == name {
			return false
		}
	}
	r.serviceQueries = append(r.serviceQueries, name)
	return true
}

// HostNameQueries returns the host names being looked up, qualified with
// the search domain.
func (r *Resolver) HostNameQueries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hostNameQueries...)
}

// ServiceQueries returns the service types being looked up, qualified
// with the search domain.
func (r *Resolver) ServiceQueries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.serviceQueries...)
}

// protocol adapts the resolver to the multicast engine.
type protocol struct {
	r *Resolver
}

func (p *protocol) Port() int     { return Port }
func (p *protocol) BindPort() int { return Port }

func (p *protocol) Group(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		return groupIPv4
	}
	return groupIPv6
}

func (p *protocol) FinalizeQuery(_ netip.Addr, query []byte) []byte { return query }

func (p *protocol) ProcessDatagram(payload []byte, sender netip.AddrPort) {
	p.r.processDatagram(payload, sender)
}

// processDatagram interprets one received message: record data is
// accumulated per owner name across all sections, then service and host
// events fire in first-seen order.
func (r *Resolver) processDatagram(payload []byte, sender netip.AddrPort) {
	msg := dnswire.ParseMessage(payload)
	if !msg.IsValid() {
		logging.Debug("Ignoring short datagram",
			zap.String("sender", sender.String()),
			zap.Int("length", len(payload)),
		)
		return
	}

	domain := r.Domain()

	var (
		addressOrder []string
		addresses    = make(map[string][]netip.Addr)
		serviceOrder []string
		services     = make(map[string]dnswire.ServiceRecord)
		texts        = make(map[string][]byte)
	)

	for _, response := range msg.Responses() {
		name := response.Name().String()

		if addr := response.Address(); addr.IsValid() {
			known := addresses[name]
			if len(known) == 0 {
				addressOrder = append(addressOrder, name)
			}
			duplicate := false
			for _, a := range known {
				if a == addr {
					duplicate = true
					break
				}
			}
			if !duplicate {
				addresses[name] = append(known, addr)
			}
		} else if service := response.Service(); service.IsValid() {
			if _, ok := services[name]; !ok {
				serviceOrder = append(serviceOrder, name)
			}
			services[name] = service
		} else if text := response.Text(); text != nil {
			texts[name] = text
		}
	}

	if r.ServiceFound != nil {
		for _, name := range serviceOrder {
			r.ServiceFound(newServiceDescription(domain, name, services[name], texts[name]))
		}
	}
	if r.HostFound != nil {
		for _, name := range addressOrder {
			r.HostFound(unqualified(name, domain), addresses[name])
		}
	}
	if r.MessageReceived != nil {
		r.MessageReceived(msg)
	}
}
