package ssdp

import (
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muurk/lanprobe/internal/multicast"
)

const (
	// Port is the SSDP port.
	Port = 1900

	// DefaultInterval is the search resubmission interval.
	DefaultInterval = 15 * time.Second

	// AnyService matches every advertised service.
	AnyService = "ssdp:all"

	// RootDevice matches UPnP root device advertisements.
	RootDevice = "upnp:rootdevice"

	// DefaultMaximumDelay is the MX response window offered to devices.
	DefaultMaximumDelay = 5 * time.Second
)

var (
	groupIPv4 = netip.MustParseAddr("239.255.255.250")
	groupIPv6 = netip.MustParseAddr("ff02::c")
)

// Per-address template placeholders. The group placeholder is filled in
// when a query is finalized for a concrete socket; the others at query
// construction time.
const (
	keyMulticastGroup = "{multicast-group}"
	keyUDPPort        = "{udp-port}"
	keyMinimumDelay   = "{minimum-delay}"
	keyMaximumDelay   = "{maximum-delay}"
	keyServiceType    = "{service-type}"
)

const queryTemplate = "M-SEARCH * HTTP/1.1\r\n" +
	"ST: " + keyServiceType + "\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"HOST: " + keyMulticastGroup + ":" + keyUDPPort + "\r\n" +
	"MX: " + keyMaximumDelay + "\r\n" +
	"MM: " + keyMinimumDelay + "\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

// ServiceDescription is an advertised SSDP service.
type ServiceDescription struct {
	// Name is the unique service name (USN).
	Name string

	// Type is the advertised service or notification type.
	Type string

	// Locations are the URLs of the service's description documents.
	Locations []*url.URL

	// AltLocations are additional URLs from AL headers.
	AltLocations []*url.URL

	// Expires is when the advertisement lapses; the zero time means it
	// never does.
	Expires time.Time
}

// ServiceLookupRequest describes one M-SEARCH query.
type ServiceLookupRequest struct {
	// ServiceType is the ST search target.
	ServiceType string

	// MinimumDelay is the MM header; zero is sent as 0.
	MinimumDelay time.Duration

	// MaximumDelay is the MX response window; zero selects the default.
	MaximumDelay time.Duration
}

// Resolver discovers SSDP services. Configure the callbacks before
// calling Start; they run on the engine loop goroutine.
type Resolver struct {
	engine *multicast.Engine

	mu  sync.Mutex
	now func() time.Time

	// ServiceFound reports alive services.
	ServiceFound func(service ServiceDescription)

	// ServiceLost reports byebye notifications by unique service name.
	ServiceLost func(serviceName string)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInterval sets the search resubmission interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Resolver) { r.engine.SetInterval(interval) }
}

// WithClock replaces the wall clock used for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver returns an idle resolver. Call Start to begin scanning.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now: func() time.Time { return time.Now().UTC() },
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

// Interval returns the search resubmission interval.
func (r *Resolver) Interval() time.Duration { return r.engine.Interval() }

// SetInterval changes the search resubmission interval.
func (r *Resolver) SetInterval(interval time.Duration) { r.engine.SetInterval(interval) }

// LookupService submits an M-SEARCH for a service type with default
// delays. It reports whether the query set changed.
func (r *Resolver) LookupService(serviceType string) bool {
	return r.LookupServiceRequest(ServiceLookupRequest{ServiceType: serviceType})
}

// LookupServiceRequest submits a fully-specified M-SEARCH. The query is
// stored as a per-address template; the multicast group is substituted
// when the query is sent. It reports whether the query set changed.
func (r *Resolver) LookupServiceRequest(request ServiceLookupRequest) bool {
	serviceType := request.ServiceType
	if serviceType == "" {
		serviceType = AnyService
	}

	maximumDelay := request.MaximumDelay
	if maximumDelay <= 0 {
		maximumDelay = DefaultMaximumDelay
	}

	query := strings.NewReplacer(
		keyServiceType, serviceType,
		keyUDPPort, strconv.Itoa(Port),
		keyMinimumDelay, strconv.Itoa(int(request.MinimumDelay/time.Second)),
		keyMaximumDelay, strconv.Itoa(int(maximumDelay/time.Second)),
	).Replace(queryTemplate)

	return r.engine.AddQuery([]byte(query))
}

// protocol adapts the resolver to the multicast engine.
type protocol struct {
	r *Resolver
}

func (p *protocol) Port() int     { return Port }
func (p *protocol) BindPort() int { return 0 }

func (p *protocol) Group(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		return groupIPv4
	}
	return groupIPv6
}

// FinalizeQuery substitutes the group placeholder with the multicast
// group matching the socket's address family.
func (p *protocol) FinalizeQuery(addr netip.Addr, query []byte) []byte {
	group := p.Group(addr).String()
	return []byte(strings.ReplaceAll(string(query), keyMulticastGroup, group))
}

func (p *protocol) ProcessDatagram(payload []byte, sender netip.AddrPort) {
	p.r.processDatagram(payload, sender)
}

func (r *Resolver) processDatagram(payload []byte, _ netip.AddrPort) {
	r.mu.Lock()
	now := r.now()
	r.mu.Unlock()

	notify := ParseNotify(payload, now)

	switch notify.Type {
	case Alive:
		if r.ServiceFound != nil {
			r.ServiceFound(ServiceDescription{
				Name:         notify.ServiceName,
				Type:         notify.ServiceType,
				Locations:    notify.Locations,
				AltLocations: notify.AltLocations,
				Expires:      notify.Expiry,
			})
		}

	case ByeBye:
		if r.ServiceLost != nil {
			r.ServiceLost(notify.ServiceName)
		}

	case Invalid:
		// Not an SSDP notification; nothing to report.
	}
}
