package mdns

import (
	"encoding/hex"
	"net/netip"
	"strings"
	"testing"

	"github.com/muurk/lanprobe/internal/dnswire"
)

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare", input: "alpha", want: "alpha.local"},
		{name: "qualified", input: "beta.local", want: "beta.local"},
		{name: "qualified with dot", input: "beta.local.", want: "beta.local"},
		{name: "bare with dot", input: "gamma.", want: "gamma.local"},
		{name: "service type", input: "_http._tcp", want: "_http._tcp.local"},
		{name: "domain itself", input: "local", want: "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualified(tt.input, "local"); got != tt.want {
				t.Errorf("qualified(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDomainIdempotence(t *testing.T) {
	for _, name := range []string{"alpha.local", "_http._tcp.local", "deep.name.local"} {
		if got := qualified(unqualified(name, "local"), "local"); got != name {
			t.Errorf("qualify(unqualify(%q)) = %q, want identity", name, got)
		}
	}
}

func TestLookupHostNamesDeduplicates(t *testing.T) {
	r := NewResolver()

	if !r.LookupHostNames([]string{"alpha"}) {
		t.Error("first lookup reported no change")
	}
	if !r.LookupHostNames([]string{"alpha", "beta"}) {
		t.Error("superset lookup with a new name reported no change")
	}
	if r.LookupHostNames([]string{"alpha", "beta"}) {
		t.Error("repeated lookup reported a change")
	}
	if r.LookupHostNames([]string{"beta"}) {
		t.Error("subset lookup reported a change")
	}

	// Names are qualified with the search domain before deduplication.
	if r.LookupHostNames([]string{"beta.local"}) {
		t.Error("qualified spelling reported a change")
	}
	if r.LookupHostNames([]string{"beta.local."}) {
		t.Error("dotted spelling reported a change")
	}

	// The second message carries only the questions that were new.
	queries := r.engine.Queries()
	if len(queries) != 2 {
		t.Fatalf("query count = %d, want 2", len(queries))
	}
	second := dnswire.ParseMessage(queries[1])
	if got := second.QuestionCount(); got != 2 {
		t.Fatalf("second message question count = %d, want 2 (A and AAAA)", got)
	}
	for i := 0; i < second.QuestionCount(); i++ {
		if got, want := second.Question(i).Name().String(), "beta.local."; got != want {
			t.Errorf("question %d name = %q, want %q", i, got, want)
		}
	}
}

func TestLookupServicesDeduplicates(t *testing.T) {
	r := NewResolver()

	if !r.LookupServices([]string{"_http._tcp"}) {
		t.Error("first lookup reported no change")
	}
	if !r.LookupServices([]string{"_http._tcp", "_ipp._tcp"}) {
		t.Error("superset lookup with a new type reported no change")
	}
	if r.LookupServices([]string{"_http._tcp", "_ipp._tcp"}) {
		t.Error("repeated lookup reported a change")
	}
	if r.LookupServices([]string{"_ipp._tcp"}) {
		t.Error("subset lookup reported a change")
	}
	if r.LookupServices([]string{"_ipp._tcp.local"}) {
		t.Error("qualified spelling reported a change")
	}
	if r.LookupServices([]string{"_ipp._tcp.local."}) {
		t.Error("dotted spelling reported a change")
	}
}

func TestHostNameQueries(t *testing.T) {
	r := NewResolver()

	var changes [][]string
	r.HostNameQueriesChanged = func(queries []string) {
		changes = append(changes, queries)
	}

	if got := r.HostNameQueries(); len(got) != 0 {
		t.Fatalf("initial queries = %v, want empty", got)
	}

	r.LookupHostNames([]string{"alpha"})
	wantQueries := []string{"alpha.local"}
	assertStrings(t, "after alpha", r.HostNameQueries(), wantQueries)
	if len(changes) != 1 {
		t.Fatalf("change count = %d, want 1", len(changes))
	}

	r.LookupHostNames([]string{"alpha"})
	if len(changes) != 1 {
		t.Error("repeated lookup fired a change")
	}

	r.LookupHostNames([]string{"alpha", "beta"})
	wantQueries = append(wantQueries, "beta.local")
	assertStrings(t, "after beta", r.HostNameQueries(), wantQueries)
	if len(changes) != 2 {
		t.Errorf("change count = %d, want 2", len(changes))
	}

	// Raw A and AAAA lookups update the list too.
	msg := dnswire.NewQuery()
	if err := msg.AddQuestion("gamma.local", dnswire.TypeA); err != nil {
		t.Fatal(err)
	}
	if !r.Lookup(msg) {
		t.Error("raw A lookup reported no change")
	}
	wantQueries = append(wantQueries, "gamma.local")
	assertStrings(t, "after gamma", r.HostNameQueries(), wantQueries)

	msg = dnswire.NewQuery()
	if err := msg.AddQuestion("delta.local", dnswire.TypeAAAA); err != nil {
		t.Fatal(err)
	}
	if !r.Lookup(msg) {
		t.Error("raw AAAA lookup reported no change")
	}
	wantQueries = append(wantQueries, "delta.local")
	assertStrings(t, "after delta", r.HostNameQueries(), wantQueries)

	// A message repeating one question and adding another adds only the
	// new one.
	msg = dnswire.NewQuery()
	if err := msg.AddQuestion("delta.local", dnswire.TypeAAAA); err != nil {
		t.Fatal(err)
	}
	if err := msg.AddQuestion("epsilon.local", dnswire.TypeAAAA); err != nil {
		t.Fatal(err)
	}
	if !r.Lookup(msg) {
		t.Error("partially repeated lookup reported no change")
	}
	wantQueries = append(wantQueries, "epsilon.local")
	assertStrings(t, "after epsilon", r.HostNameQueries(), wantQueries)
}

func TestServiceQueries(t *testing.T) {
	r := NewResolver()

	r.LookupServices([]string{"_http._tcp"})
	assertStrings(t, "after http", r.ServiceQueries(), []string{"_http._tcp.local"})

	msg := dnswire.NewQuery()
	if err := msg.AddQuestion("_googlecast._tcp.local", dnswire.TypePTR); err != nil {
		t.Fatal(err)
	}
	if !r.Lookup(msg) {
		t.Error("raw PTR lookup reported no change")
	}
	assertStrings(t, "after googlecast",
		r.ServiceQueries(), []string{"_http._tcp.local", "_googlecast._tcp.local"})

	// Reverse lookups are tracked as questions but not as service
	// queries.
	if !r.LookupAddress(netip.MustParseAddr("127.0.0.1")) {
		t.Error("address lookup reported no change")
	}
	assertStrings(t, "after address lookup",
		r.ServiceQueries(), []string{"_http._tcp.local", "_googlecast._tcp.local"})

	if r.LookupAddress(netip.MustParseAddr("127.0.0.1")) {
		t.Error("repeated address lookup reported a change")
	}
}

func assertStrings(t *testing.T, context string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: queries = %v, want %v", context, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s: query %d = %q, want %q", context, i, got[i], want[i])
		}
	}
}

// googleCastResponse is the captured announcement also used by the wire
// codec tests: a PTR answer plus TXT, SRV and A additionals.
const googleCastResponse = "00008400" +
	"0000000100000003" +
	"0b5f676f6f676c6563617374" +
	"045f746370" +
	"056c6f63616c" +
	"00" +
	"000c0001000000780030" +
	"2d4252415649412d344b2d47422d3461336365653731643366" +
	"376638303239623234613236623930326439373831" +
	"c00c" +
	"c02e" +
	"001080010000119400aa" +
	"2369643d34613363656537316433663766383032396232346132366239303264" +
	"393738312363643d463236354331333835343145423031304338423638384430" +
	"414244424632363703726d3d0576653d30350f6d643d42524156494120344b20" +
	"47421269633d2f73657475702f69636f6e2e706e670e666e3d4b442d35355844" +
	"383030350763613d323035330473743d300f62733d4641384644303930453041" +
	"31046e663d310372733d" +
	"c02e" +
	"0021800100000078002d" +
	"000000001f49" +
	"2434613363656537312d643366372d663830322d396232342d" +
	"613236623930326439373831" +
	"c01d" +
	"c126" +
	"0001800100000078" +
	"0004" +
	"c0a8b23c"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("invalid hex fixture: %v", err)
	}
	return data
}

func TestProcessDatagramEvents(t *testing.T) {
	r := NewResolver()

	var services []ServiceDescription
	var hosts []string
	var hostAddrs [][]netip.Addr
	messages := 0

	r.ServiceFound = func(s ServiceDescription) { services = append(services, s) }
	r.HostFound = func(name string, addrs []netip.Addr) {
		hosts = append(hosts, name)
		hostAddrs = append(hostAddrs, addrs)
	}
	r.MessageReceived = func(dnswire.Message) { messages++ }

	sender := netip.MustParseAddrPort("192.168.178.60:5353")
	r.processDatagram(mustHex(t, googleCastResponse), sender)

	if len(services) != 1 {
		t.Fatalf("service events = %d, want 1", len(services))
	}
	s := services[0]
	if got, want := s.Name, "BRAVIA-4K-GB-4a3cee71d3f7f8029b24a26b902d9781"; got != want {
		t.Errorf("service name = %q, want %q", got, want)
	}
	if got, want := s.Type, "_googlecast._tcp"; got != want {
		t.Errorf("service type = %q, want %q", got, want)
	}
	if got, want := s.Target, "4a3cee71-d3f7-f802-9b24-a26b902d9781"; got != want {
		t.Errorf("service target = %q, want %q", got, want)
	}
	if s.Port != 8009 {
		t.Errorf("service port = %d, want 8009", s.Port)
	}
	if value, ok := s.InfoValue("md"); !ok || value != "BRAVIA 4K GB" {
		t.Errorf("md = %q (%v), want BRAVIA 4K GB", value, ok)
	}
	if value, ok := s.InfoValue("fn"); !ok || value != "KD-55XD8005" {
		t.Errorf("fn = %q (%v), want KD-55XD8005", value, ok)
	}

	if len(hosts) != 1 {
		t.Fatalf("host events = %d, want 1", len(hosts))
	}
	if got, want := hosts[0], "4a3cee71-d3f7-f802-9b24-a26b902d9781"; got != want {
		t.Errorf("host name = %q, want %q", got, want)
	}
	want := []netip.Addr{netip.MustParseAddr("192.168.178.60")}
	if len(hostAddrs[0]) != 1 || hostAddrs[0][0] != want[0] {
		t.Errorf("host addresses = %v, want %v", hostAddrs[0], want)
	}

	if messages != 1 {
		t.Errorf("message events = %d, want 1", messages)
	}
}

func TestProcessDatagramIgnoresGarbage(t *testing.T) {
	r := NewResolver()
	r.ServiceFound = func(ServiceDescription) { t.Error("service event from garbage") }
	r.HostFound = func(string, []netip.Addr) { t.Error("host event from garbage") }

	sender := netip.MustParseAddrPort("192.168.1.50:5353")
	r.processDatagram(nil, sender)
	r.processDatagram([]byte{0x01, 0x02}, sender)
	r.processDatagram([]byte("definitely not dns"), sender)
}
