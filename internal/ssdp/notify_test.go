package ssdp

import (
	"testing"
	"time"
)

var testNow = time.Date(2024, time.September, 10, 22, 34, 33, 0, time.UTC)

func TestParseNotifyAlive(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\n" +
		"Host: 239.255.255.250:1900\r\n" +
		"NT: blenderassociation:blender\r\n" +
		"NTS: ssdp:alive\r\n" +
		"USN: someunique:idscheme3\r\n" +
		"LOCATION: http://192.168.123.45:7890/dd.xml\r\n" +
		"LOCATION: http://192.168.123.45:7890/icon.png\r\n" +
		"AL: <blender:ixl><http://foo/bar>\r\n" +
		"Cache-Control: max-age = 7393\r\n" +
		"\r\n")

	notify := ParseNotify(data, testNow)

	if notify.Type != Alive {
		t.Fatalf("type = %v, want Alive", notify.Type)
	}
	if got, want := notify.ServiceName, "someunique:idscheme3"; got != want {
		t.Errorf("service name = %q, want %q", got, want)
	}
	if got, want := notify.ServiceType, "blenderassociation:blender"; got != want {
		t.Errorf("service type = %q, want %q", got, want)
	}

	wantLocations := []string{
		"http://192.168.123.45:7890/dd.xml",
		"http://192.168.123.45:7890/icon.png",
	}
	if len(notify.Locations) != len(wantLocations) {
		t.Fatalf("locations = %v, want %v", notify.Locations, wantLocations)
	}
	for i, want := range wantLocations {
		if got := notify.Locations[i].String(); got != want {
			t.Errorf("location %d = %q, want %q", i, got, want)
		}
	}

	wantAlt := []string{"blender:ixl", "http://foo/bar"}
	if len(notify.AltLocations) != len(wantAlt) {
		t.Fatalf("alt locations = %v, want %v", notify.AltLocations, wantAlt)
	}
	for i, want := range wantAlt {
		if got := notify.AltLocations[i].String(); got != want {
			t.Errorf("alt location %d = %q, want %q", i, got, want)
		}
	}

	if want := testNow.Add(7393 * time.Second); !notify.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", notify.Expiry, want)
	}
}

func TestParseNotifyByeBye(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\n" +
		"Host: 239.255.255.250:1900\r\n" +
		"NT: blenderassociation:blender\r\n" +
		"NTS: ssdp:byebye\r\n" +
		"USN: someunique:idscheme3\r\n" +
		"\r\n")

	notify := ParseNotify(data, testNow)

	if notify.Type != ByeBye {
		t.Fatalf("type = %v, want ByeBye", notify.Type)
	}
	if got, want := notify.ServiceName, "someunique:idscheme3"; got != want {
		t.Errorf("service name = %q, want %q", got, want)
	}
	if len(notify.Locations) != 0 {
		t.Errorf("locations = %v, want none", notify.Locations)
	}
}

func TestParseNotifySearchResponse(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\n" +
		"Cache-Control: max-age=1800\r\n" +
		"Location: http://192.168.0.4:49000/servicedesc.xml\r\n" +
		"ST: upnp:rootdevice\r\n" +
		"USN: uuid:285fe440-2eee-4a0e-b11c-d051f4caa274:upnp:rootdevice\r\n" +
		"\r\n")

	notify := ParseNotify(data, testNow)

	if notify.Type != Alive {
		t.Fatalf("type = %v, want Alive", notify.Type)
	}
	if got, want := notify.ServiceName, "uuid:285fe440-2eee-4a0e-b11c-d051f4caa274:upnp:rootdevice"; got != want {
		t.Errorf("service name = %q, want %q", got, want)
	}
	if got, want := notify.ServiceType, "upnp:rootdevice"; got != want {
		t.Errorf("service type = %q, want %q", got, want)
	}
	if want := testNow.Add(1800 * time.Second); !notify.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", notify.Expiry, want)
	}
}

func TestParseNotifyInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "garbage", data: "hello\r\n"},
		{name: "msearch ignored", data: "M-SEARCH * HTTP/1.1\r\nST: ssdp:all\r\n\r\n"},
		{name: "wrong verb", data: "GET * HTTP/1.1\r\n\r\n"},
		{name: "wrong resource", data: "NOTIFY /path HTTP/1.1\r\nNTS: ssdp:alive\r\n\r\n"},
		{name: "wrong protocol", data: "NOTIFY * HTTP/0.9\r\nNTS: ssdp:alive\r\n\r\n"},
		{name: "wrong status", data: "HTTP/1.1 404 Not Found\r\n\r\n"},
		{name: "unknown subtype", data: "NOTIFY * HTTP/1.1\r\nNTS: ssdp:whatever\r\n\r\n"},
		{name: "missing subtype", data: "NOTIFY * HTTP/1.1\r\nUSN: x\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if notify := ParseNotify([]byte(tt.data), testNow); notify.Type != Invalid {
				t.Errorf("type = %v, want Invalid", notify.Type)
			}
		})
	}
}

func TestParseAlternativeLocations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: nil},
		{name: "single", text: "<http://foo/bar>", want: []string{"http://foo/bar"}},
		{name: "pair", text: "<blender:ixl><http://foo/bar>", want: []string{"blender:ixl", "http://foo/bar"}},
		{name: "trailing text", text: "<http://a> leftover", want: []string{"http://a"}},
		{name: "unclosed bracket", text: "<http://a><http://b", want: []string{"http://a"}},
		{name: "no brackets", text: "http://a", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAlternativeLocations(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("locations = %v, want %v", got, tt.want)
			}
			for i, want := range tt.want {
				if got[i].String() != want {
					t.Errorf("location %d = %q, want %q", i, got[i], want)
				}
			}
		})
	}
}
