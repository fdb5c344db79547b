package upnp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/muurk/lanprobe/internal/ssdp"
)

// deviceServer serves a description document referencing an icon and an
// SCPD, so the whole pipeline can run against loopback HTTP.
func deviceServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/desc.xml", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:Basic:1</deviceType>
    <friendlyName>Test Device</friendlyName>
    <UDN>uuid:test-device</UDN>
    <iconList>
      <icon>
        <mimetype>image/png</mimetype>
        <width>48</width>
        <height>48</height>
        <url>/icon.png</url>
      </icon>
    </iconList>
    <serviceList>
      <service>
        <serviceId>urn:upnp-org:serviceId:Cooling1</serviceId>
        <serviceType>urn:schemas-upnp-org:service:Cooling:1</serviceType>
        <SCPDURL>/scpd.xml</SCPDURL>
        <controlURL>/control</controlURL>
        <eventSubURL>/events</eventSubURL>
      </service>
      <service>
        <serviceId>urn:upnp-org:serviceId:Broken1</serviceId>
        <serviceType>urn:schemas-upnp-org:service:Broken:1</serviceType>
        <SCPDURL>/missing.xml</SCPDURL>
        <controlURL>/control2</controlURL>
        <eventSubURL>/events2</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`)
	})

	mux.HandleFunc("/icon.png", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("PNGDATA"))
	})

	mux.HandleFunc("/scpd.xml", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <serviceStateTable>
    <stateVariable sendEvents="no">
      <name>Target</name>
      <dataType>i2</dataType>
    </stateVariable>
  </serviceStateTable>
</scpd>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// collectDevices funnels DeviceFound events into a slice.
type collectDevices struct {
	mu      sync.Mutex
	devices []DeviceDescription
}

func (c *collectDevices) add(device DeviceDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = append(c.devices, device)
}

func (c *collectDevices) all() []DeviceDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DeviceDescription(nil), c.devices...)
}

func serviceFor(t *testing.T, server *httptest.Server) ssdp.ServiceDescription {
	t.Helper()

	location, err := url.Parse(server.URL + "/desc.xml")
	if err != nil {
		t.Fatal(err)
	}
	return ssdp.ServiceDescription{
		Name:      "uuid:test-device::upnp:rootdevice",
		Type:      "upnp:rootdevice",
		Locations: []*url.URL{location},
	}
}

func TestPipelineLoadsDetails(t *testing.T) {
	server := deviceServer(t)

	var collected collectDevices
	r := NewResolver(
		WithHTTPClient(server.Client()),
		WithBehaviors(LoadIcons|LoadServiceDescription),
	)
	r.DeviceFound = collected.add
	defer r.Close()

	r.onServiceFound(serviceFor(t, server))
	r.wg.Wait()

	devices := collected.all()
	if len(devices) != 1 {
		t.Fatalf("device count = %d, want 1", len(devices))
	}

	d := devices[0]
	if got, want := d.UniqueDeviceName, "uuid:test-device"; got != want {
		t.Errorf("udn = %q, want %q", got, want)
	}
	if got, want := d.DisplayName, "Test Device"; got != want {
		t.Errorf("display name = %q, want %q", got, want)
	}

	if len(d.Icons) != 1 {
		t.Fatalf("icon count = %d, want 1", len(d.Icons))
	}
	if got, want := string(d.Icons[0].Data), "PNGDATA"; got != want {
		t.Errorf("icon data = %q, want %q", got, want)
	}

	if len(d.Services) != 2 {
		t.Fatalf("service count = %d, want 2", len(d.Services))
	}
	cooling := d.Services[0]
	if cooling.SCPD == nil {
		t.Fatal("cooling service has no SCPD")
	}
	if len(cooling.SCPD.StateVariables) != 1 || cooling.SCPD.StateVariables[0].Name != "Target" {
		t.Errorf("cooling SCPD = %+v", cooling.SCPD)
	}

	// The broken SCPD URL must not fail the aggregate, only stay empty.
	if d.Services[1].SCPD != nil {
		t.Error("broken service unexpectedly has an SCPD")
	}
}

func TestPipelineWithoutBehaviors(t *testing.T) {
	server := deviceServer(t)

	var collected collectDevices
	r := NewResolver(WithHTTPClient(server.Client()))
	r.DeviceFound = collected.add
	defer r.Close()

	r.onServiceFound(serviceFor(t, server))
	r.wg.Wait()

	devices := collected.all()
	if len(devices) != 1 {
		t.Fatalf("device count = %d, want 1", len(devices))
	}
	if len(devices[0].Icons) != 1 || devices[0].Icons[0].Data != nil {
		t.Error("icon data fetched without LoadIcons")
	}
	if devices[0].Services[0].SCPD != nil {
		t.Error("SCPD fetched without LoadServiceDescription")
	}
}

func TestPipelineWithoutClientEmitsMinimalRecord(t *testing.T) {
	var collected collectDevices
	r := NewResolver()
	r.DeviceFound = collected.add
	defer r.Close()

	location, _ := url.Parse("http://192.168.0.9/desc.xml")
	r.onServiceFound(ssdp.ServiceDescription{
		Name:      "uuid:offline-device",
		Type:      "upnp:rootdevice",
		Locations: []*url.URL{location},
	})

	devices := collected.all()
	if len(devices) != 1 {
		t.Fatalf("device count = %d, want 1", len(devices))
	}
	d := devices[0]
	if d.UniqueDeviceName != "uuid:offline-device" || d.DeviceType != "upnp:rootdevice" {
		t.Errorf("minimal record = %+v", d)
	}
	if d.URL == nil || d.URL.String() != "http://192.168.0.9/desc.xml" {
		t.Errorf("minimal record url = %v", d.URL)
	}
	if len(d.Icons) != 0 || len(d.Services) != 0 {
		t.Error("minimal record carries details")
	}
}

func TestPipelineSurvivesUnreachableServer(t *testing.T) {
	server := deviceServer(t)
	badLocation, _ := url.Parse(server.URL + "/nope.xml")

	var collected collectDevices
	r := NewResolver(WithHTTPClient(server.Client()))
	r.DeviceFound = collected.add
	defer r.Close()

	r.onServiceFound(ssdp.ServiceDescription{
		Name:      "uuid:gone",
		Type:      "upnp:rootdevice",
		Locations: []*url.URL{badLocation},
	})
	r.wg.Wait()

	if got := collected.all(); len(got) != 0 {
		t.Errorf("devices = %v, want none", got)
	}
}

func TestRootDeviceSearch(t *testing.T) {
	r := NewResolver()
	defer r.Close()

	if !r.LookupService(ssdp.RootDevice) {
		t.Error("root device lookup reported no change")
	}
	if r.LookupService(ssdp.RootDevice) {
		t.Error("repeated root device lookup reported a change")
	}

	deep := strings.Repeat("x", 10)
	if !r.LookupService("urn:schemas-upnp-org:device:" + deep + ":1") {
		t.Error("second service type reported no change")
	}
}
