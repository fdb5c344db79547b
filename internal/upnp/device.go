package upnp

import (
	"encoding/xml"
	"io"
	"net/url"

	"github.com/muurk/lanprobe/internal/xmlstate"
)

// DeviceNamespace is the XML namespace of UPnP device descriptions.
const DeviceNamespace = "urn:schemas-upnp-org:device-1-0"

// Icon is one entry of a device's icon list.
type Icon struct {
	MimeType string
	Width    int
	Height   int
	Depth    int
	URL      *url.URL

	// Data is the fetched image, populated by the LoadIcons behavior.
	Data []byte
}

// Service is one entry of a device's service list.
type Service struct {
	ID          string
	Type        string
	SCPDURL     *url.URL
	ControlURL  *url.URL
	EventingURL *url.URL

	// SCPD is the fetched control point description, populated by the
	// LoadServiceDescription behavior.
	SCPD *ControlPointDescription
}

// Manufacturer describes the device vendor.
type Manufacturer struct {
	Name string
	URL  *url.URL
}

// Model describes the device model.
type Model struct {
	Description          string
	Name                 string
	Number               string
	URL                  *url.URL
	UniversalProductCode string
}

// DeviceDescription is one device record from a description document.
// Nested devices appear as sibling records sharing the same URL.
type DeviceDescription struct {
	URL     *url.URL
	BaseURL *url.URL

	SpecVersion      xmlstate.Version
	UniqueDeviceName string
	DeviceType       string
	DisplayName      string
	Manufacturer     Manufacturer
	Model            Model
	PresentationURL  *url.URL
	SerialNumber     string

	Icons    []Icon
	Services []Service
}

// Grammar states of the device description document.
const (
	deviceStateDocument xmlstate.State = iota
	deviceStateRoot
	deviceStateSpecVersion
	deviceStateDeviceList
	deviceStateDevice
	deviceStateIconList
	deviceStateIcon
	deviceStateServiceList
	deviceStateService
)

// ParseDeviceDescription decodes a device description document fetched
// from deviceURL. The first record is the root device; devices nested
// in deviceList elements follow it in document order.
func ParseDeviceDescription(r io.Reader, deviceURL *url.URL) ([]DeviceDescription, error) {
	parser := xmlstate.NewParser(xml.NewDecoder(r))
	return readDevice(parser, deviceURL, deviceStateDocument)
}

// readDevice decodes one device (sub)document starting in the given
// state: deviceStateDocument for a whole document, deviceStateDevice
// for a nested device element whose start tag is already consumed.
func readDevice(parser *xmlstate.Parser, deviceURL *url.URL, initial xmlstate.State) ([]DeviceDescription, error) {
	device := DeviceDescription{URL: deviceURL, BaseURL: deviceURL}
	var nested []DeviceDescription

	icon := func() *Icon { return &device.Icons[len(device.Icons)-1] }
	service := func() *Service { return &device.Services[len(device.Services)-1] }

	grammar := xmlstate.StateTable{
		deviceStateDocument: {
			"root": xmlstate.Transition(deviceStateRoot),
		},
		deviceStateRoot: {
			"URLBase":     xmlstate.Assign(func(u *url.URL) { device.BaseURL = u }),
			"specVersion": xmlstate.Transition(deviceStateSpecVersion),
			"device":      xmlstate.Transition(deviceStateDevice),
		},
		deviceStateSpecVersion: {
			"major": xmlstate.AssignVersion(&device.SpecVersion, xmlstate.SegmentMajor),
			"minor": xmlstate.AssignVersion(&device.SpecVersion, xmlstate.SegmentMinor),
		},
		deviceStateDeviceList: {
			"device": xmlstate.Handle(func(p *xmlstate.Parser) error {
				children, err := readDevice(p, device.BaseURL, deviceStateDevice)
				if err != nil {
					return err
				}
				for i := range children {
					children[i].URL = device.URL
				}
				nested = append(nested, children...)
				return nil
			}),
		},
		deviceStateDevice: {
			"deviceType":       xmlstate.Assign(func(s string) { device.DeviceType = s }),
			"friendlyName":     xmlstate.Assign(func(s string) { device.DisplayName = s }),
			"manufacturer":     xmlstate.Assign(func(s string) { device.Manufacturer.Name = s }),
			"manufacturerURL":  xmlstate.Assign(func(u *url.URL) { device.Manufacturer.URL = u }),
			"modelDescription": xmlstate.Assign(func(s string) { device.Model.Description = s }),
			"modelName":        xmlstate.Assign(func(s string) { device.Model.Name = s }),
			"modelNumber":      xmlstate.Assign(func(s string) { device.Model.Number = s }),
			"modelURL":         xmlstate.Assign(func(u *url.URL) { device.Model.URL = u }),
			"presentationURL":  xmlstate.Assign(func(u *url.URL) { device.PresentationURL = u }),
			"serialNumber":     xmlstate.Assign(func(s string) { device.SerialNumber = s }),
			"UDN":              xmlstate.Assign(func(s string) { device.UniqueDeviceName = s }),
			"UPC":              xmlstate.Assign(func(s string) { device.Model.UniversalProductCode = s }),

			"deviceList":  xmlstate.Transition(deviceStateDeviceList),
			"iconList":    xmlstate.Transition(deviceStateIconList),
			"serviceList": xmlstate.Transition(deviceStateServiceList),
		},
		deviceStateIconList: {
			"icon": xmlstate.TransitionInto(deviceStateIcon, func() {
				device.Icons = append(device.Icons, Icon{})
			}),
		},
		deviceStateIcon: {
			"mimetype": xmlstate.Assign(func(s string) { icon().MimeType = s }),
			"width":    xmlstate.Assign(func(n int) { icon().Width = n }),
			"height":   xmlstate.Assign(func(n int) { icon().Height = n }),
			"depth":    xmlstate.Assign(func(n int) { icon().Depth = n }),
			"url":      xmlstate.Assign(func(u *url.URL) { icon().URL = u }),
		},
		deviceStateServiceList: {
			"service": xmlstate.TransitionInto(deviceStateService, func() {
				device.Services = append(device.Services, Service{})
			}),
		},
		deviceStateService: {
			"serviceId":   xmlstate.Assign(func(s string) { service().ID = s }),
			"serviceType": xmlstate.Assign(func(s string) { service().Type = s }),
			"SCPDURL":     xmlstate.Assign(func(u *url.URL) { service().SCPDURL = u }),
			"controlURL":  xmlstate.Assign(func(u *url.URL) { service().ControlURL = u }),
			"eventSubURL": xmlstate.Assign(func(u *url.URL) { service().EventingURL = u }),
		},
	}

	namespaces := xmlstate.NamespaceTable{DeviceNamespace: grammar}

	var err error
	if initial == deviceStateDocument {
		err = parser.Parse(initial, namespaces)
	} else {
		err = parser.ParseElement(initial, namespaces)
	}
	if err != nil {
		return nil, err
	}

	return append([]DeviceDescription{device}, nested...), nil
}
