// Package upnp resolves UPnP devices: SSDP discovery plus the XML
// device and service descriptions referenced from it.
//
// The resolver extends the SSDP resolver. For every alive service it
// fetches the advertised description documents, decodes them with the
// device grammar (nested devices flatten into sibling records), and,
// depending on the configured behaviors, also fetches icon images and
// service control point descriptions. One aggregate device event fires
// per device once all of its sub-requests have finished; failed
// sub-requests leave their fields empty without failing the device.
package upnp
