package mdns

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// URLFinder derives browsable URLs from a resolved service.
type URLFinder func(service ServiceDescription) []*url.URL

var (
	urlFindersMu sync.RWMutex

	// Built-in finders for well-known service types; see
	// http://www.dns-sd.org/ServiceTypes.html for the registry.
	urlFinders = map[string]URLFinder{
		"_afpovertcp._tcp": DefaultURLFinder("afp", 548, "path"),
		"_ftp._tcp":        DefaultURLFinder("ftp", 21, "path"),
		"_http._tcp":       DefaultURLFinder("http", 80, "path"),
		"_https._tcp":      DefaultURLFinder("https", 443, "path"),
		"_ipp._tcp":        PrinterURLFinder("ipp", 631, "rp"),
		"_ipps._tcp":       PrinterURLFinder("ipps", 631, "rp"),
		"_mqtt._tcp":       DefaultURLFinder("mqtt", 1883, "topic"),
		"_nfs._tcp":        DefaultURLFinder("nfs", 2049, "path"),
		"_printer._tcp":    DefaultURLFinder("ftp", 515, "queue"),
		"_rtsp._tcp":       DefaultURLFinder("rtsp", 554, "path"),
		"_rtsp._udp":       DefaultURLFinder("rtspu", 554, "path"),
		"_sftp-ssh._tcp":   DefaultURLFinder("sftp", 22, "path"),
		"_smb._tcp":        DefaultURLFinder("smb", 139, "path"),
		"_ssh._tcp":        DefaultURLFinder("ssh", 22, ""),
		"_telnet._tcp":     DefaultURLFinder("telnet", 23, ""),
		"_webdav._tcp":     DefaultURLFinder("webdav", 80, "path"),
		"_webdavs._tcp":    DefaultURLFinder("webdavs", 443, "path"),
	}
)

// RegisterURLFinder adds or replaces the finder for a service type.
func RegisterURLFinder(serviceType string, finder URLFinder) {
	urlFindersMu.Lock()
	defer urlFindersMu.Unlock()
	urlFinders[serviceType] = finder
}

// ServiceURLs returns the browsable URLs for a service, or nil when its
// type has no registered finder.
func ServiceURLs(service ServiceDescription) []*url.URL {
	urlFindersMu.RLock()
	finder := urlFinders[service.Type]
	urlFindersMu.RUnlock()

	if finder == nil {
		return nil
	}
	return finder(service)
}

// DefaultURLFinder builds scheme://[user[:password]@]target[:port]/path
// URLs. The port is omitted when it matches the scheme default; user and
// password come from the "u" and "p" TXT keys; the path comes from the
// given TXT key, normalized to a leading slash, and defaults to "/".
func DefaultURLFinder(scheme string, defaultPort int, pathKey string) URLFinder {
	return func(service ServiceDescription) []*url.URL {
		u := &url.URL{Scheme: scheme, Host: service.Target}

		if service.Port != defaultPort && service.Port != 0 {
			u.Host = service.Target + ":" + strconv.Itoa(service.Port)
		}

		if userName, ok := service.InfoValue("u"); ok {
			if password, ok := service.InfoValue("p"); ok {
				u.User = url.UserPassword(userName, password)
			} else {
				u.User = url.User(userName)
			}
		}

		path := "/"
		if pathKey != "" {
			if p, ok := service.InfoValue(pathKey); ok {
				path = p
				if !strings.HasPrefix(path, "/") {
					path = "/" + path
				}
			}
		}
		u.Path = path

		return []*url.URL{u}
	}
}

// PrinterURLFinder extends the default finder with the printer-specific
// TXT keys: "adminurl" adds the configuration page, "DUUID" adds a
// urn:uuid identifier.
func PrinterURLFinder(scheme string, defaultPort int, pathKey string) URLFinder {
	base := DefaultURLFinder(scheme, defaultPort, pathKey)

	return func(service ServiceDescription) []*url.URL {
		locations := base(service)

		if admin, ok := service.InfoValue("adminurl"); ok && admin != "" {
			if u, err := url.Parse(admin); err == nil {
				locations = append(locations, u)
			}
		}
		if uuid, ok := service.InfoValue("DUUID"); ok && uuid != "" {
			if u, err := url.Parse("urn:uuid:" + uuid); err == nil {
				locations = append(locations, u)
			}
		}

		return locations
	}
}
