package upnp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/logging"
	"github.com/muurk/lanprobe/internal/ssdp"
)

// Behavior selects which referenced documents the resolver fetches in
// addition to the device description itself.
type Behavior uint8

// Behaviors.
const (
	// LoadIcons fetches the image data of every icon with a URL.
	LoadIcons Behavior = 1 << 0

	// LoadServiceDescription fetches and decodes every service's SCPD.
	LoadServiceDescription Behavior = 1 << 1
)

// maxDocumentSize bounds fetched documents and icons.
const maxDocumentSize = 4 << 20

// Resolver discovers UPnP devices. It embeds an SSDP resolver whose
// service events feed the descriptor pipeline; the aggregate results
// arrive through DeviceFound. Configure callbacks before Start.
type Resolver struct {
	*ssdp.Resolver

	client    *http.Client
	behaviors Behavior

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	emitMu sync.Mutex

	// DeviceFound reports one aggregate record per resolved device.
	DeviceFound func(device DeviceDescription)

	// ServiceFound passes the raw SSDP events through, in addition to
	// the descriptor pipeline.
	ServiceFound func(service ssdp.ServiceDescription)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used to fetch description documents.
// Without a client the resolver emits minimal records straight from the
// SSDP advertisements.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithBehaviors selects the documents fetched per device.
func WithBehaviors(behaviors Behavior) Option {
	return func(r *Resolver) { r.behaviors = behaviors }
}

// WithInterval sets the search resubmission interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Resolver) { r.SetInterval(interval) }
}

// NewResolver returns an idle resolver. Call Start to begin scanning
// and LookupService (typically with ssdp.RootDevice or ssdp.AnyService)
// to choose the search targets.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{Resolver: ssdp.NewResolver()}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(r)
	}

	r.Resolver.ServiceFound = r.onServiceFound
	return r
}

// Close aborts in-flight HTTP requests, waits for the pipeline to drain
// and releases the underlying SSDP resolver.
func (r *Resolver) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.Resolver.Close()
}

// onServiceFound starts the descriptor pipeline for one advertisement.
func (r *Resolver) onServiceFound(service ssdp.ServiceDescription) {
	if r.ServiceFound != nil {
		r.ServiceFound(service)
	}

	for _, location := range service.Locations {
		if r.client == nil {
			logging.Debug("Reporting device without description",
				zap.String("service", service.Name),
				zap.String("location", location.String()),
			)
			r.emitDevice(DeviceDescription{
				URL:              location,
				DeviceType:       service.Type,
				UniqueDeviceName: service.Name,
			})
			continue
		}

		logging.Debug("Downloading device description",
			zap.String("service", service.Name),
			zap.String("location", location.String()),
		)

		r.wg.Add(1)
		go func(location *url.URL) {
			defer r.wg.Done()
			r.loadDeviceDescription(service, location)
		}(location)
	}
}

func (r *Resolver) loadDeviceDescription(service ssdp.ServiceDescription, location *url.URL) {
	body, err := r.fetch(location)
	if err != nil {
		logging.Warn("Could not download device description",
			zap.String("service", service.Name),
			zap.String("location", location.String()),
			zap.Error(err),
		)
		return
	}
	defer body.Close()

	devices, err := ParseDeviceDescription(body, location)
	if err != nil {
		logging.Warn("Could not parse device description",
			zap.String("location", location.String()),
			zap.Error(err),
		)
		return
	}

	for _, device := range devices {
		if r.behaviors != 0 {
			r.loadDetails(&device)
		}
		if r.ctx.Err() != nil {
			return
		}
		r.emitDevice(device)
	}
}

// loadDetails fetches the icons and service descriptions of one device.
// Each sub-request failure only leaves its field empty.
func (r *Resolver) loadDetails(device *DeviceDescription) {
	var wg sync.WaitGroup

	if r.behaviors&LoadIcons != 0 {
		for i := range device.Icons {
			icon := &device.Icons[i]
			if icon.URL == nil || icon.URL.String() == "" || len(icon.Data) > 0 {
				continue
			}

			wg.Add(1)
			go func(icon *Icon) {
				defer wg.Done()

				target := resolveURL(device.BaseURL, icon.URL)
				body, err := r.fetch(target)
				if err != nil {
					logging.Warn("Could not download icon",
						zap.String("device", device.UniqueDeviceName),
						zap.String("url", target.String()),
						zap.Error(err),
					)
					return
				}
				defer body.Close()

				if data, err := io.ReadAll(io.LimitReader(body, maxDocumentSize)); err == nil {
					icon.Data = data
				}
			}(icon)
		}
	}

	if r.behaviors&LoadServiceDescription != 0 {
		for i := range device.Services {
			service := &device.Services[i]
			if service.SCPDURL == nil || service.SCPDURL.String() == "" || service.SCPD != nil {
				continue
			}

			wg.Add(1)
			go func(service *Service) {
				defer wg.Done()

				target := resolveURL(device.BaseURL, service.SCPDURL)
				body, err := r.fetch(target)
				if err != nil {
					logging.Warn("Could not download service description",
						zap.String("device", device.UniqueDeviceName),
						zap.String("url", target.String()),
						zap.Error(err),
					)
					return
				}
				defer body.Close()

				scpd, err := ParseControlPointDescription(body)
				if err != nil {
					logging.Warn("Could not parse service description",
						zap.String("url", target.String()),
						zap.Error(err),
					)
					return
				}
				service.SCPD = scpd
			}(service)
		}
	}

	wg.Wait()

	logging.Debug("All details downloaded", zap.String("device", device.UniqueDeviceName))
}

func resolveURL(base, ref *url.URL) *url.URL {
	if base == nil {
		return ref
	}
	return base.ResolveReference(ref)
}

func (r *Resolver) fetch(u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return resp.Body, nil
}

// emitDevice serializes DeviceFound events across pipeline goroutines.
func (r *Resolver) emitDevice(device DeviceDescription) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if r.DeviceFound != nil {
		r.DeviceFound(device)
	}
}
