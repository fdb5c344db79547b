package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/lanprobe/internal/config"
	"github.com/muurk/lanprobe/internal/mdns"
	"github.com/muurk/lanprobe/internal/server"
	"github.com/muurk/lanprobe/internal/ssdp"
	"github.com/muurk/lanprobe/internal/tui"
	"github.com/muurk/lanprobe/internal/upnp"
)

// Command flags
var (
	scanTimeout  int
	outputFormat string
	searchDomain string
)

func init() {
	rootCmd.PersistentFlags().IntVar(&scanTimeout, "timeout", 10, "Scan duration in seconds (0 runs until interrupted)")
	rootCmd.PersistentFlags().StringVar(&searchDomain, "domain", "", "mDNS search domain (default from config, normally \"local\")")

	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(ssdpCmd)
	rootCmd.AddCommand(upnpCmd)
	rootCmd.AddCommand(serveCmd)
}

// scanContext returns a context honoring --timeout and Ctrl-C.
func scanContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if scanTimeout > 0 {
		return context.WithTimeout(ctx, time.Duration(scanTimeout)*time.Second)
	}
	return ctx, cancel
}

func domainFromFlagOrConfig(settings *config.Settings) string {
	if searchDomain != "" {
		return searchDomain
	}
	return settings.Discovery.Domain
}

// browseCmd shows everything the resolvers find in the interactive
// browser.
var browseCmd = &cobra.Command{
	Use:   "browse [service-type...]",
	Short: "Browse the network interactively",
	Long: `Browse for services in the interactive terminal browser.

Without arguments the service types from the configuration file are
browsed, along with SSDP root devices. Pass DNS-SD service types such as
"_http._tcp" to browse specific types instead.`,
	Example: `  # Browse the default service types
  lanprobe browse

  # Browse printers and cast targets only
  lanprobe browse _ipp._tcp _googlecast._tcp`,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	serviceTypes := args
	if len(serviceTypes) == 0 {
		serviceTypes = settings.Discovery.ServiceTypes
	}

	program := tui.NewProgram()

	mdnsResolver := mdns.NewResolver(
		mdns.WithDomain(domainFromFlagOrConfig(settings)),
		mdns.WithInterval(time.Duration(settings.Discovery.MDNSIntervalSeconds)*time.Second),
	)
	mdnsResolver.ServiceFound = func(service mdns.ServiceDescription) {
		location := ""
		if urls := mdns.ServiceURLs(service); len(urls) > 0 {
			location = urls[0].String()
		} else if service.Target != "" {
			location = fmt.Sprintf("%s:%d", service.Target, service.Port)
		}
		program.Send(tui.RowMsg{Source: "mdns", Name: service.Name, Type: service.Type, Location: location})
	}
	mdnsResolver.HostFound = func(hostname string, addresses []netip.Addr) {
		location := ""
		if len(addresses) > 0 {
			location = addresses[0].String()
		}
		program.Send(tui.RowMsg{Source: "mdns", Name: hostname, Location: location})
	}

	ssdpResolver := ssdp.NewResolver(
		ssdp.WithInterval(time.Duration(settings.Discovery.SSDPIntervalSeconds) * time.Second),
	)
	ssdpResolver.ServiceFound = func(service ssdp.ServiceDescription) {
		location := ""
		if len(service.Locations) > 0 {
			location = service.Locations[0].String()
		}
		program.Send(tui.RowMsg{Source: "ssdp", Name: service.Name, Type: service.Type, Location: location})
	}

	mdnsResolver.LookupServices(serviceTypes)
	ssdpResolver.LookupService(ssdp.RootDevice)

	mdnsResolver.Start()
	ssdpResolver.Start()
	defer mdnsResolver.Close()
	defer ssdpResolver.Close()

	_, err = program.Run()
	return err
}

// hostsCmd resolves host names to addresses.
var hostsCmd = &cobra.Command{
	Use:   "hosts <name>...",
	Short: "Resolve host names via mDNS",
	Example: `  # Resolve a printer and a NAS
  lanprobe hosts printer nas

  # Resolve for 30 seconds
  lanprobe hosts printer --timeout 30`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHosts,
}

func runHosts(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := scanContext()
	defer cancel()

	resolver := mdns.NewResolver(
		mdns.WithDomain(domainFromFlagOrConfig(settings)),
		mdns.WithInterval(time.Duration(settings.Discovery.MDNSIntervalSeconds)*time.Second),
	)
	resolver.HostFound = func(hostname string, addresses []netip.Addr) {
		strs := make([]string, len(addresses))
		for i, a := range addresses {
			strs[i] = a.String()
		}
		fmt.Printf("%-30s %s\n", hostname, strings.Join(strs, " "))
	}

	resolver.LookupHostNames(args)
	resolver.Start()
	defer resolver.Close()

	<-ctx.Done()
	return nil
}

// ssdpCmd searches for SSDP services and prints advertisements.
var ssdpCmd = &cobra.Command{
	Use:   "ssdp [search-target]",
	Short: "Search for SSDP services",
	Long: `Search for SSDP services and print alive and byebye notifications.

The search target defaults to "ssdp:all"; pass a specific target such as
"upnp:rootdevice" to narrow the search.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSSDP,
}

func runSSDP(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := scanContext()
	defer cancel()

	resolver := ssdp.NewResolver(
		ssdp.WithInterval(time.Duration(settings.Discovery.SSDPIntervalSeconds) * time.Second),
	)
	resolver.ServiceFound = func(service ssdp.ServiceDescription) {
		expiry := "never"
		if !service.Expires.IsZero() {
			expiry = service.Expires.Format(time.RFC3339)
		}
		fmt.Printf("alive   %s\n        type:    %s\n        expires: %s\n", service.Name, service.Type, expiry)
		for _, location := range service.Locations {
			fmt.Printf("        location: %s\n", location)
		}
	}
	resolver.ServiceLost = func(serviceName string) {
		fmt.Printf("byebye  %s\n", serviceName)
	}

	target := ssdp.AnyService
	if len(args) > 0 {
		target = args[0]
	}
	resolver.LookupService(target)
	resolver.Start()
	defer resolver.Close()

	<-ctx.Done()
	return nil
}

// upnpCmd discovers UPnP devices with their descriptions.
var upnpCmd = &cobra.Command{
	Use:   "upnp",
	Short: "Discover UPnP devices",
	Long: `Discover UPnP devices and fetch their description documents,
including icons and service control point descriptions.`,
	Example: `  # Discover devices, print a summary
  lanprobe upnp

  # JSON output for scripting
  lanprobe upnp --format json`,
	RunE: runUPnP,
}

func init() {
	upnpCmd.Flags().StringVar(&outputFormat, "format", "summary", "Output format (summary, json)")
}

func runUPnP(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := scanContext()
	defer cancel()

	resolver := upnp.NewResolver(
		upnp.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		upnp.WithBehaviors(upnp.LoadIcons|upnp.LoadServiceDescription),
		upnp.WithInterval(time.Duration(settings.Discovery.SSDPIntervalSeconds)*time.Second),
	)
	resolver.DeviceFound = func(device upnp.DeviceDescription) {
		switch outputFormat {
		case "json":
			if data, err := json.MarshalIndent(device, "", "  "); err == nil {
				fmt.Println(string(data))
			}
		default:
			fmt.Printf("%s\n", device.UniqueDeviceName)
			fmt.Printf("  type:  %s\n", device.DeviceType)
			if device.DisplayName != "" {
				fmt.Printf("  name:  %s\n", device.DisplayName)
			}
			if device.Manufacturer.Name != "" {
				fmt.Printf("  make:  %s\n", device.Manufacturer.Name)
			}
			if device.Model.Name != "" {
				fmt.Printf("  model: %s\n", device.Model.Name)
			}
			if device.URL != nil {
				fmt.Printf("  url:   %s\n", device.URL)
			}
			fmt.Printf("  icons: %d, services: %d\n\n", len(device.Icons), len(device.Services))
		}
	}

	resolver.LookupService(ssdp.RootDevice)
	resolver.Start()
	defer resolver.Close()

	<-ctx.Done()
	return nil
}

// serveCmd publishes discovery events on a WebSocket feed.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish discovery events on a WebSocket feed",
	Long: `Run all resolvers and publish their events as JSON on a WebSocket
endpoint (/events) for other tools to consume.`,
	Example: `  # Serve on the configured address
  lanprobe serve

  # Serve on a specific port, run until interrupted
  lanprobe serve --listen localhost:9000 --timeout 0`,
	RunE: runServe,
}

var listenAddr string

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	addr := listenAddr
	if addr == "" {
		addr = settings.Feed.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	feed := server.New(addr)

	mdnsResolver := mdns.NewResolver(
		mdns.WithDomain(domainFromFlagOrConfig(settings)),
		mdns.WithInterval(time.Duration(settings.Discovery.MDNSIntervalSeconds)*time.Second),
	)
	mdnsResolver.HostFound = func(hostname string, addresses []netip.Addr) {
		feed.Publish("host-found", map[string]any{"hostname": hostname, "addresses": addresses})
	}
	mdnsResolver.ServiceFound = func(service mdns.ServiceDescription) {
		feed.Publish("service-found", service)
	}

	upnpResolver := upnp.NewResolver(
		upnp.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		upnp.WithBehaviors(upnp.LoadServiceDescription),
		upnp.WithInterval(time.Duration(settings.Discovery.SSDPIntervalSeconds)*time.Second),
	)
	upnpResolver.ServiceLost = func(serviceName string) {
		feed.Publish("service-lost", map[string]string{"name": serviceName})
	}
	upnpResolver.DeviceFound = func(device upnp.DeviceDescription) {
		feed.Publish("device-found", device)
	}

	mdnsResolver.LookupServices(settings.Discovery.ServiceTypes)
	upnpResolver.LookupService(ssdp.RootDevice)

	mdnsResolver.Start()
	upnpResolver.Start()
	defer mdnsResolver.Close()
	defer upnpResolver.Close()

	fmt.Printf("Publishing discovery events on ws://%s/events\n", addr)

	return feed.ListenAndServe(ctx)
}
