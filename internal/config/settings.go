package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "lanprobe"
	configFile = "config.yaml"

	// currentVersion is the settings schema version.
	currentVersion = 1
)

var (
	// Global settings instance (loaded lazily)
	globalSettings     *Settings
	globalSettingsOnce sync.Once
	globalSettingsErr  error

	// Mutex for thread-safe file operations
	fileMutex sync.Mutex

	// configDirOverride replaces the platform directory in tests.
	configDirOverride string
)

// Discovery holds the defaults applied to new resolvers.
type Discovery struct {
	// Domain is the mDNS search domain, normally "local".
	Domain string `yaml:"domain"`

	// MDNSIntervalSeconds is the mDNS rescan interval.
	MDNSIntervalSeconds int `yaml:"mdns_interval_seconds"`

	// SSDPIntervalSeconds is the SSDP/UPnP rescan interval.
	SSDPIntervalSeconds int `yaml:"ssdp_interval_seconds"`

	// ServiceTypes are the DNS-SD service types browsed by default.
	ServiceTypes []string `yaml:"service_types"`
}

// Feed holds the event feed server settings.
type Feed struct {
	// Listen is the HTTP listen address of `lanprobe serve`.
	Listen string `yaml:"listen"`
}

// Settings is the root of the configuration file.
type Settings struct {
	Version   int       `yaml:"version"`
	Discovery Discovery `yaml:"discovery"`
	Feed      Feed      `yaml:"feed"`
}

// NewSettings returns settings populated with defaults.
func NewSettings() *Settings {
	return &Settings{
		Version: currentVersion,
		Discovery: Discovery{
			Domain:              "local",
			MDNSIntervalSeconds: 2,
			SSDPIntervalSeconds: 15,
			ServiceTypes: []string{
				"_http._tcp",
				"_https._tcp",
				"_ipp._tcp",
				"_ssh._tcp",
			},
		},
		Feed: Feed{
			Listen: "localhost:8939",
		},
	}
}

// GetConfigDir returns the OS-appropriate configuration directory for the
// application. This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/lanprobe or $HOME/.config/lanprobe
//   - macOS: $HOME/.config/lanprobe (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\lanprobe
func GetConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// ensureConfigDir ensures the configuration directory exists.
func ensureConfigDir() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// Load loads the settings from disk. If the file doesn't exist, returns
// new default settings. Thread-safe - multiple calls will return the
// same instance.
func Load() (*Settings, error) {
	globalSettingsOnce.Do(func() {
		globalSettings, globalSettingsErr = loadFromDisk()
	})
	return globalSettings, globalSettingsErr
}

// loadFromDisk performs the actual file loading.
func loadFromDisk() (*Settings, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config doesn't exist - return new default settings
		return NewSettings(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if settings.Version != currentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", settings.Version, currentVersion)
	}

	// Fill gaps with defaults so partial files stay usable
	defaults := NewSettings()
	if settings.Discovery.Domain == "" {
		settings.Discovery.Domain = defaults.Discovery.Domain
	}
	if settings.Discovery.MDNSIntervalSeconds <= 0 {
		settings.Discovery.MDNSIntervalSeconds = defaults.Discovery.MDNSIntervalSeconds
	}
	if settings.Discovery.SSDPIntervalSeconds <= 0 {
		settings.Discovery.SSDPIntervalSeconds = defaults.Discovery.SSDPIntervalSeconds
	}
	if len(settings.Discovery.ServiceTypes) == 0 {
		settings.Discovery.ServiceTypes = defaults.Discovery.ServiceTypes
	}
	if settings.Feed.Listen == "" {
		settings.Feed.Listen = defaults.Feed.Listen
	}

	return &settings, nil
}

// Save saves the settings to disk.
// Performs an atomic write to prevent corruption on crash.
func (s *Settings) Save() error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := ensureConfigDir(); err != nil {
		return fmt.Errorf("failed to ensure config directory exists: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Lanprobe Configuration File
# Discovery defaults and event feed settings.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	// Atomic rename (this is atomic on all platforms)
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// Reload reloads the settings from disk, discarding any in-memory changes.
func Reload() (*Settings, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	globalSettingsOnce = sync.Once{}
	return Load()
}
