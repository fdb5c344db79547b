// Package config stores user preferences for lanprobe.
//
// Settings live in a YAML file under the platform configuration
// directory (for example ~/.config/lanprobe/config.yaml on Linux) and
// cover discovery defaults such as the mDNS domain, scan intervals and
// the service types browsed by default, plus the listen address of the
// event feed. Saves are atomic so a crash cannot corrupt the file.
package config
