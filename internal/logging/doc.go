// Package logging provides structured logging for lanprobe.
//
// Logging is silent by default so CLI output stays clean. Set the
// LANPROBE_LOG_LEVEL environment variable (debug, info, warn, error) or
// call Initialize with an explicit level to enable zap console output on
// stderr.
package logging
