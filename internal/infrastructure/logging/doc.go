// Package logging provides structured logging for mqttlink.
//
// It wraps log/slog so every entry carries the service and version fields.
// JSON output is the default; text output is available for development.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	sup.SetLogger(logger.With("component", "session"))
//
// Never log broker passwords or JWT secrets.
package logging
