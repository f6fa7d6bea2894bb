// Package common holds process-wide helpers shared by the ovpncm binary and
// the domain packages.
package common

import (
	"log/slog"
	"os"
)

// Version is the build version, overridden at link time.
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	// Debug lowers the handler level to slog.LevelDebug.
	Debug bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Service is attached as a "service" attribute to every record when set.
	Service string

	// Version is attached as a "version" attribute to every record when set.
	Version string
}

// SetupLogger builds the process logger on stderr. Components receive the
// logger through their constructors; nothing in this module logs through a
// package-level default.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	if opts.Version != "" {
		logger = logger.With(slog.String("version", opts.Version))
	}
	return logger
}
