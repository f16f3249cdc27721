// Package log implements support for structured logging.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format is a logging format. It implements the pflag.Value interface.
type Format uint

const (
	// FmtText is the human-readable key=value format.
	FmtText Format = iota
	// FmtJSON is the JSON logging format.
	FmtJSON
)

// String returns the string representation of a Format.
func (f *Format) String() string {
	switch *f {
	case FmtText:
		return "text"
	case FmtJSON:
		return "json"
	default:
		panic("logging: unsupported format")
	}
}

// Set sets the Format to the value specified by the provided string.
func (f *Format) Set(s string) error {
	switch strings.ToLower(s) {
	case "text", "logfmt":
		*f = FmtText
	case "json":
		*f = FmtJSON
	default:
		return fmt.Errorf("logging: invalid log format: '%s'", s)
	}
	return nil
}

// Type returns the list of supported Formats.
func (f *Format) Type() string {
	return "[text,json]"
}

// Logger is a module-scoped structured logger.
type Logger = logrus.Entry

// NewLogger builds a logger writing to w at the given level ("debug", "info", ...).
func NewLogger(module string, w io.Writer, format Format, level string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(lvl)
	switch format {
	case FmtText:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case FmtJSON:
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unsupported log format: %v", format)
	}

	return base.WithField("module", module), nil
}

// NewDefaultLogger initializes a JSON logger at info level on stdout.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, "info")
	if err != nil {
		// NewLogger only fails on bad level or format.
		panic(err)
	}
	return logger
}

// NewDiscardLogger returns a logger that drops everything. Used by tests.
func NewDiscardLogger() *Logger {
	logger, _ := NewLogger("discard", io.Discard, FmtText, "panic")
	return logger
}

// WithModule returns a child logger tagged with a different module name.
func WithModule(l *Logger, module string) *Logger {
	if l == nil {
		return NewDiscardLogger().WithField("module", module)
	}
	return l.WithField("module", module)
}
