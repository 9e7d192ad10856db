// Package log provides structured, colored logging for the signer kit.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers.
var (
	Session zerolog.Logger
	Gateway zerolog.Logger
	Signer  zerolog.Logger
	RPC     zerolog.Logger
)

func init() {
	Logger = New(os.Stdout, "info", false)
	initComponentLoggers()
}

// Init replaces the global logger. With a non-empty file, records also go
// to that file as JSON regardless of jsonOutput.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = consoleWriter(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	Logger = build(out, level)
	initComponentLoggers()
	return nil
}

// New returns a logger writing to w, as JSON or colored console text.
func New(w io.Writer, level string, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		w = consoleWriter(w)
	}
	return build(w, level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
}

func build(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// parseLevel maps a config level to zerolog; anything unknown is info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func initComponentLoggers() {
	Session = WithComponent("session")
	Gateway = WithComponent("gateway")
	Signer = WithComponent("signer")
	RPC = WithComponent("rpc")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// ForSite tags l with the requesting site.
func ForSite(l zerolog.Logger, site string) zerolog.Logger {
	return l.With().Str("site", site).Logger()
}

// Benchmark returns a func that logs the time elapsed since the call at
// debug level.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
