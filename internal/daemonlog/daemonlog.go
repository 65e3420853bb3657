// Package daemonlog sets up the process-wide slog logger: a
// configurable level and an optional sink other than stderr, plain
// slog.Error/Warn/Info with no third-party logging library.
package daemonlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls the logger built by Setup.
type Options struct {
	// Level is one of "debug", "info", "warn", "error" (case
	// insensitive). Empty defaults to "info".
	Level string

	// Foreground selects a human-oriented text handler. When false,
	// output is JSON, the shape a daemon's log collector expects.
	// Either way it goes to Output (or os.Stderr if nil).
	Foreground bool

	// Output overrides the destination stream. Defaults to os.Stderr.
	Output io.Writer
}

// Setup builds a *slog.Logger per Options and installs it as the
// process default via slog.SetDefault, so every bare slog.Info/Warn/
// Error call in the codebase routes through it.
func Setup(opts Options) (*slog.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if opts.Foreground {
		h = slog.NewTextHandler(out, handlerOpts)
	} else {
		h = slog.NewJSONHandler(out, handlerOpts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("daemonlog: unknown level %q", s)
	}
}
