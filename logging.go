package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/sharepoint-gateway/internal/config"
)

const logFilePermissions = 0o600

// logLevel maps the configured level, overridden by --verbose and --quiet.
func logLevel(cfg *config.Config) slog.Level {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return level
}

// useJSON reports whether logs written to w should be JSON. "auto" picks
// text for a terminal.
func useJSON(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// buildLogger creates the process logger. Logs go to stderr, never stdout,
// which belongs to the MCP stream; logging.log_file redirects them. The
// returned function closes the log file.
func buildLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	out := stderr
	closeFn := func() {}

	format := ""
	if cfg != nil {
		format = cfg.Logging.LogFormat

		if cfg.Logging.LogFile != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Logging.LogFile), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating log directory: %w", err)
			}

			f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}

			out = f
			closeFn = func() { f.Close() }
		}
	}

	opts := &slog.HandlerOptions{Level: logLevel(cfg)}

	var h slog.Handler
	if useJSON(format, out) {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	return slog.New(h), closeFn, nil
}
