// Package cli holds the small pieces shared by the bring-up binaries.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a logger writing to w. format is "json" or "text"; the
// text format is the default since the output is read by people at the
// bench.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Getenv returns the trimmed value of key, or def when it is unset or
// blank.
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetenvInt is Getenv for integers. Unparsable values yield def.
func GetenvInt(key string, def int) int {
	if v, err := strconv.Atoi(Getenv(key, "")); err == nil {
		return v
	}
	return def
}

// ParseSeconds accepts either a Go duration ("1500ms") or a plain number
// of seconds ("10").
func ParseSeconds(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
