package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a human-readable size such as "250MiB" or "1GB" to
// bytes. SI and IEC suffixes are accepted; a bare number is raw bytes.
// Empty string and "0" return 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(n), nil
}

// FormatSize renders n bytes the way "config show" prints sizes.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0"
	}

	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}
