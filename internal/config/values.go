package config

import (
	"net"
	"strconv"
	"time"
)

// The accessors below parse validated string fields. On a value that does
// not parse they fall back to the default, so they never fail on a config
// that passed Validate.

// ShutdownTimeout returns server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return durationOr(c.Server.ShutdownTimeout, defaultShutdownTimeout)
}

// RateLimitWindow returns server.rate_limit_window.
func (c *Config) RateLimitWindow() time.Duration {
	return durationOr(c.Server.RateLimitWindow, defaultRateLimitWindow)
}

// NetworkTimeout returns network.timeout.
func (c *Config) NetworkTimeout() time.Duration {
	return durationOr(c.Network.Timeout, defaultTimeout)
}

// MaxUploadBytes returns server.max_upload_size in bytes; 0 means no limit.
func (c *Config) MaxUploadBytes() int64 {
	n, err := ParseSize(c.Server.MaxUploadSize)
	if err != nil {
		n, _ = ParseSize(defaultMaxUploadSize) //nolint:errcheck // constant is valid
	}

	return n
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func durationOr(value, fallback string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(fallback) //nolint:errcheck // constant is valid
	}

	return d
}
