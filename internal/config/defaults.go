package config

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultMode            = ModeMCP
	defaultHost            = "localhost"
	defaultPort            = 3000
	defaultCORSOrigin      = "*"
	defaultRateLimitWindow = "15m"
	defaultRateLimitMax    = 100
	defaultMaxUploadSize   = "250MiB"
	defaultShutdownTimeout = "30s"
	defaultTreeDepth       = 3
	defaultMaxTreeDepth    = 15
	defaultTimeout         = "60s"
	defaultMaxRetries      = 0
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultGraphURL        = "https://graph.microsoft.com/v1.0"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		SharePoint: SharePointConfig{
			GraphURL: defaultGraphURL,
		},
		Server: ServerConfig{
			Mode:            defaultMode,
			Host:            defaultHost,
			Port:            defaultPort,
			CORSOrigins:     []string{defaultCORSOrigin},
			RateLimitWindow: defaultRateLimitWindow,
			RateLimitMax:    defaultRateLimitMax,
			MaxUploadSize:   defaultMaxUploadSize,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Tree: TreeConfig{
			DefaultDepth: defaultTreeDepth,
			MaxDepth:     defaultMaxTreeDepth,
		},
		Network: NetworkConfig{
			Timeout:    defaultTimeout,
			MaxRetries: defaultMaxRetries,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
