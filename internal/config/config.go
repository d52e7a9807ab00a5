// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for sharepoint-gateway. Values resolve
// through four layers: defaults, then the config file, then environment
// variables (with .env support), then CLI flags.
package config

// Server modes.
const (
	ModeMCP  = "mcp"
	ModeAPI  = "api"
	ModeDual = "dual"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	SharePoint SharePointConfig `toml:"sharepoint"`
	Server     ServerConfig     `toml:"server"`
	Tree       TreeConfig       `toml:"tree"`
	Network    NetworkConfig    `toml:"network"`
	Logging    LoggingConfig    `toml:"logging"`
	Proxy      ProxyConfig      `toml:"proxy"`
}

// SharePointConfig is the service identity and the library it serves.
// DriveName picks a document library by name; empty selects the site's
// default library.
type SharePointConfig struct {
	AppID        string `toml:"app_id"`
	TenantID     string `toml:"tenant_id"`
	SiteURL      string `toml:"site_url"`
	CertPath     string `toml:"cert_path"`
	CertPassword string `toml:"cert_password"`
	DocLibrary   string `toml:"doc_library"`
	DriveName    string `toml:"drive_name"`
	Authority    string `toml:"authority"`
	GraphURL     string `toml:"graph_url"`
}

// ServerConfig controls the HTTP and WebSocket listener.
type ServerConfig struct {
	Mode            string   `toml:"mode"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	APITokens       []string `toml:"api_tokens"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitWindow string   `toml:"rate_limit_window"`
	RateLimitMax    int      `toml:"rate_limit_max"`
	MaxUploadSize   string   `toml:"max_upload_size"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	Metrics         bool     `toml:"metrics"`
	AuditDB         string   `toml:"audit_db"`
}

// TreeConfig bounds folder tree traversal. MaxFoldersPerLevel caps how many
// subtrees of one level are fetched at once; 0 means no cap.
type TreeConfig struct {
	DefaultDepth       int `toml:"default_depth"`
	MaxDepth           int `toml:"max_depth"`
	MaxFoldersPerLevel int `toml:"max_folders_per_level"`
}

// NetworkConfig controls the outbound HTTP client.
type NetworkConfig struct {
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
	UserAgent  string `toml:"user_agent"`
}

// LoggingConfig controls log output: level, format and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// ProxyConfig points the MCP server at a remote gateway's HTTP API instead
// of a local SharePoint connection.
type ProxyConfig struct {
	APIURL   string `toml:"api_url"`
	APIToken string `toml:"api_token"`
}

// Proxied reports whether MCP should run in proxy mode.
func (c *Config) Proxied() bool {
	return c.Proxy.APIURL != ""
}

// ServesHTTP reports whether the mode runs the HTTP listener.
func (c *Config) ServesHTTP() bool {
	return c.Server.Mode == ModeAPI || c.Server.Mode == ModeDual
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Mode       *string // --mode flag
	Port       *int    // --port flag
	APIURL     *string // --api-url flag
	APIToken   *string // --api-token flag
	CertPath   *string // --path flag of cert inspect
}
