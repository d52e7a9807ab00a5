package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// Validation range constants.
const (
	minPort            = 1
	maxPort            = 65535
	maxTreeDepthLimit  = 15
	maxRetriesLimit    = 10
	minShutdownTimeout = 1 * time.Second
	minNetworkTimeout  = 1 * time.Second
	minRateLimitWindow = 1 * time.Second
)

var guidRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass. The returned
// error is a fault.Configuration error.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateMode(&cfg.Server)...)

	// A proxying MCP server never talks to SharePoint itself.
	if cfg.Server.Mode == ModeMCP && cfg.Proxied() {
		errs = append(errs, validateProxy(&cfg.Proxy)...)
	} else {
		errs = append(errs, validateSharePoint(&cfg.SharePoint)...)
	}

	errs = append(errs, validateServer(cfg)...)
	errs = append(errs, validateTree(&cfg.Tree)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) == 0 {
		return nil
	}

	return fault.Wrap(fault.Configuration, "config", fmt.Errorf("invalid configuration:\n%w", errors.Join(errs...)))
}

func validateSharePoint(s *SharePointConfig) []error {
	var errs []error

	errs = append(errs, validateGUID("sharepoint.app_id", EnvAppID, s.AppID)...)
	errs = append(errs, validateGUID("sharepoint.tenant_id", EnvTenantID, s.TenantID)...)

	if s.SiteURL == "" {
		errs = append(errs, fmt.Errorf("sharepoint.site_url: required (or set %s)", EnvSiteURL))
	} else if _, err := driveid.ParseSiteURL(s.SiteURL); err != nil {
		errs = append(errs, fmt.Errorf("sharepoint.site_url: %w", err))
	}

	errs = append(errs, validateCertPath(s.CertPath)...)

	if s.CertPassword == "" {
		errs = append(errs, fmt.Errorf("sharepoint.cert_password: required (or set %s)", EnvCertPassword))
	}

	if s.Authority != "" {
		errs = append(errs, validateHTTPURL("sharepoint.authority", s.Authority, true)...)
	}

	errs = append(errs, validateHTTPURL("sharepoint.graph_url", s.GraphURL, true)...)

	return errs
}

func validateGUID(field, env, value string) []error {
	switch {
	case value == "":
		return []error{fmt.Errorf("%s: required (or set %s)", field, env)}
	case !guidRE.MatchString(value):
		return []error{fmt.Errorf("%s: must be a GUID, got %q", field, value)}
	}

	return nil
}

func validateCertPath(path string) []error {
	const field = "sharepoint.cert_path"

	if path == "" {
		return []error{fmt.Errorf("%s: required (or set %s)", field, EnvCertPath)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if info.IsDir() {
		return []error{fmt.Errorf("%s: %s is a directory", field, path)}
	}

	return nil
}

func validateHTTPURL(field, raw string, httpsOnly bool) []error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return []error{fmt.Errorf("%s: invalid URL %q", field, raw)}
	}

	if u.Scheme == "https" || (!httpsOnly && u.Scheme == "http") {
		return nil
	}

	if httpsOnly {
		return []error{fmt.Errorf("%s: must use https, got %q", field, raw)}
	}

	return []error{fmt.Errorf("%s: must use http or https, got %q", field, raw)}
}

func validateProxy(p *ProxyConfig) []error {
	var errs []error

	errs = append(errs, validateHTTPURL("proxy.api_url", p.APIURL, false)...)

	if p.APIToken == "" {
		errs = append(errs, fmt.Errorf("proxy.api_token: required with proxy.api_url (or set %s)", EnvProxyToken))
	}

	return errs
}

var validModes = map[string]bool{
	ModeMCP:  true,
	ModeAPI:  true,
	ModeDual: true,
}

func validateMode(s *ServerConfig) []error {
	if !validModes[s.Mode] {
		return []error{fmt.Errorf("server.mode: must be one of mcp, api, dual; got %q", s.Mode)}
	}

	return nil
}

func validateServer(cfg *Config) []error {
	s := &cfg.Server

	var errs []error

	if s.Port < minPort || s.Port > maxPort {
		errs = append(errs, fmt.Errorf("server.port: must be between %d and %d, got %d", minPort, maxPort, s.Port))
	}

	if cfg.ServesHTTP() && len(s.APITokens) == 0 {
		errs = append(errs, fmt.Errorf("server.api_tokens: at least one token is required in %s mode (or set %s)",
			s.Mode, EnvAPITokens))
	}

	errs = append(errs, validateDurationMin("server.rate_limit_window", s.RateLimitWindow, minRateLimitWindow)...)
	errs = append(errs, validateDurationMin("server.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	if s.RateLimitMax < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_max: must be >= 0, got %d", s.RateLimitMax))
	}

	if _, err := ParseSize(s.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Errorf("server.max_upload_size: %w", err))
	}

	return errs
}

func validateTree(t *TreeConfig) []error {
	var errs []error

	if t.MaxDepth < 1 || t.MaxDepth > maxTreeDepthLimit {
		errs = append(errs, fmt.Errorf("tree.max_depth: must be between 1 and %d, got %d", maxTreeDepthLimit, t.MaxDepth))
	}

	if t.DefaultDepth < 0 || t.DefaultDepth > t.MaxDepth {
		errs = append(errs, fmt.Errorf("tree.default_depth: must be between 0 and max_depth (%d), got %d",
			t.MaxDepth, t.DefaultDepth))
	}

	if t.MaxFoldersPerLevel < 0 {
		errs = append(errs, fmt.Errorf("tree.max_folders_per_level: must be >= 0, got %d", t.MaxFoldersPerLevel))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	errs := validateDurationMin("network.timeout", n.Timeout, minNetworkTimeout)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
