package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names. The SHP_ and server names are the ones
// existing deployments already set.
const (
	EnvConfig = "SHAREPOINT_GATEWAY_CONFIG"

	EnvAppID              = "SHP_ID_APP"
	EnvTenantID           = "SHP_TENANT_ID"
	EnvSiteURL            = "SHP_SITE_URL"
	EnvCertPath           = "SHP_CERT_PFX_PATH"
	EnvCertPassword       = "SHP_CERT_PFX_PASSWORD" //nolint:gosec // G101: variable name, not a credential
	EnvDocLibrary         = "SHP_DOC_LIBRARY"
	EnvDriveName          = "SHP_DRIVE_NAME"
	EnvMaxDepth           = "SHP_MAX_DEPTH"
	EnvMaxFoldersPerLevel = "SHP_MAX_FOLDERS_PER_LEVEL"

	EnvMode            = "SERVER_MODE"
	EnvHost            = "HOST"
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvAPITokens       = "API_AUTH_TOKENS"
	EnvCORSOrigins     = "CORS_ORIGINS"
	EnvRateLimitWindow = "RATE_LIMIT_WINDOW"
	EnvRateLimitMax    = "RATE_LIMIT_MAX"

	EnvProxyURL   = "SHAREPOINT_API_URL"
	EnvProxyToken = "SHAREPOINT_API_TOKEN" //nolint:gosec // G101: variable name, not a credential
)

// LoadDotEnv loads path (default ".env") into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto cfg. Malformed numbers are
// reported together; unset and empty variables leave cfg untouched.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)

		return v, ok && v != ""
	}

	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	var errs []error

	num := func(key string, dst *int) {
		v, ok := get(key)
		if !ok {
			return
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}

		*dst = n
	}

	list := func(key string, dst *[]string) {
		if v, ok := get(key); ok {
			*dst = splitList(v)
		}
	}

	str(EnvAppID, &cfg.SharePoint.AppID)
	str(EnvTenantID, &cfg.SharePoint.TenantID)
	str(EnvSiteURL, &cfg.SharePoint.SiteURL)
	str(EnvCertPath, &cfg.SharePoint.CertPath)
	str(EnvCertPassword, &cfg.SharePoint.CertPassword)
	str(EnvDocLibrary, &cfg.SharePoint.DocLibrary)
	str(EnvDriveName, &cfg.SharePoint.DriveName)
	num(EnvMaxDepth, &cfg.Tree.MaxDepth)
	num(EnvMaxFoldersPerLevel, &cfg.Tree.MaxFoldersPerLevel)

	str(EnvMode, &cfg.Server.Mode)
	str(EnvHost, &cfg.Server.Host)
	num(EnvPort, &cfg.Server.Port)
	str(EnvLogLevel, &cfg.Logging.LogLevel)
	list(EnvAPITokens, &cfg.Server.APITokens)
	list(EnvCORSOrigins, &cfg.Server.CORSOrigins)
	num(EnvRateLimitMax, &cfg.Server.RateLimitMax)

	if v, ok := get(EnvRateLimitWindow); ok {
		cfg.Server.RateLimitWindow = windowFromEnv(v)
	}

	str(EnvProxyURL, &cfg.Proxy.APIURL)
	str(EnvProxyToken, &cfg.Proxy.APIToken)

	return errors.Join(errs...)
}

// windowFromEnv accepts a Go duration or a bare millisecond count, the
// format RATE_LIMIT_WINDOW has always used.
func windowFromEnv(v string) string {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return (time.Duration(ms) * time.Millisecond).String()
	}

	return v
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
