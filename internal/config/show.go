package config

import (
	"fmt"
	"io"
	"strings"
)

const (
	maskedSecret  = "********"
	tokenShowLen  = 8
	tokenShowTail = "..."
)

// Sanitized returns a copy of cfg with the certificate password masked and
// every caller and proxy token cut to a preview.
func (c *Config) Sanitized() *Config {
	out := *c

	if out.SharePoint.CertPassword != "" {
		out.SharePoint.CertPassword = maskedSecret
	}

	out.Server.APITokens = make([]string, len(c.Server.APITokens))
	for i, tok := range c.Server.APITokens {
		out.Server.APITokens[i] = maskToken(tok)
	}

	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)

	if out.Proxy.APIToken != "" {
		out.Proxy.APIToken = maskToken(out.Proxy.APIToken)
	}

	return &out
}

func maskToken(tok string) string {
	if len(tok) <= tokenShowLen {
		return maskedSecret
	}

	return tok[:tokenShowLen] + tokenShowTail
}

// RenderEffective writes the sanitized configuration as an annotated
// summary to w. This powers "config show", giving users visibility into
// the effective values after all override layers have been applied.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	s := cfg.Sanitized()
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", orNone(path))

	ew.printf("[sharepoint]\n")
	ew.printf("  app_id        = %q\n", s.SharePoint.AppID)
	ew.printf("  tenant_id     = %q\n", s.SharePoint.TenantID)
	ew.printf("  site_url      = %q\n", s.SharePoint.SiteURL)
	ew.printf("  cert_path     = %q\n", s.SharePoint.CertPath)
	ew.printf("  cert_password = %q\n", s.SharePoint.CertPassword)
	ew.printf("  doc_library   = %q\n", s.SharePoint.DocLibrary)

	if s.SharePoint.DriveName != "" {
		ew.printf("  drive_name    = %q\n", s.SharePoint.DriveName)
	}

	if s.SharePoint.Authority != "" {
		ew.printf("  authority     = %q\n", s.SharePoint.Authority)
	}

	ew.printf("  graph_url     = %q\n\n", s.SharePoint.GraphURL)

	ew.printf("[server]\n")
	ew.printf("  mode              = %q\n", s.Server.Mode)
	ew.printf("  host              = %q\n", s.Server.Host)
	ew.printf("  port              = %d\n", s.Server.Port)
	ew.printf("  api_tokens        = [%s]\n", joinQuoted(s.Server.APITokens))
	ew.printf("  cors_origins      = [%s]\n", joinQuoted(s.Server.CORSOrigins))
	ew.printf("  rate_limit_window = %q\n", s.Server.RateLimitWindow)
	ew.printf("  rate_limit_max    = %d\n", s.Server.RateLimitMax)
	ew.printf("  max_upload_size   = %q # %s\n", s.Server.MaxUploadSize, FormatSize(s.MaxUploadBytes()))
	ew.printf("  shutdown_timeout  = %q\n", s.Server.ShutdownTimeout)
	ew.printf("  metrics           = %t\n", s.Server.Metrics)

	if s.Server.AuditDB != "" {
		ew.printf("  audit_db          = %q\n", s.Server.AuditDB)
	}

	ew.printf("\n[tree]\n")
	ew.printf("  default_depth         = %d\n", s.Tree.DefaultDepth)
	ew.printf("  max_depth             = %d\n", s.Tree.MaxDepth)
	ew.printf("  max_folders_per_level = %d\n\n", s.Tree.MaxFoldersPerLevel)

	ew.printf("[network]\n")
	ew.printf("  timeout     = %q\n", s.Network.Timeout)
	ew.printf("  max_retries = %d\n", s.Network.MaxRetries)

	if s.Network.UserAgent != "" {
		ew.printf("  user_agent  = %q\n", s.Network.UserAgent)
	}

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", s.Logging.LogLevel)
	ew.printf("  log_format = %q\n", s.Logging.LogFormat)

	if s.Logging.LogFile != "" {
		ew.printf("  log_file   = %q\n", s.Logging.LogFile)
	}

	if s.Proxied() {
		ew.printf("\n[proxy]\n")
		ew.printf("  api_url   = %q\n", s.Proxy.APIURL)
		ew.printf("  api_token = %q\n", s.Proxy.APIToken)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}

func orNone(path string) string {
	if path == "" {
		return "none"
	}

	return path
}
