package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAppID    = "11111111-2222-3333-4444-555555555555"
	testTenantID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	testToken    = "0123456789abcdef0123456789abcdef"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// validConfig returns a config that passes Validate in api mode.
func validConfig(t *testing.T) *Config {
	t.Helper()

	cert := filepath.Join(t.TempDir(), "service.pfx")
	require.NoError(t, os.WriteFile(cert, []byte("pfx"), 0o600))

	cfg := DefaultConfig()
	cfg.SharePoint.AppID = testAppID
	cfg.SharePoint.TenantID = testTenantID
	cfg.SharePoint.SiteURL = "https://contoso.sharepoint.com/sites/Eng"
	cfg.SharePoint.CertPath = cert
	cfg.SharePoint.CertPassword = "secret"
	cfg.Server.Mode = ModeAPI
	cfg.Server.APITokens = []string{testToken}

	return cfg
}

// envMap is a LookupFunc over a fixed map.
func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
