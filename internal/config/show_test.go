package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitized(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.APITokens = []string{testToken, "short"}
	cfg.Proxy.APIToken = "proxy-token-value"

	s := cfg.Sanitized()

	assert.Equal(t, maskedSecret, s.SharePoint.CertPassword)
	assert.Equal(t, []string{"01234567...", maskedSecret}, s.Server.APITokens)
	assert.Equal(t, "proxy-to...", s.Proxy.APIToken)

	assert.Equal(t, "secret", cfg.SharePoint.CertPassword, "original untouched")
	assert.Equal(t, testToken, cfg.Server.APITokens[0])
}

func TestRenderEffective(t *testing.T) {
	cfg := validConfig(t)
	cfg.SharePoint.DriveName = "Documents"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/gateway.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/gateway.toml")
	assert.Contains(t, out, "[sharepoint]")
	assert.Contains(t, out, `drive_name    = "Documents"`)
	assert.Contains(t, out, `"01234567..."`)
	assert.Contains(t, out, "# 250MiB")
	assert.NotContains(t, out, testToken)
	assert.NotContains(t, out, `"secret"`)
	assert.NotContains(t, out, "[proxy]")
}
