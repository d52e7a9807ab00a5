package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, "[servr]\nport = 1\n")

	_, err := Decode(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "servr"`)
	assert.Contains(t, err.Error(), `did you mean "server"`)
}

func TestDecode_UnknownKeyInSection(t *testing.T) {
	path := writeTestConfig(t, "[server]\nprot = 1\n")

	_, err := Decode(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"prot" in [server]`)
	assert.Contains(t, err.Error(), `"port"`)
}

func TestDecode_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[tree]\ncompletely_unrelated_key = true\n")

	_, err := Decode(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestDecode_UnknownKeys_AllReported(t *testing.T) {
	path := writeTestConfig(t, "top = 1\n[logging]\nlog_levl = \"info\"\n")

	_, err := Decode(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"top"`)
	assert.Contains(t, err.Error(), `"log_level"`)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"prot", "port", 2},
		{"site_ur", "site_url", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch(t *testing.T) {
	known := []string{"api_tokens", "api_url", "audit_db"}
	assert.Equal(t, "api_tokens", closestMatch("api_token", known))
	assert.Equal(t, "", closestMatch("completely_unrelated", known))
}
