package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/certificate"
	"github.com/tonimelisma/sharepoint-gateway/internal/config"
	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
	"github.com/tonimelisma/sharepoint-gateway/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestTokenGenerate(t *testing.T) {
	out, err := execute(t, "token", "generate")
	require.NoError(t, err)

	tok := strings.TrimSpace(out)
	assert.Len(t, tok, 2*defaultTokenBytes)

	_, err = hex.DecodeString(tok)
	assert.NoError(t, err)

	other, err := generateToken(defaultTokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestTokenGenerate_Bounds(t *testing.T) {
	_, err := execute(t, "token", "generate", "--bytes", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--bytes")

	tok, err := generateToken(minTokenBytes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tok), authz.RecommendedTokenLen)
}

func TestTokenGenerate_SkipsConfig(t *testing.T) {
	clearEnv(t)

	bad := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(bad, []byte("not toml ["), 0o600))

	_, err := execute(t, "token", "generate", "--config", bad)
	assert.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "")

	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid (mode mcp")

	path = writeConfig(t, "[server]\nmode = \"api\"\napi_tokens = [\""+testToken+"\"]\n")

	out, err = execute(t, "config", "validate", "--config", path, "--json")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["valid"])
	assert.Equal(t, "api", res["mode"])
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 0\n"), 0o600))

	_, err := execute(t, "config", "validate", "--config", path)
	require.Error(t, err)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))
	assert.Contains(t, err.Error(), "sharepoint.app_id")
	assert.Contains(t, err.Error(), "server.port")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "[server]\napi_tokens = [\""+testToken+"\"]\n")

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "01234567...")
	assert.NotContains(t, out, testToken)
	assert.NotContains(t, out, testutil.CertPassword)
	assert.Contains(t, out, path)
}

func TestCertInspect(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "")

	out, err := execute(t, "cert", "inspect", "--config", path, "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report["thumbprint"])
	assert.Contains(t, report["subject"], "gateway-test")
	assert.Equal(t, false, report["expired"])
	assert.NotContains(t, out, "PRIVATE KEY")

	out, err = execute(t, "cert", "inspect", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Thumbprint:")
	assert.Contains(t, out, "Decoded via:")
}

func TestCertInspect_PathFlag(t *testing.T) {
	clearEnv(t)

	cert := testutil.NewCert(t, testutil.WithECDSA())
	other := filepath.Join(t.TempDir(), "other.pfx")
	require.NoError(t, os.WriteFile(other, cert.PFX, 0o600))

	path := writeConfig(t, "")

	out, err := execute(t, "cert", "inspect", "--config", path, "--path", other, "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, other, report["path"])
	assert.Equal(t, "ECDSA", report["keyType"])
	assert.Equal(t, certificate.Thumbprint(cert.Leaf.Raw), report["thumbprint"])
}

func TestCertInspect_WrongPassword(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "")
	t.Setenv(config.EnvCertPassword, "s3cr3t-guess")

	_, err := execute(t, "cert", "inspect", "--config", path)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cr3t-guess")
	assert.Contains(t, err.Error(), "incorrect certificate password")
}

func TestAuditTail(t *testing.T) {
	clearEnv(t)

	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	store, err := audit.Open(ctx, dbPath, discardLogger())
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{"createFolder", "uploadDocument", "deleteItem"} {
		require.NoError(t, store.Record(ctx, audit.Event{
			At:        base.Add(time.Duration(i) * time.Minute),
			Transport: authz.TransportHTTP,
			Caller:    "01234567...",
			Action:    action,
			Drive:     driveid.New("drive-1"),
			Path:      "Reports/" + action,
			Outcome:   audit.OutcomeOK,
		}))
	}

	require.NoError(t, store.Close())

	path := writeConfig(t, "[server]\naudit_db = \""+dbPath+"\"\n")

	out, err := execute(t, "audit", "tail", "--config", path, "--json", "-n", "2")
	require.NoError(t, err)

	var rows []auditRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "deleteItem", rows[0].Action)
	assert.Equal(t, "uploadDocument", rows[1].Action)
	assert.Equal(t, "drive-1", rows[0].Drive)

	out, err = execute(t, "audit", "tail", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "Reports/createFolder")
}

func TestAuditTail_Disabled(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "")

	_, err := execute(t, "audit", "tail", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit_db")
}

func TestServeMode(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, config.ModeAPI, serveMode(cfg))

	cfg.Server.Mode = config.ModeDual
	assert.Equal(t, config.ModeDual, serveMode(cfg))
}

func TestBodyLimit(t *testing.T) {
	assert.Zero(t, bodyLimit(0))

	// A base64 body of the largest upload fits.
	maxUpload := int64(3 << 20)
	assert.GreaterOrEqual(t, bodyLimit(maxUpload), (maxUpload+2)/3*4)
}

func TestReloader(t *testing.T) {
	cfg := config.DefaultConfig()
	gate := authz.NewGate([]string{testToken}, discardLogger())
	holder := config.NewHolder(cfg, "/etc/gateway.toml")

	newTok := "fedcba9876543210fedcba9876543210"

	next := writeConfig(t, "[server]\napi_tokens = [\""+newTok+"\"]\n")

	r := &reloader{
		mode:   config.ModeAPI,
		holder: holder,
		gate:   gate,
		logger: discardLogger(),
		resolve: func() (*config.Config, error) {
			return config.Decode(next)
		},
	}

	r.reload()

	_, err := gate.Check(newTok, authz.TransportHTTP)
	require.NoError(t, err)

	_, err = gate.Check(testToken, authz.TransportHTTP)
	require.Error(t, err)
	assert.Equal(t, config.ModeAPI, holder.Config().Server.Mode)
	assert.Equal(t, uint64(2), holder.Generation())
}

func TestReloader_InvalidKeepsTokens(t *testing.T) {
	gate := authz.NewGate([]string{testToken}, discardLogger())
	holder := config.NewHolder(config.DefaultConfig(), "")

	r := &reloader{
		mode:   config.ModeAPI,
		holder: holder,
		gate:   gate,
		logger: discardLogger(),
		resolve: func() (*config.Config, error) {
			// No tokens: invalid in api mode.
			return config.DefaultConfig(), nil
		},
	}

	before := holder.Config()
	r.reload()

	_, err := gate.Check(testToken, authz.TransportHTTP)
	assert.NoError(t, err)
	assert.Same(t, before, holder.Config())
	assert.Equal(t, uint64(1), holder.Generation())
}

// fakeSharePoint serves the token endpoint and the Graph calls made while
// connecting.
type fakeSharePoint struct {
	srv        *httptest.Server
	tokenCalls atomic.Int32
	idpStatus  int
}

func newFakeSharePoint(t *testing.T) *fakeSharePoint {
	t.Helper()

	f := &fakeSharePoint{idpStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+testTenantID+"/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, testAppID, r.PostForm.Get("client_id"))
		assert.NotEmpty(t, r.PostForm.Get("client_assertion"))

		w.Header().Set("Content-Type", "application/json")

		if f.idpStatus != http.StatusOK {
			w.WriteHeader(f.idpStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS700027: bad assertion"}`))

			return
		}

		_, _ = w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
	})

	mux.HandleFunc("GET /graph/sites/{site...}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer graph-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")

		site := r.PathValue("site")

		switch {
		case site == "contoso.sharepoint.com:/sites/Eng":
			_, _ = w.Write([]byte(`{"id":"contoso.sharepoint.com,1,2","displayName":"Engineering"}`))
		case strings.HasSuffix(site, "/drives"):
			_, _ = w.Write([]byte(`{"value":[
				{"id":"drive-docs","name":"Documents","driveType":"documentLibrary"},
				{"id":"drive-arch","name":"Archive","driveType":"documentLibrary"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"not found"}}`))
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func sharePointConfig(t *testing.T, f *fakeSharePoint) *config.Config {
	t.Helper()

	cfg, err := config.Decode(writeConfig(t, ""))
	require.NoError(t, err)

	cfg.SharePoint.Authority = f.srv.URL
	cfg.SharePoint.GraphURL = f.srv.URL + "/graph"

	return cfg
}

func TestConnectSharePoint(t *testing.T) {
	f := newFakeSharePoint(t)
	cfg := sharePointConfig(t, f)
	cfg.SharePoint.DriveName = "archive"

	b, err := connectSharePoint(context.Background(), cfg, nil, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "drive-arch", b.drive.ID.String())
	assert.Equal(t, int32(1), f.tokenCalls.Load())
	assert.Equal(t, int64(1), tokenRefreshes(b)())
	assert.Nil(t, tokenRefreshes(nil))

	_, audited := b.svc.(*audit.Service)
	assert.False(t, audited)
	assert.NotNil(t, b.local)
}

func TestConnectSharePoint_AuditsWhenRecorderSet(t *testing.T) {
	f := newFakeSharePoint(t)
	cfg := sharePointConfig(t, f)

	store, err := audit.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b, err := connectSharePoint(context.Background(), cfg, store, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "drive-docs", b.drive.ID.String())

	_, audited := b.svc.(*audit.Service)
	assert.True(t, audited)

	_, isOps := b.local.(*resource.Operations)
	assert.True(t, isOps)
}

func TestConnectSharePoint_Failures(t *testing.T) {
	t.Run("identity provider rejects", func(t *testing.T) {
		f := newFakeSharePoint(t)
		f.idpStatus = http.StatusUnauthorized

		_, err := connectSharePoint(context.Background(), sharePointConfig(t, f), nil, discardLogger())
		require.Error(t, err)
		assert.NotEqual(t, fault.Configuration, fault.KindOf(err), "degraded, not fatal")
	})

	t.Run("unknown library", func(t *testing.T) {
		f := newFakeSharePoint(t)
		cfg := sharePointConfig(t, f)
		cfg.SharePoint.DriveName = "Missing"

		_, err := connectSharePoint(context.Background(), cfg, nil, discardLogger())
		require.Error(t, err)
		assert.Equal(t, fault.NotFound, fault.KindOf(err))
	})

	t.Run("bad certificate password is fatal", func(t *testing.T) {
		f := newFakeSharePoint(t)
		cfg := sharePointConfig(t, f)
		cfg.SharePoint.CertPassword = "nope"

		_, err := connectSharePoint(context.Background(), cfg, nil, discardLogger())
		require.Error(t, err)
		assert.Equal(t, fault.Configuration, fault.KindOf(err))
		assert.Zero(t, f.tokenCalls.Load())
	})
}

func TestOpenAudit_Disabled(t *testing.T) {
	rec, closeFn, err := openAudit(context.Background(), config.DefaultConfig(), discardLogger())
	require.NoError(t, err)
	assert.Nil(t, rec)
	closeFn()
}
