package graph

import (
	"context"
	"crypto/sha1" //nolint:gosec // x5t is defined over SHA-1
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-gateway/internal/certificate"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/testutil"
)

const (
	testTenant   = "11111111-2222-3333-4444-555555555555"
	testClientID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

// fakeIdP is an httptest identity provider that verifies client assertions
// against a known certificate.
type fakeIdP struct {
	t         *testing.T
	srv       *httptest.Server
	cert      *testutil.Cert
	exchanges atomic.Int32
	delay     time.Duration
	reject    bool
}

func newFakeIdP(t *testing.T, cert *testutil.Cert) *fakeIdP {
	t.Helper()

	idp := &fakeIdP{t: t, cert: cert}
	idp.srv = httptest.NewServer(http.HandlerFunc(idp.handle))
	t.Cleanup(idp.srv.Close)

	return idp
}

func (f *fakeIdP) tokenURL() string {
	return f.srv.URL + "/" + testTenant + "/oauth2/v2.0/token"
}

func (f *fakeIdP) handle(w http.ResponseWriter, r *http.Request) {
	f.exchanges.Add(1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	w.Header().Set("Content-Type", "application/json")

	if f.reject {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_client",
			"error_description": "AADSTS700027: Client assertion contains an invalid signature.\r\nTrace ID: 1234",
		})

		return
	}

	assert.Equal(f.t, "/"+testTenant+"/oauth2/v2.0/token", r.URL.Path)
	assert.NoError(f.t, r.ParseForm())
	assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
	assert.Equal(f.t, testClientID, r.PostForm.Get("client_id"))
	assert.Equal(f.t, GraphScope, r.PostForm.Get("scope"))
	assert.Equal(f.t, clientAssertionType, r.PostForm.Get("client_assertion_type"))
	assert.Empty(f.t, r.PostForm.Get("client_secret"))

	f.verifyAssertion(r.PostForm.Get("client_assertion"))

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "service-token-1",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (f *fakeIdP) verifyAssertion(assertion string) {
	tok, err := jwt.Parse(assertion,
		func(*jwt.Token) (any, error) { return f.cert.Leaf.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(f.tokenURL()),
		jwt.WithIssuer(testClientID),
		jwt.WithSubject(testClientID),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if !assert.NoError(f.t, err) {
		return
	}

	sum := sha1.Sum(f.cert.Leaf.Raw) //nolint:gosec // x5t is defined over SHA-1
	assert.Equal(f.t, base64.RawURLEncoding.EncodeToString(sum[:]), tok.Header["x5t"])

	claims, ok := tok.Claims.(jwt.MapClaims)
	if assert.True(f.t, ok) {
		assert.NotEmpty(f.t, claims["jti"])
	}
}

func newTestAppSource(t *testing.T, idp *fakeIdP) *AppTokenSource {
	t.Helper()

	m, err := certificate.Parse(idp.cert.PFX, idp.cert.Password)
	require.NoError(t, err)

	src, err := NewAppTokenSource(AppCredential{
		TenantID:  testTenant,
		ClientID:  testClientID,
		Material:  m,
		Authority: idp.srv.URL,
	}, idp.srv.Client(), testLogger())
	require.NoError(t, err)

	return src
}

func TestAppTokenSource_Exchange(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []testutil.CertOption
	}{
		{"rsa", nil},
		{"ecdsa", []testutil.CertOption{testutil.WithECDSA()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			idp := newFakeIdP(t, testutil.NewCert(t, tc.opts...))
			src := newTestAppSource(t, idp)

			tok, err := src.Token(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "service-token-1", tok)

			// Cached on the second call.
			_, err = src.Token(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int32(1), idp.exchanges.Load())
			assert.Equal(t, int64(1), src.Refreshes())
		})
	}
}

func TestAppTokenSource_ConcurrentCallersShareOneExchange(t *testing.T) {
	idp := newFakeIdP(t, testutil.NewCert(t))
	idp.delay = 100 * time.Millisecond
	src := newTestAppSource(t, idp)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tok, err := src.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "service-token-1", tok)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), idp.exchanges.Load())
}

func TestAppTokenSource_Rejected(t *testing.T) {
	idp := newFakeIdP(t, testutil.NewCert(t))
	idp.reject = true
	src := newTestAppSource(t, idp)

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.Auth, fault.KindOf(err))
	assert.Contains(t, err.Error(), "invalid_client")
	assert.Contains(t, err.Error(), "AADSTS700027")
	assert.NotContains(t, err.Error(), "Trace ID")

	// A failed refresh is retried on the next call.
	_, err = src.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), idp.exchanges.Load())
}

func TestAppTokenSource_Invalidate(t *testing.T) {
	idp := newFakeIdP(t, testutil.NewCert(t))
	src := newTestAppSource(t, idp)

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	src.Invalidate()

	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), idp.exchanges.Load())
}

func TestNewAppTokenSource_Validation(t *testing.T) {
	cert := testutil.NewCert(t)
	m, err := certificate.Parse(cert.PFX, cert.Password)
	require.NoError(t, err)

	for _, cred := range []AppCredential{
		{ClientID: testClientID, Material: m},
		{TenantID: testTenant, Material: m},
		{TenantID: testTenant, ClientID: testClientID},
	} {
		_, err := NewAppTokenSource(cred, nil, nil)
		require.Error(t, err)
		assert.Equal(t, fault.Configuration, fault.KindOf(err))
	}
}

func TestTokenEndpoint(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/"+testTenant+"/oauth2/v2.0/token",
		tokenEndpoint("", testTenant))
	assert.Equal(t, "https://login.microsoftonline.com/"+testTenant+"/oauth2/v2.0/token",
		tokenEndpoint(DefaultAuthority+"/", testTenant))
	assert.Equal(t, "https://login.microsoftonline.us/"+testTenant+"/oauth2/v2.0/token",
		tokenEndpoint("https://login.microsoftonline.us", testTenant))
}

func TestSignAssertion_Claims(t *testing.T) {
	idp := newFakeIdP(t, testutil.NewCert(t))
	src := newTestAppSource(t, idp)

	now := time.Now().Truncate(time.Second)
	signed, err := src.signAssertion(now)
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(signed, &claims,
		func(*jwt.Token) (any, error) { return idp.cert.Leaf.PublicKey, nil })
	require.NoError(t, err)

	assert.Equal(t, now.Add(assertionLifetime), claims.ExpiresAt.Time)
	assert.Equal(t, now, claims.NotBefore.Time)
	assert.Equal(t, jwt.ClaimStrings{src.TokenURL()}, claims.Audience)

	other, err := src.signAssertion(now)
	require.NoError(t, err)
	assert.NotEqual(t, signed, other, "each assertion carries a fresh jti")
}
