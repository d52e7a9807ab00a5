package graph

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/sharepoint-gateway/internal/certificate"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

const (
	// DefaultAuthority is the public-cloud Entra ID login host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// GraphScope requests every application permission granted to the app.
	GraphScope = "https://graph.microsoft.com/.default"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	assertionLifetime   = 10 * time.Minute
)

// AppCredential identifies the gateway's service principal.
type AppCredential struct {
	TenantID  string
	ClientID  string
	Material  *certificate.Material
	Authority string // DefaultAuthority when empty
}

// AppTokenSource obtains app-only Graph tokens with the client-credentials
// flow, authenticating with a certificate-signed JWT assertion. It
// implements TokenSource and is safe for concurrent use.
type AppTokenSource struct {
	cred       AppCredential
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	cache      *tokenCache
	now        func() time.Time
}

// NewAppTokenSource validates cred and returns a token source. No token is
// requested until the first Token call.
func NewAppTokenSource(cred AppCredential, httpClient *http.Client, logger *slog.Logger) (*AppTokenSource, error) {
	const op = "graph: app credential"

	switch {
	case cred.TenantID == "":
		return nil, fault.New(fault.Configuration, op, "tenant id is required")
	case cred.ClientID == "":
		return nil, fault.New(fault.Configuration, op, "client id is required")
	case cred.Material == nil:
		return nil, fault.New(fault.Configuration, op, "certificate material is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s := &AppTokenSource{
		cred:       cred,
		tokenURL:   tokenEndpoint(cred.Authority, cred.TenantID),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
	s.cache = newTokenCache(s.exchange)

	return s, nil
}

// tokenEndpoint returns the v2.0 token URL of the tenant.
func tokenEndpoint(authority, tenant string) string {
	authority = strings.TrimRight(authority, "/")
	if authority == "" || authority == DefaultAuthority {
		return microsoft.AzureADEndpoint(tenant).TokenURL
	}

	return authority + "/" + url.PathEscape(tenant) + "/oauth2/v2.0/token"
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or close to expiry.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.cache.Token(ctx)
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// Invalidate forces the next Token call to fetch a fresh token.
func (s *AppTokenSource) Invalidate() {
	s.cache.Invalidate()
}

// Refreshes reports how many tokens were fetched since start.
func (s *AppTokenSource) Refreshes() int64 {
	return s.cache.Refreshes()
}

// TokenURL returns the endpoint tokens are requested from.
func (s *AppTokenSource) TokenURL() string {
	return s.tokenURL
}

func (s *AppTokenSource) exchange(ctx context.Context) (*oauth2.Token, error) {
	const op = "graph: acquire service token"

	assertion, err := s.signAssertion(s.now())
	if err != nil {
		return nil, fault.Wrap(fault.Auth, op, err)
	}

	cfg := clientcredentials.Config{
		ClientID: s.cred.ClientID,
		TokenURL: s.tokenURL,
		Scopes:   []string{GraphScope},
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	s.logger.Debug("requesting service token",
		slog.String("tenant_id", s.cred.TenantID),
		slog.String("thumbprint", s.cred.Material.Thumbprint),
	)

	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient))
	if err != nil {
		s.logger.Error("service token request failed", slog.String("error", fault.Redact(err.Error())))

		return nil, &fault.Error{Kind: fault.Auth, Op: op, Msg: retrieveMessage(err), Err: err}
	}

	s.logger.Info("acquired service token", slog.Time("expires", tok.Expiry))

	return tok, nil
}

// retrieveMessage extracts the identity provider's error code and
// description. The raw response body is never surfaced.
func retrieveMessage(err error) string {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return "token request failed: " + fault.Redact(err.Error())
	}

	code := re.ErrorCode
	if code == "" && re.Response != nil {
		code = re.Response.Status
	}

	if re.ErrorDescription == "" {
		return "token request rejected: " + code
	}

	// Entra descriptions carry trace and correlation ids on later lines.
	desc, _, _ := strings.Cut(re.ErrorDescription, "\r\n")

	return fmt.Sprintf("token request rejected: %s: %s", code, fault.Redact(desc))
}

// signAssertion builds the client assertion: a short-lived JWT naming the
// app as issuer and subject, addressed to the token endpoint, and carrying
// the certificate thumbprint in x5t.
func (s *AppTokenSource) signAssertion(now time.Time) (string, error) {
	method, key, err := signingMethod(s.cred.Material)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Issuer:    s.cred.ClientID,
		Subject:   s.cred.ClientID,
		Audience:  jwt.ClaimStrings{s.tokenURL},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["x5t"] = base64.RawURLEncoding.EncodeToString(s.cred.Material.ThumbprintBytes())

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}

	return signed, nil
}

func signingMethod(m *certificate.Material) (jwt.SigningMethod, any, error) {
	switch key := m.PrivateKey.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, key, nil
	case *ecdsa.PrivateKey:
		switch key.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, key, nil
		case elliptic.P384():
			return jwt.SigningMethodES384, key, nil
		case elliptic.P521():
			return jwt.SigningMethodES512, key, nil
		}

		return nil, nil, fmt.Errorf("unsupported ECDSA curve %s", key.Curve.Params().Name)
	default:
		return nil, nil, fmt.Errorf("unsupported private key type %T", m.PrivateKey)
	}
}
