// Package testutil provides shared test fixtures: self-signed service
// certificates wrapped in PKCS#12 containers.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// CertPassword is the container password used by NewCert.
const CertPassword = "test-password"

// Cert is a generated service identity.
type Cert struct {
	PFX      []byte
	Password string
	Key      crypto.Signer
	Leaf     *x509.Certificate
}

type certOptions struct {
	ecdsa     bool
	extraLeaf bool
	withCA    bool
	password  string
}

// CertOption customizes NewCert.
type CertOption func(*certOptions)

// WithECDSA generates a P-256 key instead of RSA-2048.
func WithECDSA() CertOption { return func(o *certOptions) { o.ecdsa = true } }

// WithExtraLeaf adds a second, unrelated leaf certificate to the container.
func WithExtraLeaf() CertOption { return func(o *certOptions) { o.extraLeaf = true } }

// WithCA adds a CA certificate to the container chain.
func WithCA() CertOption { return func(o *certOptions) { o.withCA = true } }

// WithPassword overrides the container password.
func WithPassword(pw string) CertOption { return func(o *certOptions) { o.password = pw } }

// NewCert generates a self-signed leaf and wraps it with its key in a
// PKCS#12 container.
func NewCert(t testing.TB, opts ...CertOption) *Cert {
	t.Helper()

	o := certOptions{password: CertPassword}
	for _, opt := range opts {
		opt(&o)
	}

	key := newKey(t, o.ecdsa)
	leaf := selfSigned(t, key, "gateway-test", false)

	var chain []*x509.Certificate

	if o.extraLeaf {
		chain = append(chain, selfSigned(t, newKey(t, false), "other-leaf", false))
	}

	if o.withCA {
		chain = append(chain, selfSigned(t, newKey(t, false), "test-ca", true))
	}

	pfx, err := pkcs12.Modern.Encode(key, leaf, chain, o.password)
	if err != nil {
		t.Fatalf("encoding pkcs12: %v", err)
	}

	return &Cert{PFX: pfx, Password: o.password, Key: key, Leaf: leaf}
}

// NewTrustStore returns a container holding a certificate and no key.
func NewTrustStore(t testing.TB) []byte {
	t.Helper()

	cert := selfSigned(t, newKey(t, false), "trust-only", false)

	pfx, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{cert}, CertPassword)
	if err != nil {
		t.Fatalf("encoding trust store: %v", err)
	}

	return pfx
}

func newKey(t testing.TB, useECDSA bool) crypto.Signer {
	t.Helper()

	if useECDSA {
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("generating ecdsa key: %v", err)
		}

		return k
	}

	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %v", err)
	}

	return k
}

func selfSigned(t testing.TB, key crypto.Signer, cn string, isCA bool) *x509.Certificate {
	t.Helper()

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("generating serial: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}

	if isCA {
		tmpl.KeyUsage |= x509.KeyUsageCertSign
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}

	return cert
}
