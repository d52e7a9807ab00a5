// Package certificate turns a PKCS#12 container into the service identity
// used for the client-credential assertion: a private key, its leaf
// certificate, and the certificate's SHA-1 thumbprint.
package certificate

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA-1 thumbprints are mandated by the x5t header
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// Sentinel errors for container contents.
var (
	ErrIncorrectPassword = errors.New("incorrect certificate password")
	ErrKeyCount          = errors.New("certificate container must hold exactly one private key")
	ErrLeafCount         = errors.New("certificate container must hold exactly one leaf certificate")
	ErrKeyMismatch       = errors.New("private key does not match the leaf certificate")
	ErrUnsupportedKey    = errors.New("private key must be RSA or ECDSA")
)

// ThumbprintLen is the length of a hex-encoded SHA-1 thumbprint.
const ThumbprintLen = 40

// Material is a parsed service identity. It is immutable after Parse.
type Material struct {
	PrivateKey  crypto.Signer
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	Thumbprint  string
	Strategy    string // decode strategy that produced the container
}

// Parse decodes containerBytes with password. The bytes pass through the
// decode chain first, so transfer-mangled containers are recovered when the
// damage is reversible.
func Parse(containerBytes []byte, password string) (*Material, error) {
	const op = "certificate: parse"

	decoded, err := DecodeContainer(containerBytes)
	if err != nil {
		return nil, fault.Wrap(fault.CertificateFormat, op, err)
	}

	key, leaf, chain, err := pkcs12.DecodeChain(decoded.Data, password)
	if err != nil {
		return nil, fault.Wrap(fault.CertificateFormat, op, classifyDecodeError(err))
	}

	signer, err := asSigner(key)
	if err != nil {
		return nil, fault.Wrap(fault.CertificateFormat, op, err)
	}

	leaf, chain, err = selectLeaf(leaf, chain)
	if err != nil {
		return nil, fault.Wrap(fault.CertificateFormat, op, err)
	}

	if !publicKeysEqual(signer.Public(), leaf.PublicKey) {
		return nil, fault.Wrap(fault.CertificateFormat, op, ErrKeyMismatch)
	}

	return &Material{
		PrivateKey:  signer,
		Certificate: leaf,
		Chain:       chain,
		Thumbprint:  Thumbprint(leaf.Raw),
		Strategy:    decoded.Strategy,
	}, nil
}

// LoadFile reads and parses the container at path. A group- or
// world-readable file is accepted with a warning.
func LoadFile(path, password string, logger *slog.Logger) (*Material, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "certificate: load", err)
	}

	if info.IsDir() {
		return nil, fault.New(fault.Configuration, "certificate: load", fmt.Sprintf("%s is a directory", path))
	}

	if info.Mode().Perm()&0o077 != 0 {
		logger.Warn("certificate file is readable by other users",
			slog.String("path", path),
			slog.String("mode", info.Mode().Perm().String()),
		)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "certificate: load", err)
	}

	m, err := Parse(data, password)
	if err != nil {
		return nil, err
	}

	logger.Info("loaded service certificate",
		slog.String("thumbprint", m.Thumbprint),
		slog.String("subject", m.Certificate.Subject.CommonName),
		slog.Time("not_after", m.Certificate.NotAfter),
		slog.String("decode_strategy", m.Strategy),
	)

	return m, nil
}

// Thumbprint returns the uppercase hex SHA-1 of der.
func Thumbprint(der []byte) string {
	sum := sha1.Sum(der) //nolint:gosec // see import

	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DER returns the leaf certificate's DER encoding.
func (m *Material) DER() []byte {
	return m.Certificate.Raw
}

// ThumbprintBytes returns the raw 20-byte SHA-1 thumbprint.
func (m *Material) ThumbprintBytes() []byte {
	sum := sha1.Sum(m.Certificate.Raw) //nolint:gosec // see import

	return sum[:]
}

// ExpiresIn reports the time left until the leaf certificate expires.
func (m *Material) ExpiresIn(now time.Time) time.Duration {
	return m.Certificate.NotAfter.Sub(now)
}

func classifyDecodeError(err error) error {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword):
		return ErrIncorrectPassword
	case strings.Contains(err.Error(), "exactly one key"),
		strings.Contains(err.Error(), "private key missing"):
		return fmt.Errorf("%w: %w", ErrKeyCount, err)
	case strings.Contains(err.Error(), "certificate missing"):
		return fmt.Errorf("%w: %w", ErrLeafCount, err)
	default:
		return err
	}
}

func asSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w (got %T)", ErrUnsupportedKey, key)
	}
}

// selectLeaf picks the single non-CA certificate among everything the
// container holds and returns the rest as the chain.
func selectLeaf(first *x509.Certificate, rest []*x509.Certificate) (*x509.Certificate, []*x509.Certificate, error) {
	all := append([]*x509.Certificate{first}, rest...)

	var (
		leaf  *x509.Certificate
		chain []*x509.Certificate
	)

	for _, c := range all {
		if c == nil {
			continue
		}

		if c.IsCA {
			chain = append(chain, c)
			continue
		}

		if leaf != nil {
			return nil, nil, fmt.Errorf("%w: found more than one", ErrLeafCount)
		}

		leaf = c
	}

	if leaf == nil {
		return nil, nil, fmt.Errorf("%w: found none", ErrLeafCount)
	}

	return leaf, chain, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}

	if e, ok := a.(equaler); ok {
		return e.Equal(b)
	}

	ab, errA := x509.MarshalPKIXPublicKey(a)
	bb, errB := x509.MarshalPKIXPublicKey(b)

	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// Info is a display-safe summary of the material for CLI output.
type Info struct {
	Thumbprint string    `json:"thumbprint"`
	Subject    string    `json:"subject"`
	Issuer     string    `json:"issuer"`
	NotBefore  time.Time `json:"notBefore"`
	NotAfter   time.Time `json:"notAfter"`
	KeyType    string    `json:"keyType"`
	ChainLen   int       `json:"chainLength"`
	Strategy   string    `json:"decodeStrategy"`
}

// Summary describes m without any key material.
func (m *Material) Summary() Info {
	keyType := "RSA"
	if _, ok := m.PrivateKey.(*ecdsa.PrivateKey); ok {
		keyType = "ECDSA"
	}

	return Info{
		Thumbprint: m.Thumbprint,
		Subject:    m.Certificate.Subject.String(),
		Issuer:     m.Certificate.Issuer.String(),
		NotBefore:  m.Certificate.NotBefore,
		NotAfter:   m.Certificate.NotAfter,
		KeyType:    keyType,
		ChainLen:   len(m.Chain),
		Strategy:   m.Strategy,
	}
}
