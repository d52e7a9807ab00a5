// Package authz validates caller tokens. One Gate serves every network
// transport; each transport only decides where the candidate token comes
// from.
package authz

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// RecommendedTokenLen is the length below which a caller token draws a
// startup warning.
const RecommendedTokenLen = 32

const previewLen = 8

// Rejection reasons. They are the caller-visible messages of the
// Authorization errors returned by Check.
const (
	ReasonRequired = "token required"
	ReasonInvalid  = "invalid token"
)

// TokenSet is an immutable set of caller tokens.
type TokenSet struct {
	tokens []string
}

// NewTokenSet trims each token and drops empties and duplicates.
func NewTokenSet(tokens []string) *TokenSet {
	seen := make(map[string]bool, len(tokens))
	set := &TokenSet{}

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || seen[tok] {
			continue
		}

		seen[tok] = true
		set.tokens = append(set.tokens, tok)
	}

	return set
}

// Len returns the number of tokens.
func (s *TokenSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.tokens)
}

// Short returns the previews of tokens below RecommendedTokenLen.
func (s *TokenSet) Short() []string {
	var out []string

	for _, tok := range s.tokens {
		if len(tok) < RecommendedTokenLen {
			out = append(out, Preview(tok))
		}
	}

	return out
}

// contains compares against every member so the time taken does not
// depend on which token matched.
func (s *TokenSet) contains(candidate string) bool {
	found := 0

	for _, tok := range s.tokens {
		found |= subtle.ConstantTimeCompare([]byte(tok), []byte(candidate))
	}

	return found == 1
}

// Gate authorizes callers against the current TokenSet.
type Gate struct {
	tokens atomic.Pointer[TokenSet]
	logger *slog.Logger
}

// NewGate returns a gate for tokens and warns about short ones.
func NewGate(tokens []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{logger: logger}
	g.Replace(tokens)

	return g
}

// Replace swaps in a new token set. Requests already past Check keep their
// decision; the next Check sees the new set.
func (g *Gate) Replace(tokens []string) {
	set := NewTokenSet(tokens)

	for _, p := range set.Short() {
		g.logger.Warn("caller token is shorter than recommended",
			slog.String("token", p),
			slog.Int("recommended_length", RecommendedTokenLen),
		)
	}

	g.tokens.Store(set)

	g.logger.Info("caller tokens loaded", slog.Int("count", set.Len()))
}

// Len returns the size of the current token set.
func (g *Gate) Len() int {
	return g.tokens.Load().Len()
}

// Check authorizes candidate. On success it returns the caller identity to
// attach to the request context; on failure a fault.Authorization error
// whose message is ReasonRequired or ReasonInvalid.
func (g *Gate) Check(candidate, transport string) (Caller, error) {
	const op = "authz"

	if candidate == "" {
		g.logger.Warn("caller rejected", slog.String("transport", transport), slog.String("reason", ReasonRequired))

		return Caller{}, fault.New(fault.Authorization, op, ReasonRequired)
	}

	if !g.tokens.Load().contains(candidate) {
		g.logger.Warn("caller rejected",
			slog.String("transport", transport),
			slog.String("reason", ReasonInvalid),
			slog.String("token", Preview(candidate)),
		)

		return Caller{}, fault.New(fault.Authorization, op, ReasonInvalid)
	}

	return Caller{Preview: Preview(candidate), Transport: transport}, nil
}

// Reason returns the rejection reason of an error from Check, or "" when
// err did not come from Check.
func Reason(err error) string {
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.Authorization {
		return ""
	}

	return fe.Msg
}

// Preview returns the first eight characters of tok followed by "...".
// Tokens of eight characters or fewer show only their first half.
func Preview(tok string) string {
	if len(tok) <= previewLen {
		return tok[:len(tok)/2] + "..."
	}

	return tok[:previewLen] + "..."
}
