package authz

import (
	"context"
	"net/http"
	"strings"
)

// Transport names recorded on a Caller.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportMCP       = "mcp"
)

// Caller identifies an authorized caller. It never holds the full token.
type Caller struct {
	Preview   string
	Transport string
}

type callerKey struct{}

// WithCaller returns ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)

	return c, ok
}

// FromRequest extracts the candidate token from an HTTP request. Sources in
// order: Authorization Bearer, X-API-Token, the token query parameter.
func FromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok && tok != "" {
			return tok
		}
	}

	if tok := r.Header.Get("X-API-Token"); tok != "" {
		return tok
	}

	return FromQuery(r)
}

// FromQuery extracts the candidate token from the token query parameter
// only. Browsers cannot set headers on a WebSocket handshake.
func FromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}
