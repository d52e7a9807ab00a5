package api

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
)

func dialWS(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws" + query

	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, msg any) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, msg))

	return readWS(t, conn)
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &resp))

	return resp
}

func TestWebSocket_RejectsHandshake(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{"missing", "", closeTokenRequired},
		{"invalid", "?token=not-a-real-token-at-all", closeTokenInvalid},
		{"empty query", "?token=", closeTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			conn := dialWS(t, env, tt.query)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, _, err := conn.Read(ctx)
			require.Error(t, err)
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

			var ce websocket.CloseError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.reason, ce.Reason)

			events := env.rec.snapshot()
			require.Len(t, events, 1)
			assert.Equal(t, authz.TransportWebSocket, events[0].Transport)
			assert.Equal(t, audit.OutcomeRejected, events[0].Outcome)
		})
	}
}

func TestWebSocket_Actions(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "?token="+testToken)

	resp := exchange(t, conn, map[string]any{"id": 1, "action": "listFolders", "params": map[string]any{"parentFolder": "Shared"}})
	assert.Equal(t, float64(1), resp["id"])
	assert.Equal(t, "listFolders", resp["action"])
	assert.Equal(t, true, resp["success"])

	data, ok := resp["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	resp = exchange(t, conn, map[string]any{"id": "c", "action": "getDocumentContent", "params": map[string]any{"documentPath": "Reports/q1.txt"}})
	assert.Equal(t, "c", resp["id"])
	assert.Equal(t, true, resp["success"])

	resp = exchange(t, conn, map[string]any{"action": "getFolderTree", "params": map[string]any{"folderPath": "Reports"}})
	assert.Equal(t, true, resp["success"])

	resp = exchange(t, conn, map[string]any{"action": "deleteItem", "params": map[string]any{"path": "Reports/Old"}})
	assert.Equal(t, true, resp["success"])

	assert.Equal(t, []string{"folders:Shared", "content:Reports|q1.txt", "tree:Reports", "delete:Reports/Old"}, env.svc.snapshot())
	assert.Equal(t, 3, env.svc.depth)

	for _, c := range env.svc.callers {
		assert.Equal(t, authz.Caller{Preview: "caller-t...", Transport: authz.TransportWebSocket}, c)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "?token="+testToken)

	resp := exchange(t, conn, map[string]any{"id": "x", "action": "explode"})
	assert.Equal(t, unknownAction, resp["error"])
	assert.Equal(t, "explode", resp["action"])
	assert.Equal(t, "x", resp["id"])

	resp = exchange(t, conn, map[string]any{"action": "createFolder", "params": map[string]any{}})
	assert.Equal(t, "Bad Request", resp["error"])
	assert.Contains(t, resp["message"], "folderName")

	resp = exchange(t, conn, map[string]any{"action": "uploadDocument", "params": map[string]any{"fileName": "a.txt"}})
	assert.Equal(t, "Bad Request", resp["error"])
	assert.Contains(t, resp["message"], "content")

	env.svc.mu.Lock()
	env.svc.fail = map[string]error{"documents": errNotFound}
	env.svc.mu.Unlock()

	resp = exchange(t, conn, map[string]any{"action": "listDocuments", "params": map[string]any{"folderName": "Missing"}})
	assert.Equal(t, "Not Found", resp["error"])
	assert.Nil(t, resp["success"])

	// A malformed frame is answered and the connection stays open.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	resp = readWS(t, conn)
	assert.Equal(t, "Invalid message", resp["error"])

	resp = exchange(t, conn, map[string]any{"action": "ping"})
	assert.Equal(t, true, resp["success"])

	assert.Equal(t, []string{"documents:Missing"}, env.svc.snapshot())
}

func TestWebSocket_NoService(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Service = nil })
	conn := dialWS(t, env, "?token="+testToken)

	resp := exchange(t, conn, map[string]any{"action": "ping"})
	assert.Equal(t, true, resp["success"])

	data, ok := resp["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["pong"])
	assert.Equal(t, "2024-05-01T08:00:00Z", data["timestamp"])

	resp = exchange(t, conn, map[string]any{"action": "listFolders"})
	assert.Equal(t, "Service Unavailable", resp["error"])
}

// A slow call does not hold up later messages on the same connection.
func TestWebSocket_ConcurrentMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.delay = map[string]time.Duration{"tree": 300 * time.Millisecond}

	conn := dialWS(t, env, "?token="+testToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "slow", "action": "getFolderTree"}))
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "fast", "action": "listFolders"}))

	first := readWS(t, conn)
	second := readWS(t, conn)

	assert.Equal(t, "fast", first["id"])
	assert.Equal(t, "slow", second["id"])
	assert.Equal(t, true, second["success"])
}

func TestWebSocket_ClosedOnShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "?token="+testToken)

	exchange(t, conn, map[string]any{"action": "ping"})

	env.s.wsCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.NoError(t, ctx.Err(), "connection closed by the server, not the read deadline")
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example.com", "*"}))
	assert.Equal(t, []string{"a.example.com", "localhost:3000"}, originPatterns([]string{"https://a.example.com", "http://localhost:3000"}))
}
