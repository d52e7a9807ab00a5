package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// WebSocket close reasons for rejected handshakes.
const (
	closeTokenRequired = "Unauthorized - Token required"
	closeTokenInvalid  = "Unauthorized - Invalid token"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	unknownAction  = "Unknown action"
)

type wsRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wsResponse struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Action  string          `json:"action"`
	Success bool            `json:"success,omitempty"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type listFoldersParams struct {
	ParentFolder string `json:"parentFolder"`
}

type listDocumentsParams struct {
	FolderName string `json:"folderName"`
}

type treeParams struct {
	FolderPath string `json:"folderPath"`
	MaxDepth   *int   `json:"maxDepth"`
}

type contentParams struct {
	FolderName   string `json:"folderName"`
	FileName     string `json:"fileName"`
	DocumentPath string `json:"documentPath"`
}

type deleteParams struct {
	Path string `json:"path"`
}

type pingData struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
}

// wsConn serializes writes to one connection.
type wsConn struct {
	conn *websocket.Conn
	ctx  context.Context
	mu   sync.Mutex
}

func (c *wsConn) write(resp wsResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, wsWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, c.conn, resp)
}

// originPatterns converts CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))

	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}

		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}

	return patterns
}

// handleWebSocket authenticates the handshake from ?token= only. Rejected
// callers are accepted and immediately closed with a policy violation so
// the client sees the reason.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := authz.FromQuery(r)
	caller, authErr := s.gate.Check(token, authz.TransportWebSocket)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.opts.CORSOrigins),
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))

		return
	}

	if authErr != nil {
		reason := closeTokenInvalid
		if s.rejectCaller(r, authz.TransportWebSocket, token, authErr) == authz.ReasonRequired {
			reason = closeTokenRequired
		}

		_ = conn.Close(websocket.StatusPolicyViolation, reason)

		return
	}

	conn.SetReadLimit(s.opts.MaxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stop := context.AfterFunc(s.wsCtx, cancel)
	defer stop()

	s.metrics.wsConns.Inc()
	defer s.metrics.wsConns.Dec()

	s.logger.Info("websocket client connected", slog.String("caller", caller.Preview))

	wc := &wsConn{conn: conn, ctx: ctx}
	callCtx := authz.WithCaller(context.WithoutCancel(ctx), caller)

	go s.keepAlive(ctx, conn)

	s.readLoop(ctx, wc, callCtx)

	if s.wsCtx.Err() != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	} else {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}

	s.logger.Info("websocket client disconnected", slog.String("caller", caller.Preview))
}

func (s *Server) readLoop(ctx context.Context, wc *wsConn, callCtx context.Context) {
	for {
		_, data, err := wc.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}

			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = wc.write(wsResponse{Error: "Invalid message", Message: "message must be a JSON object"})

			continue
		}

		// Each message runs on its own goroutine. The call is detached from
		// the connection; if the client is gone the write fails and the
		// result is dropped.
		if !s.track() {
			_ = wc.write(wsResponse{ID: req.ID, Action: req.Action, Error: "Server shutting down"})

			return
		}

		go func() {
			defer s.inflight.Done()

			resp := s.dispatch(callCtx, req)
			if err := wc.write(resp); err != nil {
				s.logger.Debug("websocket response dropped",
					slog.String("action", req.Action),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

func (s *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// dispatch runs one WebSocket request.
func (s *Server) dispatch(ctx context.Context, req wsRequest) wsResponse {
	resp := wsResponse{ID: req.ID, Action: req.Action}

	data, err := s.runAction(ctx, req)

	outcome := "ok"

	switch {
	case errors.Is(err, errUnknownAction):
		outcome = "unknown"
		resp.Error = unknownAction
	case err != nil:
		outcome = "error"

		status, msg := errorStatus(err)
		resp.Error = httpStatusLabel(status)
		resp.Message = msg

		s.logger.Warn("websocket action failed",
			slog.String("action", req.Action),
			slog.Int("status", status),
			slog.String("error", msg),
		)
	default:
		resp.Success = true
		resp.Data = data
	}

	s.metrics.wsMessages.WithLabelValues(metricAction(req.Action), outcome).Inc()

	return resp
}

var errUnknownAction = errors.New("api: unknown websocket action")

var knownActions = map[string]bool{
	"listFolders": true, "listDocuments": true, "getFolderTree": true,
	"getDocumentContent": true, "createFolder": true, "uploadDocument": true,
	"updateDocument": true, "deleteItem": true, "ping": true,
}

// metricAction bounds label cardinality.
func metricAction(action string) string {
	if knownActions[action] {
		return action
	}

	return "unknown"
}

func httpStatusLabel(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}

	return "error"
}

func decodeParams(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fault.New(fault.Validation, "api", "invalid params: "+err.Error())
	}

	return nil
}

func (s *Server) runAction(ctx context.Context, req wsRequest) (any, error) {
	if req.Action == "ping" {
		return pingData{Pong: true, Timestamp: s.timestamp()}, nil
	}

	if !knownActions[req.Action] {
		return nil, errUnknownAction
	}

	if s.svc == nil {
		return nil, fault.New(fault.Unavailable, "api", "SharePoint operations not initialized")
	}

	switch req.Action {
	case "listFolders":
		var p listFoldersParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		return s.svc.ListFolders(ctx, p.ParentFolder)

	case "listDocuments":
		var p listDocumentsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		return s.svc.ListDocuments(ctx, p.FolderName)

	case "getFolderTree":
		var p treeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		depth := s.opts.DefaultDepth
		if p.MaxDepth != nil {
			depth = *p.MaxDepth
		}

		return s.svc.GetFolderTree(ctx, p.FolderPath, depth)

	case "getDocumentContent":
		var p contentParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		if p.FileName == "" && p.DocumentPath != "" {
			p.FolderName, p.FileName = splitDocumentPath(p.DocumentPath)
		}

		return s.svc.GetDocumentContent(ctx, p.FolderName, p.FileName)

	case "createFolder":
		var p folderRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		if err := validateParams(&p); err != nil {
			return nil, err
		}

		return s.svc.CreateFolder(ctx, p.ParentPath, p.FolderName)

	case "uploadDocument", "updateDocument":
		var p uploadRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		if err := validateParams(&p); err != nil {
			return nil, err
		}

		if req.Action == "updateDocument" {
			return s.svc.UpdateDocument(ctx, p.FolderPath, p.FileName, *p.Content, p.IsBase64)
		}

		return s.svc.UploadDocument(ctx, p.FolderPath, p.FileName, *p.Content, p.IsBase64)

	default: // deleteItem
		var p deleteParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}

		return s.svc.DeleteItem(ctx, p.Path)
	}
}
