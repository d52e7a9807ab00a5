// Package api serves resource operations over HTTP and WebSocket to callers
// holding a configured caller token.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

const (
	defaultMaxBodyBytes    = 10 << 20
	defaultShutdownTimeout = 30 * time.Second
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 60 * time.Second
	healthCacheTTL         = 5 * time.Second
)

// Options configures a Server. Service may be nil, in which case store
// endpoints answer 503 and /health reports the store as disconnected.
type Options struct {
	Service resource.Service
	Gate    *authz.Gate
	Audit   audit.Recorder

	Version         string
	CORSOrigins     []string
	RateLimitWindow time.Duration
	RateLimitMax    int
	MaxBodyBytes    int64
	DefaultDepth    int
	Metrics         bool
	ShutdownTimeout time.Duration

	// TokenRefreshes reports service token refreshes for /metrics.
	TokenRefreshes func() int64
}

// Server is the HTTP and WebSocket transport.
type Server struct {
	opts    Options
	svc     resource.Service
	gate    *authz.Gate
	rec     audit.Recorder
	logger  *slog.Logger
	limiter *callerLimiter
	metrics *metrics
	handler http.Handler
	nowFunc func() time.Time

	healthMu  sync.Mutex
	healthAt  time.Time
	healthVal string

	// wsCtx is canceled on shutdown so open WebSocket loops exit.
	wsCtx    context.Context
	wsCancel context.CancelFunc

	// inflightMu orders inflight.Add against the Wait in waitInflight;
	// once draining is set no new call is admitted.
	inflightMu sync.Mutex
	draining   bool
	inflight   sync.WaitGroup
}

// New builds the server and its route table.
func New(opts Options, logger *slog.Logger) (*Server, error) {
	if opts.Gate == nil {
		return nil, errors.New("api: caller token gate is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	if opts.DefaultDepth <= 0 {
		opts.DefaultDepth = resource.DefaultTreeDepth
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	if opts.Version == "" {
		opts.Version = "dev"
	}

	if !resource.Usable(opts.Service) {
		opts.Service = nil
	}

	wsCtx, wsCancel := context.WithCancel(context.Background())

	s := &Server{
		opts:     opts,
		svc:      opts.Service,
		gate:     opts.Gate,
		rec:      opts.Audit,
		logger:   logger,
		limiter:  newCallerLimiter(opts.RateLimitWindow, opts.RateLimitMax),
		metrics:  newMetrics(opts.TokenRefreshes),
		nowFunc:  time.Now,
		wsCtx:    wsCtx,
		wsCancel: wsCancel,
	}

	s.handler = s.recovery(s.requestLog(s.instrument(s.corsHandler(s.routes()))))

	return s, nil
}

// Handler returns the complete middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.opts.Metrics {
		mux.Handle("GET /metrics", s.metrics.handler())
	}

	protected := func(h http.HandlerFunc) http.Handler {
		return s.requireCaller(s.rateLimit(h))
	}

	mux.Handle("GET /api", protected(s.handleIndex))
	mux.Handle("GET /api/auth/validate", protected(s.handleValidate))
	mux.Handle("GET /api/folders", protected(s.withService(s.handleListFolders)))
	mux.Handle("GET /api/documents", protected(s.withService(s.handleListDocuments)))
	mux.Handle("GET /api/tree", protected(s.withService(s.handleTree)))
	mux.Handle("GET /api/document/{path...}", protected(s.withService(s.handleContent)))
	mux.Handle("POST /api/upload", protected(s.withService(s.handleUpload)))
	mux.Handle("POST /api/folder", protected(s.withService(s.handleCreateFolder)))
	mux.Handle("PUT /api/document/{path...}", protected(s.withService(s.handleUpdate)))
	mux.Handle("DELETE /api/item/{path...}", protected(s.withService(s.handleDelete)))

	// Unknown endpoints under /api still require a token before a 404.
	mux.Handle("/api/", protected(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorStatus(w, http.StatusNotFound, "endpoint not found")
	}))

	return mux
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	srv.RegisterOnShutdown(s.wsCancel)

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.wsCancel()

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down", slog.Duration("timeout", s.opts.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.waitInflight(shutdownCtx)

	if err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// track admits one detached WebSocket call. It reports false once the
// server has started draining.
func (s *Server) track() bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if s.draining {
		return false
	}

	s.inflight.Add(1)

	return true
}

// waitInflight stops admitting calls, then waits for the admitted ones to
// finish or ctx to end.
func (s *Server) waitInflight(ctx context.Context) {
	s.inflightMu.Lock()
	s.draining = true
	s.inflightMu.Unlock()

	done := make(chan struct{})

	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out with WebSocket calls in flight")
	}
}
