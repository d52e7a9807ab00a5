package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
)

const requestIDHeader = "X-Request-ID"

// Caller-facing rejection messages.
const (
	msgTokenRequired = "API token required. Provide via Authorization header, X-API-Token header, or ?token= query parameter"
	msgTokenInvalid  = "Invalid API token provided"
)

// statusRecorder captures the status and size written by a handler. It
// passes Hijack through for WebSocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}

	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}

	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)

	return n, err
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}

	if rec.status == 0 {
		rec.status = http.StatusSwitchingProtocols
	}

	return hj.Hijack()
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (rec *statusRecorder) code() int {
	if rec.status == 0 {
		return http.StatusOK
	}

	return rec.status
}

func recordResponse(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}

	return &statusRecorder{ResponseWriter: w}
}

// recovery turns handler panics into 500 responses.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler { //nolint:errorlint // sentinel comparison is how net/http documents it
					panic(err)
				}

				s.logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				writeErrorStatus(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestLog logs one line per request. The query string is never logged
// because it may carry a caller token.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)

		rec := recordResponse(w)
		start := s.nowFunc()

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.code()),
			slog.Int64("bytes", rec.bytes),
			slog.Duration("duration", s.nowFunc().Sub(start)),
		)
	})
}

// instrument records request counts and latency by matched route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordResponse(w)
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		s.metrics.observe(route, r.Method, rec.code(), time.Since(start))
	})
}

func (s *Server) corsHandler(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Token", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
	}).Handler(next)
}

// rejectCaller records and reports a failed token check.
func (s *Server) rejectCaller(r *http.Request, transport, token string, err error) string {
	reason := authz.Reason(err)

	preview := ""
	if token != "" {
		preview = authz.Preview(token)
	}

	s.metrics.rejections.WithLabelValues(transport, reason).Inc()
	audit.RecordRejection(r.Context(), s.rec, transport, preview, reason, s.logger)

	return reason
}

// requireCaller rejects requests without a valid caller token and stores
// the caller on the request context.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := authz.FromRequest(r)

		caller, err := s.gate.Check(token, authz.TransportHTTP)
		if err != nil {
			msg := msgTokenInvalid
			if s.rejectCaller(r, authz.TransportHTTP, token, err) == authz.ReasonRequired {
				msg = msgTokenRequired
			}

			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: msg})

			return
		}

		next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
	})
}

// rateLimit applies the per-caller limit. It runs after requireCaller.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := authz.CallerFrom(r.Context())

		ok, wait := s.limiter.allow(caller.Preview)
		if !ok {
			s.metrics.rateLimits.Inc()
			s.logger.Warn("caller rate limited",
				slog.String("caller", caller.Preview),
				slog.Duration("retry_after", wait),
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeErrorStatus(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")

			return
		}

		next.ServeHTTP(w, r)
	})
}
