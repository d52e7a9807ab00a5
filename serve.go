package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/sharepoint-gateway/internal/api"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/config"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/mcpserver"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

func newServeCmd() *cobra.Command {
	var (
		mode    string
		port    int
		pidPath string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Long: `Run the authenticated HTTP and WebSocket API. In dual mode the MCP
stdio server runs alongside it in the same process.

SIGINT or SIGTERM drains in-flight requests; a second signal exits at once.
SIGHUP (or "sharepoint-gateway reload") re-reads the caller tokens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), pidPath, watch)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "server mode: api or dual")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	cmd.Flags().StringVar(&pidPath, "pid-file", defaultPIDPath(), "PID file used by reload")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "reload caller tokens when the config file changes")

	return cmd
}

// serveMode is the effective mode of "serve": the configured default of
// MCP-only becomes api.
func serveMode(cfg *config.Config) string {
	if cfg.ServesHTTP() {
		return cfg.Server.Mode
	}

	return config.ModeAPI
}

func runServe(parent context.Context, pidPath string, watch bool) error {
	cfg := resolvedCfg
	cfg.Server.Mode = serveMode(cfg)

	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := shutdownContext(parent, logger)

	if pidPath != "" {
		release, pidErr := acquirePIDFile(pidPath, serverRecord{
			PID:     os.Getpid(),
			Mode:    cfg.Server.Mode,
			Addr:    cfg.Addr(),
			Started: time.Now().UTC(),
		})
		if pidErr != nil {
			return pidErr
		}
		defer release()
	}

	rec, closeAudit, err := openAudit(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	// An unreachable SharePoint leaves the API up in a degraded state:
	// /health reports disconnected and store endpoints answer 503.
	b, err := connectSharePoint(ctx, cfg, rec, logger)
	if err != nil {
		if fault.KindOf(err) == fault.Configuration {
			return err
		}

		logger.Error("SharePoint unavailable, serving in degraded mode",
			slog.String("error", fault.Redact(err.Error())),
		)
	}

	gate := authz.NewGate(cfg.Server.APITokens, logger)
	holder := config.NewHolder(cfg, resolvedPath)
	overrides := activeOverrides

	r := &reloader{
		mode:   cfg.Server.Mode,
		holder: holder,
		gate:   gate,
		logger: logger,
		resolve: func() (*config.Config, error) {
			c, _, resolveErr := config.Resolve(overrides, nil)
			return c, resolveErr
		},
	}

	onHangup(ctx, logger, r.reload)

	var svc resource.Service
	if b != nil {
		svc = b.svc
	}

	srv, err := api.New(api.Options{
		Service:         svc,
		Gate:            gate,
		Audit:           rec,
		Version:         version,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitWindow: cfg.RateLimitWindow(),
		RateLimitMax:    cfg.Server.RateLimitMax,
		MaxBodyBytes:    bodyLimit(cfg.MaxUploadBytes()),
		DefaultDepth:    cfg.Tree.DefaultDepth,
		Metrics:         cfg.Server.Metrics,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		TokenRefreshes:  tokenRefreshes(b),
	}, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr())
	})

	if watch && configFileExists(resolvedPath) {
		g.Go(func() error {
			if watchErr := config.Watch(gctx, resolvedPath, config.DefaultWatchDebounce, logger, r.reload); watchErr != nil {
				logger.Warn("config watch stopped", slog.String("error", watchErr.Error()))
			}

			return nil
		})
	}

	if cfg.Server.Mode == config.ModeDual {
		if b == nil {
			logger.Error("MCP stdio server not started: SharePoint tools not initialized")
		} else {
			m, mcpErr := mcpserver.New(b.svc, mcpserver.Options{
				Version:      version,
				Local:        b.local,
				DefaultDepth: cfg.Tree.DefaultDepth,
			}, logger)
			if mcpErr != nil {
				return mcpErr
			}

			// The MCP client closing stdin does not stop the HTTP server.
			g.Go(func() error {
				return m.Run(gctx)
			})
		}
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// bodyLimit sizes the request body limit for base64 upload bodies of
// maxUpload decoded bytes. 0 selects the server default.
func bodyLimit(maxUpload int64) int64 {
	const envelope = 64 << 10

	if maxUpload <= 0 {
		return 0
	}

	return maxUpload/3*4 + envelope
}

func configFileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// tokenRefreshes is nil while SharePoint is not connected.
func tokenRefreshes(b *backend) func() int64 {
	if b == nil || b.tokens == nil {
		return nil
	}

	return b.tokens.Refreshes
}
