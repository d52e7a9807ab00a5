package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/certificate"
	"github.com/tonimelisma/sharepoint-gateway/internal/config"
	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

// certExpiryWarning is how close to expiry the service certificate must be
// before startup warns.
const certExpiryWarning = 30 * 24 * time.Hour

// backend is the wired SharePoint side shared by every transport.
type backend struct {
	svc    resource.Service
	local  resource.LocalFiles
	drive  graph.Drive
	tokens *graph.AppTokenSource
}

// loadCredential reads the service certificate and builds the token source.
// Every failure here is a configuration error.
func loadCredential(cfg *config.Config, logger *slog.Logger) (*graph.AppTokenSource, error) {
	material, err := certificate.LoadFile(cfg.SharePoint.CertPath, cfg.SharePoint.CertPassword, logger)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "certificate", err)
	}

	if left := material.ExpiresIn(time.Now()); left < certExpiryWarning {
		logger.Warn("service certificate expires soon",
			slog.String("thumbprint", material.Thumbprint),
			slog.Time("not_after", material.Certificate.NotAfter),
		)
	}

	ts, err := graph.NewAppTokenSource(graph.AppCredential{
		TenantID:  cfg.SharePoint.TenantID,
		ClientID:  cfg.SharePoint.AppID,
		Material:  material,
		Authority: cfg.SharePoint.Authority,
	}, newHTTPClient(cfg.NetworkTimeout()), logger)
	if err != nil {
		return nil, err
	}

	return ts, nil
}

// resolveDrive finds the configured site and picks its document library.
func resolveDrive(ctx context.Context, client *graph.Client, cfg *config.Config) (graph.Drive, error) {
	ref, err := driveid.ParseSiteURL(cfg.SharePoint.SiteURL)
	if err != nil {
		return graph.Drive{}, fault.Wrap(fault.Configuration, "sharepoint", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.NetworkTimeout())
	defer cancel()

	site, err := client.ResolveSite(ctx, ref)
	if err != nil {
		return graph.Drive{}, fmt.Errorf("resolving site %s: %w", ref, err)
	}

	drives, err := client.SiteDrives(ctx, site.ID)
	if err != nil {
		return graph.Drive{}, fmt.Errorf("listing libraries of %s: %w", ref, err)
	}

	drive, err := graph.SelectDrive(drives, cfg.SharePoint.DriveName)
	if err != nil {
		return graph.Drive{}, fault.Wrap(fault.NotFound, "sharepoint", err)
	}

	return drive, nil
}

// connectSharePoint wires certificate, token source, Graph client, drive and
// resource operations. Mutations are audited when rec is non-nil.
// Configuration errors are fatal; any other error means SharePoint is
// unreachable right now.
func connectSharePoint(ctx context.Context, cfg *config.Config, rec audit.Recorder, logger *slog.Logger) (*backend, error) {
	ts, err := loadCredential(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := graph.NewClient(cfg.SharePoint.GraphURL, newHTTPClient(cfg.NetworkTimeout()), ts, logger,
		graph.WithMaxRetries(cfg.Network.MaxRetries),
		graph.WithUserAgent(cfg.Network.UserAgent),
	)

	drive, err := resolveDrive(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	ops, err := resource.New(client, drive.ID, resource.Options{
		BaseLibrary:        cfg.SharePoint.DocLibrary,
		MaxTreeDepth:       cfg.Tree.MaxDepth,
		MaxFoldersPerLevel: cfg.Tree.MaxFoldersPerLevel,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
	}, logger)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "sharepoint", err)
	}

	logger.Info("connected to SharePoint",
		slog.String("site", cfg.SharePoint.SiteURL),
		slog.String("library", drive.Name),
		slog.String("drive_id", drive.ID.String()),
		slog.String("base_library", ops.BaseLibrary()),
	)

	b := &backend{svc: ops, local: ops, drive: drive, tokens: ts}
	if rec != nil {
		b.svc = audit.Wrap(ops, rec, drive.ID, logger)
	}

	return b, nil
}

// openAudit opens the audit store when server.audit_db is set. The
// returned close function is never nil.
func openAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Recorder, func(), error) {
	if cfg.Server.AuditDB == "" {
		return nil, func() {}, nil
	}

	store, err := audit.Open(ctx, cfg.Server.AuditDB, logger)
	if err != nil {
		return nil, nil, err
	}

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing audit store", slog.String("error", err.Error()))
		}
	}, nil
}

// reloader re-resolves configuration and swaps in the new caller token set.
// Other settings take effect on restart.
type reloader struct {
	mode   string
	holder *config.Holder
	gate   *authz.Gate
	logger *slog.Logger

	// resolve is config.Resolve with the startup overrides; tests replace it.
	resolve func() (*config.Config, error)
}

func (r *reloader) reload() {
	cfg, err := r.resolve()
	if err == nil {
		cfg.Server.Mode = r.mode
		err = config.Validate(cfg)
	}

	if err != nil {
		r.logger.Error("config reload failed, keeping current settings",
			slog.String("error", fault.Redact(err.Error())),
		)

		return
	}

	gen := r.holder.Update(cfg)
	r.gate.Replace(cfg.Server.APITokens)

	r.logger.Info("config reloaded",
		slog.String("path", r.holder.Path()),
		slog.Uint64("generation", gen),
		slog.Int("tokens", r.gate.Len()),
	)
}
