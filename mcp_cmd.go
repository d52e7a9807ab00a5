package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/apiclient"
	"github.com/tonimelisma/sharepoint-gateway/internal/config"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	var apiURL, apiToken string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Run the MCP server on stdin/stdout for an AI agent host.

By default the tools talk to SharePoint directly. With --api-url (or
SHAREPOINT_API_URL) they are forwarded to a remote gateway's HTTP API
instead, and the tools that touch local files are not offered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "base URL of a remote gateway API (proxy mode)")
	cmd.Flags().StringVar(&apiToken, "api-token", "", "caller token for the remote gateway API")

	return cmd
}

func runMCP(parent context.Context) error {
	cfg := resolvedCfg
	cfg.Server.Mode = config.ModeMCP

	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := shutdownContext(parent, logger)

	var (
		srv  *mcpserver.Server
		opts = mcpserver.Options{Version: version, DefaultDepth: cfg.Tree.DefaultDepth}
	)

	if cfg.Proxied() {
		client, clientErr := apiclient.New(cfg.Proxy.APIURL, cfg.Proxy.APIToken, newHTTPClient(cfg.NetworkTimeout()), logger)
		if clientErr != nil {
			return clientErr
		}

		// A rejected token will never work; an unreachable gateway may come up.
		if validateErr := client.Validate(ctx); validateErr != nil {
			if fault.KindOf(validateErr) == fault.Authorization {
				return validateErr
			}

			logger.Warn("remote gateway not reachable yet",
				slog.String("api_url", cfg.Proxy.APIURL),
				slog.String("error", fault.Redact(validateErr.Error())),
			)
		}

		logger.Info("MCP proxy mode", slog.String("api_url", cfg.Proxy.APIURL))

		srv, err = mcpserver.New(client, opts, logger)
	} else {
		rec, closeAudit, auditErr := openAudit(ctx, cfg, logger)
		if auditErr != nil {
			return auditErr
		}
		defer closeAudit()

		b, connectErr := connectSharePoint(ctx, cfg, rec, logger)
		if connectErr != nil {
			return connectErr
		}

		opts.Local = b.local
		srv, err = mcpserver.New(b.svc, opts, logger)
	}

	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
