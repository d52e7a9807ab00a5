package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg and resolvedPath hold the effective configuration loaded by
// PersistentPreRunE. Commands validate what they need themselves so that
// "config show" works on an incomplete configuration.
var (
	resolvedCfg  *config.Config
	resolvedPath string
)

// activeOverrides holds the CLI overrides of the running command, kept for
// reloads.
var activeOverrides config.CLIOverrides

// skipConfigCommands lists commands that never read configuration.
var skipConfigCommands = map[string]bool{
	"sharepoint-gateway token generate": true,
	"sharepoint-gateway reload":         true,
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sharepoint-gateway",
		Short: "SharePoint document gateway",
		Long: "Exposes a SharePoint document library to AI agents over MCP stdio\n" +
			"and to applications over an authenticated HTTP and WebSocket API.",
		Version: version,
		// Silence Cobra's default error/usage printing. main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newCertCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the effective configuration: .env, defaults, config
// file, environment, then CLI flags.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(""); err != nil {
		return err
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		Mode:       stringFlag(cmd, "mode"),
		APIURL:     stringFlag(cmd, "api-url"),
		APIToken:   stringFlag(cmd, "api-token"),
		CertPath:   stringFlag(cmd, "path"),
	}

	if stringFlag(cmd, "port") != nil {
		port, err := cmd.Flags().GetInt("port")
		if err != nil {
			return err
		}

		cli.Port = &port
	}

	activeOverrides = cli

	cfg, path, err := config.Resolve(cli, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	resolvedPath = path

	return nil
}

// stringFlag returns the value of flag name when the user set it, nil
// otherwise. Only set flags override the config file and environment.
func stringFlag(cmd *cobra.Command, name string) *string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}

	v := f.Value.String()

	return &v
}

// newHTTPClient returns the outbound client for Graph, the identity
// provider and a proxied gateway.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
