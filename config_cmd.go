package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration and report every problem",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "validate for this server mode: mcp, api or dual")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Long:  "Display the effective configuration. The certificate password is masked and tokens are cut to previews.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigValidate(w io.Writer) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	if err := config.Validate(resolvedCfg); err != nil {
		return err
	}

	if flagJSON {
		return printJSON(w, map[string]any{"valid": true, "path": resolvedPath, "mode": resolvedCfg.Server.Mode})
	}

	fmt.Fprintf(w, "Configuration is valid (mode %s, file %s)\n", resolvedCfg.Server.Mode, resolvedPath)

	return nil
}

func runConfigShow(w io.Writer) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	if flagJSON {
		return printJSON(w, resolvedCfg.Sanitized())
	}

	return config.RenderEffective(resolvedCfg, resolvedPath, w)
}
