package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/certificate"
	"github.com/tonimelisma/sharepoint-gateway/internal/config"
)

func newCertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect the service certificate",
	}

	cmd.AddCommand(newCertInspectCmd())

	return cmd
}

func newCertInspectCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode the certificate container and show its identity",
		Long: `Decode the PKCS#12 container named by sharepoint.cert_path (or --path)
with sharepoint.cert_password and print its thumbprint, subject, validity
and the decode strategy that recovered it. Key material is never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertInspect(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "certificate container path")

	return cmd
}

type certReport struct {
	certificate.Info
	Path      string `json:"path"`
	ExpiresIn string `json:"expiresIn"`
	Expired   bool   `json:"expired"`
}

func runCertInspect(w io.Writer) error {
	cfg := resolvedCfg

	if cfg.SharePoint.CertPath == "" {
		return fmt.Errorf("no certificate path: set sharepoint.cert_path, %s or --path", config.EnvCertPath)
	}

	if cfg.SharePoint.CertPassword == "" {
		return errors.New("no certificate password: set sharepoint.cert_password or " + config.EnvCertPassword)
	}

	logger, closeLog, err := buildLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	m, err := certificate.LoadFile(cfg.SharePoint.CertPath, cfg.SharePoint.CertPassword, logger.With(slog.String("command", "cert inspect")))
	if err != nil {
		return err
	}

	now := time.Now()
	info := m.Summary()

	report := certReport{
		Info:      info,
		Path:      cfg.SharePoint.CertPath,
		ExpiresIn: formatExpiry(info.NotAfter, now),
		Expired:   m.ExpiresIn(now) <= 0,
	}

	if flagJSON {
		return printJSON(w, report)
	}

	fmt.Fprintf(w, "Path:        %s\n", report.Path)
	fmt.Fprintf(w, "Thumbprint:  %s\n", info.Thumbprint)
	fmt.Fprintf(w, "Subject:     %s\n", info.Subject)
	fmt.Fprintf(w, "Issuer:      %s\n", info.Issuer)
	fmt.Fprintf(w, "Key:         %s\n", info.KeyType)
	fmt.Fprintf(w, "Chain:       %d certificate(s)\n", info.ChainLen)
	fmt.Fprintf(w, "Not before:  %s\n", info.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Not after:   %s (%s)\n", info.NotAfter.UTC().Format(time.RFC3339), report.ExpiresIn)
	fmt.Fprintf(w, "Decoded via: %s\n", info.Strategy)

	if report.Expired {
		statusf("Warning: the certificate has expired\n")
	}

	return nil
}
