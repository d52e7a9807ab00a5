package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
)

const defaultTailCount = 20

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail",
	}

	cmd.AddCommand(newAuditTailCmd())

	return cmd
}

func newAuditTailCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditTail(cmd.Context(), cmd.OutOrStdout(), n)
		},
	}

	cmd.Flags().IntVarP(&n, "count", "n", defaultTailCount, "number of events")

	return cmd
}

type auditRow struct {
	ID        string `json:"id"`
	At        string `json:"at"`
	Transport string `json:"transport"`
	Caller    string `json:"caller"`
	Action    string `json:"action"`
	Drive     string `json:"driveId,omitempty"`
	Path      string `json:"path,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

func runAuditTail(ctx context.Context, w io.Writer, n int) error {
	if n <= 0 {
		return fmt.Errorf("--count must be positive, got %d", n)
	}

	path := resolvedCfg.Server.AuditDB
	if path == "" {
		return errors.New("audit trail is disabled: set server.audit_db")
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audit database: %w", err)
	}

	logger, closeLog, err := buildLogger(resolvedCfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := audit.Open(ctx, path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(ctx, n)
	if err != nil {
		return err
	}

	return printAuditEvents(w, events)
}

func printAuditEvents(w io.Writer, events []audit.Event) error {
	if flagJSON {
		rows := make([]auditRow, 0, len(events))
		for _, e := range events {
			rows = append(rows, auditRow{
				ID:        e.ID,
				At:        e.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				Transport: e.Transport,
				Caller:    e.Caller,
				Action:    e.Action,
				Drive:     e.Drive.String(),
				Path:      e.Path,
				Outcome:   e.Outcome,
				Detail:    e.Detail,
			})
		}

		return printJSON(w, rows)
	}

	if len(events) == 0 {
		statusf("No audit events recorded.\n")

		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRANSPORT\tCALLER\tACTION\tPATH\tOUTCOME")

	for _, e := range events {
		outcome := e.Outcome
		if e.Detail != "" {
			outcome += ": " + e.Detail
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(e.At), e.Transport, orDash(e.Caller), e.Action, orDash(e.Path), outcome)
	}

	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
