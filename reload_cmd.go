package main

import (
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Tell a running server to re-read its caller tokens",
		Long:  `Send SIGHUP to the server recorded in the PID file written by "serve".`,
		RunE: func(_ *cobra.Command, _ []string) error {
			rec, err := signalServer(pidPath, syscall.SIGHUP)
			if err != nil {
				return err
			}

			statusf("Sent reload signal to gateway server (PID %d, %s mode on %s, started %s)\n",
				rec.PID, rec.Mode, rec.Addr, humanize.Time(rec.Started))

			return nil
		},
	}

	cmd.Flags().StringVar(&pidPath, "pid-file", defaultPIDPath(), "PID file written by serve")

	return cmd
}
