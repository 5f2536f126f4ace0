package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	noHarm     bool
	foreground bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run the daemon until SIGINT or SIGTERM.

Without --foreground the log goes to <log_dir>/vfd.log, rotated daily by
size and age; with it, the log goes to stderr. With --no-harm nothing is
programmed into the NIC and every driver call is only logged.

Examples:
  vfd run -p /etc/vfd/vfd.yaml
  vfd run -f -n -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(daemonOptions{
			ParmsPath:  parmsPath,
			NoHarm:     noHarm,
			Foreground: foreground,
			Verbose:    verbose,
		})
		if err != nil {
			return err
		}
		defer d.Close()
		return d.Run(ctx)
	},
}

func init() {
	runCmd.Flags().BoolVarP(&noHarm, "no-harm", "n", false, "Log NIC programming instead of doing it")
	runCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Log to stderr instead of the log directory")
}
