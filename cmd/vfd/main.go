// vfd - SR-IOV VF policy daemon
//
// vfd owns the VF configuration of the physical ports listed in its
// parameter file. Administrators add and remove VFs by dropping JSON
// documents into the config directory and sending requests through the
// request pipe (see iplex). Guest driver requests raised through the PF
// mailbox are arbitrated against the same policy.
//
// Usage:
//
//	vfd run [-p /etc/vfd/vfd.yaml] [-n] [-f]   Run the daemon
//	vfd check-config <doc.json>...             Check VF documents
//	vfd audit list [--last 24h]                Show handled requests
//	vfd version                                Print version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vfd/pkg/parms"
	"github.com/newtron-network/vfd/pkg/version"
)

var (
	parmsPath  string
	verbose    bool
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "vfd",
	Short:             "SR-IOV VF policy daemon",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `vfd manages the virtual functions of SR-IOV capable NICs.

VF documents are admitted against per-VF and per-port limits, bandwidth
shares are normalized per traffic class, and guest requests arriving
through the PF mailbox are checked against the same policy.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vfd %s\n", version.Info())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&parmsPath, "parms", "p", parms.DefaultPath, "Daemon parameter file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}
