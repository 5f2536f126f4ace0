// iplex - vfd request client
//
// iplex sends one administrative request to a running vfd through its
// request pipe and prints the response.
//
// Usage:
//
//	iplex add <name.json>          Admit a VF document from the config directory
//	iplex delete <name.json>       Retire a live VF document
//	iplex show [all|pfs|ext|N]     Show port and VF state
//	iplex ping                     Check that vfd is answering
//	iplex verbose <level>          Change the daemon's log verbosity
//	iplex dump                     Write the daemon's state to its log
//	iplex cpu-alarm <pct>          Change the CPU alarm threshold
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/newtron-network/vfd/pkg/cli"
	"github.com/newtron-network/vfd/pkg/dispatch"
	"github.com/newtron-network/vfd/pkg/parms"
	"github.com/newtron-network/vfd/pkg/transport"
	"github.com/newtron-network/vfd/pkg/version"
)

var (
	fifoPath  string
	timeout   time.Duration
	logLevel  int
	requestID string
	noColor   bool
)

// errRejected is returned when vfd answered with ERROR; the response has
// already been printed.
type errRejected struct{}

func (errRejected) Error() string { return "request rejected" }

func main() {
	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(errRejected); !ok {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "iplex",
	Short:             "Send requests to vfd",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Version:           version.Info(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			cli.SetColor(false)
		}
	},
}

// send issues one request and prints the reply lines followed by the state.
func send(action string, params transport.Params) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if params.RequestID == "" {
		params.RequestID = requestID
	}
	if params.RequestID == "" {
		params.RequestID = uuid.NewString()
	}
	if params.LogLevel == 0 {
		params.LogLevel = transport.LogLevel(logLevel)
	}

	c := transport.NewClient(fifoPath)
	c.Timeout = timeout
	resp, err := c.Do(ctx, action, params)
	if err != nil {
		return err
	}
	printResponse(resp)
	if !resp.OK {
		return errRejected{}
	}
	return nil
}

func printResponse(resp dispatch.Response) {
	for _, line := range resp.Message {
		fmt.Println(line)
	}
	fmt.Printf("%s %s\n", cli.Dim(resp.RequestID), cli.Status(resp.State()))
}

var addCmd = &cobra.Command{
	Use:   "add <name.json>",
	Short: "Admit a VF document",
	Long: `Admit a VF document. A bare name is looked up in vfd's config directory.

Examples:
  iplex add vm1.json
  iplex add /var/lib/vfd/config/vm1.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send("add", transport.Params{Filename: args[0]})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <name.json>",
	Aliases: []string{"del", "rm"},
	Short:   "Retire a live VF document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send("delete", transport.Params{Filename: args[0]})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [all|pfs|ext|<port index>]",
	Short: "Show port and VF state",
	Long: `Show port and VF state.

  all   every port and its VFs (default)
  pfs   ports only
  ext   every port and VF with queue shares
  N     the port at index N`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		what := "all"
		if len(args) == 1 {
			what = args[0]
		}
		return send("show", transport.Params{Resource: what})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that vfd is answering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send("ping", transport.Params{})
	},
}

var verboseCmd = &cobra.Command{
	Use:   "verbose <level>",
	Short: "Change the daemon's log verbosity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid level %q: want a non-negative number", args[0])
		}
		return send("verbose", transport.Params{LogLevel: transport.LogLevel(n)})
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write the daemon's state to its log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send("dump", transport.Params{})
	},
}

var cpuAlarmCmd = &cobra.Command{
	Use:   "cpu-alarm <pct>",
	Short: "Change the CPU alarm threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parms.ParseCPUAlarm(args[0]); err != nil {
			return err
		}
		return send("cpu_alarm", transport.Params{Resource: args[0]})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fifoPath, "fifo", parms.Defaults().Fifo, "vfd request pipe")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", transport.DefaultTimeout, "How long to wait for a response")
	rootCmd.PersistentFlags().IntVarP(&logLevel, "loglevel", "l", 0, "Raise vfd's verbosity while it handles this request")
	rootCmd.PersistentFlags().StringVar(&requestID, "rid", "", "Request id (generated when empty)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(verboseCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(cpuAlarmCmd)
}
