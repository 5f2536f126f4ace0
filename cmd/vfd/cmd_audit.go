package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vfd/pkg/audit"
	"github.com/newtron-network/vfd/pkg/cli"
	"github.com/newtron-network/vfd/pkg/parms"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the request audit log",
	Long: `View the add and delete requests the daemon has handled.

Every add and delete is logged with:
  - Timestamp and request id
  - Port and VF named by the document
  - Success or the rejection reason

Examples:
  vfd audit list --port 0000:07:00.0
  vfd audit list --last 24h --failures`,
}

var (
	auditPort     string
	auditAction   string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parms.Load(parmsPath)
		if err != nil {
			return err
		}
		if p.AuditLog == "" {
			return fmt.Errorf("audit_log is not set in %s", parmsPath)
		}
		logger, err := audit.NewFileLogger(p.AuditLog, audit.RotationConfig{})
		if err != nil {
			return err
		}
		defer logger.Close()

		filter := audit.Filter{
			Action:      auditAction,
			Port:        auditPort,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "ACTION", "RESOURCE", "PORT", "VF", "STATUS", "ERROR")
		for _, e := range events {
			status := cli.Green("ok")
			if !e.Success {
				status = cli.Red("failed")
			}
			if e.NoHarm {
				status = cli.Yellow("no-harm")
			}
			vf := "-"
			if e.VF >= 0 {
				vf = fmt.Sprint(e.VF)
			}
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Resource, e.Port, vf, status, e.Error)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditPort, "port", "", "Filter by port PCI id")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (add, delete)")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed requests")
	auditListCmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")

	auditCmd.AddCommand(auditListCmd)
}
