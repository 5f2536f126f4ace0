package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/newtron-network/vfd/pkg/cli"
	"github.com/newtron-network/vfd/pkg/docstore"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config <doc.json>...",
	Short: "Check VF documents for syntax problems",
	Long: `Decode each VF document and list the problems that would stop it from
being added. Port limits are not checked; only a running daemon knows the
other VFs on a port.

Examples:
  vfd check-config /var/lib/vfd/config/vm1.json
  vfd check-config *.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs := docstore.New(afero.NewOsFs(), ".", false)
		failed := 0
		for _, path := range args {
			doc, err := docs.Load(path)
			if err != nil {
				fmt.Printf("%s %s\n", cli.DotPad(path, 40), cli.Red("FAIL"))
				fmt.Printf("  %v\n", err)
				failed++
				continue
			}
			problems := doc.Problems()
			if len(problems) == 0 {
				fmt.Printf("%s %s\n", cli.DotPad(path, 40), cli.Green("ok"))
				if verbose {
					fmt.Printf("  %s vf %d on %s: %d vlans, %d macs\n", doc.Name, doc.VFID, doc.PCIID, len(doc.VLANs), len(doc.MACs))
				}
				continue
			}
			fmt.Printf("%s %s\n", cli.DotPad(path, 40), cli.Yellow("problems"))
			for _, p := range problems {
				fmt.Printf("  - %s\n", p)
			}
			failed++
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents have problems", failed, len(args))
		}
		return nil
	},
}
