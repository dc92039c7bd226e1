package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/engine"
)

var keysJSONOutput bool

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Export this device's temporary keys",
	Long:  "Print the device's own rolling keys for user-initiated upload. Key payloads pass through unmodified.",
	RunE:  runKeys,
}

func init() {
	keysCmd.Flags().BoolVar(&keysJSONOutput, "json", false,
		"Output in JSON format")
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	eng, err := resolveEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	keys, err := eng.TemporaryKeys(cmd.Context())
	if err != nil {
		return engine.MapBridgeError(err)
	}

	if keysJSONOutput {
		return printJSON(os.Stdout, keys)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLLING START\tPERIOD\tRISK")
	for _, k := range keys {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", k.RollingStartInterval, k.RollingPeriod, k.TransmissionRisk)
	}
	return tw.Flush()
}
