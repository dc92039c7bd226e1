package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/exposure/internal/config"
)

var healthJSONOutput bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe vendor engine availability",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output in JSON format")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	eng, err := resolveEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	health, err := eng.ServiceHealth(cmd.Context())
	if err != nil {
		return err
	}

	if healthJSONOutput {
		return printJSON(os.Stdout, map[string]any{
			"vendor": eng.Vendor(),
			"status": health.Status.String(),
			"code":   health.Code,
			"usable": health.Usable(),
		})
	}

	fmt.Printf("vendor: %s\nstatus: %s\n", eng.Vendor(), health.Status)
	if health.Code != 0 {
		fmt.Printf("code: %d\n", health.Code)
	}
	if !health.Usable() {
		return fmt.Errorf("engine is not usable")
	}
	return nil
}
