package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/fetch"
	"github.com/hyperengineering/exposure/internal/ledger"
	"github.com/hyperengineering/exposure/internal/syncrun"
	"github.com/hyperengineering/exposure/internal/types"
)

var (
	syncCategory   string
	syncJSONOutput bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass and exit",
	Long:  "Fetch the batch index, download missing parts, submit them to the matching engine and print the exposure result.",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncCategory, "category", "",
		"Category to sync (default: all configured categories)")
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false,
		"Output in JSON format")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := ledger.NewSQLiteLedger(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := fetch.NewSource(cfg.Batch)
	if err != nil {
		return err
	}
	eng, err := resolveEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	orch := syncrun.New(db, source, eng, syncrun.NewRegistry(), nil, syncrun.Options{
		RecentHours:   cfg.Batch.RecentHours,
		FullBatchDays: cfg.Sync.FullBatchDays,
		MaxDownloads:  cfg.Batch.MaxDownloads,
		Matching:      cfg.Matching,
	}, logger)

	categories := cfg.Sync.Categories
	if syncCategory != "" {
		cat, err := types.ParseCategory(syncCategory)
		if err != nil {
			return err
		}
		categories = []types.Category{cat}
	}

	var failed bool
	for _, cat := range categories {
		res, err := orch.Run(cmd.Context(), cat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cat, err)
			failed = true
			continue
		}
		if res == nil {
			fmt.Printf("%s: skipped\n", cat)
			continue
		}
		if err := printResult(os.Stdout, res); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("one or more categories failed")
	}
	return nil
}

func printResult(w io.Writer, res *types.ExposureResult) error {
	if syncJSONOutput {
		return printJSON(w, res)
	}
	_, err := fmt.Fprintf(w, "%s: %d matched keys, max risk %d, %d exposures\n",
		res.Category, res.Summary.MatchedKeyCount, res.Summary.MaximumRiskScore, len(res.Details))
	return err
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
