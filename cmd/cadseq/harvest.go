package main

import (
	"fmt"

	"github.com/Sternrassler/cadseq/pkg/featureparse"
	"github.com/Sternrassler/cadseq/pkg/harvest"
	"github.com/spf13/cobra"
)

var (
	harvestScope   string
	harvestWorkers int
	harvestOutput  string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest <mapping.yaml>",
	Short: "Classify every element listed in a mapping file",
	Long: `Runs the batch pipeline over a YAML mapping of item id to element link.
Accepted design histories are written as <id>.json below
<output>/<scope>; the outcome statistic is printed and recorded in the
run ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().StringVar(&harvestScope, "scope", "", "scope id (default: mapping file name)")
	harvestCmd.Flags().IntVarP(&harvestWorkers, "workers", "w", 0, "worker count (default from config)")
	harvestCmd.Flags().StringVarP(&harvestOutput, "output", "o", "", "output root (default from config)")
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	pipeline := harvest.NewPipeline(harvest.NewClassifier(s.api, featureparse.New(s.api)))

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
		pipeline.WithRecorder(ledger)
	}

	outputDir, stat, err := pipeline.Run(ctx, harvest.RunOptions{
		MappingPath: args[0],
		ScopeID:     harvestScope,
		Workers:     firstPositive(harvestWorkers, cfg.Harvest.Workers),
		OutputRoot:  firstNonEmpty(harvestOutput, cfg.Harvest.OutputRoot),
	})
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	cmd.Printf("Run: %s\n", stat.RunID)
	cmd.Printf("Output: %s\n", outputDir)
	cmd.Println(stat.String())
	return nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
