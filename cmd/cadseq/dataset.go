package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Sternrassler/cadseq/pkg/convert"
	"github.com/Sternrassler/cadseq/pkg/featureparse"
	"github.com/Sternrassler/cadseq/pkg/harvest"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/pagination"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	datasetFilter    string
	datasetLimit     int
	datasetWorkers   int
	datasetOutput    string
	datasetNoConvert bool
	datasetMode      = convert.Continue
	datasetKernel    string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset [query...]",
	Short: "Search, harvest and convert in one run",
	Long: `Builds a dataset for each query: searches part studios, resolves their
element links into a mapping file, runs the pipeline over it and converts
every accepted record. Queries run concurrently; without arguments the
queries from the config file are used, and without those every part
studio under the filter.`,
	RunE: runDataset,
}

func init() {
	datasetCmd.Flags().StringVar(&datasetFilter, "filter", "", "document filter (default from config)")
	datasetCmd.Flags().IntVarP(&datasetLimit, "limit", "n", 0, "documents per query, negative for unlimited (default from config)")
	datasetCmd.Flags().IntVarP(&datasetWorkers, "workers", "w", 0, "pipeline workers per query (default from config)")
	datasetCmd.Flags().StringVarP(&datasetOutput, "output", "o", "", "output root (default from config)")
	datasetCmd.Flags().BoolVar(&datasetNoConvert, "no-convert", false, "skip artifact conversion")
	datasetCmd.Flags().Var(&datasetMode, "mode", "conversion mode (default from config)")
	datasetCmd.Flags().StringVar(&datasetKernel, "kernel", "", "geometry kernel command (default from config)")
	rootCmd.AddCommand(datasetCmd)
}

// datasetReport is the result of one query.
type datasetReport struct {
	Query      string
	Scope      string
	Documents  int
	Items      int
	OutputDir  string
	Stat       *harvest.Statistic
	Conversion *convert.DirReport
	Err        error
}

// datasetJob holds what every query of a dataset run shares.
type datasetJob struct {
	searcher   *pagination.Searcher
	resolver   *pagination.LinkResolver
	pipeline   *harvest.Pipeline
	dispatcher *convert.Dispatcher
	linkBase   string
	filter     string
	limit      int
	workers    int
	outputRoot string
	mode       convert.Mode
}

func runDataset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	queries := args
	if len(queries) == 0 {
		queries = cfg.Harvest.Queries
	}
	if len(queries) == 0 {
		queries = []string{""}
	}
	queries = uniqueScopes(queries)

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	job := &datasetJob{
		searcher:   pagination.NewSearcher(s.api),
		resolver:   pagination.NewLinkResolver(s.api, pagination.DefaultConfig()),
		pipeline:   harvest.NewPipeline(harvest.NewClassifier(s.api, featureparse.New(s.api))),
		linkBase:   s.api.LinkBase(),
		filter:     firstNonEmpty(datasetFilter, cfg.Harvest.Filter),
		limit:      cfg.Harvest.Limit,
		workers:    firstPositive(datasetWorkers, cfg.Harvest.Workers),
		outputRoot: firstNonEmpty(datasetOutput, cfg.Harvest.OutputRoot),
	}
	if cmd.Flags().Changed("limit") {
		job.limit = datasetLimit
	}

	if !datasetNoConvert {
		job.dispatcher, err = newDispatcher(datasetKernel)
		if err != nil {
			return err
		}
		job.mode, err = configuredMode(cmd, datasetMode)
		if err != nil {
			return err
		}
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
		job.pipeline.WithRecorder(ledger)
	}

	reports := make([]datasetReport, len(queries))
	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			reports[i] = job.run(ctx, query)
		}(i, query)
	}
	wg.Wait()

	failed := 0
	for _, r := range reports {
		printDatasetReport(cmd, r)
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(queries))
	}
	return nil
}

func (j *datasetJob) run(ctx context.Context, query string) datasetReport {
	report := datasetReport{Query: query, Scope: scopeName(query)}
	logger := logging.NewLogger(logging.ComponentHarvest).With().
		Str("query", query).
		Str("scope_id", report.Scope).
		Logger()

	ids, err := j.searcher.DocumentIDs(ctx, j.filter, query, j.limit)
	if err != nil {
		if len(ids) == 0 {
			report.Err = fmt.Errorf("search: %w", err)
			return report
		}
		logger.Warn().Err(err).Int("documents", len(ids)).Msg("Search incomplete - continuing with partial results")
	}
	report.Documents = len(ids)

	refs, err := j.resolver.ResolveAll(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Int("elements", len(refs)).Msg("Some documents could not be resolved")
	}
	items := harvest.ItemsFromRefs(refs, j.linkBase)
	report.Items = len(items)

	mappingDir := filepath.Join(j.outputRoot, "mappings")
	if err := os.MkdirAll(mappingDir, 0o755); err != nil {
		report.Err = fmt.Errorf("create mapping directory: %w", err)
		return report
	}
	mappingPath := filepath.Join(mappingDir, report.Scope+".yaml")
	if err := harvest.WriteMapping(mappingPath, items); err != nil {
		report.Err = err
		return report
	}

	outputDir, stat, err := j.pipeline.Run(ctx, harvest.RunOptions{
		MappingPath: mappingPath,
		ScopeID:     report.Scope,
		Workers:     j.workers,
		OutputRoot:  j.outputRoot,
	})
	if err != nil {
		report.Err = err
		return report
	}
	report.OutputDir = outputDir
	report.Stat = stat

	if j.dispatcher == nil {
		return report
	}
	report.Conversion, err = j.dispatcher.ConvertDir(ctx, outputDir, filepath.Join(outputDir, "step"), j.mode, j.workers)
	if err != nil {
		report.Err = fmt.Errorf("convert: %w", err)
	}
	return report
}

// uniqueScopes drops queries whose scope an earlier query already claims,
// so no two concurrent runs share a mapping file or output directory.
func uniqueScopes(queries []string) []string {
	seen := make(map[string]string, len(queries))
	unique := queries[:0:0]
	for _, q := range queries {
		scope := scopeName(q)
		if first, dup := seen[scope]; dup {
			log.Warn().Str("query", q).Str("scope_id", scope).Str("kept", first).Msg("Query maps to an existing scope - skipping")
			continue
		}
		seen[scope] = q
		unique = append(unique, q)
	}
	return unique
}

// scopeName turns a query into a directory-safe scope id.
func scopeName(query string) string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "all"
	}
	var b strings.Builder
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printDatasetReport(cmd *cobra.Command, r datasetReport) {
	cmd.Printf("== %q (scope %s) ==\n", r.Query, r.Scope)
	if r.Err != nil {
		cmd.Printf("Error: %v\n", r.Err)
	}
	cmd.Printf("Documents: %d\n", r.Documents)
	cmd.Printf("Elements: %d\n", r.Items)
	if r.Stat != nil {
		cmd.Printf("Output: %s\n", r.OutputDir)
		cmd.Println(r.Stat.String())
	}
	if r.Conversion != nil {
		printDirReport(cmd, r.Conversion)
	}
	cmd.Println()
}
