package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder stores the statistic of a finished run.
type Recorder interface {
	SaveRun(ctx context.Context, stat *Statistic) error
}

// ItemClassifier classifies one work item. *Classifier implements it.
type ItemClassifier interface {
	Classify(ctx context.Context, item WorkItem, outputDir string) Result
}

// RunOptions configures one pipeline run.
type RunOptions struct {
	// MappingPath is the YAML id -> locator mapping.
	MappingPath string

	// ScopeID names the output subdirectory; empty uses the mapping file stem.
	ScopeID string

	// Workers is the pool size; <= 0 uses runtime.NumCPU().
	Workers int

	// OutputRoot is the parent of the scope directory.
	OutputRoot string
}

// Pipeline runs mappings through a fixed worker pool.
type Pipeline struct {
	classifier ItemClassifier
	recorder   Recorder
	logger     zerolog.Logger
}

// NewPipeline creates a pipeline around classifier.
func NewPipeline(classifier ItemClassifier) *Pipeline {
	if classifier == nil {
		panic("harvest: classifier cannot be nil")
	}
	return &Pipeline{
		classifier: classifier,
		logger:     logging.NewLogger(logging.ComponentHarvest),
	}
}

// WithRecorder stores every finished run with r.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// ScopeFromPath derives a scope id from a mapping file name.
func ScopeFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run classifies every mapping entry and aggregates the outcomes. Errors
// are returned only when the mapping cannot be loaded or the output
// directory cannot be created; item failures end up in the statistic.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (string, *Statistic, error) {
	start := time.Now()

	items, err := LoadMapping(opts.MappingPath)
	if err != nil {
		return "", nil, err
	}

	scopeID := opts.ScopeID
	if scopeID == "" {
		scopeID = ScopeFromPath(opts.MappingPath)
	}

	outputDir := filepath.Join(opts.OutputRoot, scopeID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create output directory: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Str("scope_id", scopeID).Logger()
	logger.Info().
		Int("items", len(items)).
		Int("workers", workers).
		Str("output_dir", outputDir).
		Msg("Starting pipeline run")
	runsTotal.Inc()

	results := p.runItems(ctx, items, outputDir, workers, logger)

	stat := AggregateResults(scopeID, results)
	stat.RunID = runID
	stat.StartedAt = start
	stat.Duration = time.Since(start)

	logger.Info().
		Int("total", stat.Total).
		Int("valid", stat.Valid).
		Dur("duration", stat.Duration).
		Msg("Pipeline run complete")

	if p.recorder != nil {
		if err := p.recorder.SaveRun(ctx, stat); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run")
		}
	}

	return outputDir, stat, nil
}

// runItems dispatches items in mapping order to a fixed pool and waits for
// every task before returning. Each worker writes only the result slots of
// the indices it receives.
func (p *Pipeline) runItems(ctx context.Context, items []WorkItem, outputDir string, workers int, logger zerolog.Logger) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers && w < len(items); w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0
			for i := range jobs {
				results[i] = p.classifySafe(ctx, items[i], outputDir, logger)
				processed++
			}
			logger.Debug().
				Int("worker_id", workerID).
				Int("items_processed", processed).
				Msg("Worker completed")
		}(w)
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	// Join barrier: aggregation starts only after every task returned.
	wg.Wait()
	return results
}

// classifySafe turns a panicking task into a rejection.
func (p *Pipeline) classifySafe(ctx context.Context, item WorkItem, outputDir string, logger zerolog.Logger) (res Result) {
	workersBusy.Inc()
	defer workersBusy.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("item_id", item.ID).
				Str("reason", string(ReasonPanic)).
				Interface("panic", r).
				Msg("Work item panicked")
			itemsClassifiedTotal.WithLabelValues(string(ReasonPanic)).Inc()
			res = Result{
				ID:      item.ID,
				Outcome: OutcomeRejected,
				Reason:  ReasonPanic,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()

	return p.classifier.Classify(ctx, item, outputDir)
}
