package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/cadseq/pkg/featureparse"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/Sternrassler/cadseq/pkg/sequence"
	"github.com/rs/zerolog"
)

// RecordExt is the extension of persisted records.
const RecordExt = ".json"

// FeatureFetcher fetches the feature list of an element.
type FeatureFetcher interface {
	Features(ctx context.Context, ref onshape.ElementRef) (*onshape.FeatureList, error)
}

// FeatureParser turns a fetched feature list into a record.
type FeatureParser interface {
	Parse(ctx context.Context, ref onshape.ElementRef, features *onshape.FeatureList) (*sequence.Record, error)
}

// Classifier decides the outcome of single work items.
type Classifier struct {
	fetcher FeatureFetcher
	parser  FeatureParser
	logger  zerolog.Logger
}

// NewClassifier creates a classifier. Both collaborators are required.
func NewClassifier(fetcher FeatureFetcher, parser FeatureParser) *Classifier {
	if fetcher == nil || parser == nil {
		panic("harvest: fetcher and parser are required")
	}
	return &Classifier{
		fetcher: fetcher,
		parser:  parser,
		logger:  logging.NewLogger(logging.ComponentHarvest),
	}
}

// RecordPath returns where the record of id is stored under outputDir.
func RecordPath(outputDir, id string) string {
	return filepath.Join(outputDir, id+RecordExt)
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Classify processes one work item. It returns OutcomeAlreadyProcessed
// without remote calls when the record already exists, the step count when
// a new record was persisted and OutcomeRejected otherwise. Failures are
// reported in the result and never returned as errors.
func (c *Classifier) Classify(ctx context.Context, item WorkItem, outputDir string) Result {
	start := time.Now()
	res := c.classify(ctx, item, outputDir)
	res.ID = item.ID
	res.Duration = time.Since(start)

	itemsClassifiedTotal.WithLabelValues(string(res.Reason)).Inc()
	itemDuration.Observe(res.Duration.Seconds())
	return res
}

func (c *Classifier) classify(ctx context.Context, item WorkItem, outputDir string) Result {
	logger := c.logger.With().Str("item_id", item.ID).Logger()

	if !validID(item.ID) {
		logger.Warn().Str("reason", string(ReasonInvalidID)).Msg("Rejected work item")
		return reject(ReasonInvalidID, errors.New("item id must be a plain file name"))
	}

	// Step 1: idempotency check
	path := RecordPath(outputDir, item.ID)
	if _, err := os.Stat(path); err == nil {
		logger.Debug().Str("path", path).Msg("Record exists - skipping")
		return Result{Outcome: OutcomeAlreadyProcessed, Reason: ReasonAlreadyProcessed}
	}

	// Step 2: decode locator
	ref, err := onshape.ParseLocator(item.Locator)
	if err != nil {
		logger.Warn().Err(err).Str("reason", string(ReasonInvalidLocator)).Msg("Rejected work item")
		return reject(ReasonInvalidLocator, err)
	}
	logger = logger.With().
		Str("document", ref.DocumentID).
		Str("element", ref.ElementID).
		Logger()

	// Step 3: fetch features
	features, err := c.fetcher.Features(ctx, ref)
	if err != nil {
		logger.Warn().Err(err).Str("reason", string(ReasonTransportFailure)).Msg("Feature fetch failed")
		return reject(ReasonTransportFailure, err)
	}

	// Step 4: allow-list scan over every entry, suppressed ones included
	for _, f := range features.Features {
		if !featureparse.Supported(f.Message.FeatureType) {
			logger.Debug().
				Str("reason", string(ReasonUnsupportedFeature)).
				Str("feature_type", f.Message.FeatureType).
				Msg("Unsupported feature")
			return reject(ReasonUnsupportedFeature, nil)
		}
	}

	// Step 5: parse
	record, err := c.parser.Parse(ctx, ref, features)
	if err != nil {
		logger.Warn().Err(err).Str("reason", string(ReasonParseFailure)).Msg("Feature parsing failed")
		return reject(ReasonParseFailure, err)
	}

	// Step 6: trivial sequences are not persisted
	if record.Len() < sequence.MinSteps {
		logger.Debug().
			Str("reason", string(ReasonTrivialSequence)).
			Int("steps", record.Len()).
			Msg("Trivial sequence")
		return reject(ReasonTrivialSequence, nil)
	}

	// Step 7: persist
	if err := sequence.Save(path, record); err != nil {
		logger.Error().Err(err).Str("reason", string(ReasonPersistFailure)).Msg("Persisting record failed")
		return reject(ReasonPersistFailure, err)
	}

	logger.Debug().Int("steps", record.Len()).Str("path", path).Msg("Record persisted")
	return Result{Outcome: record.Len(), Reason: ReasonAccepted}
}

func reject(reason Reason, err error) Result {
	return Result{Outcome: OutcomeRejected, Reason: reason, Err: err}
}
