package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/rs/zerolog/log"
)

// Config holds link resolver configuration
type Config struct {
	// MaxConcurrency is the maximum number of documents resolved in parallel.
	// The client's token bucket still bounds the request rate.
	MaxConcurrency int
	// Timeout per document
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        60 * time.Second,
	}
}

// LinkLister lists the element references of one document. *onshape.API
// implements it.
type LinkLister interface {
	DocumentLinks(ctx context.Context, documentID string) ([]onshape.ElementRef, error)
}

// DocumentLinks is the result of resolving one document.
type DocumentLinks struct {
	DocumentID string
	Refs       []onshape.ElementRef
	Error      error
}

// LinkResolver resolves element links for many documents in parallel.
type LinkResolver struct {
	lister LinkLister
	config Config
}

// NewLinkResolver creates a new link resolver
func NewLinkResolver(lister LinkLister, config Config) *LinkResolver {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &LinkResolver{
		lister: lister,
		config: config,
	}
}

// ResolveAll resolves every document using a worker pool. The result keeps
// the order of documentIDs; failed documents are skipped and the first
// failure is returned alongside the partial result.
func (lr *LinkResolver) ResolveAll(ctx context.Context, documentIDs []string) ([]onshape.ElementRef, error) {
	start := time.Now()

	jobs := make(chan int, len(documentIDs))
	for i := range documentIDs {
		jobs <- i
	}
	close(jobs)

	results := make([]DocumentLinks, len(documentIDs))

	var wg sync.WaitGroup
	for i := 0; i < lr.config.MaxConcurrency && i < len(documentIDs); i++ {
		wg.Add(1)
		go lr.worker(ctx, documentIDs, jobs, results, &wg, i)
	}
	wg.Wait()

	var (
		refs     []onshape.ElementRef
		firstErr error
		failed   int
	)
	for _, r := range results {
		if r.Error != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Error
			}
			continue
		}
		refs = append(refs, r.Refs...)
	}

	log.Info().
		Int("documents", len(documentIDs)).
		Int("failed", failed).
		Int("elements", len(refs)).
		Dur("duration", time.Since(start)).
		Msg("Link resolution complete")

	if firstErr != nil {
		return refs, fmt.Errorf("resolve links (%d/%d documents failed): %w", failed, len(documentIDs), firstErr)
	}
	return refs, nil
}

// worker resolves documents from the queue. Each worker writes only the
// result slots of the indices it receives.
func (lr *LinkResolver) worker(ctx context.Context, documentIDs []string, jobs <-chan int, results []DocumentLinks, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range jobs {
		did := documentIDs[i]
		results[i].DocumentID = did

		if err := ctx.Err(); err != nil {
			results[i].Error = err
			continue
		}

		docCtx, cancel := context.WithTimeout(ctx, lr.config.Timeout)
		refs, err := lr.lister.DocumentLinks(docCtx, did)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("document", did).
				Msg("Document link resolution failed")
			results[i].Error = err
			continue
		}

		results[i].Refs = refs
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("documents_processed", processed).
			Msg("Worker completed")
	}
}
