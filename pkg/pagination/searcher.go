package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCursor is returned when a cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid search cursor")

// PageSearcher fetches one page of search results. *onshape.API
// implements it.
type PageSearcher interface {
	SearchDocuments(ctx context.Context, p onshape.SearchParams) (*onshape.SearchPage, error)
}

// Searcher collects document identifiers across search pages.
type Searcher struct {
	pages PageSearcher
}

// NewSearcher creates a searcher over pages.
func NewSearcher(pages PageSearcher) *Searcher {
	return &Searcher{pages: pages}
}

// pageSize returns the size of the next request for the remaining count.
func pageSize(remaining int, unlimited bool) int {
	if unlimited || remaining > onshape.MaxPageSize {
		return onshape.MaxPageSize
	}
	return remaining
}

// DocumentIDs returns up to limit document identifiers matching filter and
// query, in server order. limit < 0 means unlimited. When a page request
// fails, the identifiers gathered so far are returned with the error.
func (s *Searcher) DocumentIDs(ctx context.Context, filter, query string, limit int) ([]string, error) {
	start := time.Now()
	unlimited := limit < 0
	remaining := limit

	if !unlimited && remaining == 0 {
		return []string{}, nil
	}

	params := onshape.SearchParams{
		Filter: filter,
		Query:  query,
		Limit:  pageSize(remaining, unlimited),
	}

	page, err := s.pages.SearchDocuments(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	ids := appendIDs(make([]string, 0, len(page.Items)), page)
	remaining -= len(page.Items)
	pages := 1

	for (unlimited || remaining > 0) && page.Next != "" {
		cursor, err := decodeCursor(page.Next)
		if err != nil {
			return ids, err
		}
		if len(cursor) == 0 {
			log.Debug().Str("cursor", page.Next).Msg("Cursor carries no parameters - stopping")
			break
		}

		params, err = paramsFromCursor(cursor, filter, query)
		if err != nil {
			return ids, err
		}
		params.Limit = pageSize(remaining, unlimited)

		page, err = s.pages.SearchDocuments(ctx, params)
		if err != nil {
			log.Warn().
				Err(err).
				Int("pages", pages).
				Int("collected", len(ids)).
				Msg("Search page failed - returning partial results")
			return ids, fmt.Errorf("search page %d (partial data: %d ids): %w", pages+1, len(ids), err)
		}

		ids = appendIDs(ids, page)
		remaining -= len(page.Items)
		pages++

		if pages%10 == 0 {
			log.Info().
				Int("pages", pages).
				Int("collected", len(ids)).
				Msg("Search progress")
		}
	}

	log.Info().
		Str("filter", filter).
		Str("query", query).
		Int("limit", limit).
		Int("pages", pages).
		Int("documents", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Search complete")

	return ids, nil
}

func appendIDs(ids []string, page *onshape.SearchPage) []string {
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// decodeCursor returns the query parameters of a "next" reference.
func decodeCursor(next string) (url.Values, error) {
	u, err := url.Parse(next)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return values, nil
}

// paramsFromCursor rebuilds the request of the next page. The cursor's
// offset wins; filter and query are always the caller's.
func paramsFromCursor(cursor url.Values, filter, query string) (onshape.SearchParams, error) {
	p := onshape.SearchParams{Filter: filter, Query: query}

	if v := cursor.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return p, fmt.Errorf("%w: offset %q", ErrInvalidCursor, v)
		}
		p.Offset = offset
	}
	return p, nil
}
