// Package pagination walks the document search cursor and resolves the
// element links of the documents it finds.
//
// The search endpoint answers with at most 20 items per page and an
// optional "next" cursor. The cursor is a URL whose query holds the next
// page's parameters; Searcher decodes it, caps the page size to what is
// still wanted and reissues the filter and query with it.
//
// Example usage:
//
//	api := onshape.New(apiClient, "")
//	ids, err := pagination.NewSearcher(api).DocumentIDs(ctx, "public", "gear", 200)
//	links, err := pagination.NewLinkResolver(api, pagination.DefaultConfig()).ResolveAll(ctx, ids)
//
// The searcher:
//   - Requests min(limit, 20) items first, or 20 when limit < 0 (unlimited)
//   - Follows the cursor until the limit is met or no cursor is returned
//   - Stops when a cursor decodes to no parameters
//   - Preserves server order and never deduplicates
//
// The link resolver fans documents out over a fixed worker pool and
// returns partial results when a document fails.
package pagination
