package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	// Endpoint is the request path (e.g. "/api/partstudios/d/{did}/w/{wid}/e/{eid}/features")
	Endpoint string

	// Query holds the request query parameters
	Query url.Values

	// Account scopes the entry to the API key that fetched it; private
	// documents must not leak between accounts sharing one Redis.
	Account string
}

// String generates a deterministic key.
// Format: cadseq:endpoint:query1=val1:query2=val2:acct=ACCESSKEY
//
// Example:
//
//	cadseq:api/partstudios/d/D1/w/W1/e/E1/features:rollbackBarIndex=-1:acct=K
func (k Key) String() string {
	parts := []string{"cadseq"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	if k.Account != "" {
		parts = append(parts, "acct="+k.Account)
	}

	return strings.Join(parts, ":")
}
