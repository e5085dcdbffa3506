package harvest

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Bucket is one entry of an outcome distribution.
type Bucket struct {
	Outcome int `json:"outcome"`
	Count   int `json:"count"`
}

// Statistic summarizes one pipeline run.
type Statistic struct {
	RunID        string         `json:"run_id,omitempty"`
	ScopeID      string         `json:"scope_id"`
	Total        int            `json:"total"`
	Valid        int            `json:"valid"`
	Distribution []Bucket       `json:"distribution"`
	Reasons      map[Reason]int `json:"reasons,omitempty"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`
}

// Aggregate reduces outcome codes: Total counts every outcome, Valid the
// positive ones, and Distribution groups outcomes ascending by value.
func Aggregate(scopeID string, outcomes []int) *Statistic {
	counts := make(map[int]int)
	valid := 0
	for _, o := range outcomes {
		counts[o]++
		if o > OutcomeRejected {
			valid++
		}
	}

	dist := make([]Bucket, 0, len(counts))
	for outcome, count := range counts {
		dist = append(dist, Bucket{Outcome: outcome, Count: count})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].Outcome < dist[j].Outcome })

	return &Statistic{
		ScopeID:      scopeID,
		Total:        len(outcomes),
		Valid:        valid,
		Distribution: dist,
	}
}

// AggregateResults aggregates results and also counts their reasons.
func AggregateResults(scopeID string, results []Result) *Statistic {
	outcomes := make([]int, len(results))
	reasons := make(map[Reason]int)
	for i, r := range results {
		outcomes[i] = r.Outcome
		reasons[r.Reason]++
	}

	stat := Aggregate(scopeID, outcomes)
	stat.Reasons = reasons
	return stat
}

// Count returns the number of items with the given outcome.
func (s *Statistic) Count(outcome int) int {
	for _, b := range s.Distribution {
		if b.Outcome == outcome {
			return b.Count
		}
	}
	return 0
}

// String renders the report.
func (s *Statistic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s\n", s.ScopeID)
	fmt.Fprintf(&b, "Total: %d\n", s.Total)
	fmt.Fprintf(&b, "Valid: %d\n", s.Valid)
	b.WriteString("Distribution:")
	for _, bucket := range s.Distribution {
		fmt.Fprintf(&b, "\n  %d: %d", bucket.Outcome, bucket.Count)
	}
	if len(s.Reasons) > 0 {
		reasons := make([]string, 0, len(s.Reasons))
		for r := range s.Reasons {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)

		b.WriteString("\nReasons:")
		for _, r := range reasons {
			fmt.Fprintf(&b, "\n  %s: %d", r, s.Reasons[Reason(r)])
		}
	}
	return b.String()
}
