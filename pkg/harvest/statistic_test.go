package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []int
		total    int
		valid    int
		dist     []Bucket
	}{
		{
			name:     "empty",
			outcomes: nil,
			dist:     []Bucket{},
		},
		{
			name:     "all processed",
			outcomes: []int{1, 1, 1},
			total:    3,
			valid:    3,
			dist:     []Bucket{{Outcome: 1, Count: 3}},
		},
		{
			name:     "mixed unordered",
			outcomes: []int{5, 0, 2, 0, 1, 5, 2, 2},
			total:    8,
			valid:    6,
			dist:     []Bucket{{0, 2}, {1, 1}, {2, 3}, {5, 2}},
		},
		{
			name:     "all rejected",
			outcomes: []int{0, 0},
			total:    2,
			valid:    0,
			dist:     []Bucket{{0, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stat := Aggregate("scope", tt.outcomes)

			assert.Equal(t, "scope", stat.ScopeID)
			assert.Equal(t, tt.total, stat.Total)
			assert.Equal(t, tt.valid, stat.Valid)
			assert.Equal(t, tt.dist, stat.Distribution)

			sum := 0
			for _, b := range stat.Distribution {
				sum += b.Count
			}
			assert.Equal(t, stat.Total, sum)
			assert.Equal(t, stat.Total-stat.Count(0), stat.Valid)
		})
	}
}

func TestAggregateResults_Reasons(t *testing.T) {
	stat := AggregateResults("s", []Result{
		{Outcome: 0, Reason: ReasonUnsupportedFeature},
		{Outcome: 0, Reason: ReasonTransportFailure},
		{Outcome: 1, Reason: ReasonAlreadyProcessed},
		{Outcome: 4, Reason: ReasonAccepted},
		{Outcome: 0, Reason: ReasonUnsupportedFeature},
	})

	assert.Equal(t, 5, stat.Total)
	assert.Equal(t, 2, stat.Valid)
	assert.Equal(t, 2, stat.Reasons[ReasonUnsupportedFeature])
	assert.Equal(t, 1, stat.Reasons[ReasonAccepted])
}

func TestStatistic_String(t *testing.T) {
	stat := AggregateResults("gear", []Result{
		{Outcome: 0, Reason: ReasonParseFailure},
		{Outcome: 2, Reason: ReasonAccepted},
		{Outcome: 2, Reason: ReasonAccepted},
	})

	want := "Scope: gear\n" +
		"Total: 3\n" +
		"Valid: 2\n" +
		"Distribution:\n" +
		"  0: 1\n" +
		"  2: 2\n" +
		"Reasons:\n" +
		"  accepted: 2\n" +
		"  parse_failure: 1"
	assert.Equal(t, want, stat.String())
}
