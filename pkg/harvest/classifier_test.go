package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/cadseq/internal/testutil"
	"github.com/Sternrassler/cadseq/pkg/client"
	"github.com/Sternrassler/cadseq/pkg/featureparse"
	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/Sternrassler/cadseq/pkg/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves feature types per element id.
type fakeFetcher struct {
	types map[string][]string
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Features(_ context.Context, ref onshape.ElementRef) (*onshape.FeatureList, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	list := &onshape.FeatureList{}
	for i, ft := range f.types[ref.ElementID] {
		list.Features = append(list.Features, onshape.FeatureRecord{Message: onshape.FeatureMessage{
			FeatureType: ft,
			FeatureID:   ref.ElementID + "-f" + string(rune('a'+i)),
		}})
	}
	return list, nil
}

// fakeParser builds one step per feature.
type fakeParser struct {
	err   error
	calls atomic.Int32
}

func (p *fakeParser) Parse(_ context.Context, _ onshape.ElementRef, features *onshape.FeatureList) (*sequence.Record, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	r := &sequence.Record{Entities: map[string]json.RawMessage{}, Properties: map[string]json.RawMessage{}}
	for i, f := range features.Features {
		r.Sequence = append(r.Sequence, sequence.Step{Index: i, Type: f.Message.FeatureType, Entity: f.Message.FeatureID})
		r.Entities[f.Message.FeatureID] = json.RawMessage(`{}`)
	}
	return r, nil
}

func item(id, element string) WorkItem {
	return WorkItem{ID: id, Locator: "https://cad.onshape.com/documents/D1/w/W1/e/" + element}
}

func TestClassify_Accepted(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{types: map[string][]string{"E1": {"newSketch", "extrude", "newSketch", "extrude"}}}
	c := NewClassifier(fetcher, &fakeParser{})

	res := c.Classify(context.Background(), item("a", "E1"), dir)

	assert.Equal(t, 4, res.Outcome)
	assert.Equal(t, ReasonAccepted, res.Reason)
	assert.Equal(t, "a", res.ID)
	assert.NoError(t, res.Err)

	record, err := sequence.Load(RecordPath(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, 4, record.Len(), "persisted sequence length equals outcome")
}

func TestClassify_AlreadyProcessed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(RecordPath(dir, "a"), []byte(`{"sequence":[]}`), 0o644))

	fetcher := &fakeFetcher{}
	parser := &fakeParser{}
	res := NewClassifier(fetcher, parser).Classify(context.Background(), item("a", "E1"), dir)

	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	assert.Equal(t, ReasonAlreadyProcessed, res.Reason)
	assert.Zero(t, fetcher.calls.Load(), "no remote calls for processed items")
	assert.Zero(t, parser.calls.Load())
}

func TestClassify_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		item       WorkItem
		fetcher    *fakeFetcher
		parser     *fakeParser
		wantReason Reason
		wantParse  bool
	}{
		{
			name:       "unsupported feature",
			item:       item("a", "E1"),
			fetcher:    &fakeFetcher{types: map[string][]string{"E1": {"newSketch", "revolve", "extrude"}}},
			parser:     &fakeParser{},
			wantReason: ReasonUnsupportedFeature,
		},
		{
			name:       "transport failure",
			item:       item("a", "E1"),
			fetcher:    &fakeFetcher{err: &client.APIError{StatusCode: 500, ErrorClass: client.ErrorClassServer}},
			parser:     &fakeParser{},
			wantReason: ReasonTransportFailure,
		},
		{
			name:       "parse failure",
			item:       item("a", "E1"),
			fetcher:    &fakeFetcher{types: map[string][]string{"E1": {"newSketch", "extrude"}}},
			parser:     &fakeParser{err: errors.New("malformed sketch")},
			wantReason: ReasonParseFailure,
			wantParse:  true,
		},
		{
			name:       "trivial sequence",
			item:       item("a", "E1"),
			fetcher:    &fakeFetcher{types: map[string][]string{"E1": {"newSketch"}}},
			parser:     &fakeParser{},
			wantReason: ReasonTrivialSequence,
			wantParse:  true,
		},
		{
			name:       "empty feature list",
			item:       item("a", "E1"),
			fetcher:    &fakeFetcher{types: map[string][]string{}},
			parser:     &fakeParser{},
			wantReason: ReasonTrivialSequence,
			wantParse:  true,
		},
		{
			name:       "short locator",
			item:       WorkItem{ID: "a", Locator: "w/W1/e/E1"},
			fetcher:    &fakeFetcher{},
			parser:     &fakeParser{},
			wantReason: ReasonInvalidLocator,
		},
		{
			name:       "path in id",
			item:       WorkItem{ID: "../a", Locator: "https://cad.onshape.com/documents/D1/w/W1/e/E1"},
			fetcher:    &fakeFetcher{},
			parser:     &fakeParser{},
			wantReason: ReasonInvalidID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			res := NewClassifier(tt.fetcher, tt.parser).Classify(context.Background(), tt.item, dir)

			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.True(t, res.Rejected())
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, tt.wantParse, tt.parser.calls.Load() > 0)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "rejected items write no file")
		})
	}
}

func TestClassify_PersistFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	fetcher := &fakeFetcher{types: map[string][]string{"E1": {"newSketch", "extrude"}}}

	res := NewClassifier(fetcher, &fakeParser{}).Classify(context.Background(), item("a", "E1"), missing)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonPersistFailure, res.Reason)
	assert.Error(t, res.Err)
}

// The revolve scenario against the HTTP stack: outcome 0 and no file.
func TestClassify_RevolveOverHTTP(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetResponse(testutil.FeaturesPath("D1", "W1", "E1"), testutil.NewJSONResponse(
		testutil.FeatureListJSON(testutil.Feature{ID: "F1", Type: "revolve", Name: "Revolve 1"})))

	cfg := client.DefaultConfig(nil, "cadseq-test/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 0
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	api := onshape.New(c, "")
	classifier := NewClassifier(api, featureparse.New(api))

	dir := t.TempDir()
	res := classifier.Classify(context.Background(), WorkItem{ID: "a", Locator: ".../d/D1/w/W1/e/E1"}, dir)

	assert.Equal(t, 0, res.Outcome)
	assert.Equal(t, ReasonUnsupportedFeature, res.Reason)
	assert.NoFileExists(t, RecordPath(dir, "a"))
	assert.NoFileExists(t, filepath.Join(dir, "a"))
	assert.Zero(t, mock.CountPath(testutil.BoundingBoxPath("D1", "W1", "E1")))
}

func TestClassify_AcceptedOverHTTP(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetResponse(testutil.FeaturesPath("D1", "W1", "E1"), testutil.NewJSONResponse(testutil.FeatureListJSON(
		testutil.Feature{ID: "F1", Type: "newSketch", Name: "Sketch 1"},
		testutil.Feature{ID: "F2", Type: "extrude", Name: "Extrude 1"},
	)))
	mock.SetResponse(testutil.BoundingBoxPath("D1", "W1", "E1"),
		testutil.NewJSONResponse(testutil.BoundingBoxJSON(-0.09, -0.09, 0, 0.09, 0.09, 0.0254)))

	cfg := client.DefaultConfig(nil, "cadseq-test/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 0
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	api := onshape.New(c, "")
	classifier := NewClassifier(api, featureparse.New(api))

	dir := t.TempDir()
	res := classifier.Classify(context.Background(), WorkItem{ID: "a", Locator: ".../d/D1/w/W1/e/E1"}, dir)
	require.Equal(t, 2, res.Outcome, "reason %s err %v", res.Reason, res.Err)

	record, err := sequence.Load(RecordPath(dir, "a"))
	require.NoError(t, err)
	require.NoError(t, record.Validate())
	assert.Equal(t, "F2", record.Sequence[1].Entity)

	// Second pass is idempotent and silent.
	before := mock.GetRequestCount()
	res = classifier.Classify(context.Background(), WorkItem{ID: "a", Locator: ".../d/D1/w/W1/e/E1"}, dir)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	assert.Equal(t, before, mock.GetRequestCount())
}
