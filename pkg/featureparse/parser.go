// Package featureparse turns a part-studio feature list into a
// sequence.Record.
package featureparse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/Sternrassler/cadseq/pkg/sequence"
)

var (
	// ErrUnsupportedFeature is returned for features outside the
	// sketch-and-extrude subset.
	ErrUnsupportedFeature = errors.New("unsupported feature type")

	// ErrMissingFeatureID is returned for features without an identifier.
	ErrMissingFeatureID = errors.New("feature has no id")
)

// stepTypes maps supported feature types to step types.
var stepTypes = map[string]string{
	onshape.FeatureTypeSketch:  sequence.StepSketch,
	onshape.FeatureTypeExtrude: sequence.StepExtrude,
}

// Supported reports whether featureType belongs to the supported subset.
func Supported(featureType string) bool {
	_, ok := stepTypes[featureType]
	return ok
}

// Source provides the remote data the parser reads. *onshape.API
// implements it.
type Source interface {
	Features(ctx context.Context, ref onshape.ElementRef) (*onshape.FeatureList, error)
	BoundingBox(ctx context.Context, ref onshape.ElementRef) (*onshape.BoundingBox, error)
}

// Parser builds records from feature lists.
type Parser struct {
	source Source
}

// New returns a parser reading from source.
func New(source Source) *Parser {
	return &Parser{source: source}
}

// entity is the stored form of one feature.
type entity struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	FeatureType string          `json:"feature_type"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Entities    json.RawMessage `json:"entities,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

// Parse builds the record of ref. features may carry an already fetched
// feature list; nil fetches it. Suppressed features are skipped.
func (p *Parser) Parse(ctx context.Context, ref onshape.ElementRef, features *onshape.FeatureList) (*sequence.Record, error) {
	if features == nil {
		list, err := p.source.Features(ctx, ref)
		if err != nil {
			return nil, err
		}
		features = list
	}

	record := &sequence.Record{
		Sequence:   []sequence.Step{},
		Entities:   make(map[string]json.RawMessage),
		Properties: make(map[string]json.RawMessage),
	}

	for i, f := range features.Features {
		msg := f.Message
		if msg.Suppressed {
			continue
		}

		stepType, ok := stepTypes[msg.FeatureType]
		if !ok {
			return nil, fmt.Errorf("%w: %q (feature %d)", ErrUnsupportedFeature, msg.FeatureType, i)
		}
		if msg.FeatureID == "" {
			return nil, fmt.Errorf("%w: feature %d", ErrMissingFeatureID, i)
		}

		data, err := json.Marshal(entity{
			Name:        msg.Name,
			Type:        stepType,
			FeatureType: msg.FeatureType,
			Parameters:  msg.Parameters,
			Entities:    msg.Entities,
			Constraints: msg.Constraints,
		})
		if err != nil {
			return nil, fmt.Errorf("encode feature %s: %w", msg.FeatureID, err)
		}
		if _, dup := record.Entities[msg.FeatureID]; dup {
			return nil, fmt.Errorf("duplicate feature id %q", msg.FeatureID)
		}

		record.Entities[msg.FeatureID] = data
		record.Sequence = append(record.Sequence, sequence.Step{
			Index:  len(record.Sequence),
			Type:   stepType,
			Entity: msg.FeatureID,
		})
	}

	// A trivial sequence is not worth another round trip.
	if record.Len() < sequence.MinSteps {
		return record, nil
	}

	box, err := p.source.BoundingBox(ctx, ref)
	if err != nil {
		return nil, err
	}
	bbox, err := json.Marshal(sequence.NewBoundingBox(
		sequence.Point3D{X: box.LowX, Y: box.LowY, Z: box.LowZ},
		sequence.Point3D{X: box.HighX, Y: box.HighY, Z: box.HighZ},
	))
	if err != nil {
		return nil, fmt.Errorf("encode bounding box: %w", err)
	}
	record.Properties["bounding_box"] = bbox

	return record, nil
}
