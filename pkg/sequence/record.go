// Package sequence defines the persisted design-history record: an
// ordered list of steps, the entities they reference and derived
// properties such as the bounding box.
package sequence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MinSteps is the shortest sequence worth persisting; a lone sketch
// carries no solid.
const MinSteps = 2

// Step types produced by the feature parser.
const (
	StepSketch  = "Sketch"
	StepExtrude = "ExtrudeFeature"
)

var (
	// ErrTooShort is returned for records with fewer than MinSteps steps.
	ErrTooShort = errors.New("sequence too short")

	// ErrDanglingEntity is returned when a step references a missing entity.
	ErrDanglingEntity = errors.New("step references unknown entity")
)

// Step is one operation of a sequence.
type Step struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Entity string `json:"entity"`
}

// Record is a parsed design history.
type Record struct {
	Sequence   []Step                     `json:"sequence"`
	Entities   map[string]json.RawMessage `json:"entities"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// Len returns the number of steps.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Sequence)
}

// Validate checks the persistence contract: at least MinSteps steps,
// indices in order and every referenced entity present.
func (r *Record) Validate() error {
	if r.Len() < MinSteps {
		return fmt.Errorf("%w: %d steps", ErrTooShort, r.Len())
	}
	for i, step := range r.Sequence {
		if step.Index != i {
			return fmt.Errorf("step %d has index %d", i, step.Index)
		}
		if _, ok := r.Entities[step.Entity]; !ok {
			return fmt.Errorf("%w: step %d -> %q", ErrDanglingEntity, i, step.Entity)
		}
	}
	return nil
}

// Decode parses a record from JSON.
func Decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if r.Sequence == nil {
		return nil, fmt.Errorf("decode record: missing sequence")
	}
	return &r, nil
}

// Load reads a record from path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Save writes r to path through a temp file in the same directory, so a
// crash never leaves a partial record behind.
func Save(path string, r *Record) error {
	data, err := json.MarshalIndent(r, "", " ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}
