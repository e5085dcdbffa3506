package convert

import (
	"fmt"
	"strings"
)

// Mode selects how the output path is resolved.
type Mode int

const (
	// New always allocates a fresh, non-colliding path.
	New Mode = iota
	// Replace writes the canonical path, overwriting existing content.
	Replace
	// Continue skips work when the canonical path already exists.
	Continue
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case New:
		return "new"
	case Replace:
		return "replace"
	case Continue:
		return "continue"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "new", "replace" or "continue".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return New, nil
	case "replace":
		return Replace, nil
	case "continue":
		return Continue, nil
	default:
		return 0, fmt.Errorf("unknown conversion mode %q (want new, replace or continue)", s)
	}
}

// Set implements pflag.Value so a Mode can be bound to a CLI flag.
func (m *Mode) Set(s string) error {
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *Mode) Type() string {
	return "mode"
}
