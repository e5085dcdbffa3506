package convert

import "fmt"

// ResultKind classifies a conversion.
type ResultKind int

const (
	Success ResultKind = iota
	AlreadyExists
	LoadFailure
	BuildFailure
	WriteFailure
)

// String implements fmt.Stringer.
func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case AlreadyExists:
		return "already_exists"
	case LoadFailure:
		return "load_failure"
	case BuildFailure:
		return "build_failure"
	case WriteFailure:
		return "write_failure"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the outcome of one conversion. Path is set for Success and
// AlreadyExists.
type Result struct {
	Kind ResultKind
	Path string
	Err  error
}

// Failed reports whether the conversion produced no artifact.
func (r Result) Failed() bool {
	return r.Kind != Success && r.Kind != AlreadyExists
}

// String implements fmt.Stringer.
func (r Result) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	case r.Path != "":
		return fmt.Sprintf("%s: %s", r.Kind, r.Path)
	default:
		return r.Kind.String()
	}
}
