package convert

import (
	"context"

	"github.com/Sternrassler/cadseq/pkg/sequence"
)

// Handle is a geometry sequence loaded by a Builder.
type Handle interface {
	// Normalize brings the sequence into the kernel's canonical frame.
	Normalize() error
}

// Shape is a built solid, opaque to the dispatcher. A shape that
// implements io.Closer is closed after Write, whether it succeeded or not.
type Shape any

// Builder is the geometry kernel: load a record, normalize it, build a
// solid and write it as an exchange file.
type Builder interface {
	// Ext is the artifact extension without the dot, e.g. "step".
	Ext() string
	FromRecord(ctx context.Context, record *sequence.Record) (Handle, error)
	Build(ctx context.Context, h Handle) (Shape, error)
	Write(ctx context.Context, s Shape, path string) error
}

// PathNamer returns a path that collides with no existing file; with
// create it reserves the path. naming.Generate is the default.
type PathNamer func(candidate string, create bool) (string, error)
