package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/Sternrassler/cadseq/pkg/sequence"
)

// DefaultExt is the artifact extension of CommandBuilder.
const DefaultExt = "step"

// CommandBuilder drives an external geometry kernel. The command receives
// the record JSON on stdin and the artifact path as its last argument.
type CommandBuilder struct {
	// Command is the kernel executable followed by its fixed arguments.
	Command []string
	// Extension of the produced artifact; empty means DefaultExt.
	Extension string
	// Env is appended to the current environment.
	Env []string
}

// NewCommandBuilder creates a builder running command.
func NewCommandBuilder(command []string, ext string) (*CommandBuilder, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("kernel command is required")
	}
	return &CommandBuilder{Command: command, Extension: ext}, nil
}

// Ext implements Builder.
func (b *CommandBuilder) Ext() string {
	if b.Extension == "" {
		return DefaultExt
	}
	return strings.TrimPrefix(b.Extension, ".")
}

type recordHandle struct {
	record *sequence.Record
	data   []byte
}

// Normalize checks the record contract before the kernel sees it.
func (h *recordHandle) Normalize() error {
	return h.record.Validate()
}

// FromRecord implements Builder.
func (b *CommandBuilder) FromRecord(_ context.Context, record *sequence.Record) (Handle, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return &recordHandle{record: record, data: data}, nil
}

// artifact is a built file waiting to be moved into place.
type artifact struct {
	path string
}

// Build implements Builder. The kernel writes to a temp file which Write
// later moves to the resolved path.
func (b *CommandBuilder) Build(ctx context.Context, h Handle) (Shape, error) {
	rh, ok := h.(*recordHandle)
	if !ok {
		return nil, fmt.Errorf("unexpected handle %T", h)
	}

	tmp, err := os.CreateTemp("", "cadseq-*."+b.Ext())
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := append(append([]string(nil), b.Command[1:]...), tmpPath)
	cmd := exec.CommandContext(ctx, b.Command[0], args...)
	cmd.Stdin = bytes.NewReader(rh.data)
	cmd.Env = append(os.Environ(), b.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("kernel %s: %w: %s", b.Command[0], err, msg)
		}
		return nil, fmt.Errorf("kernel %s: %w", b.Command[0], err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("kernel %s produced no artifact", b.Command[0])
	}

	return &artifact{path: tmpPath}, nil
}

// Close removes the temp file if Write did not move it.
func (a *artifact) Close() error {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Write implements Builder. It renames the temp artifact into place and
// copies when the rename crosses file systems.
func (b *CommandBuilder) Write(_ context.Context, s Shape, path string) error {
	a, ok := s.(*artifact)
	if !ok {
		return fmt.Errorf("unexpected shape %T", s)
	}

	if err := os.Rename(a.path, path); err == nil {
		return nil
	}

	return copyFile(a.path, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	return nil
}
