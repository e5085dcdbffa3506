// Package naming allocates output paths that do not collide with existing
// files.
package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxAttempts bounds the number of suffixes tried.
const MaxAttempts = 10000

// ErrExhausted is returned when no free path was found within MaxAttempts.
var ErrExhausted = errors.New("no free path")

// Generate returns candidate if nothing exists there, otherwise the first
// free "stem_N.ext" with N = 1, 2, .... With create the file is created
// exclusively, so concurrent callers never receive the same path.
func Generate(candidate string, create bool) (string, error) {
	dir := filepath.Dir(candidate)
	ext := filepath.Ext(candidate)
	stem := strings.TrimSuffix(filepath.Base(candidate), ext)

	for n := 0; n < MaxAttempts; n++ {
		path := candidate
		if n > 0 {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		}

		if !create {
			if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
				return path, nil
			} else if err != nil {
				return "", fmt.Errorf("stat %s: %w", path, err)
			}
			continue
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}

	return "", fmt.Errorf("%w for %s after %d attempts", ErrExhausted, candidate, MaxAttempts)
}
