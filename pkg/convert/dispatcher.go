// Package convert turns persisted sequence records into exchange-format
// artifacts. The Dispatcher resolves the output path according to a Mode
// and delegates geometry work to a Builder.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/naming"
	"github.com/Sternrassler/cadseq/pkg/sequence"
	"github.com/rs/zerolog"
)

// DefaultName names artifacts of in-memory records.
const DefaultName = "cs2cad"

// Source is a record to convert, either on disk or in memory.
type Source struct {
	path   string
	record *sequence.Record
}

// FromPath converts the record stored at path.
func FromPath(path string) Source {
	return Source{path: path}
}

// FromRecord converts an in-memory record.
func FromRecord(r *sequence.Record) Source {
	return Source{record: r}
}

// defaultName is the file stem for a path source and DefaultName otherwise.
func (s Source) defaultName() string {
	if s.path == "" {
		return DefaultName
	}
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s Source) load() (*sequence.Record, error) {
	if s.record != nil {
		return s.record, nil
	}
	if s.path == "" {
		return nil, errors.New("empty source")
	}
	return sequence.Load(s.path)
}

// Dispatcher runs conversions.
type Dispatcher struct {
	builder Builder
	namer   PathNamer
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil namer uses naming.Generate.
func NewDispatcher(builder Builder, namer PathNamer) *Dispatcher {
	if builder == nil {
		panic("convert: builder cannot be nil")
	}
	if namer == nil {
		namer = naming.Generate
	}
	return &Dispatcher{
		builder: builder,
		namer:   namer,
		logger:  logging.NewLogger(logging.ComponentConvert),
	}
}

// Convert builds the artifact of src under outputDir. name empty means
// the source's default name. outputDir must be a directory reference: a
// path with a file extension is a caller bug and panics.
func (d *Dispatcher) Convert(ctx context.Context, src Source, outputDir, name string, mode Mode) Result {
	mustBeDir(outputDir)

	start := time.Now()
	res := d.convert(ctx, src, outputDir, name, mode)

	conversionsTotal.WithLabelValues(res.Kind.String()).Inc()
	conversionDuration.Observe(time.Since(start).Seconds())
	return res
}

func (d *Dispatcher) convert(ctx context.Context, src Source, outputDir, name string, mode Mode) Result {
	if name == "" {
		name = src.defaultName()
	}
	canonical := filepath.Join(outputDir, name+"."+d.builder.Ext())
	logger := d.logger.With().Str("name", name).Str("mode", mode.String()).Logger()

	switch mode {
	case Continue:
		if exists(canonical) {
			logger.Debug().Str("path", canonical).Msg("Artifact exists - skipping")
			return Result{Kind: AlreadyExists, Path: canonical}
		}
	case New, Replace:
	default:
		panic(fmt.Sprintf("convert: unknown mode %d", int(mode)))
	}

	record, err := src.load()
	if err != nil {
		logger.Warn().Err(err).Msg("Loading record failed")
		return Result{Kind: LoadFailure, Err: err}
	}

	shape, err := d.build(ctx, record)
	if err != nil {
		logger.Warn().Err(err).Msg("Building artifact failed")
		return Result{Kind: BuildFailure, Err: err}
	}
	defer release(shape, logger)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{Kind: WriteFailure, Err: fmt.Errorf("create output directory: %w", err)}
	}

	path := canonical
	if mode == New {
		path, err = d.namer(canonical, true)
		if err != nil {
			return Result{Kind: WriteFailure, Err: fmt.Errorf("allocate path: %w", err)}
		}
	}

	if err := d.builder.Write(ctx, shape, path); err != nil {
		if mode == New {
			// Drop the reservation left by the namer.
			os.Remove(path)
		}
		logger.Warn().Err(err).Str("path", path).Msg("Writing artifact failed")
		return Result{Kind: WriteFailure, Err: err}
	}

	logger.Debug().Str("path", path).Msg("Artifact written")
	return Result{Kind: Success, Path: path}
}

// build runs the builder stages; any error or panic is a build failure.
func (d *Dispatcher) build(ctx context.Context, record *sequence.Record) (shape Shape, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panic: %v", r)
		}
	}()

	h, err := d.builder.FromRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	if err := h.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	shape, err = d.builder.Build(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return shape, nil
}

// release frees the resources a shape holds once it is written or
// abandoned.
func release(shape Shape, logger zerolog.Logger) {
	c, ok := shape.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Debug().Err(err).Msg("Releasing shape failed")
	}
}

// DirReport summarizes ConvertDir.
type DirReport struct {
	Total    int
	Failures int
	Results  map[string]Result
}

// ConvertDir converts every *.json record in srcDir into outputDir with
// up to workers concurrent conversions. Only listing srcDir can fail.
func (d *Dispatcher) ConvertDir(ctx context.Context, srcDir, outputDir string, mode Mode, workers int) (*DirReport, error) {
	mustBeDir(outputDir)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".json" {
			paths = append(paths, filepath.Join(srcDir, e.Name()))
		}
	}
	sort.Strings(paths)

	if workers <= 0 {
		workers = 1
	}

	report := &DirReport{Total: len(paths), Results: make(map[string]Result, len(paths))}
	results := make([]Result, len(paths))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers && w < len(paths); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = d.Convert(ctx, FromPath(paths[i]), outputDir, "", mode)
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, p := range paths {
		report.Results[p] = results[i]
		if results[i].Failed() {
			report.Failures++
		}
	}

	d.logger.Info().
		Str("source", srcDir).
		Str("output", outputDir).
		Int("total", report.Total).
		Int("failures", report.Failures).
		Msg("Directory conversion complete")

	return report, nil
}

func mustBeDir(outputDir string) {
	if ext := Suffix(outputDir); ext != "" {
		panic(fmt.Sprintf("convert: output directory %q must not have an extension", outputDir))
	}
}

// Suffix returns the file extension of the last element of path, dot
// included. Names made only of dots or with a single leading dot, like
// "..", ".cache" or "out.", have none.
func Suffix(path string) string {
	name := filepath.Base(path)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
