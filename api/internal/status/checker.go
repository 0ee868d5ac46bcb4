package status

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image-annotator/api/internal/store"
)

type Mode string

const (
	// ModeTriState reads every record and reports none/empty/annotated.
	ModeTriState Mode = "tristate"
	// ModeExists lists the directory and reports whether each record file exists.
	ModeExists Mode = "exists"
)

// DirSource yields the directory to check against, read once per batch.
type DirSource interface {
	Path() string
}

type Checker struct {
	dir     DirSource
	mode    Mode
	workers int
	log     *zap.Logger
}

func NewChecker(dir DirSource, mode Mode, workers int, log *zap.Logger) *Checker {
	if workers <= 0 {
		workers = 1
	}
	if mode == "" {
		mode = ModeTriState
	}
	return &Checker{dir: dir, mode: mode, workers: workers, log: log}
}

func (c *Checker) Mode() Mode { return c.mode }

// Check returns map[string]Status or map[string]bool depending on the mode.
func (c *Checker) Check(filenames []string) any {
	if c.mode == ModeExists {
		return c.Exists(filenames)
	}
	return c.TriState(filenames)
}

// TriState classifies every filename. Invalid filenames are None.
func (c *Checker) TriState(filenames []string) map[string]Status {
	dir := c.dir.Path()
	names := unique(filenames)
	results := make([]Status, len(names))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, name := range names {
		g.Go(func() error {
			rr := Read(dir, name)
			if rr.Err != nil {
				c.log.Debug("record unreadable, classified empty", zap.String("filename", name), zap.Error(rr.Err))
			}
			results[i] = Classify(rr)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Status, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// Exists answers from directory listings: one for the active directory, plus one per
// parent of a nested filename. A listing that fails only reports its own names as false.
func (c *Checker) Exists(filenames []string) map[string]bool {
	dir := c.dir.Path()
	out := make(map[string]bool, len(filenames))
	listings := make(map[string]map[string]struct{})
	for _, name := range filenames {
		path, err := store.RecordPath(dir, name)
		if err != nil {
			out[name] = false
			continue
		}
		parent := filepath.Dir(path)
		files, ok := listings[parent]
		if !ok {
			files, err = ListRecordFiles(parent)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.log.Warn("error reading annotation directory", zap.String("dir", parent), zap.Error(err))
			}
			listings[parent] = files
		}
		_, found := files[filepath.Base(path)]
		out[name] = found
	}
	return out
}

// Read loads the record for name. A filename that cannot map into dir reads as missing.
func Read(dir, name string) ReadResult {
	path, err := store.RecordPath(dir, name)
	if err != nil {
		return ReadResult{}
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ReadResult{}
	}
	return ReadResult{Exists: true, Data: b, Err: err}
}

// ListRecordFiles lists the *.json files directly inside dir. Subdirectories are not read.
func ListRecordFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
