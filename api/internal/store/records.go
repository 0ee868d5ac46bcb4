package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var emptyList = json.RawMessage("[]")

// Save describes one successful write of an annotation record.
type Save struct {
	Dir      string
	Filename string
	Items    int // -1 when the value is not a list
	SHA256   string
	SavedAt  time.Time
}

// SaveRecorder receives every successful save. Failures are logged, never returned to the writer.
type SaveRecorder interface {
	Record(ctx context.Context, s Save) error
}

// Records reads and writes <dir>/<filename>.json under the active directory.
type Records struct {
	dir     *Directory
	log     *zap.Logger
	journal SaveRecorder
}

func NewRecords(dir *Directory, log *zap.Logger, journal SaveRecorder) *Records {
	return &Records{dir: dir, log: log, journal: journal}
}

// Get returns the stored JSON value, or [] when the record is missing, blank or malformed.
func (s *Records) Get(filename string) (json.RawMessage, error) {
	path, err := RecordPath(s.dir.Path(), filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyList, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(b) {
		s.log.Warn("annotation record is blank or malformed, returning empty list",
			zap.String("path", path), zap.Int("bytes", len(b)))
		return emptyList, nil
	}
	return json.RawMessage(bytes.TrimSpace(b)), nil
}

// Put replaces the record with value, indented by 4 spaces.
func (s *Records) Put(ctx context.Context, filename string, value []byte) (Save, error) {
	dir := s.dir.Path()
	path, err := RecordPath(dir, filename)
	if err != nil {
		return Save{}, err
	}
	if !json.Valid(value) {
		return Save{}, ErrInvalidJSON
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(value), "", "    "); err != nil {
		return Save{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	buf.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Save{}, fmt.Errorf("create annotation dir: %w", err)
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return Save{}, fmt.Errorf("write %s: %w", path, err)
	}

	sum := sha256.Sum256(buf.Bytes())
	save := Save{
		Dir:      dir,
		Filename: filename,
		Items:    countItems(value),
		SHA256:   hex.EncodeToString(sum[:]),
		SavedAt:  time.Now().UTC(),
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, save); err != nil {
			s.log.Warn("journal record failed", zap.String("filename", filename), zap.Error(err))
		}
	}
	return save, nil
}

// countItems is the length of a top-level list, or -1 for any other JSON value.
func countItems(value []byte) int {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return -1
	}
	if items, ok := v.([]any); ok {
		return len(items)
	}
	return -1
}

// writeAtomic writes through a temp file in the same directory and renames it over dest.
func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
