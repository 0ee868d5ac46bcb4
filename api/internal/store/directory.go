package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrInvalidJSON     = errors.New("invalid json")
	ErrNotFound        = errors.New("not found")
)

// Directory is the active annotation directory shared by all handlers.
// Set and Path are individually atomic; nothing ties a Path read to a later file operation.
type Directory struct {
	path atomic.Pointer[string]
}

func NewDirectory(path string) *Directory {
	d := &Directory{}
	p := filepath.Clean(path)
	d.path.Store(&p)
	return d
}

func (d *Directory) Path() string { return *d.path.Load() }

// Set replaces the active directory. The target must be an existing directory or
// have an existing parent so it can be created on first write.
func (d *Directory) Set(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is missing", ErrInvalidPath)
	}
	p := filepath.Clean(path)
	if !isDir(p) && !isDir(filepath.Dir(p)) {
		return "", fmt.Errorf("%w: %s: parent directory does not exist", ErrInvalidPath, p)
	}
	d.path.Store(&p)
	return p, nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
