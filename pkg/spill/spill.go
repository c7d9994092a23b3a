// Package spill provides temporary-file backing stores for coefficient arrays that do
// not fit the decoder's memory budget.
package spill

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jpfielding/djpeg.go/pkg/compress/djpeg"
)

// File is a spill file removed from disk when closed.
type File struct {
	*os.File
}

func (f *File) Close() error {
	name := f.Name()
	return errors.Join(f.File.Close(), os.Remove(name))
}

// Create makes a spill file of size bytes in dir; an empty dir means os.TempDir().
func Create(dir string, size int64) (*File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, fmt.Sprintf("djpeg-%s.spill", uuid.NewString()))
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("spill file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(name)
		return nil, fmt.Errorf("spill file %s: %w", name, err)
	}
	slog.Debug("created spill file", slog.String("path", name), slog.Int64("bytes", size))
	return &File{f}, nil
}

// NewFactory returns a djpeg.BackingStoreFactory creating spill files in dir.
func NewFactory(dir string) djpeg.BackingStoreFactory {
	return func(size int64) (djpeg.BackingStore, error) {
		f, err := Create(dir, size)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}
