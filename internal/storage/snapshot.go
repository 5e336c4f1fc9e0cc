package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/index"
	"github.com/tuannm99/minisql/internal/record"
)

const snapshotVersion = 1

var (
	ErrNoSnapshot     = errors.New("storage: snapshot not found")
	ErrBadSnapshot    = errors.New("storage: corrupt snapshot")
	ErrSnapshotFormat = errors.New("storage: unsupported snapshot version")
)

type TableImage struct {
	Name      string           `json:"name"`
	Schema    record.Schema    `json:"schema"`
	NextRowID heap.RowID       `json:"next_row_id"`
	Rows      []heap.StoredRow `json:"rows"`
}

type IndexImage struct {
	Name    string        `json:"name"`
	Table   string        `json:"table"`
	Column  string        `json:"column"`
	Kind    index.Kind    `json:"kind"`
	Entries []index.Entry `json:"entries"`
}

// Image is the whole database as written to the snapshot file.
type Image struct {
	Version  int          `json:"version"`
	Ordering string       `json:"ordering"`
	SavedAt  time.Time    `json:"saved_at"`
	Tables   []TableImage `json:"tables"`
	Indexes  []IndexImage `json:"indexes"`
}

// SnapshotStore reads and writes the snapshot file. Every Save rewrites the
// whole file: a temp file is written and synced, then renamed over the old one.
type SnapshotStore struct {
	fs   afero.Fs
	path string
}

func NewSnapshotStore(fs afero.Fs, path string) *SnapshotStore {
	return &SnapshotStore{fs: fs, path: path}
}

func (s *SnapshotStore) Path() string { return s.path }

func (s *SnapshotStore) Save(img *Image) error {
	img.Version = snapshotVersion
	img.SavedAt = time.Now()

	data, err := json.Marshal(img)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(s.fs, s.path, data, 0o644); err != nil {
		return err
	}

	slog.Debug("storage.snapshot.saved",
		"path", s.path,
		"tables", len(img.Tables),
		"indexes", len(img.Indexes),
		"bytes", len(data),
	)
	return nil
}

// Load reads the snapshot. It returns ErrNoSnapshot if the file does not exist.
func (s *SnapshotStore) Load() (*Image, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if img.Version <= 0 {
		// backward/unknown -> still accept
		img.Version = snapshotVersion
	}
	if img.Version > snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotFormat, img.Version)
	}
	return &img, nil
}

func writeFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := afero.TempFile(fs, dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	closed := false
	defer func() {
		if !closed {
			err = multierr.Append(err, tmp.Close())
		}
		if err != nil {
			if rmErr := fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = multierr.Append(err, rmErr)
			}
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
