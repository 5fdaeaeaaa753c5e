package rundb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
)

const (
	jsonSuffix = ".json"
	zstdSuffix = ".json.zst"
)

// Stores one document per run in a filesystem.
type fsStore struct {
	mu       sync.Mutex
	fs       utils.Fs
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewFsStore creates a document store in the root of the filesystem.
// Documents are compressed with zstd if requested. Both plain and
// compressed documents are read.
func NewFsStore(fs utils.Fs, compress bool) (*fsStore, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	if err := fs.MkdirAll("runs", 0o777); err != nil {
		return nil, err
	}

	return &fsStore{
		fs:       fs,
		compress: compress,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// NewMemoryStore creates a document store that is lost on exit.
func NewMemoryStore() (*fsStore, error) {
	return NewFsStore(afero.NewMemMapFs(), false)
}

// NewDiskStore creates a document store in a directory.
func NewDiskStore(dir string, compress bool) (*fsStore, error) {
	osfs := afero.NewOsFs()
	if err := osfs.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	return NewFsStore(afero.NewBasePathFs(osfs, dir), compress)
}

func (s *fsStore) pathOf(id, suffix string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: invalid run id %q", utils.ErrBadRequest, id)
	}
	return path.Join("runs", id+suffix), nil
}

func (s *fsStore) LoadRun(ctx context.Context, id string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(id)
}

func (s *fsStore) load(id string) (*run.Run, error) {
	for _, suffix := range []string{zstdSuffix, jsonSuffix} {
		p, err := s.pathOf(id, suffix)
		if err != nil {
			return nil, err
		}

		data, err := afero.ReadFile(s.fs, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if suffix == zstdSuffix {
			data, err = s.decoder.DecodeAll(data, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress run %s: %w", id, err)
			}
		}

		return decodeRun(data)
	}

	return nil, fmt.Errorf("%w: run %s", utils.ErrNotFound, id)
}

func (s *fsStore) SaveRun(ctx context.Context, r *run.Run) error {
	data, err := encodeRun(r)
	if err != nil {
		return err
	}

	suffix, stale := jsonSuffix, zstdSuffix
	if s.compress {
		suffix, stale = zstdSuffix, jsonSuffix
		data = s.encoder.EncodeAll(data, nil)
	}

	target, err := s.pathOf(r.Id, suffix)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temporary file and rename so that readers never observe a partial document.
	file, err := afero.TempFile(s.fs, "runs", "tmp-")
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		s.fs.Remove(file.Name())
		return err
	}

	if err := file.Close(); err != nil {
		s.fs.Remove(file.Name())
		return err
	}

	if err := s.fs.Rename(file.Name(), target); err != nil {
		s.fs.Remove(file.Name())
		return err
	}

	// Remove the copy in the other format after a compression setting change.
	if other, err := s.pathOf(r.Id, stale); err == nil {
		s.fs.Remove(other)
	}

	log.Tracef("save - run - id: %s, size: %s", r.Id, utils.HumanByteSize(int64(len(data))))
	return nil
}

func (s *fsStore) ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, "runs")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	runs := []*run.Run{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") {
			continue
		}

		id := strings.TrimSuffix(strings.TrimSuffix(name, zstdSuffix), jsonSuffix)
		if id == name || seen[id] {
			continue
		}
		seen[id] = true

		r, err := s.load(id)
		if err != nil {
			log.Warnf("Failed to load run %s: %v", id, err)
			continue
		}

		if status == "" || r.Status == status {
			runs = append(runs, r)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	return runs, nil
}

func (s *fsStore) ActiveRuns(ctx context.Context) ([]*run.Run, error) {
	runs, err := s.ListRuns(ctx, "")
	if err != nil {
		return nil, err
	}

	active := runs[:0]
	for _, r := range runs {
		if !r.IsFinished() {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *fsStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
