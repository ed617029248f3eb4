// Package cas implements the on-disk cache of built binaries.
package cas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	blobExt   = ".bin"
	recordExt = ".json"
	tempGlob  = ".tmp-*"
)

// Store implements ports.CacheStore using a blob-plus-record-per-key layout.
//
// The JSON record is written after the blob and acts as the commit marker:
// an entry without a record is invisible to Get.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a CacheStore rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{
		root: filepath.Clean(dir),
		now:  time.Now,
	}
}

// Root returns the directory backing the store.
func (s *Store) Root() string {
	return s.root
}

// Get opens the blob stored under key.
func (s *Store) Get(ctx context.Context, key domain.CacheKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.readRecord(s.recordPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrCacheMiss
		}
		return nil, zerr.With(err, "key", key.String())
	}
	// Distinct keys sharing a hash are treated as a miss.
	if entry.Key != key {
		return nil, domain.ErrCacheMiss
	}

	//nolint:gosec // Path is constructed from the store root and a hashed filename
	f, err := os.Open(s.blobPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrCacheMiss
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "key", key.String())
	}
	return f, nil
}

// Put stores blob under entry.Key, filling in its size, digest and creation time.
func (s *Store) Put(ctx context.Context, entry domain.CacheEntry, blob io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "path", s.root)
	}

	hasher := xxhash.New()
	size, err := s.writeAtomic(s.blobPath(entry.Key), func(w io.Writer) (int64, error) {
		return io.Copy(io.MultiWriter(w, hasher), blob)
	})
	if err != nil {
		return zerr.With(err, "key", entry.Key.String())
	}

	entry.Size = size
	entry.Digest = fmt.Sprintf("%016x", hasher.Sum64())
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}
	if _, err := s.writeAtomic(s.recordPath(entry.Key), func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	}); err != nil {
		return zerr.With(err, "key", entry.Key.String())
	}

	return nil
}

// Stats counts committed entries and their blob sizes.
func (s *Store) Stats(ctx context.Context) (domain.CacheStats, error) {
	var stats domain.CacheStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", s.root)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		record, err := s.readRecord(filepath.Join(s.root, e.Name()))
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += record.Size
	}

	return stats, nil
}

// Clear removes every entry, including abandoned temporary files.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.root); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", s.root)
	}
	return nil
}

func (s *Store) readRecord(path string) (domain.CacheEntry, error) {
	var entry domain.CacheEntry

	//nolint:gosec // Path is constructed from the store root and a hashed filename
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entry, err
		}
		return entry, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	return entry, nil
}

// writeAtomic writes through a temporary file in the store root and renames it
// over path once fully written.
func (s *Store) writeAtomic(path string, write func(io.Writer) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(s.root, tempGlob)
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	n, err := write(tmp)
	if err != nil {
		_ = tmp.Close()
		return n, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return n, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return n, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return n, nil
}

func (s *Store) blobPath(key domain.CacheKey) string {
	return filepath.Join(s.root, fileStem(key)+blobExt)
}

func (s *Store) recordPath(key domain.CacheKey) string {
	return filepath.Join(s.root, fileStem(key)+recordExt)
}

func fileStem(key domain.CacheKey) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key.String()))
}
