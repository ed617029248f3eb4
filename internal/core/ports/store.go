package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// CacheStore defines the interface for persisting built binaries.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type CacheStore interface {
	// Get opens the blob stored under key.
	// Returns domain.ErrCacheMiss if no complete entry exists.
	Get(ctx context.Context, key domain.CacheKey) (io.ReadCloser, error)

	// Put stores blob under entry.Key. A partially written entry is never
	// visible to Get.
	Put(ctx context.Context, entry domain.CacheEntry, blob io.Reader) error

	// Stats reports the number and total size of stored entries.
	Stats(ctx context.Context) (domain.CacheStats, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}
