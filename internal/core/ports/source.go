package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// Fetcher downloads remote artifacts.
//
//go:generate go run go.uber.org/mock/mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks
type Fetcher interface {
	// Fetch writes the body served at url to dst and returns the number of
	// bytes written.
	Fetch(ctx context.Context, url string, dst io.Writer) (int64, error)
}

// Extractor unpacks source archives.
type Extractor interface {
	// Extract unpacks the archive at archivePath into dstDir.
	Extract(ctx context.Context, archivePath, dstDir string) error
}

// Patcher applies textual substitutions to source files.
type Patcher interface {
	// Apply rewrites path in place. With strict set, a substitution whose Old
	// text is absent is an error.
	Apply(path string, subs []domain.Substitution, strict bool) error
}
