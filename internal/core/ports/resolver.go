package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Resolver turns a build request into an installed binary.
//
//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks
type Resolver interface {
	Resolve(ctx context.Context, req domain.BuildRequest) (domain.BuildResult, error)
}
