// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
)

// Executor defines the interface for running external build commands.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs argv inside dir and waits for it to exit.
	//
	// It returns an error carrying the exit code if the command exits non-zero.
	Execute(ctx context.Context, dir string, argv []string) error
}
