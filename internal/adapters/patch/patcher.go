// Package patch implements the Patcher port with literal text substitution.
package patch

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Patcher implements ports.Patcher.
type Patcher struct {
	logger ports.Logger
}

// NewPatcher creates a Patcher that reports skipped substitutions to logger.
func NewPatcher(logger ports.Logger) *Patcher {
	return &Patcher{logger: logger}
}

// Apply replaces every occurrence of each substitution's Old text in path,
// in order. The file keeps its permissions. When strict is false an absent
// pattern is logged and skipped; otherwise it fails before anything is written.
func (p *Patcher) Apply(path string, subs []domain.Substitution, strict bool) error {
	//nolint:gosec // path is inside the extracted source tree
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zerr.With(domain.ErrPatchTargetMissing, "path", path)
		}
		return zerr.With(zerr.Wrap(err, "failed to read patch target"), "path", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat patch target"), "path", path)
	}

	patched := data
	for _, sub := range subs {
		old := []byte(sub.Old)
		if !bytes.Contains(patched, old) {
			if strict {
				missing := zerr.With(domain.ErrPatchPatternMissing, "pattern", sub.Old)
				return zerr.With(missing, "path", path)
			}
			p.logger.Warn("pattern not found in " + filepath.Base(path) + ", skipping: " + sub.Old)
			continue
		}
		patched = bytes.ReplaceAll(patched, old, []byte(sub.New))
	}

	if bytes.Equal(patched, data) {
		return nil
	}

	if err := os.WriteFile(path, patched, info.Mode().Perm()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write patch target"), "path", path)
	}
	return nil
}
