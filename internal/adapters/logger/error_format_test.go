package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestCollectErrorEntries(t *testing.T) {
	sentinel := zerr.New("build failed")

	tests := []struct {
		name         string
		err          error
		wantMessages []string
		wantMetadata []map[string]any
	}{
		{
			name:         "plain error",
			err:          errors.New("connection refused"),
			wantMessages: []string{"connection refused"},
			wantMetadata: []map[string]any{nil},
		},
		{
			name:         "sentinel alone",
			err:          zerr.New("cache miss"),
			wantMessages: []string{"cache miss"},
			wantMetadata: []map[string]any{{}},
		},
		{
			name: "wrapped chain",
			err: zerr.Wrap(
				zerr.Wrap(errors.New("unexpected EOF"), "failed to read tar entry"),
				"extraction failed",
			),
			wantMessages: []string{"extraction failed", "failed to read tar entry", "unexpected EOF"},
			wantMetadata: []map[string]any{{}, {}, nil},
		},
		{
			name: "accumulated metadata",
			err: zerr.With(
				zerr.With(zerr.New("unexpected HTTP status"), "url", "https://ftp.gnu.org/gnu/make/make-9.tar.gz"),
				"status_code", 404,
			),
			wantMessages: []string{"unexpected HTTP status"},
			wantMetadata: []map[string]any{{"url": "https://ftp.gnu.org/gnu/make/make-9.tar.gz", "status_code": 404}},
		},
		{
			name:         "metadata on standard error moves to it",
			err:          zerr.With(errors.New("exit status 2"), "exit_code", 2),
			wantMessages: []string{"exit status 2"},
			wantMetadata: []map[string]any{{"exit_code": 2}},
		},
		{
			name: "joined sentinel and cause",
			err: errors.Join(
				sentinel,
				zerr.With(zerr.Wrap(errors.New("exit status 2"), "command failed"), "exit_code", 2),
			),
			wantMessages: []string{"build failed", "command failed", "exit status 2"},
			wantMetadata: []map[string]any{{}, {"exit_code": 2}, nil},
		},
		{
			name:         "nil",
			err:          nil,
			wantMessages: nil,
			wantMetadata: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntriesExported(tt.err)

			if tt.err == nil {
				assert.Empty(t, entries, "nil error should produce no entries")
				return
			}

			assert.Len(t, entries, len(tt.wantMessages), "entry count mismatch")
			for i, wantMsg := range tt.wantMessages {
				assert.Equal(t, wantMsg, entries[i].Message, "message mismatch at index %d", i)
				assert.Equal(t, tt.wantMetadata[i], entries[i].Metadata, "metadata mismatch at index %d", i)
			}
		})
	}
}

func TestFormatErrorEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []logger.ErrorEntry
		want    string
	}{
		{
			name:    "single entry",
			entries: []logger.ErrorEntry{{Message: "copy failed"}},
			want:    "Error: copy failed",
		},
		{
			name: "cause",
			entries: []logger.ErrorEntry{
				{Message: "download failed"},
				{Message: "connection refused"},
			},
			want: "Error: download failed\n\n  Caused by:\n    → connection refused",
		},
		{
			name: "cause chain",
			entries: []logger.ErrorEntry{
				{Message: "build failed"},
				{Message: "command failed"},
				{Message: "exit status 2"},
			},
			want: "Error: build failed\n\n  Caused by:\n    → command failed\n    → exit status 2",
		},
		{
			name: "metadata on the top entry",
			entries: []logger.ErrorEntry{
				{Message: "invalid build request", Metadata: map[string]any{"missing": "version"}},
			},
			want: "Error: invalid build request\n       missing: version",
		},
		{
			name: "metadata on a cause",
			entries: []logger.ErrorEntry{
				{Message: "configure failed"},
				{Message: "command failed", Metadata: map[string]any{"exit_code": 77}},
			},
			want: "Error: configure failed\n\n  Caused by:\n    → command failed\n      exit_code: 77",
		},
		{
			name:    "multiline message",
			entries: []logger.ErrorEntry{{Message: "download failed\npatch failed"}},
			want:    "Error: download failed\n       patch failed",
		},
		{
			name:    "empty entries",
			entries: []logger.ErrorEntry{},
			want:    "",
		},
		{
			name: "metadata sorted alphabetically",
			entries: []logger.ErrorEntry{
				{
					Message:  "command failed",
					Metadata: map[string]any{"exit_code": 2, "command": "make -j 4", "dir": "/tmp/make-4.4.1"},
				},
			},
			want: "Error: command failed\n       command: make -j 4\n       dir: /tmp/make-4.4.1\n       exit_code: 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.FormatErrorEntriesExported(tt.entries))
		})
	}
}
