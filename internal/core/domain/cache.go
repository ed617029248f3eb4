package domain

import (
	"strings"
	"time"
)

// CacheKey identifies a cacheable build result.
type CacheKey string

// NewCacheKey builds "<schema>-<os>-<tool>-<version>".
//
// The workaround flag is deliberately absent: keys stay compatible with
// entries written by earlier runs, so a cached unpatched binary is served to a
// caller asking for the patched variant of the same version.
func NewCacheKey(schemaVersion, os, toolName, version string) CacheKey {
	return CacheKey(strings.Join([]string{schemaVersion, os, toolName, version}, "-"))
}

// String returns the key as a string.
func (k CacheKey) String() string {
	return string(k)
}

// CacheEntry is the metadata stored next to a cached binary.
type CacheEntry struct {
	Key       CacheKey  `json:"key"`
	ToolName  string    `json:"tool"`
	Version   string    `json:"version"`
	OS        string    `json:"os"`
	Size      int64     `json:"size,omitzero"`
	Digest    string    `json:"digest,omitzero"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// CacheStats summarizes the contents of a cache store.
type CacheStats struct {
	Entries int
	Bytes   int64
}
