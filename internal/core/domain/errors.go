package domain

import "go.trai.ch/zerr"

var (
	// ErrInvalidRequest is returned when a build request is missing a required field.
	ErrInvalidRequest = zerr.New("invalid build request")

	// ErrDownloadFailed is returned when the source archive cannot be downloaded.
	ErrDownloadFailed = zerr.New("download failed")

	// ErrExtractionFailed is returned when the source archive cannot be extracted.
	ErrExtractionFailed = zerr.New("extraction failed")

	// ErrConfigureFailed is returned when the configure step exits non-zero.
	ErrConfigureFailed = zerr.New("configure failed")

	// ErrPatchFailed is returned when the source workaround cannot be applied.
	ErrPatchFailed = zerr.New("patch failed")

	// ErrBuildFailed is returned when the native build exits non-zero.
	ErrBuildFailed = zerr.New("build failed")

	// ErrCopyFailed is returned when the produced binary cannot be installed.
	ErrCopyFailed = zerr.New("copy failed")

	// ErrCacheStoreFailed is returned when a built binary cannot be stored in the cache.
	// It is never fatal to a resolve.
	ErrCacheStoreFailed = zerr.New("cache store failed")

	// ErrCacheMiss is returned when a requested key is not present in the cache.
	ErrCacheMiss = zerr.New("cache miss")

	// ErrStoreCreateFailed is returned when the cache directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create cache directory")

	// ErrStoreReadFailed is returned when a cache entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache entry")

	// ErrStoreWriteFailed is returned when a cache entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache entry")

	// ErrStoreMarshalFailed is returned when cache entry metadata cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal cache entry")

	// ErrStoreUnmarshalFailed is returned when cache entry metadata cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal cache entry")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidConfig is returned when a config value is out of range.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrNoWorkaround is returned when a workaround is requested for a tool that has none.
	ErrNoWorkaround = zerr.New("no workaround registered for tool")

	// ErrPatchTargetMissing is returned when the file a workaround patches does not exist.
	ErrPatchTargetMissing = zerr.New("patch target file not found")

	// ErrPatchPatternMissing is returned when a workaround pattern is absent from its target file.
	ErrPatchPatternMissing = zerr.New("patch pattern not found")

	// ErrRequestFailed is returned when an HTTP request cannot be completed.
	ErrRequestFailed = zerr.New("HTTP request failed")

	// ErrUnexpectedStatus is returned when the upstream server answers with a non-2xx status.
	ErrUnexpectedStatus = zerr.New("unexpected HTTP status")

	// ErrEmptyPayload is returned when a download produces no bytes.
	ErrEmptyPayload = zerr.New("empty payload")

	// ErrUnsupportedArchive is returned when an archive is not gzip, xz or zstd compressed.
	ErrUnsupportedArchive = zerr.New("unsupported archive format")

	// ErrUnsafeArchivePath is returned when an archive entry would be written outside the destination.
	ErrUnsafeArchivePath = zerr.New("archive entry escapes destination")

	// ErrEmptyArchive is returned when an archive contains no entries.
	ErrEmptyArchive = zerr.New("archive contains no entries")

	// ErrSourceDirMissing is returned when extraction does not produce the expected source directory.
	ErrSourceDirMissing = zerr.New("source directory not found after extraction")

	// ErrBinaryMissing is returned when the build does not produce the expected binary.
	ErrBinaryMissing = zerr.New("built binary not found")

	// ErrCommandFailed is returned when an external command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")
)
