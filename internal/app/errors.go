package app

import "errors"

// Sentinel errors returned by the services. The transport layer maps each to
// a response code; everything else is an internal error.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrParseFailure      = errors.New("document could not be parsed")
	ErrEmbeddingFailure  = errors.New("embedding failed")
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrGenerationFailure = errors.New("answer generation failed")
	ErrDuplicateFilename = errors.New("filename already uploaded for this tenant")
	ErrNotFound          = errors.New("not found")
)
