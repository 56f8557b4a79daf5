package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrConfiguration       = errors.New("configuration error")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrJobNotFound         = errors.New("job not found")

	// Embedding and completion providers.
	ErrEmptyInput          = errors.New("empty input")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderAuth        = errors.New("provider rejected credentials")
	ErrEmptyCompletion     = errors.New("provider returned no completion text")

	// Document store contract.
	ErrOwnerRequired     = errors.New("owner id required")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrOrdinalConflict   = errors.New("chunk ordinal already taken")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Ingestion stored nothing out of a non-empty input.
	ErrIngestionFailed = errors.New("ingestion failed")
)
