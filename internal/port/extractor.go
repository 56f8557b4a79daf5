package port

import "context"

// Extractor turns the raw bytes of an uploaded file into plain text.
// One implementation per file type; the ingestion core never sees file bytes.
type Extractor interface {
	// Name returns the extractor identifier (e.g. "plaintext", "pdf").
	Name() string

	// Extract returns the text content of data.
	Extract(ctx context.Context, data []byte) (string, error)
}
