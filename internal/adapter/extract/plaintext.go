package extract

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/arturoeanton/design-copilot/internal/port"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText passes UTF-8 text (including markdown) through unchanged, minus a leading BOM.
type PlainText struct{}

// NewPlainText creates a plaintext extractor.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Name returns the extractor identifier.
func (*PlainText) Name() string { return "plaintext" }

// Extract rejects content that is not valid UTF-8.
func (*PlainText) Extract(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", port.ErrUnsupportedFileType)
	}
	return string(data), nil
}
