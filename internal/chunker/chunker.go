// Package chunker splits text into overlapping word windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/arturoeanton/design-copilot/internal/port"
)

// Default window policy, in words.
const (
	DefaultChunkSize = 800
	DefaultOverlap   = 150
)

// Validate reports whether chunkSize and overlap make forward progress.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", port.ErrConfiguration, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", port.ErrConfiguration, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", port.ErrConfiguration, overlap, chunkSize)
	}
	return nil
}

// Split tokenises text on whitespace and returns windows of chunkSize words,
// each starting chunkSize-overlap words after the previous one. The last window
// may be shorter. Blank text yields no chunks.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		// A window that reached the end already holds every remaining word.
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
