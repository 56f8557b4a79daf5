package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// metaDimensionKey is the store_meta row holding the embedding length fixed at first open.
const metaDimensionKey = "embedding_dimension"

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return port.ErrOwnerRequired
	}
	return nil
}

// validateChunk checks everything that can be rejected before touching the database.
func validateChunk(in domain.ChunkInput, dimension int) error {
	if err := requireOwner(in.OwnerID); err != nil {
		return err
	}
	if in.DocumentID == "" {
		return fmt.Errorf("%w: empty document id", port.ErrDocumentNotFound)
	}
	if in.Ordinal < 0 {
		return fmt.Errorf("%w: negative ordinal %d", port.ErrInvalidInput, in.Ordinal)
	}
	if len(in.Embedding) != dimension {
		return fmt.Errorf("%w: got %d, store expects %d", port.ErrDimensionMismatch, len(in.Embedding), dimension)
	}
	return nil
}

// checkDimension compares the recorded store dimension with the configured one.
func checkDimension(recorded string, configured int) error {
	n, err := strconv.Atoi(recorded)
	if err != nil {
		return fmt.Errorf("%w: corrupt %s %q", port.ErrConfiguration, metaDimensionKey, recorded)
	}
	if n != configured {
		return fmt.Errorf("%w: store was created with embedding dimension %d, configured %d",
			port.ErrConfiguration, n, configured)
	}
	return nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw []byte) map[string]string {
	m := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

// encodeVector packs a float32 slice as little-endian bytes for BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// norm returns the Euclidean length of v.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b, or 0 when either has zero length.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// rankChunks sorts by descending similarity, then ascending ordinal, then document id,
// and truncates to topK.
func rankChunks(chunks []domain.ScoredChunk, topK int) []domain.ScoredChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.DocumentID < b.DocumentID
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks
}
