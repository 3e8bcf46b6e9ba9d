package collection

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Hash fields of a chunk key.
const (
	fieldContent  = "__content"
	fieldVector   = "__vector"
	fieldMetadata = "__metadata"
	fieldDocument = "__document"
	fieldChunk    = "__chunk"
)

// meta is the decoded collection metadata hash.
type meta struct {
	Generation int
	VectorDim  int
	Chunks     int
}

func metaToHash(name string, m meta) map[string]string {
	return map[string]string{
		"name":       name,
		"generation": strconv.Itoa(m.Generation),
		"vector_dim": strconv.Itoa(m.VectorDim),
		"chunks":     strconv.Itoa(m.Chunks),
		"updated_at": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

// metaFromHash returns ok=false for an absent or unreadable metadata hash.
func metaFromHash(h map[string]string) (meta, bool) {
	gen, err := strconv.Atoi(h["generation"])
	if err != nil || gen <= 0 {
		return meta{}, false
	}
	m := meta{Generation: gen}
	m.VectorDim, _ = strconv.Atoi(h["vector_dim"])
	m.Chunks, _ = strconv.Atoi(h["chunks"])
	return m, true
}

// entryToHash converts an indexed chunk into a flat map for HSET.
func entryToHash(e domain.IndexedEntry) (map[string]string, error) {
	h := map[string]string{
		fieldContent:  e.Chunk.Text,
		fieldVector:   vectorToBytes(e.Vector),
		fieldDocument: strconv.Itoa(e.Chunk.Document),
		fieldChunk:    strconv.Itoa(e.Chunk.Index),
	}
	if len(e.Chunk.Metadata) > 0 {
		raw, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		h[fieldMetadata] = string(raw)
	}
	return h, nil
}

// resultFromEntry hydrates a query hit from FT.SEARCH fields.
func resultFromEntry(e db.SearchEntry) domain.QueryResult {
	res := domain.QueryResult{
		Text:  e.Fields[fieldContent],
		Score: e.Score,
	}
	if raw := e.Fields[fieldMetadata]; raw != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(raw), &md); err == nil {
			res.Metadata = md
		}
	}
	return res
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
