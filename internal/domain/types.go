package domain

import (
	"strconv"
	"time"
)

// Metadata keys attached to every chunk.
const (
	MetaSource = "source"
	MetaPage   = "page"
	MetaOffset = "offset"
	MetaIndex  = "index"
)

// UnknownSource is reported for entries that carry no source metadata.
const UnknownSource = "Unknown"

// TextUnit is one ordered piece of loader output, usually a page.
// Page is 1-based for paginated formats and 0 for whole-file formats.
type TextUnit struct {
	Text   string
	Page   int
	Offset int
}

// Document is an uploaded file after loading.
type Document struct {
	ID         string
	SourceName string
	Units      []TextUnit
}

// Metadata is the flat key/value payload stored with each index entry.
type Metadata map[string]string

// Source returns the source file name, or UnknownSource.
func (m Metadata) Source() string {
	if s, ok := m[MetaSource]; ok && s != "" {
		return s
	}
	return UnknownSource
}

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Chunk is a bounded slice of a document's text, the unit of embedding and retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Embedding  []float32
	Metadata   Metadata
}

// IndexEntry is the persisted form of a chunk inside a vector index.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata Metadata
}

// ScoredEntry is an index search hit with its cosine distance.
type ScoredEntry struct {
	Entry    IndexEntry
	Distance float64
}

// Filter is an equality predicate over metadata. Every key must match.
// An empty filter matches every entry.
type Filter map[string]string

// SourceFilter matches all entries of one source file.
func SourceFilter(source string) Filter {
	return Filter{MetaSource: source}
}

// Match reports whether the metadata satisfies the filter.
func (f Filter) Match(m Metadata) bool {
	for k, v := range f {
		if m[k] != v {
			return false
		}
	}
	return true
}

// RetrievalResult is a chunk retrieved for a query, with distance and derived similarity.
type RetrievalResult struct {
	Entry      IndexEntry
	Distance   float64
	Similarity float64
}

// SimilarityFromDistance converts a distance into a similarity in (0, 1].
func SimilarityFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}

// SourceRef is one cited source in an answer.
type SourceRef struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Content    string  `json:"content"`
}

// Answer is the composer output.
type Answer struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// QueryRecord is one answered question as kept in the history log.
type QueryRecord struct {
	Question  string
	Answer    string
	Context   string
	Sources   []string
	Timestamp time.Time
}

// ChunkMetadata builds the metadata for a chunk of source at the given page and offset.
func ChunkMetadata(source string, page, offset, index int) Metadata {
	return Metadata{
		MetaSource: source,
		MetaPage:   strconv.Itoa(page),
		MetaOffset: strconv.Itoa(offset),
		MetaIndex:  strconv.Itoa(index),
	}
}
