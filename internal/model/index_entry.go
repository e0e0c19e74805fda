package model

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"time"

	"docqa/internal/domain"
)

// IndexEntry stores one chunk of the local vector index.
// Embedding holds the vector as little-endian float32 values.
type IndexEntry struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Source    string    `gorm:"size:255;not null;index" json:"source"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Metadata  string    `gorm:"type:text" json:"metadata"` // JSON object
	Embedding []byte    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingVector decodes the stored vector.
func (e *IndexEntry) EmbeddingVector() ([]float32, error) {
	if len(e.Embedding)%4 != 0 {
		return nil, errors.New("embedding blob length is not a multiple of 4")
	}
	v := make([]float32, len(e.Embedding)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(e.Embedding[i*4:]))
	}
	return v, nil
}

// SetEmbedding encodes the vector.
func (e *IndexEntry) SetEmbedding(vec []float32) {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	e.Embedding = buf
}

// NewIndexEntry converts a domain entry into its stored row.
func NewIndexEntry(entry domain.IndexEntry) (IndexEntry, error) {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return IndexEntry{}, err
	}
	row := IndexEntry{
		ID:       entry.ID,
		Source:   entry.Metadata[domain.MetaSource],
		Content:  entry.Content,
		Metadata: string(meta),
	}
	row.SetEmbedding(entry.Vector)
	return row, nil
}

// ToDomain converts the stored row back into a domain entry.
func (e *IndexEntry) ToDomain() (domain.IndexEntry, error) {
	vec, err := e.EmbeddingVector()
	if err != nil {
		return domain.IndexEntry{}, err
	}
	meta := domain.Metadata{}
	if e.Metadata != "" {
		if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
			return domain.IndexEntry{}, err
		}
	}
	return domain.IndexEntry{ID: e.ID, Vector: vec, Content: e.Content, Metadata: meta}, nil
}
