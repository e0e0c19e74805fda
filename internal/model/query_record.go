package model

import (
	"encoding/json"
	"strings"
	"time"

	"docqa/internal/domain"
)

// QueryRecord is one answered question. Sources holds the cited file names as a JSON array;
// rows written before that hold a comma separated list.
type QueryRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	Context   string    `gorm:"type:text" json:"context"`
	Sources   string    `gorm:"type:text" json:"sources"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// NewQueryRecord converts a domain record into its stored row.
func NewQueryRecord(r domain.QueryRecord) QueryRecord {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return QueryRecord{
		Question:  r.Question,
		Answer:    r.Answer,
		Context:   r.Context,
		Sources:   EncodeSources(r.Sources),
		Timestamp: ts.UTC(),
	}
}

// EncodeSources stores names as a JSON array so names containing commas survive.
func EncodeSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SourceList decodes the stored sources.
func (q *QueryRecord) SourceList() []string {
	s := strings.TrimSpace(q.Sources)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return strings.Split(s, ",")
}
