package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata is the closed structured-field schema shared by documents, chunks and vectors.
// Anything outside the known fields goes into Extra.
type Metadata struct {
	Title    string            `json:"title,omitempty"`
	Source   string            `json:"source,omitempty"`
	Court    string            `json:"court,omitempty"`
	Category string            `json:"category,omitempty"`
	DocType  string            `json:"doc_type,omitempty"`
	Year     int               `json:"year,omitempty"`
	Date     string            `json:"date,omitempty"`
	Author   string            `json:"author,omitempty"`
	Citation string            `json:"citation,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m Metadata) IsEmpty() bool {
	return m.Title == "" && m.Source == "" && m.Court == "" && m.Category == "" &&
		m.DocType == "" && m.Year == 0 && m.Date == "" && m.Author == "" &&
		m.Citation == "" && len(m.Extra) == 0
}

// Header renders the metadata as a "Key: value" block terminated by a blank line.
// Empty metadata renders as "".
func (m Metadata) Header() string {
	var b strings.Builder
	line := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	line("Title", m.Title)
	line("Citation", m.Citation)
	line("Court", m.Court)
	line("Category", m.Category)
	line("Type", m.DocType)
	if m.Year > 0 {
		line("Year", strconv.Itoa(m.Year))
	}
	line("Date", m.Date)
	line("Author", m.Author)
	line("Source", m.Source)
	if b.Len() == 0 {
		return ""
	}
	b.WriteByte('\n')
	return b.String()
}

// Document is a unit of ingestion scoped to one partition (tenant/workspace).
type Document struct {
	ID           string   `json:"id"`
	PartitionKey string   `json:"partition_key"`
	Text         string   `json:"text"`
	Metadata     Metadata `json:"metadata"`
}

// Validate rejects documents that can never produce a chunk.
func (d Document) Validate() error {
	if d.ID == "" {
		return NewPermanentInput("document id is required")
	}
	if err := ValidatePartitionKey(d.PartitionKey); err != nil {
		return fmt.Errorf("document %s: %w", d.ID, err)
	}
	if strings.TrimSpace(d.Text) == "" {
		return NewPermanentInput("document %s: empty text", d.ID)
	}
	return nil
}

// ValidatePartitionKey accepts [A-Za-z0-9_-]{1,64}; the key becomes part of storage key names.
func ValidatePartitionKey(key string) error {
	if key == "" {
		return NewPermanentInput("partition key is required")
	}
	if len(key) > 64 {
		return NewPermanentInput("partition key longer than 64 characters")
	}
	for _, r := range key {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if !ok {
			return NewPermanentInput("partition key %q contains invalid characters", key)
		}
	}
	return nil
}

// Chunk is a bounded slice of a document body prefixed with the rendered metadata header.
// Text is exactly what gets embedded and stored as the vector payload.
type Chunk struct {
	DocumentID   string
	PartitionKey string
	Ordinal      int
	Header       string
	Body         string
	Text         string
	Metadata     Metadata
}

// EmbeddingVector is an embedded chunk ready for the vector store.
type EmbeddingVector struct {
	ID           string
	DocumentID   string
	PartitionKey string
	Ordinal      int
	Vector       []float32
	Text         string
	Metadata     Metadata
}

// IngestReport is the outcome of one ingestion run. len(Succeeded)+len(Failed) equals
// the number of submitted documents.
type IngestReport struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Errors    []string `json:"errors"`
	Batches   int      `json:"batches"`
}
