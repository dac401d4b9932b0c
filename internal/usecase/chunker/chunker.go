// Package chunker splits document bodies into bounded, metadata-prefixed chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
)

// Defaults used when the caller passes zero values.
const (
	DefaultMaxLength = 1000
	DefaultOverlap   = 100
)

// separators are tried in order; "" falls back to single characters.
var separators = []string{"\n\n", "\n", " ", ""}

// Chunker is safe for concurrent use.
type Chunker struct {
	maxLength int
	overlap   int
	splitter  textsplitter.RecursiveCharacter
}

// New creates a Chunker. Limits are measured in runes and apply to the body only.
func New(maxLength, overlap int) (*Chunker, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("chunker: max length must be positive, got %d", maxLength)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= maxLength {
		return nil, fmt.Errorf("chunker: overlap (%d) must be less than max length (%d)", overlap, maxLength)
	}

	return &Chunker{
		maxLength: maxLength,
		overlap:   overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxLength),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// MaxLength returns the body length limit.
func (c *Chunker) MaxLength() int { return c.maxLength }

// Split chunks a document. Ordinals start at 0 and follow body order.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	header := doc.Metadata.Header()
	bodies := c.SplitText(doc.Text)

	chunks := make([]domain.Chunk, 0, len(bodies))
	for i, body := range bodies {
		chunks = append(chunks, domain.Chunk{
			DocumentID:   doc.ID,
			PartitionKey: doc.PartitionKey,
			Ordinal:      i,
			Header:       header,
			Body:         body,
			Text:         header + body,
			Metadata:     doc.Metadata,
		})
	}
	return chunks
}

// SplitText returns the body pieces for text. Whitespace-only text yields nil.
func (c *Chunker) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		// The recursive splitter only fails on invalid options; degrade to a hard split.
		parts = []string{text}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, c.enforceLimit(p)...)
	}
	return out
}

// enforceLimit hard-splits a piece the recursive splitter left oversized.
func (c *Chunker) enforceLimit(s string) []string {
	if utf8.RuneCountInString(s) <= c.maxLength {
		return []string{s}
	}

	runes := []rune(s)
	step := c.maxLength - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.maxLength, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
