// Package candidate holds the per-query records produced by the retrieval paths.
package candidate

import (
	"strings"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
)

// Path identifies a retrieval signal. Lower values win ties.
type Path uint8

// Retrieval paths in tie-break priority order.
const (
	PathSemantic Path = 1 << iota
	PathReranker
	PathKeyword
	PathMetadata
)

func (p Path) String() string {
	switch p {
	case PathSemantic:
		return "semantic"
	case PathReranker:
		return "reranker"
	case PathKeyword:
		return "keyword"
	case PathMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Hit is one raw result from a single retrieval path, before normalization.
// Ordinal is -1 for document-level hits.
type Hit struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Metadata   domain.Metadata
	Score      float64
}

// Candidate is a merged search result with per-path sub-scores in [0,1].
type Candidate struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Ordinal    int             `json:"ordinal"`
	Text       string          `json:"text"`
	Metadata   domain.Metadata `json:"metadata"`

	Semantic      float64 `json:"semantic"`
	Reranker      float64 `json:"reranker"`
	Keyword       float64 `json:"keyword"`
	MetadataScore float64 `json:"metadata_score"`

	Paths     Path    `json:"-"`
	Composite float64 `json:"score"`
	Quality   float64 `json:"quality"`
}

// Has reports whether the candidate was surfaced by path p.
func (c *Candidate) Has(p Path) bool { return c.Paths&p != 0 }

// PathCount returns how many retrieval paths surfaced the candidate.
// The reranker only rescores and is not a retrieval path.
func (c *Candidate) PathCount() int {
	n := 0
	for _, p := range []Path{PathSemantic, PathKeyword, PathMetadata} {
		if c.Has(p) {
			n++
		}
	}
	return n
}

// PathNames lists the surfacing paths, for logging and API output.
func (c *Candidate) PathNames() []string {
	var out []string
	for _, p := range []Path{PathSemantic, PathReranker, PathKeyword, PathMetadata} {
		if c.Has(p) {
			out = append(out, p.String())
		}
	}
	return out
}

// Body returns Text without the rendered metadata header that prefixes chunk text.
// Text without that header is returned unchanged.
func (c *Candidate) Body() string {
	return strings.TrimPrefix(c.Text, c.Metadata.Header())
}
