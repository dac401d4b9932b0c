// Package keyword implements a BM25 index over partition documents with a tokenizer
// that keeps legal citations and section references intact.
package keyword

import (
	"math"
	"sort"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
)

// BM25 parameters.
const (
	K1 = 1.5
	B  = 0.75
)

type posting struct {
	doc int
	tf  int
}

// Index is an immutable BM25 index. The zero value is an empty index.
type Index struct {
	docs     []domain.Document
	lengths  []int
	avgLen   float64
	postings map[string][]posting
}

// Build indexes docs. Title and citation are indexed together with the body.
func Build(docs []domain.Document) *Index {
	idx := &Index{
		docs:     docs,
		lengths:  make([]int, len(docs)),
		postings: make(map[string][]posting),
	}
	total := 0
	for i, d := range docs {
		tokens := Tokenize(d.Metadata.Title + " " + d.Metadata.Citation + " " + d.Text)
		idx.lengths[i] = len(tokens)
		total += len(tokens)

		tf := termFrequencies(tokens)
		for term, n := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: n})
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(total) / float64(len(docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

func (idx *Index) idf(term string) float64 {
	n := float64(idx.Len())
	df := 0
	if idx != nil {
		df = len(idx.postings[term])
	}
	if df == 0 {
		return math.Log(n + 1)
	}
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// Search returns up to topK documents with a positive BM25 score for query, best first.
// Hits are document-level (Ordinal -1) and carry the raw BM25 score.
func (idx *Index) Search(query string, topK int) []candidate.Hit {
	if idx.Len() == 0 || topK <= 0 {
		return nil
	}
	terms := unique(Tokenize(query))
	scores := make(map[int]float64)
	for _, term := range terms {
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		idf := idx.idf(term)
		for _, p := range plist {
			scores[p.doc] += idf * saturate(float64(p.tf), float64(idx.lengths[p.doc]), idx.avgLen)
		}
	}

	hits := make([]candidate.Hit, 0, len(scores))
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		d := idx.docs[i]
		hits = append(hits, candidate.Hit{
			ID: d.ID, DocumentID: d.ID, Ordinal: -1,
			Text: d.Text, Metadata: d.Metadata, Score: s,
		})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// ScoreAgainst scores query against arbitrary texts using this index's document
// frequencies. Lengths and the average length come from texts themselves.
func (idx *Index) ScoreAgainst(query string, texts []string) []float64 {
	scores := make([]float64, len(texts))
	if len(texts) == 0 {
		return scores
	}
	terms := unique(Tokenize(query))
	if len(terms) == 0 {
		return scores
	}

	tfs := make([]map[string]int, len(texts))
	lengths := make([]int, len(texts))
	total := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		tfs[i] = termFrequencies(tokens)
		lengths[i] = len(tokens)
		total += len(tokens)
	}
	avg := float64(total) / float64(len(texts))

	idfs := make(map[string]float64, len(terms))
	for _, term := range terms {
		idfs[term] = idx.idf(term)
	}
	for i := range texts {
		for _, term := range terms {
			tf := tfs[i][term]
			if tf == 0 {
				continue
			}
			scores[i] += idfs[term] * saturate(float64(tf), float64(lengths[i]), avg)
		}
	}
	return scores
}

func saturate(tf, docLen, avgLen float64) float64 {
	norm := 1.0
	if avgLen > 0 {
		norm = 1 - B + B*docLen/avgLen
	}
	return tf * (K1 + 1) / (tf + K1*norm)
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
