package search

import (
	"sort"

	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
)

// multiPathBoost rewards candidates surfaced by at least two retrieval paths.
const multiPathBoost = 1.10

// normalize divides every score by the maximum. A non-positive maximum yields zeros.
func normalize(scores []float64) []float64 {
	peak := 0.0
	for _, s := range scores {
		peak = max(peak, s)
	}
	out := make([]float64, len(scores))
	if peak <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = max(s, 0) / peak
	}
	return out
}

func normalizeHits(hits []candidate.Hit) []candidate.Hit {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	out := make([]candidate.Hit, len(hits))
	for i, s := range normalize(scores) {
		out[i] = hits[i]
		out[i].Score = s
	}
	return out
}

func fromHit(h candidate.Hit) candidate.Candidate {
	return candidate.Candidate{
		ID: h.ID, DocumentID: h.DocumentID, Ordinal: h.Ordinal,
		Text: h.Text, Metadata: h.Metadata,
	}
}

// merge builds one candidate per chunk from the semantic hits. Keyword and metadata hits
// are document level: their score attaches to every chunk candidate of that document,
// or to a single document-level candidate when no chunk of it was retrieved.
func merge(semantic, kw, meta []candidate.Hit) []candidate.Candidate {
	var out []candidate.Candidate
	byID := make(map[string]int)
	chunksOf := make(map[string][]int)

	for _, h := range normalizeHits(semantic) {
		if i, ok := byID[h.ID]; ok {
			out[i].Semantic = max(out[i].Semantic, h.Score)
			continue
		}
		c := fromHit(h)
		c.Semantic = h.Score
		c.Paths = candidate.PathSemantic
		byID[h.ID] = len(out)
		chunksOf[h.DocumentID] = append(chunksOf[h.DocumentID], len(out))
		out = append(out, c)
	}

	docLevel := make(map[string]int)
	attach := func(hits []candidate.Hit, p candidate.Path, set func(*candidate.Candidate, float64)) {
		for _, h := range normalizeHits(hits) {
			targets := chunksOf[h.DocumentID]
			if len(targets) == 0 {
				i, ok := docLevel[h.DocumentID]
				if !ok {
					c := fromHit(h)
					c.ID = h.DocumentID
					c.Ordinal = -1
					i = len(out)
					docLevel[h.DocumentID] = i
					out = append(out, c)
				}
				targets = []int{i}
			}
			for _, i := range targets {
				set(&out[i], h.Score)
				out[i].Paths |= p
			}
		}
	}
	attach(kw, candidate.PathKeyword, func(c *candidate.Candidate, s float64) {
		c.Keyword = max(c.Keyword, s)
	})
	attach(meta, candidate.PathMetadata, func(c *candidate.Candidate, s float64) {
		c.MetadataScore = max(c.MetadataScore, s)
	})
	return out
}

// effectiveWeights drops the reranker weight when the reranker is off and rescales the
// remaining weights to sum to one.
func effectiveWeights(w Weights, reranked bool) Weights {
	if reranked {
		return w
	}
	sum := w.Semantic + w.Keyword + w.Metadata
	if sum <= 0 {
		return Weights{}
	}
	return Weights{Semantic: w.Semantic / sum, Keyword: w.Keyword / sum, Metadata: w.Metadata / sum}
}

func composite(c *candidate.Candidate, w Weights) float64 {
	score := w.Semantic*c.Semantic + w.Reranker*c.Reranker + w.Keyword*c.Keyword + w.Metadata*c.MetadataScore
	if c.PathCount() >= 2 {
		score *= multiPathBoost
	}
	return score
}

// sortCandidates orders by composite, then semantic, reranker, keyword and metadata
// sub-scores, then id.
func sortCandidates(cands []candidate.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		for _, pair := range [][2]float64{
			{a.Composite, b.Composite},
			{a.Semantic, b.Semantic},
			{a.Reranker, b.Reranker},
			{a.Keyword, b.Keyword},
			{a.MetadataScore, b.MetadataScore},
		} {
			if pair[0] != pair[1] {
				return pair[0] > pair[1]
			}
		}
		return a.ID < b.ID
	})
}
