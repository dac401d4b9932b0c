package search

import (
	"crypto/sha256"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/keyword"
)

// Drop reasons, used as metric labels.
const (
	dropDuplicate  = "duplicate"
	dropTooShort   = "too_short"
	dropZeroScore  = "zero_score"
	dropLowQuality = "low_quality"
)

const (
	fingerprintChars = 200
	duplicatePenalty = 0.90
	fullLengthChars  = 500
)

// fingerprint hashes the first 200 characters of the normalized text: lower-cased,
// whitespace collapsed and trimmed.
func fingerprint(text string) [sha256.Size]byte {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if utf8.RuneCountInString(norm) > fingerprintChars {
		norm = string([]rune(norm)[:fingerprintChars])
	}
	return sha256.Sum256([]byte(norm))
}

// Deduplicate keeps the first candidate of every fingerprint and returns the rest,
// penalized, as dropped. cands must be sorted best first. The fingerprint covers the
// body only, since every chunk of a document shares its metadata header. Identical
// fingerprints collapse within a document and across documents alike. Deduplicate is
// idempotent.
func Deduplicate(cands []candidate.Candidate) (kept, dropped []candidate.Candidate) {
	seen := make(map[[sha256.Size]byte]struct{}, len(cands))
	kept = make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		fp := fingerprint(c.Body())
		if _, dup := seen[fp]; dup {
			c.Composite *= duplicatePenalty
			dropped = append(dropped, c)
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, c)
	}
	return kept, dropped
}

// Quality scores a candidate in [0,1] from text length, metadata presence, citation
// presence and its composite score.
func Quality(c *candidate.Candidate) float64 {
	length := float64(utf8.RuneCountInString(strings.TrimSpace(c.Text)))
	q := 0.3 * min(length/fullLengthChars, 1)
	if !c.Metadata.IsEmpty() {
		q += 0.2
	}
	if c.Metadata.Citation != "" || keyword.ContainsCitation(c.Text) {
		q += 0.2
	}
	return q + 0.3*min(max(c.Composite, 0), 1)
}

// validate drops short, zero-scored and low-quality candidates and sets Quality on the rest.
func (s *Service) validate(cands []candidate.Candidate) []candidate.Candidate {
	out := cands[:0]
	for _, c := range cands {
		reason := ""
		switch {
		case utf8.RuneCountInString(strings.TrimSpace(c.Text)) < s.cfg.MinTextLength:
			reason = dropTooShort
		case c.Composite <= 0:
			reason = dropZeroScore
		default:
			c.Quality = Quality(&c)
			if c.Quality < s.cfg.QualityThreshold {
				reason = dropLowQuality
			}
		}
		if reason != "" {
			metrics.SearchCandidatesDroppedTotal.WithLabelValues(reason).Inc()
			s.logger.Debug("Dropped candidate",
				zap.String("id", c.ID),
				zap.String("reason", reason),
				zap.Float64("score", c.Composite))
			continue
		}
		out = append(out, c)
	}
	return out
}
