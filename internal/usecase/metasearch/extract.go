// Package metasearch turns natural-language queries into structured predicates and scores
// documents by how many of them they satisfy.
package metasearch

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/keyword"
)

const yearPat = `((?:18|19|20)\d{2})`

var (
	yearBetweenRe = regexp.MustCompile(`\b(?:between|from)\s+` + yearPat + `\s+(?:and|to|-)\s+` + yearPat + `\b`)
	yearBeforeRe  = regexp.MustCompile(`\b(?:before|prior to)\s+` + yearPat + `\b`)
	yearAfterRe   = regexp.MustCompile(`\b(?:after|since)\s+` + yearPat + `\b`)
	yearSingleRe  = regexp.MustCompile(`\b(?:in\s+|of\s+)?` + yearPat + `\b`)

	// Connectives that look like document types.
	fillerRe = regexp.MustCompile(`\bin\s+order\s+(?:to|that)\b`)

	residualRe = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

type keywordRule struct {
	re    *regexp.Regexp
	value string
}

func rules(pairs ...string) []keywordRule {
	out := make([]keywordRule, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, keywordRule{re: regexp.MustCompile(`\b` + pairs[i] + `\b`), value: pairs[i+1]})
	}
	return out
}

var (
	courtRules = rules(
		`supreme\s+court`, "supreme court",
		`high\s+courts?`, "high court",
		`district\s+courts?`, "district court",
		`tribunals?`, "tribunal",
	)
	categoryRules = rules(
		`criminal`, "criminal",
		`civil`, "civil",
		`constitutional`, "constitutional",
		`tax(?:ation)?`, "tax",
		`family`, "family",
		`labou?r`, "labour",
		`corporate`, "corporate",
		`property`, "property",
	)
	docTypeRules = rules(
		`judg(?:e)?ments?`, "judgment",
		`orders?`, "order",
		`statutes?`, "statute",
		`acts?`, "act",
		`notifications?`, "notification",
		`petitions?`, "petition",
		`contracts?`, "contract",
	)
)

// ExtractFilters recognizes year, court, category and document-type phrases in query.
// Recognized spans are removed and the remaining words, minus stop words, become
// the residual Terms predicate. Only the first phrase of each kind is used.
// Section references and citations are kept whole as leading Terms and never read as
// years.
func ExtractFilters(query string) filter.Predicates {
	var p filter.Predicates
	s := strings.ToLower(query)

	s, p.Terms = extractReferences(s)
	s = fillerRe.ReplaceAllString(s, " ")
	s = extractYear(s, &p)
	s, p.Court = extractKeyword(s, courtRules)
	s, p.Category = extractKeyword(s, categoryRules)
	s, p.DocType = extractKeyword(s, docTypeRules)

	for _, w := range residualRe.FindAllString(s, -1) {
		if keyword.IsStopWord(w) || utf8.RuneCountInString(w) < 2 {
			continue
		}
		p.Terms = append(p.Terms, w)
	}
	return p
}

// extractReferences cuts "section 302", "air 1973 sc 1461" and the like out of s and
// returns them as phrases.
func extractReferences(s string) (string, []string) {
	spans := keyword.ReferenceSpans(s)
	if len(spans) == 0 {
		return s, nil
	}
	refs := make([]string, 0, len(spans))
	for _, sp := range spans {
		refs = append(refs, strings.Join(strings.Fields(s[sp[0]:sp[1]]), " "))
	}
	for i := len(spans) - 1; i >= 0; i-- {
		s = cut(s, spans[i][0], spans[i][1])
	}
	return s, refs
}

func extractYear(s string, p *filter.Predicates) string {
	if m := yearBetweenRe.FindStringSubmatchIndex(s); m != nil {
		from, _ := strconv.Atoi(s[m[2]:m[3]])
		to, _ := strconv.Atoi(s[m[4]:m[5]])
		if from > to {
			from, to = to, from
		}
		p.YearFrom, p.YearTo = from, to
		return cut(s, m[0], m[1])
	}
	if m := yearBeforeRe.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		p.YearTo = y - 1
		return cut(s, m[0], m[1])
	}
	if m := yearAfterRe.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		p.YearFrom = y + 1
		return cut(s, m[0], m[1])
	}
	if m := yearSingleRe.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		p.YearFrom, p.YearTo = y, y
		return cut(s, m[0], m[1])
	}
	return s
}

func extractKeyword(s string, rules []keywordRule) (string, string) {
	for _, r := range rules {
		if loc := r.re.FindStringIndex(s); loc != nil {
			return cut(s, loc[0], loc[1]), r.value
		}
	}
	return s, ""
}

func cut(s string, start, end int) string {
	return s[:start] + " " + s[end:]
}
