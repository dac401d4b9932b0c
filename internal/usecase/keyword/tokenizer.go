package keyword

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	// "Section 42(a)", "s. 42(a)", "§ 42(a)", "Art. 21(1)", "Rule 11".
	sectionRe = regexp.MustCompile(
		`(?:\b(section|sec|article|art|rule)\.?|(?:^|[\s(,;])(s)\.|(§))\s*(\d{1,4}[a-z]?)(?:\s*\(\s*([a-z0-9]{1,4})\s*\))?`)

	// "AIR 1973 SC 1461".
	airRe = regexp.MustCompile(`\bair\s+(\d{4})\s+([a-z]+)\s+(\d{1,5})\b`)

	// "410 U.S. 113", "(2019) 5 SCC 1".
	citationRe = regexp.MustCompile(
		`(?:\((\d{4})\)\s*)?\b(\d{1,4})\s+((?:[a-z]+\.)+[a-z0-9]*|scc|scr|sc|all|wlr|bom|mad|cal|del|ker|crlj|ac|qb|kb|ch|er)\s+(\d{1,5})\b`)

	wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// keep survives stop-word and length filtering: short legal abbreviations.
var keep = map[string]bool{
	"v": true, "vs": true, "us": true, "ipc": true, "crpc": true, "cpc": true,
	"sc": true, "hc": true, "air": true, "scc": true, "scr": true, "art": true,
	"sec": true, "s": true, "no": true, "act": true, "gst": true, "pil": true,
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"been": true, "but": true, "by": true, "can": true, "did": true, "do": true, "does": true,
	"for": true, "from": true, "had": true, "has": true, "have": true, "he": true, "her": true,
	"his": true, "how": true, "i": true, "if": true, "in": true, "into": true, "is": true,
	"it": true, "its": true, "me": true, "my": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "our": true, "she": true, "so": true, "such": true, "than": true,
	"that": true, "the": true, "their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "to": true, "under": true,
	"us": true, "was": true, "we": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "whom": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "about": true, "any": true,
	"all": true, "also": true, "after": true, "before": true, "between": true, "case": true,
	"cases": true, "find": true, "show": true, "related": true, "regarding": true,
}

// Tokenize lower-cases text, collapses citations and section references into single
// tokens, strips punctuation and drops stop words.
func Tokenize(text string) []string {
	s := strings.ToLower(text)
	s = sectionRe.ReplaceAllStringFunc(s, func(m string) string {
		g := sectionRe.FindStringSubmatch(m)
		word := g[1] + g[2] + g[3]
		switch word {
		case "section", "sec", "s", "§":
			word = "s"
		case "article", "art":
			word = "art"
		}
		tok := word + "_" + g[4]
		if g[5] != "" {
			tok += "_" + g[5]
		}
		return " " + tok + " "
	})
	s = airRe.ReplaceAllString(s, " air_${1}_${2}_${3} ")
	s = citationRe.ReplaceAllStringFunc(s, func(m string) string {
		g := citationRe.FindStringSubmatch(m)
		parts := make([]string, 0, 4)
		if g[1] != "" {
			parts = append(parts, g[1])
		}
		parts = append(parts, g[2], strings.ReplaceAll(g[3], ".", ""), g[4])
		return " " + strings.Join(parts, "_") + " "
	})

	words := wordRe.FindAllString(s, -1)
	tokens := words[:0]
	for _, w := range words {
		if keep[w] || strings.Contains(w, "_") {
			tokens = append(tokens, w)
			continue
		}
		if stopWords[w] || utf8.RuneCountInString(w) < 2 {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// IsStopWord reports whether w (lower-case) is dropped by Tokenize as a stop word.
func IsStopWord(w string) bool {
	return stopWords[w] && !keep[w]
}

// ContainsCitation reports whether text carries a recognizable case citation.
func ContainsCitation(text string) bool {
	s := strings.ToLower(text)
	return citationRe.MatchString(s) || airRe.MatchString(s)
}

// ReferenceSpans returns the byte ranges of section references and citations in s,
// which must already be lower-case. Spans are ordered and never overlap; on overlap the
// earlier, then longer, match wins.
func ReferenceSpans(s string) [][2]int {
	var all [][2]int
	for _, m := range sectionRe.FindAllStringSubmatchIndex(s, -1) {
		// Skip the separator matched ahead of "s.".
		start := m[0]
		for g := 1; g <= 3; g++ {
			if m[2*g] >= 0 {
				start = m[2*g]
				break
			}
		}
		all = append(all, [2]int{start, m[1]})
	}
	for _, re := range []*regexp.Regexp{airRe, citationRe} {
		for _, loc := range re.FindAllStringIndex(s, -1) {
			all = append(all, [2]int{loc[0], loc[1]})
		}
	}
	slices.SortFunc(all, func(a, b [2]int) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(b[1], a[1])
	})

	spans := all[:0]
	end := -1
	for _, sp := range all {
		if sp[0] < end {
			continue
		}
		spans = append(spans, sp)
		end = sp[1]
	}
	return spans
}
