package filter

import "strings"

// Structured fields shared by the metadata store and the vector payload index.
const (
	FieldYear     = "year"
	FieldCourt    = "court"
	FieldCategory = "category"
	FieldDocType  = "doc_type"
)

// Predicates is the fixed set of recognized query predicates. Zero values mean "not set".
// Terms is the residual full-text predicate left over after extraction.
type Predicates struct {
	YearFrom int      `json:"year_from,omitempty"`
	YearTo   int      `json:"year_to,omitempty"`
	Court    string   `json:"court,omitempty"`
	Category string   `json:"category,omitempty"`
	DocType  string   `json:"doc_type,omitempty"`
	Terms    []string `json:"terms,omitempty"`
}

// HasYear reports whether a year bound is set.
func (p Predicates) HasYear() bool { return p.YearFrom > 0 || p.YearTo > 0 }

// Structured returns the number of structured (non-text) predicates.
func (p Predicates) Structured() int {
	n := 0
	if p.HasYear() {
		n++
	}
	for _, v := range []string{p.Court, p.Category, p.DocType} {
		if v != "" {
			n++
		}
	}
	return n
}

// Count returns the number of predicates; residual terms count as one.
func (p Predicates) Count() int {
	n := p.Structured()
	if len(p.Terms) > 0 {
		n++
	}
	return n
}

// IsEmpty reports whether no predicate is set.
func (p Predicates) IsEmpty() bool { return p.Count() == 0 }

// Normalize lower-cases categorical values and drops blank terms.
func (p Predicates) Normalize() Predicates {
	p.Court = strings.ToLower(strings.TrimSpace(p.Court))
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	p.DocType = strings.ToLower(strings.TrimSpace(p.DocType))
	terms := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	p.Terms = terms
	return p
}

// Expression converts the structured predicates into a vector pre-filter.
// Residual terms are not representable as a tag filter and are ignored.
func (p Predicates) Expression() (Expression, error) {
	var conds []Condition
	if p.HasYear() {
		var gte, lte *float64
		if p.YearFrom > 0 {
			v := float64(p.YearFrom)
			gte = &v
		}
		if p.YearTo > 0 {
			v := float64(p.YearTo)
			lte = &v
		}
		r, err := NewRangeFilter(gte, lte)
		if err != nil {
			return Expression{}, err
		}
		c, err := NewRange(FieldYear, r)
		if err != nil {
			return Expression{}, err
		}
		conds = append(conds, c)
	}
	for _, kv := range [][2]string{
		{FieldCourt, p.Court}, {FieldCategory, p.Category}, {FieldDocType, p.DocType},
	} {
		if kv[1] == "" {
			continue
		}
		c, err := NewMatch(kv[0], kv[1])
		if err != nil {
			return Expression{}, err
		}
		conds = append(conds, c)
	}
	return NewExpression(conds...)
}
