package filter

import (
	"strings"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestNewRangeFilter_Valid(t *testing.T) {
	tests := []struct {
		name     string
		gte, lte *float64
	}{
		{"gte only", floatPtr(2015), nil},
		{"lte only", nil, floatPtr(2020)},
		{"both", floatPtr(2015), floatPtr(2020)},
		{"single year", floatPtr(2019), floatPtr(2019)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeFilter(tt.gte, tt.lte)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (r.GTE() == nil) != (tt.gte == nil) {
				t.Error("GTE() mismatch")
			}
			if (r.LTE() == nil) != (tt.lte == nil) {
				t.Error("LTE() mismatch")
			}
		})
	}
}

func TestNewRangeFilter_NoBoundary(t *testing.T) {
	_, err := NewRangeFilter(nil, nil)
	if err == nil {
		t.Fatal("expected error for no boundary")
	}
	if !strings.Contains(err.Error(), "at least one") {
		t.Errorf("error = %q", err)
	}
}

func TestNewRangeFilter_Inverted(t *testing.T) {
	if _, err := NewRangeFilter(floatPtr(2020), floatPtr(2015)); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

func TestNewMatch_Validation(t *testing.T) {
	if _, err := NewMatch("", "x"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewMatch("court", ""); err == nil {
		t.Error("expected error for empty value")
	}
	c, err := NewMatch("court", "high court")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsMatch() || c.IsRange() {
		t.Error("expected match condition")
	}
}

func TestNewExpression_TooMany(t *testing.T) {
	conds := make([]Condition, MaxConditions+1)
	for i := range conds {
		conds[i], _ = NewMatch("court", "x")
	}
	if _, err := NewExpression(conds...); err == nil {
		t.Fatal("expected error for too many conditions")
	}
}

func TestPredicates_Count(t *testing.T) {
	p := Predicates{YearFrom: 2015, YearTo: 2020, Court: "supreme court", Terms: []string{"bail"}}
	if got := p.Structured(); got != 2 {
		t.Errorf("Structured() = %d, want 2", got)
	}
	if got := p.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if (Predicates{}).IsEmpty() != true {
		t.Error("zero predicates should be empty")
	}
}

func TestPredicates_Expression(t *testing.T) {
	p := Predicates{YearFrom: 2019, YearTo: 2019, Category: "criminal", Terms: []string{"ignored"}}
	expr, err := p.Expression()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(must))
	}
	if must[0].Key() != FieldYear || !must[0].IsRange() {
		t.Errorf("first condition = %+v, want year range", must[0])
	}
	if must[1].Key() != FieldCategory || must[1].Match() != "criminal" {
		t.Errorf("second condition = %+v, want category match", must[1])
	}
}

func TestPredicates_Normalize(t *testing.T) {
	p := Predicates{Court: " High Court ", Terms: []string{" Bail ", "", "  "}}.Normalize()
	if p.Court != "high court" {
		t.Errorf("Court = %q", p.Court)
	}
	if len(p.Terms) != 1 || p.Terms[0] != "bail" {
		t.Errorf("Terms = %v", p.Terms)
	}
}
