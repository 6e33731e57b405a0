package engine

import (
	"testing"

	"github.com/chronokv/chronokv/pkg/models"
)

func mustFilter(t *testing.T, tokens ...string) *Filter {
	t.Helper()
	f, err := ParseFilter(tokens)
	if err != nil {
		t.Fatalf("parse %v: %v", tokens, err)
	}
	return f
}

func TestFilter_Comparisons(t *testing.T) {
	rec := models.Record{
		"state":  models.StringValue("active"),
		"amount": models.IntValue(2500),
		"rate":   models.FloatValue(2.5),
	}
	cases := []struct {
		expr string
		want bool
	}{
		{"state=active", true},
		{"state=idle", false},
		{"state!=idle", true},
		{"amount=2500", true},
		{"amount>=2500", true},
		{"amount>2500", false},
		{"amount<3000", true},
		{"amount<=2499", false},
		{"rate>2", true},
		{"rate<=2.5", true},
		// Numeric field vs non-numeric rhs under ordering: predicate
		// fails, verb does not abort.
		{"amount>abc", false},
		// String ordering.
		{"state>aaa", true},
		{"state<zzz", true},
	}
	for _, c := range cases {
		f := mustFilter(t, c.expr)
		if got := f.Match(rec); got != c.want {
			t.Errorf("%s: got %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestFilter_NullSemantics(t *testing.T) {
	rec := models.Record{"present": models.IntValue(1)}
	cases := []struct {
		expr string
		want bool
	}{
		{"missing=null", true},
		{"missing!=null", false},
		{"present=null", false},
		{"present!=null", true},
		{"missing=5", false},
		{"missing!=5", true},
		{"missing>5", false},
	}
	for _, c := range cases {
		f := mustFilter(t, c.expr)
		if got := f.Match(rec); got != c.want {
			t.Errorf("%s: got %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestFilter_NumericStringCoercion(t *testing.T) {
	rec := models.Record{"amount": models.StringValue("2500")}
	if !mustFilter(t, "amount=2500").Match(rec) {
		t.Error("numeric string should compare numerically")
	}
	if !mustFilter(t, "amount>100").Match(rec) {
		t.Error("numeric string ordering")
	}
}

func TestFilter_SetMembership(t *testing.T) {
	rec := models.Record{
		"job": models.StringValue("reader"),
		"n":   models.IntValue(5),
	}
	cases := []struct {
		expr string
		want bool
	}{
		{"job=(reader,writer)", true},
		{"job=(admin,guest)", false},
		{"job!=(admin,guest)", true},
		{"job!=(reader)", false},
		// Membership stringifies the field.
		{"n=(5,6)", true},
		{`job=("reader",writer)`, true},
		{`job=("rea""der")`, false},
	}
	for _, c := range cases {
		f := mustFilter(t, c.expr)
		if got := f.Match(rec); got != c.want {
			t.Errorf("%s: got %v, want %v", c.expr, got, c.want)
		}
	}

	quoted := models.Record{"job": models.StringValue(`rea"der`)}
	if !mustFilter(t, `job=("rea""der")`).Match(quoted) {
		t.Error("doubled quote should escape a literal quote")
	}
}

func TestFilter_Joins(t *testing.T) {
	rec := models.Record{
		"a": models.IntValue(1),
		"b": models.IntValue(2),
	}
	cases := []struct {
		tokens []string
		want   bool
	}{
		{[]string{"a=1", "AND", "b=2"}, true},
		{[]string{"a=1", "and", "b=3"}, false},
		{[]string{"a=9", "OR", "b=2"}, true},
		{[]string{"a=9", "or", "b=3"}, false},
		// No precedence: left fold in input order.
		// (false AND true) OR true = true
		{[]string{"a=9", "AND", "b=2", "OR", "b=2"}, true},
		// (true OR false) AND false = false
		{[]string{"a=1", "OR", "b=3", "AND", "b=3"}, false},
	}
	for _, c := range cases {
		f := mustFilter(t, c.tokens...)
		if got := f.Match(rec); got != c.want {
			t.Errorf("%v: got %v, want %v", c.tokens, got, c.want)
		}
	}
}

func TestFilter_ParseErrors(t *testing.T) {
	bad := [][]string{
		{},
		{"noop"},
		{"=5"},
		{"a=1", "NOR", "b=2"},
		{"a=1", "AND"},
		{"1a=5"},
	}
	for _, tokens := range bad {
		if _, err := ParseFilter(tokens); err == nil {
			t.Errorf("%v: expected parse error", tokens)
		}
	}
}

func TestFilter_OperatorLongestMatch(t *testing.T) {
	rec := models.Record{"a": models.IntValue(5)}
	if !mustFilter(t, "a<=5").Match(rec) {
		t.Error("<= must not parse as <")
	}
	if !mustFilter(t, "a>=5").Match(rec) {
		t.Error(">= must not parse as >")
	}
	if mustFilter(t, "a!=5").Match(rec) {
		t.Error("!= must not parse as =")
	}
}
