package engine

import (
	"strings"
	"testing"
)

func TestParseOptions_Full(t *testing.T) {
	opts, err := parseOptions([]string{
		"LIMIT", "5", "10",
		"FILTER", "state=active", "AND", "amount>100",
		"LABELS", "state", "amount",
		"FORMAT", "json",
		"STORAGE", "hash",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !opts.HasLimit || opts.Offset != 5 || opts.Count != 10 {
		t.Errorf("limit: %+v", opts)
	}
	if opts.Filter == nil {
		t.Error("filter missing")
	}
	if len(opts.Labels) != 2 {
		t.Errorf("labels: %v", opts.Labels)
	}
	if opts.Format != FormatJSON {
		t.Errorf("format: %v", opts.Format)
	}
	if opts.Storage != StorageHash {
		t.Errorf("storage: %v", opts.Storage)
	}
}

func TestParseOptions_CaseInsensitive(t *testing.T) {
	opts, err := parseOptions([]string{"limit", "0", "3", "format", "MSGPACK"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !opts.HasLimit || opts.Count != 3 || opts.Format != FormatMsgpack {
		t.Errorf("got %+v", opts)
	}
}

func TestParseOptions_ListTerminatesAtKeyword(t *testing.T) {
	opts, err := parseOptions([]string{"LABELS", "a", "b", "LIMIT", "0", "1"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.Labels) != 2 || !opts.HasLimit {
		t.Errorf("got %+v", opts)
	}
}

func TestParseOptions_Errors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"LIMIT", "x", "1"}, "LIMIT: offset value must be a number"},
		{[]string{"LIMIT", "1", "x"}, "LIMIT: count value must be a number"},
		{[]string{"LIMIT", "1"}, "LIMIT: missing offset and count"},
		{[]string{"LIMIT", "0", "1", "LIMIT", "0", "1"}, "LIMIT: option specified more than once"},
		{[]string{"LABELS", "a", "REDACT", "b"}, "mutually exclusive"},
		{[]string{"LABELS"}, "LABELS: missing label names"},
		{[]string{"FORMAT", "xml"}, "FORMAT: must be json or msgpack"},
		{[]string{"FORMAT"}, "FORMAT: must be json or msgpack"},
		{[]string{"STORAGE", "csv"}, "STORAGE: must be timeseries or hash"},
		{[]string{"bogus"}, "unknown option"},
		{[]string{"AGGREGATION", "10", "frobnicate(value)"}, "unknown aggregation kind"},
		{[]string{"AGGREGATION", "10"}, "AGGREGATION: missing arguments"},
		{[]string{"FILTER"}, "FILTER: missing expression"},
	}
	for _, c := range cases {
		_, err := parseOptions(c.args)
		if err == nil {
			t.Errorf("%v: expected error", c.args)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%v: got %q, want substring %q", c.args, err, c.want)
		}
	}
}

func TestParseAggSpec_Forms(t *testing.T) {
	// Functional form: bucket first, kind(field) pairs follow.
	spec, err := parseAggSpec([]string{"10", "avg(value)", "max(load)", "stats(value)"})
	if err != nil {
		t.Fatalf("functional: %v", err)
	}
	if spec.Bucket != 10 || len(spec.Pairs) != 3 {
		t.Fatalf("functional: %+v", spec)
	}
	if spec.Pairs[1].Kind != "max" || spec.Pairs[1].Field != "load" {
		t.Fatalf("functional pair: %+v", spec.Pairs[1])
	}

	// Legacy form: kind first, bucket second, implicit field "value".
	spec, err = parseAggSpec([]string{"avg", "10"})
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if spec.Bucket != 10 || len(spec.Pairs) != 1 {
		t.Fatalf("legacy: %+v", spec)
	}
	if spec.Pairs[0].Kind != "avg" || spec.Pairs[0].Field != "value" {
		t.Fatalf("legacy pair: %+v", spec.Pairs[0])
	}

	// Kinds are case-insensitive in both forms.
	spec, err = parseAggSpec([]string{"10", "AVG(value)"})
	if err != nil || spec.Pairs[0].Kind != "avg" {
		t.Fatalf("case: %+v %v", spec, err)
	}
}

func TestParseAggSpec_Errors(t *testing.T) {
	bad := [][]string{
		{"10"},
		{"0", "avg(value)"},
		{"-5", "avg(value)"},
		{"avg", "x"},
		{"frobnicate", "10"},
		{"10", "avg value"},
		{"10", "avg()"},
		{"avg", "10", "extra"},
	}
	for _, toks := range bad {
		if _, err := parseAggSpec(toks); err == nil {
			t.Errorf("%v: expected error", toks)
		}
	}
}
