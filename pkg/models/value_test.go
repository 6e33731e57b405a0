package models

import "testing"

func TestParseScalar(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
	}{
		{"2500", KindInt},
		{"2.5", KindFloat},
		{"-14", KindInt},
		{"cat-987H1", KindString},
		{"", KindString},
		{"1e3", KindFloat},
	}
	for _, c := range cases {
		if got := ParseScalar(c.in).Kind; got != c.kind {
			t.Errorf("ParseScalar(%q): kind %v, want %v", c.in, got, c.kind)
		}
	}
}

func TestValue_Num(t *testing.T) {
	if n, ok := IntValue(42).Num(); !ok || n != 42 {
		t.Errorf("int: %v %v", n, ok)
	}
	if n, ok := StringValue("2.5").Num(); !ok || n != 2.5 {
		t.Errorf("numeric string: %v %v", n, ok)
	}
	if _, ok := StringValue("abc").Num(); ok {
		t.Error("non-numeric string should not be numeric")
	}
	if _, ok := BoolValue(true).Num(); ok {
		t.Error("bool should not be numeric")
	}
	if _, ok := Null().Num(); ok {
		t.Error("null should not be numeric")
	}
}

func TestValue_Equal(t *testing.T) {
	if !IntValue(5).Equal(FloatValue(5)) {
		t.Error("5 != 5.0")
	}
	if !StringValue("5").Equal(IntValue(5)) {
		t.Error("numeric string should equal number")
	}
	if !StringValue("abc").Equal(StringValue("abc")) {
		t.Error("string equality")
	}
	if IntValue(5).Equal(Null()) {
		t.Error("number should not equal null")
	}
	if !Null().Equal(Null()) {
		t.Error("null equals null")
	}
	// Incompatible kinds fall back to string comparison.
	if !BoolValue(true).Equal(StringValue("true")) {
		t.Error("bool vs string falls back to text")
	}
}

func TestValue_String(t *testing.T) {
	if s := FloatValue(3.5).String(); s != "3.5" {
		t.Errorf("float: %q", s)
	}
	if s := FloatValue(0.1).String(); s != "0.1" {
		t.Errorf("full precision: %q", s)
	}
	if s := IntValue(-7).String(); s != "-7" {
		t.Errorf("int: %q", s)
	}
}

func TestRecord_Project(t *testing.T) {
	rec := Record{
		"a": IntValue(1),
		"b": IntValue(2),
		"c": IntValue(3),
	}
	got := rec.Project([]string{"a", "c", "zz"}, nil)
	if len(got) != 2 || got["a"].Int != 1 || got["c"].Int != 3 {
		t.Fatalf("labels: %+v", got)
	}
	got = rec.Project(nil, []string{"b"})
	if len(got) != 2 || got["b"].Kind != KindNull {
		t.Fatalf("redact: %+v", got)
	}
}
