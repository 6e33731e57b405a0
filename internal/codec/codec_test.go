package codec

import (
	"bytes"
	"testing"

	"github.com/chronokv/chronokv/pkg/models"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rec := models.Record{
		"item_id": models.StringValue("cat-987H1"),
		"amount":  models.IntValue(2500),
		"ok":      models.BoolValue(true),
	}
	member, err := Encode(1564632000000, rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(member, []byte("1564632000000|")) {
		t.Fatalf("member missing timestamp prefix: %q", member)
	}
	if member[len("1564632000000|")] != FlagPlain {
		t.Fatalf("expected plain flag, got %c", member[len("1564632000000|")])
	}

	ts, got, flag, err := Decode(member)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts != 1564632000000 {
		t.Fatalf("timestamp: got %d", ts)
	}
	if flag != FlagPlain {
		t.Fatalf("flag: got %c", flag)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(got))
	}
	if got["item_id"].Str != "cat-987H1" {
		t.Errorf("item_id: got %v", got["item_id"])
	}
	if got["amount"].Kind != models.KindInt || got["amount"].Int != 2500 {
		t.Errorf("amount: got %v", got["amount"])
	}
	if got["ok"].Kind != models.KindBool || !got["ok"].Bool {
		t.Errorf("ok: got %v", got["ok"])
	}
}

func TestEncode_FloatFlag(t *testing.T) {
	member, err := Encode(10, models.Record{"value": models.FloatValue(2.5)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if member[3] != FlagFloat {
		t.Fatalf("expected float flag, got %c", member[3])
	}

	// An integer-valued float needs no stringification on output.
	member, err = Encode(10, models.Record{"value": models.FloatValue(2.0)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if member[3] != FlagPlain {
		t.Fatalf("expected plain flag for integral float, got %c", member[3])
	}
}

func TestDecode_NumericStringCoercion(t *testing.T) {
	member, err := Encode(5, models.Record{"amount": models.StringValue("2500")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, rec, _, err := Decode(member)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["amount"].Kind != models.KindInt || rec["amount"].Int != 2500 {
		t.Fatalf("expected numeric coercion, got %+v", rec["amount"])
	}
}

func TestDecode_Corrupt(t *testing.T) {
	cases := map[string][]byte{
		"missing separator": []byte("12345"),
		"bad timestamp":     []byte("abc|nxx"),
		"truncated payload": []byte("123|"),
		"garbage payload":   []byte("123|n\xc1"),
	}
	for name, member := range cases {
		if _, _, _, err := Decode(member); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDecodeTimestamp(t *testing.T) {
	member, err := Encode(987654, models.Record{"v": models.IntValue(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ts, err := DecodeTimestamp(member)
	if err != nil {
		t.Fatalf("decode timestamp: %v", err)
	}
	if ts != 987654 {
		t.Fatalf("got %d", ts)
	}
}
