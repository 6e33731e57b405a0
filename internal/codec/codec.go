// Package codec owns the byte layout of a stored entry:
//
//	<decimal-ts> 0x7C <flag:1> <packed record>
//
// The packed record is a msgpack array of alternating field names and
// scalar values. The flag byte is 'f' when the record holds at least
// one non-integer float, else 'n'; it is recomputed on every encode and
// returned by Decode. Existing deployments depend on this exact layout.
package codec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chronokv/chronokv/pkg/models"
)

// Separator splits the decimal timestamp from the flagged payload.
const Separator byte = 0x7C

const (
	// FlagFloat marks an entry whose record holds a non-integer float.
	FlagFloat byte = 'f'
	// FlagPlain marks every other entry.
	FlagPlain byte = 'n'
)

// Encode renders an entry as its ordered-store member. Field order in
// the packed payload follows map iteration and is not normalized;
// ordering of members is carried entirely by the timestamp prefix.
// Lexicographic member order agrees with numeric timestamp order for
// timestamps of equal decimal width; range translation keeps mixed
// widths correct by always scanning with timestamp-prefix bounds.
func Encode(ts int64, rec models.Record) ([]byte, error) {
	payload := make([]interface{}, 0, 2*len(rec))
	for name, v := range rec {
		payload = append(payload, name, v.Native())
	}
	packed, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pack record: %w", err)
	}
	flag := FlagPlain
	if rec.HasNonIntegerFloat() {
		flag = FlagFloat
	}
	member := make([]byte, 0, 24+len(packed))
	member = strconv.AppendInt(member, ts, 10)
	member = append(member, Separator, flag)
	return append(member, packed...), nil
}

// Decode splits a stored member back into its timestamp, record and
// flag byte. A missing separator, non-numeric timestamp or truncated
// payload is a corrupt entry and fatal for the verb. String scalars
// that parse as numbers come back as numbers.
func Decode(member []byte) (int64, models.Record, byte, error) {
	i := bytes.IndexByte(member, Separator)
	if i < 0 {
		return 0, nil, 0, fmt.Errorf("corrupt entry: missing separator")
	}
	ts, err := strconv.ParseInt(string(member[:i]), 10, 64)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("corrupt entry: bad timestamp %q", member[:i])
	}
	if i+1 >= len(member) {
		return 0, nil, 0, fmt.Errorf("corrupt entry: truncated payload")
	}
	flag := member[i+1]
	var items []interface{}
	if err := msgpack.Unmarshal(member[i+2:], &items); err != nil {
		return 0, nil, 0, fmt.Errorf("corrupt entry: %w", err)
	}
	if len(items)%2 != 0 {
		return 0, nil, 0, fmt.Errorf("corrupt entry: odd record payload")
	}
	rec := make(models.Record, len(items)/2)
	for j := 0; j < len(items); j += 2 {
		name, ok := items[j].(string)
		if !ok {
			return 0, nil, 0, fmt.Errorf("corrupt entry: non-string field name %v", items[j])
		}
		v, err := models.FromNative(items[j+1])
		if err != nil {
			return 0, nil, 0, fmt.Errorf("corrupt entry: %w", err)
		}
		rec[name] = v.Coerce()
	}
	return ts, rec, flag, nil
}

// DecodeTimestamp parses only the timestamp prefix, for verbs that
// never look at the record.
func DecodeTimestamp(member []byte) (int64, error) {
	i := bytes.IndexByte(member, Separator)
	if i < 0 {
		return 0, fmt.Errorf("corrupt entry: missing separator")
	}
	ts, err := strconv.ParseInt(string(member[:i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt entry: bad timestamp %q", member[:i])
	}
	return ts, nil
}
