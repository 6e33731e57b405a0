// Package engine implements the time-series verb set over an ordered
// key-value store: a single-entry dispatcher driving the
// decode -> filter -> project -> aggregate -> format pipeline. The
// engine is single-threaded within one invocation; the host serializes
// invocations per series and makes each one atomic.
package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chronokv/chronokv/internal/codec"
	"github.com/chronokv/chronokv/internal/store"
	"github.com/chronokv/chronokv/pkg/models"
)

// Engine executes verbs against one ordered store.
type Engine struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger; the engine logs on the debug level
// only.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the wall clock used by the "*" bound token.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over st.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{store: st, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type handler func(e *Engine, key string, args []string) (interface{}, error)

// commands is the static dispatch table; verbs are matched
// lower-cased. For copy the first argument is the destination key.
var commands = map[string]handler{
	"add":      cmdAdd,
	"del":      cmdDel,
	"set":      cmdSet,
	"incrby":   cmdIncrBy,
	"get":      cmdGet,
	"pop":      cmdPop,
	"size":     cmdSize,
	"exists":   cmdExists,
	"span":     cmdSpan,
	"times":    cmdTimes,
	"count":    cmdCount,
	"range":    cmdRange,
	"revrange": cmdRevRange,
	"poprange": cmdPopRange,
	"remrange": cmdRemRange,
	"copy":     cmdCopy,
}

// Exec runs one verb invocation against the series at key. Verb names
// are case-insensitive. Any error leaves the store unchanged for the
// verbs that write after materializing.
func (e *Engine) Exec(verb, key string, args ...string) (interface{}, error) {
	h, ok := commands[strings.ToLower(verb)]
	if !ok {
		return nil, fmt.Errorf("Timeseries: unknown command %s", verb)
	}
	reply, err := h(e, key, args)
	if err != nil {
		e.log.Debug().Str("verb", verb).Str("key", key).Err(err).Msg("verb failed")
		return nil, err
	}
	return reply, nil
}

// entry is one decoded scan element; member is the raw stored key so
// destructive verbs can remove exactly what passed the filter.
type entry struct {
	member []byte
	ts     int64
	rec    models.Record
}

// fetchPoint looks up the single entry at ts. More than one stored
// member under the same timestamp prefix is an invariant violation.
func (e *Engine) fetchPoint(key string, ts int64) (*entry, error) {
	min, max := pointBounds(ts)
	members, err := e.store.RangeByLex(key, min, max, false, 0, 2)
	if err != nil {
		return nil, err
	}
	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		ets, rec, _, err := codec.Decode(members[0])
		if err != nil {
			return nil, fmt.Errorf("Timeseries: %w", err)
		}
		return &entry{member: members[0], ts: ets, rec: rec}, nil
	default:
		return nil, fmt.Errorf("Timeseries: multiple entries for timestamp %d", ts)
	}
}

// upsertEntry replaces whatever is stored at ts with rec, keeping the
// one-member-per-timestamp invariant.
func (e *Engine) upsertEntry(key string, ts int64, rec models.Record) error {
	member, err := codec.Encode(ts, rec)
	if err != nil {
		return fmt.Errorf("Timeseries: %w", err)
	}
	min, max := pointBounds(ts)
	if _, err := e.store.RemRangeByLex(key, min, max); err != nil {
		return err
	}
	return e.store.Add(key, member)
}

func parseFieldPairs(verb string, args []string) (models.Record, []string, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, nil, fmt.Errorf("%s: wrong number of arguments", verb)
	}
	rec := make(models.Record, len(args)/2)
	names := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name := args[i]
		if !isIdent(name) {
			return nil, nil, fmt.Errorf("%s: invalid field name %q", verb, name)
		}
		rec[name] = models.ParseScalar(args[i+1])
		names = append(names, name)
	}
	return rec, names, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i], i == 0) {
			return false
		}
	}
	return true
}

func cmdAdd(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("ADD: wrong number of arguments")
	}
	ts, err := e.parseTimestamp("ADD", args[0])
	if err != nil {
		return nil, err
	}
	rec, _, err := parseFieldPairs("ADD", args[1:])
	if err != nil {
		return nil, err
	}
	if err := e.upsertEntry(key, ts, rec); err != nil {
		return nil, err
	}
	return ts, nil
}

func cmdDel(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("DEL: wrong number of arguments")
	}
	removed := int64(0)
	for _, arg := range args {
		ts, err := e.parseTimestamp("DEL", arg)
		if err != nil {
			return nil, err
		}
		ent, err := e.fetchPoint(key, ts)
		if err != nil {
			return nil, err
		}
		if ent == nil {
			continue
		}
		n, err := e.store.Rem(key, ent.member)
		if err != nil {
			return nil, err
		}
		removed += int64(n)
	}
	return removed, nil
}

func cmdSet(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("SET: wrong number of arguments")
	}
	ts, err := e.parseTimestamp("SET", args[0])
	if err != nil {
		return nil, err
	}
	updates, _, err := parseFieldPairs("SET", args[1:])
	if err != nil {
		return nil, err
	}
	ent, err := e.fetchPoint(key, ts)
	if err != nil {
		return nil, err
	}
	merged := make(models.Record)
	if ent != nil {
		merged = ent.rec.Clone()
	}
	for name, v := range updates {
		merged[name] = v
	}
	if err := e.upsertEntry(key, ts, merged); err != nil {
		return nil, err
	}
	return nil, nil
}

func cmdIncrBy(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) < 3 || len(args)%2 == 0 {
		return nil, fmt.Errorf("INCRBY: wrong number of arguments")
	}
	ts, err := e.parseTimestamp("INCRBY", args[0])
	if err != nil {
		return nil, err
	}
	ent, err := e.fetchPoint(key, ts)
	if err != nil {
		return nil, err
	}
	rec := make(models.Record)
	if ent != nil {
		rec = ent.rec.Clone()
	}
	results := make([]interface{}, 0, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		name := args[i]
		if !isIdent(name) {
			return nil, fmt.Errorf("INCRBY: invalid field name %q", name)
		}
		delta, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("INCRBY: increment value must be a number")
		}
		cur := 0.0
		if v := rec.Get(name); !v.IsNull() {
			n, ok := v.Num()
			if !ok {
				return nil, fmt.Errorf("INCRBY: field %s is not a number", name)
			}
			cur = n
		}
		next := cur + delta
		var nv models.Value
		if next == float64(int64(next)) {
			nv = models.IntValue(int64(next))
		} else {
			nv = models.FloatValue(next)
		}
		rec[name] = nv
		results = append(results, nv.Native())
	}
	if err := e.upsertEntry(key, ts, rec); err != nil {
		return nil, err
	}
	return formatReply(results, FormatDefault)
}

func pointRead(e *Engine, verb, key string, args []string, pop bool) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s: wrong number of arguments", verb)
	}
	ts, err := e.parseTimestamp(verb, args[0])
	if err != nil {
		return nil, err
	}
	opts, err := parseOptions(args[1:])
	if err != nil {
		return nil, err
	}
	ent, err := e.fetchPoint(key, ts)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, nil
	}
	rec := ent.rec.Project(opts.Labels, opts.Redact)
	reply, err := formatReply(rec.Native(), opts.Format)
	if err != nil {
		return nil, err
	}
	if pop {
		if _, err := e.store.Rem(key, ent.member); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func cmdGet(e *Engine, key string, args []string) (interface{}, error) {
	return pointRead(e, "GET", key, args, false)
}

func cmdPop(e *Engine, key string, args []string) (interface{}, error) {
	return pointRead(e, "POP", key, args, true)
}

func cmdSize(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("SIZE: wrong number of arguments")
	}
	n, err := e.store.Card(key)
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func cmdExists(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("EXISTS: wrong number of arguments")
	}
	ts, err := e.parseTimestamp("EXISTS", args[0])
	if err != nil {
		return nil, err
	}
	ent, err := e.fetchPoint(key, ts)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return int64(0), nil
	}
	return int64(1), nil
}

func cmdSpan(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("SPAN: wrong number of arguments")
	}
	first, err := e.store.RangeByLex(key, "-", "+", false, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return []interface{}{}, nil
	}
	last, err := e.store.RangeByLex(key, "-", "+", true, 0, 1)
	if err != nil {
		return nil, err
	}
	minTs, err := codec.DecodeTimestamp(first[0])
	if err != nil {
		return nil, fmt.Errorf("Timeseries: %w", err)
	}
	maxTs, err := codec.DecodeTimestamp(last[0])
	if err != nil {
		return nil, fmt.Errorf("Timeseries: %w", err)
	}
	return []interface{}{minTs, maxTs}, nil
}

// splitBoundArgs peels an optional leading from/to pair off args.
func splitBoundArgs(args []string) (string, string, []string) {
	if len(args) >= 2 && !isOptionKeyword(args[0]) && !isOptionKeyword(args[1]) {
		return args[0], args[1], args[2:]
	}
	return "-", "+", args
}

func cmdTimes(e *Engine, key string, args []string) (interface{}, error) {
	from, to, rest := splitBoundArgs(args)
	opts, err := parseOptions(rest)
	if err != nil {
		return nil, err
	}
	entries, _, err := e.scan(key, from, to, false, opts)
	if err != nil {
		return nil, err
	}
	times := make([]interface{}, len(entries))
	for i, ent := range entries {
		times[i] = ent.ts
	}
	return formatReply(times, opts.Format)
}

func cmdCount(e *Engine, key string, args []string) (interface{}, error) {
	from, to, rest := splitBoundArgs(args)
	opts, err := parseOptions(rest)
	if err != nil {
		return nil, err
	}
	// Fast path: an unfiltered, unlimited count is one store call.
	if opts.Filter == nil && !opts.HasLimit {
		min, max, err := e.translateBounds(from, to)
		if err != nil {
			return nil, err
		}
		n, err := e.store.LexCount(key, min, max)
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	}
	entries, _, err := e.scan(key, from, to, false, opts)
	if err != nil {
		return nil, err
	}
	return int64(len(entries)), nil
}

// scan is FETCH -> DECODE -> FILTER: it returns the surviving
// entries in iteration order plus their raw members for destructive
// tails. LIMIT is forwarded to the store, so offset/count apply to
// the raw scan before filtering, as in the original.
func (e *Engine) scan(key, from, to string, rev bool, opts *Options) ([]entry, [][]byte, error) {
	min, max, err := e.translateBounds(from, to)
	if err != nil {
		return nil, nil, err
	}
	offset, count := 0, -1
	if opts.HasLimit {
		offset, count = opts.Offset, opts.Count
	}
	members, err := e.store.RangeByLex(key, min, max, rev, offset, count)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]entry, 0, len(members))
	var kept [][]byte
	for _, member := range members {
		ts, rec, _, err := codec.Decode(member)
		if err != nil {
			return nil, nil, fmt.Errorf("Timeseries: %w", err)
		}
		if opts.Filter != nil && !opts.Filter.Match(rec) {
			continue
		}
		entries = append(entries, entry{member: member, ts: ts, rec: rec})
		kept = append(kept, member)
	}
	return entries, kept, nil
}

// rangeRead is the shared range/revrange/poprange pipeline:
// scan -> project -> aggregate -> format, with an optional
// destructive tail that removes exactly the raw keys that passed the
// filter, after the reply is materialized.
func rangeRead(e *Engine, verb, key string, args []string, rev, destructive bool) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: wrong number of arguments", verb)
	}
	opts, err := parseOptions(args[2:])
	if err != nil {
		return nil, err
	}
	entries, kept, err := e.scan(key, args[0], args[1], rev, opts)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].rec = entries[i].rec.Project(opts.Labels, opts.Redact)
	}
	rows := make([]interface{}, 0, len(entries))
	if opts.Agg != nil {
		agg := newAggregator(opts.Agg)
		for _, ent := range entries {
			agg.observe(ent.ts, ent.rec)
		}
		for _, row := range agg.rows() {
			rows = append(rows, []interface{}{row.ts, row.fields})
		}
	} else {
		for _, ent := range entries {
			rows = append(rows, []interface{}{ent.ts, ent.rec.Native()})
		}
	}
	reply, err := formatReply(rows, opts.Format)
	if err != nil {
		return nil, err
	}
	if destructive && len(kept) > 0 {
		if _, err := e.store.Rem(key, kept...); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func cmdRange(e *Engine, key string, args []string) (interface{}, error) {
	return rangeRead(e, "RANGE", key, args, false, false)
}

func cmdRevRange(e *Engine, key string, args []string) (interface{}, error) {
	return rangeRead(e, "REVRANGE", key, args, true, false)
}

func cmdPopRange(e *Engine, key string, args []string) (interface{}, error) {
	return rangeRead(e, "POPRANGE", key, args, false, true)
}

func cmdRemRange(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("REMRANGE: wrong number of arguments")
	}
	opts, err := parseOptions(args[2:])
	if err != nil {
		return nil, err
	}
	// Fast path: no filter and no limit is one store call.
	if opts.Filter == nil && !opts.HasLimit {
		min, max, err := e.translateBounds(args[0], args[1])
		if err != nil {
			return nil, err
		}
		n, err := e.store.RemRangeByLex(key, min, max)
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	}
	_, kept, err := e.scan(key, args[0], args[1], false, opts)
	if err != nil {
		return nil, err
	}
	if len(kept) == 0 {
		return int64(0), nil
	}
	n, err := e.store.Rem(key, kept...)
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func cmdCopy(e *Engine, key string, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("COPY: wrong number of arguments")
	}
	dest := args[0]
	from, to := args[1], args[2]
	opts, err := parseOptions(args[3:])
	if err != nil {
		return nil, err
	}
	// Fast path: a plain timeseries copy moves raw members without
	// decoding.
	plain := opts.Filter == nil && opts.Agg == nil &&
		len(opts.Labels) == 0 && len(opts.Redact) == 0 &&
		opts.Storage == StorageTimeseries
	if plain {
		min, max, err := e.translateBounds(from, to)
		if err != nil {
			return nil, err
		}
		offset, count := 0, -1
		if opts.HasLimit {
			offset, count = opts.Offset, opts.Count
		}
		members, err := e.store.RangeByLex(key, min, max, false, offset, count)
		if err != nil {
			return nil, err
		}
		if err := e.store.AddBatch(dest, members); err != nil {
			return nil, err
		}
		return int64(len(members)), nil
	}
	entries, _, err := e.scan(key, from, to, false, opts)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].rec = entries[i].rec.Project(opts.Labels, opts.Redact)
	}
	if opts.Agg != nil {
		agg := newAggregator(opts.Agg)
		for _, ent := range entries {
			agg.observe(ent.ts, ent.rec)
		}
		rows := agg.rows()
		for _, row := range rows {
			rec := flattenRow(row)
			if err := e.copyWrite(dest, row.ts, rec, opts.Storage); err != nil {
				return nil, err
			}
		}
		return int64(len(rows)), nil
	}
	for _, ent := range entries {
		if err := e.copyWrite(dest, ent.ts, ent.rec, opts.Storage); err != nil {
			return nil, err
		}
	}
	return int64(len(entries)), nil
}

func (e *Engine) copyWrite(dest string, ts int64, rec models.Record, kind StorageKind) error {
	if kind == StorageHash {
		b, err := json.Marshal(rec.Native())
		if err != nil {
			return fmt.Errorf("Timeseries: %w", err)
		}
		return e.store.HSet(dest, strconv.FormatInt(ts, 10), string(b))
	}
	return e.upsertEntry(dest, ts, rec)
}
