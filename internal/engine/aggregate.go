package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chronokv/chronokv/pkg/models"
)

// AggPair is one (kind, field) reduction.
type AggPair struct {
	Kind  string
	Field string
}

// AggSpec is a compiled AGGREGATION clause: tumbling windows of
// Bucket width, one accumulator per (field, kind) pair per bucket.
type AggSpec struct {
	Bucket int64
	Pairs  []AggPair
}

var aggKinds = map[string]struct{}{
	"count":          {},
	"rate":           {},
	"sum":            {},
	"avg":            {},
	"min":            {},
	"max":            {},
	"first":          {},
	"last":           {},
	"range":          {},
	"stats":          {},
	"distinct":       {},
	"count_distinct": {},
	"data":           {},
}

var aggFuncRe = regexp.MustCompile(`^([A-Za-z_]+)\(([A-Za-z_][A-Za-z0-9_]*)\)$`)

// parseAggSpec accepts both surface syntaxes, disambiguated by the
// first token: a number is the bucket width and functional
// `kind(field)` pairs follow; anything else is the legacy
// `kind bucket` form with the implicit field "value".
func parseAggSpec(toks []string) (*AggSpec, error) {
	if len(toks) < 2 {
		return nil, fmt.Errorf("AGGREGATION: missing arguments")
	}
	if bucket, err := strconv.ParseInt(toks[0], 10, 64); err == nil {
		if bucket <= 0 {
			return nil, fmt.Errorf("AGGREGATION: bucket width must be a positive number")
		}
		spec := &AggSpec{Bucket: bucket}
		for _, tok := range toks[1:] {
			m := aggFuncRe.FindStringSubmatch(tok)
			if m == nil {
				return nil, fmt.Errorf("AGGREGATION: unable to parse %s", tok)
			}
			kind := strings.ToLower(m[1])
			if _, ok := aggKinds[kind]; !ok {
				return nil, fmt.Errorf("AGGREGATION: unknown aggregation kind %s", m[1])
			}
			spec.Pairs = append(spec.Pairs, AggPair{Kind: kind, Field: m[2]})
		}
		return spec, nil
	}
	kind := strings.ToLower(toks[0])
	if _, ok := aggKinds[kind]; !ok {
		return nil, fmt.Errorf("AGGREGATION: unknown aggregation kind %s", toks[0])
	}
	bucket, err := strconv.ParseInt(toks[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("AGGREGATION: bucket width must be a number")
	}
	if bucket <= 0 {
		return nil, fmt.Errorf("AGGREGATION: bucket width must be a positive number")
	}
	if len(toks) > 2 {
		return nil, fmt.Errorf("AGGREGATION: unable to parse %s", toks[2])
	}
	return &AggSpec{Bucket: bucket, Pairs: []AggPair{{Kind: kind, Field: "value"}}}, nil
}

// accumulator is one per-bucket reduction state.
type accumulator interface {
	add(v models.Value)
	result() interface{}
}

func newAccumulator(kind string, bucket int64) accumulator {
	switch kind {
	case "count":
		return &countAcc{}
	case "rate":
		return &rateAcc{bucket: bucket}
	case "sum":
		return &sumAcc{}
	case "avg":
		return &avgAcc{}
	case "min":
		return &extremumAcc{min: true}
	case "max":
		return &extremumAcc{}
	case "first":
		return &firstAcc{}
	case "last":
		return &lastAcc{}
	case "range":
		return &rangeAcc{}
	case "stats":
		return &statsAcc{}
	case "distinct":
		return &distinctAcc{set: make(map[string]struct{})}
	case "count_distinct":
		return &countDistinctAcc{counts: make(map[string]int64)}
	case "data":
		return &dataAcc{}
	default:
		panic("unknown aggregation kind " + kind)
	}
}

type countAcc struct{ n int64 }

func (a *countAcc) add(models.Value)    { a.n++ }
func (a *countAcc) result() interface{} { return a.n }

type rateAcc struct {
	n      int64
	bucket int64
}

func (a *rateAcc) add(models.Value)    { a.n++ }
func (a *rateAcc) result() interface{} { return float64(a.n) / float64(a.bucket) }

type sumAcc struct{ sum float64 }

func (a *sumAcc) add(v models.Value) {
	if n, ok := v.Num(); ok {
		a.sum += n
	}
}
func (a *sumAcc) result() interface{} { return a.sum }

type avgAcc struct {
	sum float64
	n   int64
}

func (a *avgAcc) add(v models.Value) {
	if f, ok := v.Num(); ok {
		a.sum += f
		a.n++
	}
}

func (a *avgAcc) result() interface{} {
	if a.n == 0 {
		return nil
	}
	return a.sum / float64(a.n)
}

// extremumAcc implements min and max: numeric comparison when both
// sides are numeric, lexicographic otherwise.
type extremumAcc struct {
	min bool
	cur models.Value
	has bool
}

func (a *extremumAcc) add(v models.Value) {
	if v.IsNull() {
		return
	}
	if !a.has {
		a.cur, a.has = v, true
		return
	}
	if a.less(v, a.cur) == a.min {
		a.cur = v
	}
}

func (a *extremumAcc) less(x, y models.Value) bool {
	xn, xok := x.Num()
	yn, yok := y.Num()
	if xok && yok {
		return xn < yn
	}
	return x.String() < y.String()
}

func (a *extremumAcc) result() interface{} {
	if !a.has {
		return nil
	}
	return a.cur.Native()
}

type firstAcc struct {
	v   models.Value
	has bool
}

// first non-null wins; nulls never occupy the slot.
func (a *firstAcc) add(v models.Value) {
	if !a.has && !v.IsNull() {
		a.v, a.has = v, true
	}
}

func (a *firstAcc) result() interface{} {
	if !a.has {
		return nil
	}
	return a.v.Native()
}

type lastAcc struct{ v models.Value }

// last always wins, nulls included.
func (a *lastAcc) add(v models.Value)  { a.v = v }
func (a *lastAcc) result() interface{} { return a.v.Native() }

type rangeAcc struct {
	min, max float64
	has      bool
}

func (a *rangeAcc) add(v models.Value) {
	n, ok := v.Num()
	if !ok {
		return
	}
	if !a.has {
		a.min, a.max, a.has = n, n, true
		return
	}
	if n < a.min {
		a.min = n
	}
	if n > a.max {
		a.max = n
	}
}

func (a *rangeAcc) result() interface{} {
	if !a.has {
		return nil
	}
	return a.max - a.min
}

// statsAcc tracks count/sum/min/max and mean/std with Welford's
// online algorithm: single pass, numerically stable for any input
// order.
type statsAcc struct {
	n        int64
	mean, m2 float64
	sum      float64
	min, max float64
}

func (a *statsAcc) add(v models.Value) {
	x, ok := v.Num()
	if !ok {
		return
	}
	a.n++
	a.sum += x
	if a.n == 1 {
		a.min, a.max = x, x
	} else {
		if x < a.min {
			a.min = x
		}
		if x > a.max {
			a.max = x
		}
	}
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

func (a *statsAcc) std() float64 {
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

func (a *statsAcc) result() interface{} {
	out := map[string]interface{}{
		"count": a.n,
		"sum":   a.sum,
	}
	if a.n == 0 {
		out["min"] = nil
		out["max"] = nil
		out["mean"] = nil
		out["std"] = nil
		return out
	}
	out["min"] = a.min
	out["max"] = a.max
	out["mean"] = a.mean
	out["std"] = a.std()
	return out
}

type distinctAcc struct{ set map[string]struct{} }

func (a *distinctAcc) add(v models.Value) {
	if v.IsNull() {
		return
	}
	a.set[v.String()] = struct{}{}
}

func (a *distinctAcc) result() interface{} {
	items := make([]string, 0, len(a.set))
	for s := range a.set {
		items = append(items, s)
	}
	sort.Strings(items)
	out := make([]interface{}, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

type countDistinctAcc struct{ counts map[string]int64 }

func (a *countDistinctAcc) add(v models.Value) {
	if v.IsNull() {
		return
	}
	a.counts[v.String()]++
}

func (a *countDistinctAcc) result() interface{} {
	out := make(map[string]interface{}, len(a.counts))
	for s, n := range a.counts {
		out[s] = n
	}
	return out
}

// count_distinct over nothing but nulls is not emitted at all.
func (a *countDistinctAcc) silent() bool { return len(a.counts) == 0 }

// silencer marks accumulators whose result is withheld from the
// bucket when nothing was observed.
type silencer interface {
	silent() bool
}

type dataAcc struct{ vals []interface{} }

func (a *dataAcc) add(v models.Value)  { a.vals = append(a.vals, v.Native()) }
func (a *dataAcc) result() interface{} { return a.vals }

// aggregator drives tumbling-window aggregation: entries observed in
// scan order, buckets aligned to ts - (ts mod bucket), emitted in
// ascending timestamp order, empty buckets never emitted.
type aggregator struct {
	spec    *AggSpec
	buckets map[int64]map[string]map[string]accumulator
}

func newAggregator(spec *AggSpec) *aggregator {
	return &aggregator{
		spec:    spec,
		buckets: make(map[int64]map[string]map[string]accumulator),
	}
}

func alignBucket(ts, width int64) int64 {
	m := ts % width
	if m < 0 {
		m += width
	}
	return ts - m
}

func (a *aggregator) observe(ts int64, rec models.Record) {
	b := alignBucket(ts, a.spec.Bucket)
	fields, ok := a.buckets[b]
	if !ok {
		fields = make(map[string]map[string]accumulator)
		a.buckets[b] = fields
	}
	for _, pair := range a.spec.Pairs {
		kinds, ok := fields[pair.Field]
		if !ok {
			kinds = make(map[string]accumulator)
			fields[pair.Field] = kinds
		}
		acc, ok := kinds[pair.Kind]
		if !ok {
			acc = newAccumulator(pair.Kind, a.spec.Bucket)
			kinds[pair.Kind] = acc
		}
		acc.add(rec.Get(pair.Field))
	}
}

// aggRow is one finalized bucket: timestamp plus
// {field: {kind: value}}.
type aggRow struct {
	ts     int64
	fields map[string]interface{}
}

func (a *aggregator) rows() []aggRow {
	order := make([]int64, 0, len(a.buckets))
	for b := range a.buckets {
		order = append(order, b)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]aggRow, 0, len(order))
	for _, b := range order {
		fields := make(map[string]interface{}, len(a.buckets[b]))
		for field, kinds := range a.buckets[b] {
			vals := make(map[string]interface{}, len(kinds))
			for kind, acc := range kinds {
				if s, ok := acc.(silencer); ok && s.silent() {
					continue
				}
				vals[kind] = acc.result()
			}
			if len(vals) > 0 {
				fields[field] = vals
			}
		}
		out = append(out, aggRow{ts: b, fields: fields})
	}
	return out
}

// flattenRow converts one bucket into the copy-destination record
// shape: field_kind keys, map results expanded into
// field_kind_subfield, list results JSON-encoded into one string.
func flattenRow(row aggRow) models.Record {
	rec := make(models.Record)
	for field, kindsAny := range row.fields {
		kinds := kindsAny.(map[string]interface{})
		for kind, val := range kinds {
			base := field + "_" + kind
			switch v := val.(type) {
			case nil:
				// absent field stands in for null
			case map[string]interface{}:
				for sub, sv := range v {
					if sv == nil {
						continue
					}
					if fv, err := models.FromNative(sv); err == nil {
						rec[base+"_"+sub] = fv
					}
				}
			case []interface{}:
				rec[base] = models.StringValue(encodeJSONList(v))
			default:
				if fv, err := models.FromNative(v); err == nil {
					rec[base] = fv
				}
			}
		}
	}
	return rec
}
