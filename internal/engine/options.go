package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Format selects the reply encoding.
type Format int

const (
	// FormatDefault is the native reply: non-integer numbers are
	// stringified so the host's wire format cannot truncate them.
	FormatDefault Format = iota
	// FormatJSON renders the reply as a single JSON string.
	FormatJSON
	// FormatMsgpack renders the reply as msgpack bytes.
	FormatMsgpack
)

// StorageKind selects the copy destination layout.
type StorageKind int

const (
	// StorageTimeseries writes an ordered set in the source layout.
	StorageTimeseries StorageKind = iota
	// StorageHash writes an unordered mapping keyed by decimal
	// timestamp, with JSON-encoded records as values.
	StorageHash
)

// Options is the compiled query tail shared by the read verbs.
type Options struct {
	HasLimit bool
	Offset   int
	Count    int

	Filter  *Filter
	Agg     *AggSpec
	Labels  []string
	Redact  []string
	Format  Format
	Storage StorageKind
}

var optionKeywords = map[string]struct{}{
	"limit":       {},
	"aggregation": {},
	"filter":      {},
	"labels":      {},
	"redact":      {},
	"format":      {},
	"storage":     {},
}

func isOptionKeyword(tok string) bool {
	_, ok := optionKeywords[strings.ToLower(tok)]
	return ok
}

// takeList consumes tokens up to the next recognized option keyword.
func takeList(args []string, i int) ([]string, int) {
	j := i
	for j < len(args) && !isOptionKeyword(args[j]) {
		j++
	}
	return args[i:j], j
}

// parseOptions compiles the trailing arguments of a verb. Each option
// may appear at most once; LABELS and REDACT are mutually exclusive;
// unknown keywords are fatal.
func parseOptions(args []string) (*Options, error) {
	opts := &Options{Count: -1}
	seen := make(map[string]struct{})
	i := 0
	for i < len(args) {
		kw := strings.ToLower(args[i])
		if !isOptionKeyword(kw) {
			return nil, fmt.Errorf("Timeseries: unknown option %s", args[i])
		}
		if _, dup := seen[kw]; dup {
			return nil, fmt.Errorf("%s: option specified more than once", strings.ToUpper(kw))
		}
		seen[kw] = struct{}{}
		i++
		switch kw {
		case "limit":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("LIMIT: missing offset and count")
			}
			offset, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, fmt.Errorf("LIMIT: offset value must be a number")
			}
			count, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("LIMIT: count value must be a number")
			}
			if offset < 0 {
				offset = 0
			}
			opts.HasLimit = true
			opts.Offset, opts.Count = offset, count
			i += 2
		case "aggregation":
			toks, next := takeList(args, i)
			spec, err := parseAggSpec(toks)
			if err != nil {
				return nil, err
			}
			opts.Agg = spec
			i = next
		case "filter":
			toks, next := takeList(args, i)
			f, err := ParseFilter(toks)
			if err != nil {
				return nil, err
			}
			opts.Filter = f
			i = next
		case "labels":
			toks, next := takeList(args, i)
			if len(toks) == 0 {
				return nil, fmt.Errorf("LABELS: missing label names")
			}
			opts.Labels = toks
			i = next
		case "redact":
			toks, next := takeList(args, i)
			if len(toks) == 0 {
				return nil, fmt.Errorf("REDACT: missing label names")
			}
			opts.Redact = toks
			i = next
		case "format":
			if i >= len(args) {
				return nil, fmt.Errorf("FORMAT: must be json or msgpack")
			}
			switch strings.ToLower(args[i]) {
			case "json":
				opts.Format = FormatJSON
			case "msgpack":
				opts.Format = FormatMsgpack
			default:
				return nil, fmt.Errorf("FORMAT: must be json or msgpack")
			}
			i++
		case "storage":
			if i >= len(args) {
				return nil, fmt.Errorf("STORAGE: must be timeseries or hash")
			}
			switch strings.ToLower(args[i]) {
			case "timeseries":
				opts.Storage = StorageTimeseries
			case "hash":
				opts.Storage = StorageHash
			default:
				return nil, fmt.Errorf("STORAGE: must be timeseries or hash")
			}
			i++
		}
	}
	if len(opts.Labels) > 0 && len(opts.Redact) > 0 {
		return nil, fmt.Errorf("LABELS: LABELS and REDACT are mutually exclusive")
	}
	return opts, nil
}
