package models

// Record is one entry's decoded field set. Field order is not
// preserved across a write/read round trip; callers must not depend
// on it. A missing field is equivalent to a null field.
type Record map[string]Value

// Get returns the named field, or null when the field is absent.
func (r Record) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Null()
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Project applies the include-only (labels) or exclude (redact)
// transform. At most one of the two lists is non-empty.
func (r Record) Project(labels, redact []string) Record {
	if len(labels) == 0 && len(redact) == 0 {
		return r
	}
	out := make(Record)
	if len(labels) > 0 {
		for _, name := range labels {
			if v, ok := r[name]; ok {
				out[name] = v
			}
		}
		return out
	}
	drop := make(map[string]struct{}, len(redact))
	for _, name := range redact {
		drop[name] = struct{}{}
	}
	for k, v := range r {
		if _, skip := drop[k]; !skip {
			out[k] = v
		}
	}
	return out
}

// HasNonIntegerFloat reports whether any field holds a float with a
// fractional part. Cached in the entry flag byte at encode time.
func (r Record) HasNonIntegerFloat() bool {
	for _, v := range r {
		if v.IsNonIntegerFloat() {
			return true
		}
	}
	return false
}

// Native converts the record to a plain map for encoders.
func (r Record) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}
