package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chronokv/chronokv/pkg/models"
)

// The filter mini-language: each expression is `ident op scalar` or
// `ident (=|!=) (list)`, joined by case-insensitive AND/OR. There is
// no precedence and no grouping: joins fold left in input order, so a
// mixed AND/OR chain is one flat predicate applied left to right.
// Parenthesized grouping is a possible future extension; today's
// behavior is a compatibility contract.

type joinKind int

const (
	joinAnd joinKind = iota
	joinOr
)

type condFn func(models.Record) bool

// Filter is a compiled predicate over a decoded record. Compile once
// per invocation; Match is closure application only.
type Filter struct {
	conds []condFn
	joins []joinKind
}

// operators in longest-match-first order.
var condOps = []string{"<=", ">=", "!=", "=", "<", ">"}

// ParseFilter compiles the token list `cond (AND|OR cond)*`.
func ParseFilter(tokens []string) (*Filter, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("FILTER: missing expression")
	}
	f := &Filter{}
	wantCond := true
	for _, tok := range tokens {
		if wantCond {
			cond, err := parseCond(tok)
			if err != nil {
				return nil, err
			}
			f.conds = append(f.conds, cond)
			wantCond = false
			continue
		}
		switch strings.ToUpper(tok) {
		case "AND":
			f.joins = append(f.joins, joinAnd)
		case "OR":
			f.joins = append(f.joins, joinOr)
		default:
			return nil, fmt.Errorf("FILTER: unable to parse expression : %s", tok)
		}
		wantCond = true
	}
	if wantCond {
		return nil, fmt.Errorf("FILTER: missing expression after join")
	}
	return f, nil
}

// Match folds the conditions left to right with their joins.
func (f *Filter) Match(rec models.Record) bool {
	res := f.conds[0](rec)
	for i, j := range f.joins {
		c := f.conds[i+1](rec)
		if j == joinAnd {
			res = res && c
		} else {
			res = res || c
		}
	}
	return res
}

func parseCond(expr string) (condFn, error) {
	i := 0
	for i < len(expr) && isIdentChar(expr[i], i == 0) {
		i++
	}
	if i == 0 {
		return nil, fmt.Errorf("FILTER: unable to parse expression : %s", expr)
	}
	name, rest := expr[:i], expr[i:]
	var op string
	for _, o := range condOps {
		if strings.HasPrefix(rest, o) {
			op = o
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("FILTER: unable to parse expression : %s", expr)
	}
	rhs := rest[len(op):]
	if (op == "=" || op == "!=") && len(rhs) >= 2 && rhs[0] == '(' && rhs[len(rhs)-1] == ')' {
		return parseSetCond(name, op == "!=", rhs[1:len(rhs)-1])
	}
	return scalarCond(name, op, rhs), nil
}

func isIdentChar(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9':
		return !first
	default:
		return false
	}
}

// parseSetCond builds a membership test. The list is CSV; items may
// be double-quoted, with a doubled quote escaping a literal one. The
// list parses once into a string-keyed set; matching stringifies the
// field.
func parseSetCond(name string, negate bool, list string) (condFn, error) {
	items, err := parseCSV(list)
	if err != nil {
		return nil, fmt.Errorf("FILTER: unable to parse expression : %s", list)
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return func(rec models.Record) bool {
		v := rec.Get(name)
		if v.IsNull() {
			return negate
		}
		_, in := set[v.String()]
		if negate {
			return !in
		}
		return in
	}, nil
}

func parseCSV(list string) ([]string, error) {
	var items []string
	i := 0
	for i <= len(list) {
		if i < len(list) && list[i] == '"' {
			var sb strings.Builder
			j := i + 1
			for {
				if j >= len(list) {
					return nil, fmt.Errorf("unterminated quote")
				}
				if list[j] == '"' {
					if j+1 < len(list) && list[j+1] == '"' {
						sb.WriteByte('"')
						j += 2
						continue
					}
					j++
					break
				}
				sb.WriteByte(list[j])
				j++
			}
			items = append(items, sb.String())
			if j < len(list) && list[j] != ',' {
				return nil, fmt.Errorf("garbage after quote")
			}
			i = j + 1
			continue
		}
		j := strings.IndexByte(list[i:], ',')
		if j < 0 {
			items = append(items, list[i:])
			break
		}
		items = append(items, list[i:i+j])
		i += j + 1
	}
	return items, nil
}

// scalarCond builds a single comparison. Coercion is dynamic per
// record: a numeric field compares numerically when the right-hand
// side parses as a number; otherwise both sides compare as strings.
// A numeric field against a non-numeric right-hand side under an
// ordering operator fails the predicate rather than aborting.
func scalarCond(name, op, rhs string) condFn {
	rhsNull := rhs == "null"
	rhsNum, rhsIsNum := 0.0, false
	if f, err := strconv.ParseFloat(rhs, 64); err == nil {
		rhsNum, rhsIsNum = f, true
	}
	return func(rec models.Record) bool {
		v := rec.Get(name)
		switch op {
		case "=":
			if rhsNull {
				return v.IsNull()
			}
			if v.IsNull() {
				return false
			}
			return scalarEqual(v, rhs, rhsNum, rhsIsNum)
		case "!=":
			if rhsNull {
				return !v.IsNull()
			}
			if v.IsNull() {
				return true
			}
			return !scalarEqual(v, rhs, rhsNum, rhsIsNum)
		}
		if v.IsNull() {
			return false
		}
		if n, ok := v.Num(); ok {
			if !rhsIsNum {
				return false
			}
			return ordHolds(op, cmpFloat(n, rhsNum))
		}
		return ordHolds(op, strings.Compare(v.String(), rhs))
	}
}

func scalarEqual(v models.Value, rhs string, rhsNum float64, rhsIsNum bool) bool {
	if n, ok := v.Num(); ok && rhsIsNum {
		return n == rhsNum
	}
	return v.String() == rhs
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func ordHolds(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
