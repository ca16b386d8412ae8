package eval

import (
	"fmt"

	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// Col describes one position of a row: a table column (Qualifier.Name) or
// an aggregate result. Alias is the select-list alias, if any.
type Col struct {
	Qualifier string
	Name      string
	Alias     string
	Agg       *parser.AggregateRef
}

// Scope is the shape of the rows an expression is evaluated against.
type Scope []Col

// TableScope is the scope of a single table's rows.
func TableScope(qualifier string, names []string) Scope {
	s := make(Scope, len(names))
	for i, n := range names {
		s[i] = Col{Qualifier: qualifier, Name: n}
	}
	return s
}

// Concat returns the scope of a row made of s followed by o.
func (s Scope) Concat(o Scope) Scope {
	out := make(Scope, 0, len(s)+len(o))
	out = append(out, s...)
	return append(out, o...)
}

// IndexOf resolves a column reference; the first match wins.
func (s Scope) IndexOf(ref *parser.ColumnRef) (int, bool) {
	for i, c := range s {
		if c.Agg == nil && c.Name == ref.Name && (ref.Qualifier == "" || ref.Qualifier == c.Qualifier) {
			return i, true
		}
	}
	if ref.Qualifier == "" {
		for i, c := range s {
			if c.Alias != "" && c.Alias == ref.Name {
				return i, true
			}
		}
	}
	return -1, false
}

// IndexOfAgg resolves an aggregate reference against aggregate columns.
func (s Scope) IndexOfAgg(ref *parser.AggregateRef) (int, bool) {
	for i, c := range s {
		if c.Agg != nil && SameAggregate(c.Agg, ref) {
			return i, true
		}
	}
	return -1, false
}

// SameAggregate reports whether a and b compute the same value. A missing
// qualifier on either side matches any qualifier.
func SameAggregate(a, b *parser.AggregateRef) bool {
	if a.Func != b.Func {
		return false
	}
	if a.Arg == nil || b.Arg == nil {
		return a.Arg == nil && b.Arg == nil
	}
	if a.Arg.Name != b.Arg.Name {
		return false
	}
	return a.Arg.Qualifier == "" || b.Arg.Qualifier == "" || a.Arg.Qualifier == b.Arg.Qualifier
}

// Row binds values to a scope.
type Row struct {
	Scope  Scope
	Values []any
}

// Resolve returns the value of a column or aggregate reference.
func (r Row) Resolve(op parser.Operand) (any, error) {
	switch x := op.(type) {
	case *parser.ColumnRef:
		if i, ok := r.Scope.IndexOf(x); ok {
			return r.Values[i], nil
		}
		return nil, &sqlerr.EvalError{Reason: fmt.Sprintf("unknown column %s", x)}
	case *parser.AggregateRef:
		if i, ok := r.Scope.IndexOfAgg(x); ok {
			return r.Values[i], nil
		}
		return nil, &sqlerr.EvalError{Reason: fmt.Sprintf("aggregate %s is not available here", x)}
	case *parser.LiteralExpr:
		return x.Value, nil
	default:
		return nil, &sqlerr.ExecutionError{Reason: fmt.Sprintf("unsupported operand %T", op)}
	}
}
