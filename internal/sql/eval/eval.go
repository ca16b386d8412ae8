// Package eval interprets WHERE and HAVING expression trees against rows.
package eval

import (
	"fmt"
	"strings"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// Resolver supplies operand values for one row.
type Resolver interface {
	Resolve(op parser.Operand) (any, error)
}

// Value evaluates an operand. Literals need no row.
func Value(op parser.Operand, row Resolver) (any, error) {
	if lit, ok := op.(*parser.LiteralExpr); ok {
		return lit.Value, nil
	}
	if row == nil {
		return nil, &sqlerr.EvalError{Reason: "no row to resolve against"}
	}
	return row.Resolve(op)
}

// Evaluate reports whether row satisfies expr. A nil expr is true.
// An *sqlerr.EvalError means this row could not be evaluated; an
// *sqlerr.ExecutionError means the tree itself is malformed.
func Evaluate(expr parser.Expr, row Resolver) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil

	case *parser.BinaryExpr:
		if e.Left == nil || e.Right == nil {
			return false, &sqlerr.ExecutionError{Reason: "logical operator with missing operand"}
		}
		l, err := Evaluate(e.Left, row)
		if err != nil {
			return false, err
		}
		switch e.Op {
		case parser.OpAnd:
			if !l {
				return false, nil
			}
		case parser.OpOr:
			if l {
				return true, nil
			}
		default:
			return false, &sqlerr.ExecutionError{Reason: fmt.Sprintf("unknown logical operator %d", e.Op)}
		}
		return Evaluate(e.Right, row)

	case *parser.CompareExpr:
		if e.Left == nil || e.Right == nil {
			return false, &sqlerr.ExecutionError{Reason: "comparison with missing operand"}
		}
		l, err := Value(e.Left, row)
		if err != nil {
			return false, err
		}
		r, err := Value(e.Right, row)
		if err != nil {
			return false, err
		}
		return compare(e.Op, l, r)

	case *parser.BetweenExpr:
		v, err := Value(e.Target, row)
		if err != nil {
			return false, err
		}
		lo, err := Value(e.Low, row)
		if err != nil {
			return false, err
		}
		hi, err := Value(e.High, row)
		if err != nil {
			return false, err
		}
		c1, ok1 := record.Compare(v, lo)
		c2, ok2 := record.Compare(v, hi)
		return ok1 && ok2 && c1 >= 0 && c2 <= 0, nil

	case *parser.InExpr:
		v, err := Value(e.Target, row)
		if err != nil {
			return false, err
		}
		for _, item := range e.List {
			x, err := Value(item, row)
			if err != nil {
				return false, err
			}
			if record.Equal(v, x) {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, &sqlerr.ExecutionError{Reason: fmt.Sprintf("unsupported expression %T", expr)}
	}
}

func compare(op parser.CompareOp, l, r any) (bool, error) {
	if op == parser.OpLike {
		if l == nil || r == nil {
			return false, nil
		}
		return Like(record.TrimQuotes(record.Text(l)), record.Text(r)), nil
	}
	c, ok := record.Compare(l, r)
	if !ok {
		return false, nil
	}
	switch op {
	case parser.OpEq:
		return c == 0, nil
	case parser.OpNe:
		return c != 0, nil
	case parser.OpLt:
		return c < 0, nil
	case parser.OpGt:
		return c > 0, nil
	case parser.OpLe:
		return c <= 0, nil
	case parser.OpGe:
		return c >= 0, nil
	default:
		return false, &sqlerr.ExecutionError{Reason: fmt.Sprintf("unknown comparison operator %q", op)}
	}
}

// Like matches s against a pattern where '%' stands for any run of
// characters. Matching is case-sensitive.
func Like(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	first, last := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for _, mid := range parts[1 : len(parts)-1] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, last)
}

// Validate checks the structure of expr without evaluating it, so callers
// can reject a malformed tree before touching any row.
func Validate(expr parser.Expr) error {
	switch e := expr.(type) {
	case nil:
		return nil
	case *parser.BinaryExpr:
		if e.Left == nil || e.Right == nil {
			return &sqlerr.ExecutionError{Reason: "logical operator with missing operand"}
		}
		if e.Op != parser.OpAnd && e.Op != parser.OpOr {
			return &sqlerr.ExecutionError{Reason: fmt.Sprintf("unknown logical operator %d", e.Op)}
		}
		if err := Validate(e.Left); err != nil {
			return err
		}
		return Validate(e.Right)
	case *parser.CompareExpr:
		switch e.Op {
		case parser.OpEq, parser.OpNe, parser.OpLt, parser.OpGt, parser.OpLe, parser.OpGe, parser.OpLike:
		default:
			return &sqlerr.ExecutionError{Reason: fmt.Sprintf("unknown comparison operator %q", e.Op)}
		}
		return validateOperands(e.Left, e.Right)
	case *parser.BetweenExpr:
		return validateOperands(e.Target, e.Low, e.High)
	case *parser.InExpr:
		return validateOperands(append([]parser.Operand{e.Target}, e.List...)...)
	default:
		return &sqlerr.ExecutionError{Reason: fmt.Sprintf("unsupported expression %T", expr)}
	}
}

func validateOperands(ops ...parser.Operand) error {
	for _, op := range ops {
		switch x := op.(type) {
		case *parser.ColumnRef:
			if x == nil {
				return &sqlerr.ExecutionError{Reason: "nil column reference"}
			}
		case *parser.AggregateRef:
			if x == nil {
				return &sqlerr.ExecutionError{Reason: "nil aggregate reference"}
			}
		case *parser.LiteralExpr:
			if x == nil {
				return &sqlerr.ExecutionError{Reason: "nil literal"}
			}
		case nil:
			return &sqlerr.ExecutionError{Reason: "missing operand"}
		default:
			return &sqlerr.ExecutionError{Reason: fmt.Sprintf("unsupported operand %T", op)}
		}
	}
	return nil
}
