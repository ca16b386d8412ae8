package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts v to the Go representation of column type t.
// NULL stays NULL; the caller decides whether NULL is acceptable.
func Coerce(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ColInt64:
		return coerceInt(v)
	case ColYear:
		return coerceYear(v)
	case ColText:
		switch x := v.(type) {
		case string:
			return x, nil
		case int64, int, float64:
			return Text(x), nil
		default:
			return nil, fmt.Errorf("cannot use %T as text", v)
		}
	default:
		return nil, fmt.Errorf("unsupported column type %v", t)
	}
}

func coerceInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case string:
		s := strings.TrimSpace(TrimQuotes(x))
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", x)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot use %T as integer", v)
	}
}

// coerceYear accepts an integer year or a date-like text ("2019", "2019-05-01").
func coerceYear(v any) (any, error) {
	var y int64
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(TrimQuotes(x))
		if i := strings.IndexAny(s, "-/."); i > 0 {
			s = s[:i]
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a year", x)
		}
		y = n
	default:
		n, err := coerceInt(v)
		if err != nil {
			return nil, err
		}
		y = n.(int64)
	}
	if y < 0 || y > 9999 {
		return nil, fmt.Errorf("year %d out of range", y)
	}
	return y, nil
}

// ParseStored decodes a field read back from the table file.
func ParseStored(t ColumnType, field string) (any, error) {
	if t == ColText {
		return field, nil
	}
	if strings.TrimSpace(field) == "" {
		return nil, nil
	}
	return Coerce(t, field)
}
