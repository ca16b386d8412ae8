package record

import (
	"math"
	"strconv"
	"strings"
)

// Row values are int64, string or nil (NULL). float64 appears only in
// computed results (AVG).

const quoteChars = `'"`

// TrimQuotes strips surrounding quote characters from a text operand.
func TrimQuotes(s string) string {
	return strings.Trim(s, quoteChars)
}

// isNumericText reports whether s is a plain decimal number:
// [+-]digits[.digits][(e|E)[+-]digits]
func isNumericText(s string) bool {
	i, n := 0, len(s)
	if i < n && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < n && s[i] == '.' {
		i++
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < n && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == n
}

// ToNumber reports the numeric value of v when it is, or parses as, a number.
func ToNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case string:
		t := strings.TrimSpace(TrimQuotes(x))
		if !isNumericText(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text renders v in its textual form, as written to the backing file.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// number is a normalised numeric value. Integral values that fit in an
// int64 are held exactly in i; everything else is f.
type number struct {
	i     int64
	f     float64
	isInt bool
}

// 2^63 as a float64; int64 covers [-2^63, 2^63).
const twoPow63 = 9223372036854775808.0

func fromFloat(f float64) number {
	if f == math.Trunc(f) && f >= -twoPow63 && f < twoPow63 {
		return number{i: int64(f), isInt: true}
	}
	return number{f: f}
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int64:
		return number{i: x, isInt: true}, true
	case int:
		return number{i: int64(x), isInt: true}, true
	case string:
		t := strings.TrimSpace(TrimQuotes(x))
		if !isNumericText(t) {
			return number{}, false
		}
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return number{i: i, isInt: true}, true
		}
	}
	f, ok := ToNumber(v)
	if !ok {
		return number{}, false
	}
	return fromFloat(f), true
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpIntFloat compares i with a non-integral or out-of-range f exactly.
func cmpIntFloat(i int64, f float64) int {
	switch {
	case f >= twoPow63:
		return -1
	case f < -twoPow63:
		return 1
	}
	t := math.Trunc(f)
	if c := cmpInt(i, int64(t)); c != 0 {
		return c
	}
	if f > t {
		return -1
	}
	if f < t {
		return 1
	}
	return 0
}

func (n number) cmp(o number) int {
	switch {
	case n.isInt && o.isInt:
		return cmpInt(n.i, o.i)
	case n.isInt:
		return cmpIntFloat(n.i, o.f)
	case o.isInt:
		return -cmpIntFloat(o.i, n.f)
	case n.f < o.f:
		return -1
	case n.f > o.f:
		return 1
	}
	return 0
}

// Compare orders two non-null operands. When both are numeric (or numeric
// text) they compare numerically, integers exactly, otherwise as
// quote-trimmed text. ok is false when either side is NULL.
func Compare(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an.cmp(bn), true
		}
	}
	return strings.Compare(TrimQuotes(Text(a)), TrimQuotes(Text(b))), true
}

// Equal is Compare == 0; NULL never equals anything.
func Equal(a, b any) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Key is the normalised form of a value: two values are Equal exactly when
// their keys are equal. Used by indexes, grouping and sort-merge joins.
type Key struct {
	Text  string
	Int   int64
	Num   float64
	IsNum bool
	IsInt bool
}

// KeyOf returns the key of v; ok is false for NULL.
func KeyOf(v any) (Key, bool) {
	if v == nil {
		return Key{}, false
	}
	if n, ok := toNumber(v); ok {
		if n.isInt {
			return Key{Int: n.i, IsNum: true, IsInt: true}, true
		}
		return Key{Num: n.f, IsNum: true}, true
	}
	return Key{Text: TrimQuotes(Text(v))}, true
}

func (k Key) number() number { return number{i: k.Int, f: k.Num, isInt: k.IsInt} }

// Less orders numbers before text.
func (k Key) Less(o Key) bool {
	if k.IsNum != o.IsNum {
		return k.IsNum
	}
	if k.IsNum {
		return k.number().cmp(o.number()) < 0
	}
	return k.Text < o.Text
}

// CompareNullsFirst is Compare with NULL ordered before every value.
func CompareNullsFirst(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := Compare(a, b)
	return c
}

// Encode renders k as a string usable in composite map keys.
func (k Key) Encode() string {
	switch {
	case k.IsInt:
		return "n:" + strconv.FormatInt(k.Int, 10)
	case k.IsNum:
		// never integral in int64 range, so it cannot collide with an int
		return "n:" + strconv.FormatFloat(k.Num, 'g', -1, 64)
	}
	return "s:" + k.Text
}
