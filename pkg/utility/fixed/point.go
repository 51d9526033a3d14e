package fixed

import (
	"bytes"
	"fmt"

	"github.com/govalues/decimal"
)

// Point is an unsafe wrapper around decimal implementation. Caller must make sure the calculations
// are correct and will not result in an error state, otherwise it will panic
type Point struct {
	v decimal.Decimal
}

func FromInt(value int, scale int) Point {
	return Point{must(decimal.New(int64(value), scale))}
}

func FromInt64(value int64, scale int) Point {
	return Point{must(decimal.New(value, scale))}
}

func FromFloat64(value float64) Point {
	return Point{must(decimal.NewFromFloat64(value))}
}

func Parse(s string) (Point, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return Point{}, err
	}
	return Point{d}, nil
}

func MustParse(s string) Point {
	return Point{must(decimal.Parse(s))}
}

func (p Point) String() string           { return p.v.String() }
func (p Point) Float64() (float64, bool) { return p.v.Float64() }

// Int64 returns the integer part, truncated toward zero.
func (p Point) Int64() int64 {
	whole, _, ok := p.v.Trunc(0).Int64(0)
	if !ok {
		panic(fmt.Sprintf("fixed: %s overflows int64", p.v))
	}
	return whole
}

func (p Point) Abs() Point { return Point{p.v.Abs()} }
func (p Point) Neg() Point { return Point{p.v.Neg()} }

func (p Point) Add(o Point) Point { return Point{must(p.v.Add(o.v))} }
func (p Point) Sub(o Point) Point { return Point{must(p.v.Sub(o.v))} }
func (p Point) Mul(o Point) Point { return Point{must(p.v.Mul(o.v))} }
func (p Point) Div(o Point) Point { return Point{must(p.v.Quo(o.v))} }

func (p Point) MulInt64(o int64) Point { return Point{must(p.v.Mul(decimal.MustNew(o, 0)))} }
func (p Point) MulInt(o int) Point     { return Point{must(p.v.Mul(decimal.MustNew(int64(o), 0)))} }
func (p Point) DivInt64(o int64) Point { return Point{must(p.v.Quo(decimal.MustNew(o, 0)))} }
func (p Point) DivInt(o int) Point     { return Point{must(p.v.Quo(decimal.MustNew(int64(o), 0)))} }

// CheckedMulInt64 is MulInt64 reporting overflow instead of panicking.
func (p Point) CheckedMulInt64(o int64) (Point, bool) {
	v, err := p.v.Mul(decimal.MustNew(o, 0))
	return Point{v}, err == nil
}

// CheckedDiv is Div reporting overflow or a zero divisor instead of panicking.
func (p Point) CheckedDiv(o Point) (Point, bool) {
	v, err := p.v.Quo(o.v)
	return Point{v}, err == nil
}

// CheckedInt64 is Int64 reporting overflow instead of panicking.
func (p Point) CheckedInt64() (int64, bool) {
	whole, _, ok := p.v.Trunc(0).Int64(0)
	return whole, ok
}

func (p Point) Eq(o Point) bool  { return p.v.Cmp(o.v) == 0 }
func (p Point) Gt(o Point) bool  { return p.v.Cmp(o.v) > 0 }
func (p Point) Lt(o Point) bool  { return p.v.Cmp(o.v) < 0 }
func (p Point) Gte(o Point) bool { return p.v.Cmp(o.v) >= 0 }
func (p Point) Lte(o Point) bool { return p.v.Cmp(o.v) <= 0 }

func (p Point) IsZero() bool { return p.v.IsZero() }
func (p Point) IsNeg() bool  { return p.v.IsNeg() }
func (p Point) IsPos() bool  { return p.v.IsPos() }

func (p Point) Rescale(scale int) Point { return Point{p.v.Rescale(scale)} }
func (p Point) Floor() Point            { return Point{p.v.Floor(0)} }

func (p Point) Sqrt() Point { return Point{must(p.v.Sqrt())} }
func (p Point) Exp() Point  { return Point{must(p.v.Exp())} }

func Min(a, b Point) Point {
	if a.Lt(b) {
		return a
	}
	return b
}

func Max(a, b Point) Point {
	if a.Gt(b) {
		return a
	}
	return b
}

// MarshalJSON writes the value as a bare JSON number so clients that speak
// plain floats can read it.
func (p Point) MarshalJSON() ([]byte, error) {
	return []byte(p.v.Trim(0).String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (p *Point) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if bytes.Equal(data, []byte("null")) {
		*p = Point{}
		return nil
	}
	d, err := decimal.Parse(string(data))
	if err != nil {
		// Exponent notation is not accepted by the decimal parser.
		var f float64
		if _, scanErr := fmt.Sscan(string(data), &f); scanErr != nil {
			return fmt.Errorf("invalid decimal %q: %w", data, err)
		}
		d, err = decimal.NewFromFloat64(f)
		if err != nil {
			return fmt.Errorf("invalid decimal %q: %w", data, err)
		}
	}
	p.v = d
	return nil
}

func (p Point) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func must(v decimal.Decimal, err error) decimal.Decimal {
	if err == nil {
		// Return in the happy path
		return v
	}
	panic(err)
}
