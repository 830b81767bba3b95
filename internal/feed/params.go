package feed

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/xtxerr/feedoracle/internal/errors"
)

// Parameters is the immutable identity payload of a feed instance.
//
// The zero value is an empty parameter set. Values in Other are restricted to
// float64, int64, string and bool; all Go integer kinds are normalised to
// int64 on construction so that equal inputs always produce equal keys.
type Parameters struct {
	enumerable []uint8
	other      map[string]any
}

// NewParameters copies enumerable and other into a new parameter set.
func NewParameters(enumerable []uint8, other map[string]any) (Parameters, error) {
	p := Parameters{}
	if len(enumerable) > 0 {
		p.enumerable = append([]uint8(nil), enumerable...)
	}
	if len(other) > 0 {
		p.other = make(map[string]any, len(other))
		for k, v := range other {
			nv, err := normalize(v)
			if err != nil {
				return Parameters{}, errors.Wrapf(err, "parameter %q", k)
			}
			p.other[k] = nv
		}
	}
	return p, nil
}

// MustParameters is NewParameters for literals; it panics on unsupported values.
func MustParameters(enumerable []uint8, other map[string]any) Parameters {
	p, err := NewParameters(enumerable, other)
	if err != nil {
		panic(err)
	}
	return p
}

// Enum builds parameters with only enumerable values.
func Enum(values ...uint8) Parameters {
	return MustParameters(values, nil)
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil, errors.NewInvalidInput("NaN is not a valid parameter")
		}
		if x == 0 {
			return 0.0, nil // fold -0
		}
		return x, nil
	case float32:
		return normalize(float64(x))
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, errors.NewInvalidInput("value %d overflows int64", x)
		}
		return int64(x), nil
	case string, bool:
		return x, nil
	default:
		return nil, errors.NewInvalidInput("unsupported value type %T", v)
	}
}

// Enumerable returns a copy of the enumerable values.
func (p Parameters) Enumerable() []uint8 {
	return append([]uint8(nil), p.enumerable...)
}

// Len returns the number of enumerable positions.
func (p Parameters) Len() int {
	return len(p.enumerable)
}

// At returns the i-th enumerable value.
func (p Parameters) At(i int) uint8 {
	return p.enumerable[i]
}

// Prefix returns parameters holding the first n enumerable values and no
// other attributes. n is clamped to Len.
func (p Parameters) Prefix(n int) Parameters {
	if n > len(p.enumerable) {
		n = len(p.enumerable)
	}
	if n <= 0 {
		return Parameters{}
	}
	return Parameters{enumerable: append([]uint8(nil), p.enumerable[:n]...)}
}

// WithEnumerable returns a copy with values appended to the enumerable part.
func (p Parameters) WithEnumerable(values ...uint8) Parameters {
	enum := make([]uint8, 0, len(p.enumerable)+len(values))
	enum = append(enum, p.enumerable...)
	enum = append(enum, values...)
	return Parameters{enumerable: enum, other: p.other}
}

// With returns a copy with the named attribute set.
func (p Parameters) With(name string, value any) (Parameters, error) {
	nv, err := normalize(value)
	if err != nil {
		return Parameters{}, errors.Wrapf(err, "parameter %q", name)
	}
	other := make(map[string]any, len(p.other)+1)
	for k, v := range p.other {
		other[k] = v
	}
	other[name] = nv
	return Parameters{enumerable: p.enumerable, other: other}, nil
}

// Other returns the named attribute.
func (p Parameters) Other(name string) (any, bool) {
	v, ok := p.other[name]
	return v, ok
}

// Keys returns the attribute names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p.other))
	for k := range p.other {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the named attribute as float64, or def when it is absent or
// not numeric.
func (p Parameters) Float(name string, def float64) float64 {
	switch v := p.other[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Int returns the named attribute as int64, truncating floats, or def.
func (p Parameters) Int(name string, def int64) int64 {
	switch v := p.other[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}

// Bool returns the named attribute as bool, or def. Numbers are true when
// non-zero.
func (p Parameters) Bool(name string, def bool) bool {
	switch v := p.other[name].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return def
	}
}

// Equal reports whether both components are equal.
func (p Parameters) Equal(other Parameters) bool {
	if len(p.enumerable) != len(other.enumerable) || len(p.other) != len(other.other) {
		return false
	}
	for i := range p.enumerable {
		if p.enumerable[i] != other.enumerable[i] {
			return false
		}
	}
	for k, v := range p.other {
		ov, ok := other.other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// String returns "[0,1]{expiry_timestamp=1782460800,strike=100.0}". Floats
// always carry a decimal point and strings are quoted, so Parse can restore
// the exact parameters.
func (p Parameters) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range p.enumerable {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	if len(p.other) == 0 {
		return sb.String()
	}
	sb.WriteByte('{')
	for i, k := range p.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(formatValue(p.other[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprint(x)
	}
}
