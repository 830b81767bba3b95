// Package feed defines feed identities, their parameters and the storage key
// scheme derived from them.
//
// A Feed is uniquely identified by its type plus parameters. Parameters are
// split into:
//   - enumerable: small integer values with limited range (source, asset,
//     surface selector), used for permission bitmask checks
//   - other: named scalar attributes (expiry, strike, option flags)
package feed

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type is a feed type id. Whether a type is base or derived is decided by the
// router registry alone, so the same id may move between the two.
type Type int32

// Well-known feed types.
const (
	IV           Type = 0
	Forward      Type = 1
	SVIParams    Type = 2
	OptionPrice  Type = 3
	Spot         Type = 4
	DomesticRate Type = 5
)

var typeNames = map[Type]string{
	IV:           "iv",
	Forward:      "forward",
	SVIParams:    "svi_params",
	OptionPrice:  "option_price",
	Spot:         "spot",
	DomesticRate: "domestic_rate",
}

// String returns the well-known name of the type or its number.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return strconv.FormatInt(int64(t), 10)
}

// ParseType accepts a well-known name (case-insensitive) or a decimal id.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown feed type %q", s)
	}
	return Type(n), nil
}

// UnmarshalYAML accepts either a name or a number.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseType(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML writes the type by name.
func (t Type) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// SVIParam selects one coefficient of an SVI volatility surface. It is carried
// as the third enumerable parameter of an SVIParams feed.
type SVIParam uint8

const (
	SVIA SVIParam = iota
	SVIB
	SVIRho
	SVIM
	SVISigma
)

// SVIParamCount is the number of SVI coefficients.
const SVIParamCount = 5

func (p SVIParam) String() string {
	switch p {
	case SVIA:
		return "a"
	case SVIB:
		return "b"
	case SVIRho:
		return "rho"
	case SVIM:
		return "m"
	case SVISigma:
		return "sigma"
	default:
		return fmt.Sprintf("svi(%d)", uint8(p))
	}
}

// Well-known keys of Parameters.Other.
const (
	KeyExpiryTimestamp = "expiry_timestamp"
	KeyStrike          = "strike"
	KeyIsCall          = "is_call"
	KeyIsDigital       = "is_digital"
)

// Feed is the identity of a single time series or computable quantity.
type Feed struct {
	Type   Type
	Params Parameters
}

// New creates a feed.
func New(t Type, params Parameters) Feed {
	return Feed{Type: t, Params: params}
}

// Equal reports whether two feeds have the same identity.
func (f Feed) Equal(other Feed) bool {
	return f.Type == other.Type && f.Params.Equal(other.Params)
}

// String returns a readable form such as "option_price[0,1]{strike=100.0}".
// Parse accepts the same form.
func (f Feed) String() string {
	return f.Type.String() + f.Params.String()
}

// Data is a value with its producer-supplied timestamp (Unix seconds).
type Data struct {
	Value     float64
	Timestamp int64
}
