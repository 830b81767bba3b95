package feed

import (
	"strconv"
	"strings"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/validation"
)

// Parse parses the String form of a feed:
//
//	option_price[0,1]{expiry_timestamp=1782460800,strike=100.0,is_call=true}
//
// The type is a well-known name or a number. Attribute values are bools
// (true/false), quoted strings, floats (containing '.' or an exponent) or
// integers.
func Parse(s string) (Feed, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return Feed{}, errors.NewInvalidInput("feed %q: missing enumerable list", s)
	}
	t, err := ParseType(s[:open])
	if err != nil {
		return Feed{}, errors.Wrap(errors.ErrInvalidInput, err.Error())
	}

	rest := s[open+1:]
	closeIdx := strings.IndexByte(rest, ']')
	if closeIdx < 0 {
		return Feed{}, errors.NewInvalidInput("feed %q: unterminated enumerable list", s)
	}
	enum, err := parseEnumerable(rest[:closeIdx])
	if err != nil {
		return Feed{}, err
	}

	rest = strings.TrimSpace(rest[closeIdx+1:])
	var other map[string]any
	if rest != "" {
		if !strings.HasPrefix(rest, "{") || !strings.HasSuffix(rest, "}") {
			return Feed{}, errors.NewInvalidInput("feed %q: attributes must be enclosed in {}", s)
		}
		other, err = parseAttributes(rest[1 : len(rest)-1])
		if err != nil {
			return Feed{}, err
		}
	}

	params, err := NewParameters(enum, other)
	if err != nil {
		return Feed{}, err
	}
	return New(t, params), nil
}

func parseEnumerable(s string) ([]uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint8, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, errors.NewInvalidInput("enumerable value %q: must be 0-255", part)
		}
		out[i] = uint8(n)
	}
	return out, nil
}

func parseAttributes(s string) (map[string]any, error) {
	out := make(map[string]any)
	for _, pair := range splitOutsideQuotes(s, ',') {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return nil, errors.NewInvalidInput("attribute %q: want key=value", pair)
		}
		key := strings.TrimSpace(pair[:eq])
		if err := validation.ValidateAttributeKey(key); err != nil {
			return nil, errors.NewInvalidInput("%v", err)
		}
		v, err := ParseValue(strings.TrimSpace(pair[eq+1:]))
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %q", key)
		}
		out[key] = v
	}
	return out, nil
}

// ParseValue parses a single attribute value as written by String.
func ParseValue(s string) (any, error) {
	switch {
	case s == "true":
		return true, nil
	case s == "false":
		return false, nil
	case strings.HasPrefix(s, `"`):
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, errors.NewInvalidInput("bad string %s", s)
		}
		return v, nil
	case strings.ContainsAny(s, ".eE") || s == "Inf" || s == "+Inf" || s == "-Inf":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NewInvalidInput("bad number %q", s)
		}
		return v, nil
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.NewInvalidInput("bad value %q", s)
		}
		return v, nil
	}
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	start := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
