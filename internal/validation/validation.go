// Package validation provides centralized input validation for feedoracle.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowColons  bool
	AllowUpper   bool

	// LetterFirst requires the first character to be a letter.
	LetterFirst bool
}

// PrincipalRules returns the rules for permission principals. Principals are
// usually account addresses ("0xabc") or service names ("pricer.eu-1").
func PrincipalRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowColons:  true,
		AllowUpper:   true,
	}
}

// AttributeKeyRules returns the rules for feed attribute names such as
// "expiry_timestamp".
func AttributeKeyRules() NameRules {
	return NameRules{
		MinLength:   1,
		MaxLength:   64,
		AllowUnders: true,
		LetterFirst: true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if i == 0 && rules.LetterFirst && !unicode.IsLetter(r) {
			return fmt.Errorf("name must start with a letter")
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsUpper(r) {
		return rules.AllowUpper
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ':':
		return rules.AllowColons
	}
	return false
}

// ValidatePrincipal validates a principal name.
func ValidatePrincipal(name string) error {
	if err := ValidateName(name, PrincipalRules()); err != nil {
		return fmt.Errorf("principal %q: %w", name, err)
	}
	return nil
}

// ValidateAttributeKey validates a feed attribute name.
func ValidateAttributeKey(key string) error {
	if err := ValidateName(key, AttributeKeyRules()); err != nil {
		return fmt.Errorf("attribute %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// SQL
// =============================================================================

// QuoteSQLString returns s as a single-quoted SQL string literal.
func QuoteSQLString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
