package validation

import (
	"strings"
	"testing"
)

func TestValidatePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"address", "0xAbC123", false},
		{"service", "pricer.eu-1", false},
		{"scoped", "team:risk_desk", false},
		{"empty", "", true},
		{"space", "a b", true},
		{"slash", "a/b", true},
		{"control char", "a\x00b", true},
		{"non ascii", "prïncipal", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrincipal(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePrincipal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAttributeKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"expiry", "expiry_timestamp", false},
		{"short", "k", false},
		{"digits", "leg2", false},
		{"leading digit", "2leg", true},
		{"leading underscore", "_x", true},
		{"upper", "Strike", true},
		{"hyphen", "is-call", true},
		{"dot", "a.b", true},
		{"empty", "", true},
		{"too long", strings.Repeat("k", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAttributeKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAttributeKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestQuoteSQLString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "'plain'"},
		{"o'neil", "'o''neil'"},
		{"''", "''''''"},
		{"", "''"},
	}

	for _, tt := range tests {
		if got := QuoteSQLString(tt.input); got != tt.expected {
			t.Errorf("QuoteSQLString(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
