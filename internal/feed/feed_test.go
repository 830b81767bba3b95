package feed

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestKeyOf_Deterministic(t *testing.T) {
	a := New(OptionPrice, MustParameters([]uint8{0, 1}, map[string]any{
		KeyExpiryTimestamp: 1782460800,
		KeyStrike:          100000.0,
		KeyIsCall:          true,
	}))
	b := New(OptionPrice, MustParameters([]uint8{0, 1}, map[string]any{
		KeyIsCall:          true,
		KeyStrike:          100000.0,
		KeyExpiryTimestamp: int64(1782460800),
	}))

	if KeyOf(a, 0) != KeyOf(b, 0) {
		t.Error("equal feeds should produce equal keys")
	}
	if !a.Equal(b) {
		t.Error("feeds should be equal")
	}
}

func TestKeyOf_FieldsChangeKey(t *testing.T) {
	base := New(Spot, Enum(0, 1))
	baseKey := KeyOf(base, 0)

	tests := []struct {
		name    string
		feed    Feed
		version uint64
	}{
		{"type", New(Forward, Enum(0, 1)), 0},
		{"version", base, 1},
		{"enumerable value", New(Spot, Enum(1, 1)), 0},
		{"enumerable order", New(Spot, Enum(1, 0)), 0},
		{"enumerable length", New(Spot, Enum(0, 1, 0)), 0},
		{"other", New(Spot, MustParameters([]uint8{0, 1}, map[string]any{"x": 1})), 0},
		{"other kind", New(Spot, MustParameters([]uint8{0, 1}, map[string]any{"x": 1.0})), 0},
	}

	seen := map[Key]string{baseKey: "base"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := KeyOf(tt.feed, tt.version)
			if prev, ok := seen[k]; ok {
				t.Fatalf("key collides with %s", prev)
			}
			seen[k] = tt.name
		})
	}
}

func TestIdentityKey_IgnoresVersion(t *testing.T) {
	f := New(IV, Enum(0, 1))
	if IdentityKey(f) != IdentityKey(New(IV, Enum(0, 1))) {
		t.Error("identity key should be stable")
	}
	if KeyOf(f, 0) == KeyOf(f, 1) {
		t.Error("versioned keys should differ")
	}
}

func TestParameters_Immutable(t *testing.T) {
	enum := []uint8{0, 1}
	other := map[string]any{KeyStrike: 100.0}
	p := MustParameters(enum, other)

	enum[0] = 9
	other[KeyStrike] = 1.0

	if p.At(0) != 0 {
		t.Errorf("enumerable mutated through caller slice: %v", p.Enumerable())
	}
	if got := p.Float(KeyStrike, 0); got != 100 {
		t.Errorf("other mutated through caller map: %v", got)
	}

	out := p.Enumerable()
	out[1] = 7
	if p.At(1) != 1 {
		t.Error("Enumerable() must return a copy")
	}
}

func TestParameters_RejectsUnsupported(t *testing.T) {
	if _, err := NewParameters(nil, map[string]any{"x": []int{1}}); err == nil {
		t.Error("expected error for slice value")
	}
}

func TestParameters_Accessors(t *testing.T) {
	p := MustParameters([]uint8{0, 1, 2}, map[string]any{
		KeyExpiryTimestamp: 10,
		KeyStrike:          42.5,
		KeyIsDigital:       true,
	})

	if got := p.Int(KeyExpiryTimestamp, 0); got != 10 {
		t.Errorf("Int = %d", got)
	}
	if got := p.Float(KeyExpiryTimestamp, 0); got != 10 {
		t.Errorf("Float of int = %v", got)
	}
	if got := p.Float("missing", 3); got != 3 {
		t.Errorf("Float default = %v", got)
	}
	if !p.Bool(KeyIsDigital, false) {
		t.Error("Bool should be true")
	}
	if !p.Bool(KeyIsCall, true) {
		t.Error("Bool default should be used")
	}

	prefix := p.Prefix(2)
	if prefix.Len() != 2 || len(prefix.Keys()) != 0 {
		t.Errorf("Prefix = %s", prefix)
	}
	if got := p.Prefix(2).WithEnumerable(uint8(SVIRho)).String(); got != "[0,1,2]" {
		t.Errorf("WithEnumerable = %s", got)
	}
}

func TestParameters_String(t *testing.T) {
	p := MustParameters([]uint8{0, 1}, map[string]any{KeyStrike: 100.0, KeyExpiryTimestamp: 5})
	want := "[0,1]{expiry_timestamp=5,strike=100.0}"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"spot":         Spot,
		"Option_Price": OptionPrice,
		"iv":           IV,
		"100":          Type(100),
	}
	for in, want := range tests {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseType("bogus"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestType_YAML(t *testing.T) {
	var doc struct {
		Types []Type `yaml:"types"`
	}
	if err := yaml.Unmarshal([]byte("types: [spot, 3, domestic_rate]"), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []Type{Spot, OptionPrice, DomesticRate}
	for i := range want {
		if doc.Types[i] != want[i] {
			t.Errorf("types[%d] = %v, want %v", i, doc.Types[i], want[i])
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	feeds := []Feed{
		New(Spot, Enum(0, 1)),
		New(Forward, MustParameters([]uint8{0, 1}, map[string]any{KeyExpiryTimestamp: int64(1782460800)})),
		New(OptionPrice, MustParameters([]uint8{0, 1}, map[string]any{
			KeyExpiryTimestamp: int64(1782460800),
			KeyStrike:          100000.0,
			KeyIsCall:          true,
			KeyIsDigital:       false,
			"venue":            "deribit, main",
		})),
		New(Type(42), Parameters{}),
		New(IV, MustParameters(nil, map[string]any{"x": 1.5e-9})),
	}

	for _, f := range feeds {
		got, err := Parse(f.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", f.String(), err)
		}
		if !got.Equal(f) {
			t.Errorf("Parse(%q) = %s", f.String(), got)
		}
		if IdentityKey(got) != IdentityKey(f) {
			t.Errorf("Parse(%q) changed the key", f.String())
		}
	}
}

func TestParse_IntVersusFloat(t *testing.T) {
	a, err := Parse("option_price[0,1]{strike=100}")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("option_price[0,1]{strike=100.0}")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Params.Other(KeyStrike); !ok || a.Params.Int(KeyStrike, 0) != 100 {
		t.Errorf("int strike = %v", a)
	}
	if a.Equal(b) {
		t.Error("int and float attributes must be distinct identities")
	}
}

func TestParse_Errors(t *testing.T) {
	for _, s := range []string{
		"spot",
		"bogus[0]",
		"spot[0,1",
		"spot[256]",
		"spot[0]strike=1",
		"spot[0]{strike}",
		"spot[0]{Strike=1}",
		"spot[0]{strike=abc}",
		`spot[0]{name="unterminated}`,
	} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}
