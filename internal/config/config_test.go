package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	defaults "github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/oracle"
)

const sample = `
logging:
  level: debug
router:
  max_depth: 8
calculators:
  basis_feed_type: 101
permissions:
  - principal: "0xabc"
    feed_type: option_price
    values: [[0], [1, 2]]
  - principal: "0xabc"
    feed_type: 4
    masks: [1, 2]
seeds:
  - feed_type: domestic_rate
    enumerable: [0, 1]
    value: 0.035
  - feed_type: forward
    enumerable: [0, 1]
    other:
      expiry_timestamp: 1782460800
    value: 70500
    timestamp: 1750000000
source:
  api_key: ${FEEDORACLE_TEST_KEY}
  interval: 30s
  timeout: 10
  expiries: ["2026-06-26T08:00:00Z"]
`

func TestParse(t *testing.T) {
	t.Setenv("FEEDORACLE_TEST_KEY", "secret")

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Router.MaxDepth != 8 || cfg.Router.SketchAccuracy != defaults.DefaultSketchAccuracy {
		t.Errorf("router = %+v", cfg.Router)
	}
	if !cfg.Calculators.Defaults || cfg.Calculators.BasisFeedType != 101 {
		t.Errorf("calculators = %+v", cfg.Calculators)
	}
	if cfg.Source.APIKey != "secret" {
		t.Errorf("api_key = %q, want expanded env", cfg.Source.APIKey)
	}
	if cfg.Source.Interval.Duration() != 30*time.Second || cfg.Source.Timeout.Duration() != 10*time.Second {
		t.Errorf("durations = %v %v", cfg.Source.Interval.Duration(), cfg.Source.Timeout.Duration())
	}
	if cfg.Source.BaseURL != defaults.DefaultSourceBaseURL {
		t.Errorf("base_url default lost: %q", cfg.Source.BaseURL)
	}

	if len(cfg.Permissions) != 2 {
		t.Fatalf("permissions = %d", len(cfg.Permissions))
	}
	if got := cfg.Permissions[0].Record(); len(got) != 2 || got[0] != 0b1 || got[1] != 0b110 {
		t.Errorf("values record = %b", got)
	}
	if cfg.Permissions[1].FeedType != feed.Spot {
		t.Errorf("numeric feed type = %v", cfg.Permissions[1].FeedType)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Router.MaxDepth = 0
	cfg.Logging.Format = "xml"
	cfg.Source.Enabled = true
	cfg.Export.Compression = "brotli"
	cfg.Permissions = []GrantConfig{{FeedType: feed.Spot, Values: [][]uint8{{64}}}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	ve, ok := err.(*errors.ValidationErrors)
	if !ok {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	// max_depth, format, api_key, expiries, compression, principal, value 64
	if len(ve.Errors) != 7 {
		t.Errorf("got %d errors:\n%v", len(ve.Errors), err)
	}
	if !strings.Contains(err.Error(), "source.api_key") {
		t.Errorf("missing api_key error in:\n%v", err)
	}
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()

	main := "include: [\"grants/*.yaml\"]\npermissions:\n  - principal: a\n    feed_type: spot\n    masks: [1]\n"
	extra := "permissions:\n  - principal: b\n    feed_type: iv\n    masks: [1, 1]\nseeds:\n  - feed_type: spot\n    enumerable: [0, 1]\n    value: 1\n"

	if err := os.MkdirAll(filepath.Join(dir, "grants"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(main), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "grants", "b.yaml"), []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Permissions) != 2 || cfg.Permissions[1].Principal != "b" {
		t.Errorf("permissions = %+v", cfg.Permissions)
	}
	if len(cfg.Seeds) != 1 {
		t.Errorf("seeds = %+v", cfg.Seeds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestApply(t *testing.T) {
	t.Setenv("FEEDORACLE_TEST_KEY", "secret")
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	svc := oracle.New(cfg.RouterConfig())
	now := time.Unix(1_760_000_000, 0)
	if err := Apply(cfg, svc, now); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !svc.Router().IsDerived(feed.IV) || !svc.Router().IsDerived(feed.Type(101)) {
		t.Error("calculators not registered")
	}

	rate := feed.New(feed.DomesticRate, feed.Enum(0, 1))
	got, err := svc.GetLatestUnchecked(rate)
	if err != nil {
		t.Fatalf("seeded rate: %v", err)
	}
	if got.Value != 0.035 || got.Timestamp != now.Unix() {
		t.Errorf("rate = %+v", got)
	}

	fwd := feed.New(feed.Forward, feed.MustParameters([]uint8{0, 1}, map[string]any{
		feed.KeyExpiryTimestamp: int64(1782460800),
	}))
	if got, err := svc.GetLatestUnchecked(fwd); err != nil || got.Timestamp != 1750000000 {
		t.Errorf("seeded forward = %+v, %v", got, err)
	}

	if !svc.Permissions().CheckAccess("0xabc", feed.New(feed.OptionPrice, feed.Enum(0, 2))) {
		t.Error("grant from values not applied")
	}
	if svc.Permissions().CheckAccess("0xabc", feed.New(feed.OptionPrice, feed.Enum(1, 1))) {
		t.Error("grant too wide")
	}
}

func TestValidate_PrincipalAndRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Permissions = []GrantConfig{
		{Principal: "0xabc", FeedType: feed.Spot, Masks: []uint64{1}},
		{Principal: "has space", FeedType: feed.Spot, Masks: []uint64{1}},
	}
	cfg.Export.Keep = -1
	cfg.Export.MaxAge = Duration(-time.Second)

	err := Validate(cfg)
	ve, ok := err.(*errors.ValidationErrors)
	if !ok {
		t.Fatalf("expected *ValidationErrors, got %T (%v)", err, err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors:\n%v", len(ve.Errors), err)
	}
	if !strings.Contains(err.Error(), "permissions[1].principal") {
		t.Errorf("missing principal field in %v", err)
	}
}

func TestParse_APIKeyFromEnv(t *testing.T) {
	t.Setenv(defaults.DefaultSourceAPIKeyEnv, "from-env")

	cfg, err := Parse([]byte("source:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source.APIKey != "from-env" {
		t.Errorf("api_key = %q, want from-env", cfg.Source.APIKey)
	}

	cfg, err = Parse([]byte("source:\n  api_key: explicit\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source.APIKey != "explicit" {
		t.Errorf("api_key = %q, want explicit", cfg.Source.APIKey)
	}
}
