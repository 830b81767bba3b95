// Package config - Configuration Types
//
// Defines the YAML configuration structure for feedoracled and feedshell.
//
//	logging:      level, format, output file rotation
//	router:       resolution depth limit, latency sketch accuracy
//	calculators:  built-in calculators, basis feed type id
//	permissions:  initial grants (principal, feed type, masks)
//	seeds:        base observations written at startup
//	source:       BlockScholes live producer
//	export:       Parquet snapshots of the store
//	include:      additional files contributing permissions and seeds
package config

import (
	"strconv"
	"time"

	defaults "github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/permission"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Router      RouterConfig      `yaml:"router"`
	Calculators CalculatorsConfig `yaml:"calculators"`

	// Permissions lists the grants applied at startup.
	Permissions []GrantConfig `yaml:"permissions"`

	// Seeds lists base observations written at startup.
	Seeds []SeedConfig `yaml:"seeds"`

	Source SourceConfig `yaml:"source"`
	Export ExportConfig `yaml:"export"`

	// Include lists additional config files to load.
	// Supports glob patterns. Relative to this file's directory.
	// Only permissions and seeds are taken from included files.
	Include []string `yaml:"include"`
}

// =============================================================================
// Sections
// =============================================================================

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `yaml:"format"`

	// Output is "stdout", "stderr" or a file path. File output is rotated.
	// Default: "stderr"
	Output string `yaml:"output"`

	// MaxSizeMB is the rotation size of file output.
	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxAgeDays is how long rotated files are kept.
	// Default: 7
	MaxAgeDays int `yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// RouterConfig configures derived feed resolution.
type RouterConfig struct {
	// MaxDepth bounds nested resolution.
	// Default: 32
	MaxDepth int `yaml:"max_depth"`

	// SketchAccuracy is the relative accuracy of latency quantiles.
	// Range: (0, 1), Default: 0.01
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// CalculatorsConfig selects built-in calculators.
type CalculatorsConfig struct {
	// Defaults registers the implied volatility and option price calculators.
	// Default: true
	Defaults bool `yaml:"defaults"`

	// BasisFeedType is the feed type id of the forward-minus-spot calculator.
	// A negative value disables it.
	// Default: 100
	BasisFeedType int `yaml:"basis_feed_type"`
}

// GrantConfig is one permission record.
//
// Either Masks (raw bitmasks per enumerable position) or Values (allowed
// values per position) must be given; Values is converted with
// permission.MaskOf.
type GrantConfig struct {
	Principal string    `yaml:"principal"`
	FeedType  feed.Type `yaml:"feed_type"`
	Masks     []uint64  `yaml:"masks"`
	Values    [][]uint8 `yaml:"values"`
}

// Record returns the bitmask record of the grant.
func (g GrantConfig) Record() []uint64 {
	if len(g.Masks) > 0 {
		return append([]uint64(nil), g.Masks...)
	}
	masks := make([]uint64, len(g.Values))
	for i, vals := range g.Values {
		masks[i] = permission.MaskOf(vals...)
	}
	return masks
}

// SeedConfig is one base observation.
type SeedConfig struct {
	FeedType   feed.Type      `yaml:"feed_type"`
	Enumerable []uint8        `yaml:"enumerable"`
	Other      map[string]any `yaml:"other"`
	Value      float64        `yaml:"value"`

	// Timestamp in Unix seconds. Zero means the load time.
	Timestamp int64 `yaml:"timestamp"`
}

// Feed builds the feed identity of the seed.
func (s SeedConfig) Feed() (feed.Feed, error) {
	params, err := feed.NewParameters(s.Enumerable, s.Other)
	if err != nil {
		return feed.Feed{}, err
	}
	return feed.New(s.FeedType, params), nil
}

// SourceConfig configures the BlockScholes producer.
type SourceConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseURL of the REST API.
	// Default: "https://prod-data.blockscholes.com"
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as X-API-Key. Use "${BLOCKSCHOLES_API_KEY}".
	APIKey string `yaml:"api_key"`

	// Timeout per HTTP request.
	// Default: 30s
	Timeout Duration `yaml:"timeout"`

	// Interval between polls.
	// Default: 1m
	Interval Duration `yaml:"interval"`

	// RequestsPerSecond limits outgoing requests.
	// Default: 5
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst of the request limiter.
	// Default: 1
	Burst int `yaml:"burst"`

	// SourceID and AssetID are the enumerable identity of written feeds.
	// Default: 0, 1
	SourceID uint8 `yaml:"source_id"`
	AssetID  uint8 `yaml:"asset_id"`

	// Asset is the upstream base asset name.
	// Default: "BTC"
	Asset string `yaml:"asset"`

	// Expiries are RFC 3339 expiry times to poll forwards and SVI for.
	Expiries []string `yaml:"expiries"`

	// DomesticRate is written as the domestic rate feed on every poll.
	// Default: 0.035
	DomesticRate float64 `yaml:"domestic_rate"`
}

// ExpiryTimes parses Expiries.
func (s SourceConfig) ExpiryTimes() ([]time.Time, error) {
	out := make([]time.Time, 0, len(s.Expiries))
	for _, e := range s.Expiries {
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

// ExportConfig configures Parquet snapshots.
type ExportConfig struct {
	// Dir receives snapshot files.
	// Default: "snapshots"
	Dir string `yaml:"dir"`

	// Compression codec: none, snappy, gzip, lz4, zstd.
	// Default: "zstd"
	Compression string `yaml:"compression"`

	// OnShutdown writes a snapshot when the daemon stops.
	OnShutdown bool `yaml:"on_shutdown"`

	// Interval between periodic snapshots. Zero disables them.
	Interval Duration `yaml:"interval"`

	// MaxAge prunes snapshots older than this after each export.
	// Zero keeps them forever.
	MaxAge Duration `yaml:"max_age"`

	// Keep is the maximum number of snapshots retained. Zero is unlimited.
	Keep int `yaml:"keep"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      defaults.DefaultLogLevel,
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  defaults.DefaultLogMaxSizeMB,
			MaxAgeDays: defaults.DefaultLogMaxAgeDays,
		},
		Router: RouterConfig{
			MaxDepth:       defaults.DefaultMaxResolveDepth,
			SketchAccuracy: defaults.DefaultSketchAccuracy,
		},
		Calculators: CalculatorsConfig{
			Defaults:      true,
			BasisFeedType: defaults.DefaultBasisFeedType,
		},
		Source: SourceConfig{
			BaseURL:           defaults.DefaultSourceBaseURL,
			Timeout:           Duration(defaults.DefaultSourceTimeout),
			Interval:          Duration(defaults.DefaultSourceInterval),
			RequestsPerSecond: defaults.DefaultSourceRequestsPerSecond,
			Burst:             defaults.DefaultSourceBurst,
			SourceID:          0,
			AssetID:           1,
			Asset:             defaults.DefaultSourceAsset,
			DomesticRate:      defaults.DefaultDomesticRate,
		},
		Export: ExportConfig{
			Dir:         defaults.DefaultExportDir,
			Compression: defaults.DefaultExportCompression,
		},
	}
}

// =============================================================================
// Helper Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports: "30s", "1m", or plain seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		secs, aerr := strconv.Atoi(s)
		if aerr != nil {
			return err
		}
		dur = time.Duration(secs) * time.Second
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
