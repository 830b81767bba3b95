package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/calculator"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/logging"
	"github.com/xtxerr/feedoracle/internal/oracle"
	"github.com/xtxerr/feedoracle/internal/permission"
	"github.com/xtxerr/feedoracle/internal/router"
	"github.com/xtxerr/feedoracle/internal/validation"
)

var log = logging.Component("config")

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := processIncludes(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse parses YAML on top of DefaultConfig after expanding environment
// variables. An empty source.api_key falls back to $BLOCKSCHOLES_API_KEY.
// Include directives are not processed.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Source.APIKey == "" {
		cfg.Source.APIKey = os.Getenv(defaults.DefaultSourceAPIKeyEnv)
	}
	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and appends its permissions and
// seeds.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	var partial Config
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	cfg.Permissions = append(cfg.Permissions, partial.Permissions...)
	cfg.Seeds = append(cfg.Seeds, partial.Seeds...)
	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.Add(errors.NewInvalidValue("logging.level", cfg.Logging.Level, "must be debug, info, warn or error"))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs.Add(errors.NewInvalidValue("logging.format", cfg.Logging.Format, "must be text or json"))
	}

	if cfg.Router.MaxDepth <= 0 {
		errs.AddField("router.max_depth", "must be positive")
	}
	if cfg.Router.SketchAccuracy <= 0 || cfg.Router.SketchAccuracy >= 1 {
		errs.AddField("router.sketch_accuracy", "must be in (0, 1)")
	}

	for i, g := range cfg.Permissions {
		field := fmt.Sprintf("permissions[%d]", i)
		if g.Principal == "" {
			errs.AddMissing(field + ".principal")
		} else if err := validation.ValidatePrincipal(g.Principal); err != nil {
			errs.AddField(field+".principal", err.Error())
		}
		if len(g.Masks) > 0 && len(g.Values) > 0 {
			errs.AddField(field, "masks and values are mutually exclusive")
		}
		for j, vals := range g.Values {
			for _, v := range vals {
				if v > permission.MaxValue {
					errs.Add(errors.NewInvalidValue(fmt.Sprintf("%s.values[%d]", field, j), v, "exceeds 63"))
				}
			}
		}
	}

	for i, s := range cfg.Seeds {
		if _, err := s.Feed(); err != nil {
			errs.AddField(fmt.Sprintf("seeds[%d]", i), err.Error())
		}
	}

	if cfg.Source.Enabled {
		if cfg.Source.BaseURL == "" {
			errs.AddMissing("source.base_url")
		}
		if cfg.Source.APIKey == "" {
			errs.AddMissing("source.api_key")
		}
		if cfg.Source.Interval.Duration() <= 0 {
			errs.AddField("source.interval", "must be positive")
		}
		if cfg.Source.RequestsPerSecond <= 0 {
			errs.AddField("source.requests_per_second", "must be positive")
		}
		if cfg.Source.Burst < 1 {
			errs.AddField("source.burst", "must be at least 1")
		}
		if len(cfg.Source.Expiries) == 0 {
			errs.AddField("source.expiries", "at least one expiry is required")
		}
		if _, err := cfg.Source.ExpiryTimes(); err != nil {
			errs.AddField("source.expiries", err.Error())
		}
	}

	switch cfg.Export.Compression {
	case "", "none", "snappy", "gzip", "lz4", "zstd":
	default:
		errs.Add(errors.NewInvalidValue("export.compression", cfg.Export.Compression, "unknown codec"))
	}
	if cfg.Export.Interval.Duration() < 0 {
		errs.AddField("export.interval", "must not be negative")
	}
	if cfg.Export.MaxAge.Duration() < 0 {
		errs.AddField("export.max_age", "must not be negative")
	}
	if cfg.Export.Keep < 0 {
		errs.AddField("export.keep", "must not be negative")
	}

	return errs.Err()
}

// =============================================================================
// Apply
// =============================================================================

// RouterConfig converts the router section.
func (c *Config) RouterConfig() router.Config {
	return router.Config{
		MaxDepth:       c.Router.MaxDepth,
		SketchAccuracy: c.Router.SketchAccuracy,
	}
}

// Apply registers calculators, applies grants and writes seeds into svc.
// Seeds with a zero timestamp are written at now.
func Apply(cfg *Config, svc *oracle.Service, now time.Time) error {
	if cfg.Calculators.Defaults {
		if err := calculator.RegisterDefaults(svc.Router(), cfg.Calculators.BasisFeedType); err != nil {
			return fmt.Errorf("register calculators: %w", err)
		}
	}

	for _, g := range cfg.Permissions {
		svc.Grant(permission.Principal(g.Principal), g.FeedType, g.Record())
	}

	for i, s := range cfg.Seeds {
		f, err := s.Feed()
		if err != nil {
			return errors.Wrapf(err, "seeds[%d]", i)
		}
		ts := s.Timestamp
		if ts == 0 {
			ts = now.Unix()
		}
		if _, err := svc.Put(f, s.Value, ts); err != nil {
			return errors.Wrapf(err, "seeds[%d]", i)
		}
	}

	log.Info("configuration applied",
		"calculators", len(svc.Router().Registrations()),
		"grants", len(cfg.Permissions),
		"seeds", len(cfg.Seeds))
	return nil
}

// InitLogging initializes the global logger from the logging section.
func (c *Config) InitLogging() {
	logging.InitOutput(logging.ParseLevel(c.Logging.Level), c.Logging.Format == "json", logging.Output{
		Path:       c.Logging.Output,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	})
}
