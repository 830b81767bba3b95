// Package config provides configuration defaults for feedoracle.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Router Defaults
// =============================================================================

const (
	// DefaultMaxResolveDepth bounds the recursion of derived-feed resolution.
	// The built-in chain (option price -> implied vol -> forward/SVI) needs 2.
	// Override via config: router.max_depth
	DefaultMaxResolveDepth = 32

	// DefaultSketchAccuracy is the relative accuracy of resolve latency sketches.
	// Override via config: router.sketch_accuracy
	DefaultSketchAccuracy = 0.01

	// DefaultBasisFeedType is the feed type id of the forward-minus-spot
	// calculator. A negative value disables it.
	// Override via config: calculators.basis_feed_type
	DefaultBasisFeedType = 100
)

// =============================================================================
// Pricing Defaults
// =============================================================================

const (
	// DaysInYear scales theta to a per-calendar-day figure.
	DaysInYear = 365.0

	// SecondsInYear converts timestamp differences to year fractions.
	SecondsInYear = DaysInYear * 24 * 60 * 60

	// NearExpiry is the window before expiry in which option prices fall back
	// to intrinsic value.
	NearExpiry = 5 * time.Minute

	// DefaultDomesticRate is written to the domestic rate feed by the live source.
	// Override via config: source.domestic_rate
	DefaultDomesticRate = 0.035
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultSourceBaseURL is the BlockScholes API endpoint.
	// Override via config: source.base_url
	DefaultSourceBaseURL = "https://prod-data.blockscholes.com"

	// DefaultSourceAPIKeyEnv names the environment variable holding the API key.
	DefaultSourceAPIKeyEnv = "BLOCKSCHOLES_API_KEY"

	// DefaultSourceTimeout is the per-request HTTP timeout.
	// Override via config: source.timeout
	DefaultSourceTimeout = 30 * time.Second

	// DefaultSourceInterval is how often the live source polls.
	// Override via config: source.interval
	DefaultSourceInterval = time.Minute

	// DefaultSourceRequestsPerSecond limits outgoing API calls.
	// Override via config: source.requests_per_second
	DefaultSourceRequestsPerSecond = 5.0

	// DefaultSourceBurst is the limiter burst size.
	// Override via config: source.burst
	DefaultSourceBurst = 1

	// DefaultSourceAsset is the base asset requested from the API.
	DefaultSourceAsset = "BTC"
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec used for snapshots.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultExportDir is where snapshots are written on shutdown.
	// Override via config: export.dir
	DefaultExportDir = "snapshots"
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the log level when none is configured.
	DefaultLogLevel = "info"

	// DefaultLogMaxSizeMB is the rotation size of file log output.
	DefaultLogMaxSizeMB = 100

	// DefaultLogMaxAgeDays is how long rotated log files are kept.
	DefaultLogMaxAgeDays = 7
)
