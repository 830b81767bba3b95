// Package source fetches live market data from the BlockScholes REST API and
// writes it into the oracle as base feeds.
//
// Per poll the producer writes, under the enumerable identity [source, asset]:
//   - spot index price
//   - domestic rate (configured constant)
//   - per expiry: forward (future mark) price, keyed by expiry timestamp
//   - the five SVI coefficients of the first expiry, keyed by selector
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
)

// API endpoints.
const (
	pathSpot   = "/api/v1/price/index"
	pathMark   = "/api/v1/price/mark"
	pathModels = "/api/v1/modelparams"
)

// Quote is a single price observation.
type Quote struct {
	Price     float64
	Timestamp int64
}

// SVI holds one set of raw SVI coefficients.
type SVI struct {
	A, B, Rho, M, Sigma float64
	Timestamp           int64
}

// Values returns the coefficients in selector order (a, b, rho, m, sigma).
func (s SVI) Values() [5]float64 {
	return [5]float64{s.A, s.B, s.Rho, s.M, s.Sigma}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Asset             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client is a BlockScholes API client. It is safe for concurrent use;
// requests share one rate limiter.
type Client struct {
	baseURL string
	apiKey  string
	asset   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. Zero values fall back to the defaults in
// package config.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultSourceBaseURL
	}
	if cfg.Asset == "" {
		cfg.Asset = config.DefaultSourceAsset
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSourceTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = config.DefaultSourceRequestsPerSecond
	}
	if cfg.Burst < 1 {
		cfg.Burst = config.DefaultSourceBurst
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		asset:   cfg.Asset,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// =============================================================================
// Requests
// =============================================================================

type formatOptions struct {
	Timestamp string `json:"timestamp"`
	Hexify    bool   `json:"hexify"`
	Decimals  int    `json:"decimals"`
}

type requestOptions struct {
	Format formatOptions `json:"format"`
}

type request struct {
	Exchange  string         `json:"exchange,omitempty"`
	BaseAsset string         `json:"base_asset"`
	AssetType string         `json:"asset_type,omitempty"`
	Model     string         `json:"model,omitempty"`
	Expiry    string         `json:"expiry,omitempty"`
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Frequency string         `json:"frequency"`
	Options   requestOptions `json:"options"`
}

func (c *Client) newRequest() request {
	return request{
		BaseAsset: c.asset,
		Start:     "LATEST",
		End:       "LATEST",
		Frequency: "1m",
		Options: requestOptions{
			Format: formatOptions{Timestamp: "s", Decimals: 5},
		},
	}
}

// ExpiryString formats an expiry the way the API expects it.
func ExpiryString(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

type priceRow struct {
	Timestamp float64 `json:"timestamp"`
	V         float64 `json:"v"`
}

type sviRow struct {
	Timestamp float64 `json:"timestamp"`
	Alpha     float64 `json:"alpha"`
	Beta      float64 `json:"beta"`
	Rho       float64 `json:"rho"`
	M         float64 `json:"m"`
	Sigma     float64 `json:"sigma"`
}

type response[T any] struct {
	Data []T `json:"data"`
}

// FetchSpot returns the latest spot index price.
func (c *Client) FetchSpot(ctx context.Context) (Quote, error) {
	req := c.newRequest()
	req.AssetType = "spot"

	var resp response[priceRow]
	if err := c.post(ctx, pathSpot, req, &resp); err != nil {
		return Quote{}, err
	}
	if len(resp.Data) == 0 {
		return Quote{}, errors.Wrapf(errors.ErrUpstream, "%s: empty data", pathSpot)
	}
	row := resp.Data[0]
	return Quote{Price: row.V, Timestamp: int64(row.Timestamp)}, nil
}

// FetchForward returns the latest future mark price for expiry.
func (c *Client) FetchForward(ctx context.Context, expiry time.Time) (Quote, error) {
	req := c.newRequest()
	req.AssetType = "future"
	req.Expiry = ExpiryString(expiry)

	var resp response[priceRow]
	if err := c.post(ctx, pathMark, req, &resp); err != nil {
		return Quote{}, err
	}
	if len(resp.Data) == 0 {
		return Quote{}, errors.Wrapf(errors.ErrUpstream, "%s %s: empty data", pathMark, req.Expiry)
	}
	row := resp.Data[0]
	return Quote{Price: row.V, Timestamp: int64(row.Timestamp)}, nil
}

// FetchSVI returns the latest composite SVI coefficients for expiry.
func (c *Client) FetchSVI(ctx context.Context, expiry time.Time) (SVI, error) {
	req := c.newRequest()
	req.Exchange = "composite"
	req.Model = "SVI"
	req.Expiry = ExpiryString(expiry)

	var resp response[sviRow]
	if err := c.post(ctx, pathModels, req, &resp); err != nil {
		return SVI{}, err
	}
	if len(resp.Data) == 0 {
		return SVI{}, errors.Wrapf(errors.ErrUpstream, "%s %s: empty data", pathModels, req.Expiry)
	}
	row := resp.Data[0]
	return SVI{
		A:         row.Alpha,
		B:         row.Beta,
		Rho:       row.Rho,
		M:         row.M,
		Sigma:     row.Sigma,
		Timestamp: int64(row.Timestamp),
	}, nil
}

// post sends payload as JSON and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(errors.ErrTimeout, "%s: rate limiter: %v", path, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(errors.ErrTimeout, "%s: %v", path, err)
		}
		return errors.Wrapf(errors.ErrUpstream, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(errors.ErrUpstream, "%s: read body: %v", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(errors.ErrUpstream, "%s: HTTP %s: %s", path, resp.Status, truncate(data, 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(errors.ErrUpstream, "%s: decode: %v", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
