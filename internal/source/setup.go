package source

import (
	cfgpkg "github.com/xtxerr/feedoracle/internal/config"
)

// NewFromConfig builds a client and poller from the source section.
func NewFromConfig(cfg cfgpkg.SourceConfig, w Writer) (*Poller, error) {
	expiries, err := cfg.ExpiryTimes()
	if err != nil {
		return nil, err
	}

	client := NewClient(ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Asset:             cfg.Asset,
		Timeout:           cfg.Timeout.Duration(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})

	return NewPoller(client, w, PollerConfig{
		Interval:     cfg.Interval.Duration(),
		SourceID:     cfg.SourceID,
		AssetID:      cfg.AssetID,
		Expiries:     expiries,
		DomesticRate: cfg.DomesticRate,
	}), nil
}
