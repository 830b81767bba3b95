package source

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
)

var log = logging.Component("source")

// Writer receives observations. *oracle.Service implements it.
type Writer interface {
	Put(f feed.Feed, value float64, timestamp int64) (bool, error)
}

// Fetcher is the upstream API. *Client implements it.
type Fetcher interface {
	FetchSpot(ctx context.Context) (Quote, error)
	FetchForward(ctx context.Context, expiry time.Time) (Quote, error)
	FetchSVI(ctx context.Context, expiry time.Time) (SVI, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval     time.Duration
	SourceID     uint8
	AssetID      uint8
	Expiries     []time.Time
	DomesticRate float64
}

// PollerStats holds poller counters.
type PollerStats struct {
	Polls    uint64
	Failures uint64
	Writes   uint64
	LastPoll time.Time
	LastErr  string
}

// Poller periodically fetches spot, forwards and SVI parameters and writes
// them as base feeds. Forwards are polled for every expiry; the SVI surface
// is taken from the first expiry.
type Poller struct {
	fetcher Fetcher
	writer  Writer
	cfg     PollerConfig

	// Spot is shared by every expiry of a poll; concurrent pollers and
	// manual polls collapse onto one request.
	spot singleflight.Group

	polls    atomic.Uint64
	failures atomic.Uint64
	writes   atomic.Uint64

	mu       sync.Mutex
	lastPoll time.Time
	lastErr  string

	now func() time.Time
}

// NewPoller creates a poller.
func NewPoller(fetcher Fetcher, writer Writer, cfg PollerConfig) *Poller {
	return &Poller{
		fetcher: fetcher,
		writer:  writer,
		cfg:     cfg,
		now:     time.Now,
	}
}

// identity is the enumerable prefix [source, asset] of every written feed.
func (p *Poller) identity() feed.Parameters {
	return feed.Enum(p.cfg.SourceID, p.cfg.AssetID)
}

// Run polls immediately and then on every interval until ctx is cancelled.
// Poll errors are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	log.Info("source poller started",
		"interval", p.cfg.Interval,
		"expiries", len(p.cfg.Expiries))

	if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		logPollError(err)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("source poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				logPollError(err)
			}
		}
	}
}

// logPollError logs transient upstream failures as warnings and anything
// else, such as a rejected write, as an error.
func logPollError(err error) {
	if errors.IsRetriable(err) {
		log.Warn("poll failed", "error", err)
		return
	}
	log.Error("poll failed", "error", err)
}

// PollOnce performs one poll. Every expiry is fetched concurrently; a failing
// expiry or a rejected write does not prevent the others from being written.
// The first error is returned and counted as a failure.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := p.now()
	ctx = logging.ContextWithRequestID(ctx, p.polls.Add(1))
	plog := logging.WithContext(ctx).With("component", "source")

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	g.Go(func() error {
		q, err := p.fetchSpot(gctx)
		if err != nil {
			record(err)
			return nil
		}
		if err := p.write(plog, feed.New(feed.Spot, p.identity()), q.Price, q.Timestamp); err != nil {
			record(err)
		}
		if err := p.write(plog, feed.New(feed.DomesticRate, p.identity()), p.cfg.DomesticRate, q.Timestamp); err != nil {
			record(err)
		}
		return nil
	})

	for _, expiry := range p.cfg.Expiries {
		expiry := expiry
		g.Go(func() error {
			if err := p.pollForward(gctx, plog, expiry); err != nil {
				record(err)
			}
			return nil
		})
	}

	if len(p.cfg.Expiries) > 0 {
		g.Go(func() error {
			if err := p.pollSVI(gctx, plog, p.cfg.Expiries[0]); err != nil {
				record(err)
			}
			return nil
		})
	}

	_ = g.Wait()

	p.mu.Lock()
	p.lastPoll = start
	if firstErr != nil {
		p.lastErr = firstErr.Error()
	} else {
		p.lastErr = ""
	}
	p.mu.Unlock()

	if firstErr != nil {
		p.failures.Add(1)
		return firstErr
	}

	plog.Debug("poll complete", "duration", p.now().Sub(start))
	return nil
}

func (p *Poller) fetchSpot(ctx context.Context) (Quote, error) {
	v, err, _ := p.spot.Do("spot", func() (interface{}, error) {
		return p.fetcher.FetchSpot(ctx)
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (p *Poller) pollForward(ctx context.Context, plog *slog.Logger, expiry time.Time) error {
	params, err := p.identity().With(feed.KeyExpiryTimestamp, expiry.Unix())
	if err != nil {
		return err
	}

	fwd, err := p.fetcher.FetchForward(ctx, expiry)
	if err != nil {
		return err
	}
	return p.write(plog, feed.New(feed.Forward, params), fwd.Price, fwd.Timestamp)
}

// pollSVI writes one volatility surface per asset, keyed
// [source, asset, selector]; it is taken from the given expiry.
func (p *Poller) pollSVI(ctx context.Context, plog *slog.Logger, expiry time.Time) error {
	svi, err := p.fetcher.FetchSVI(ctx, expiry)
	if err != nil {
		return err
	}
	var firstErr error
	for i, v := range svi.Values() {
		err := p.write(plog, feed.New(feed.SVIParams, p.identity().WithEnumerable(uint8(i))), v, svi.Timestamp)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Poller) write(plog *slog.Logger, f feed.Feed, value float64, timestamp int64) error {
	if _, err := p.writer.Put(f, value, timestamp); err != nil {
		plog.Debug("write failed", "feed", f.String(), "error", err)
		return errors.Wrapf(err, "write %s", f)
	}
	p.writes.Add(1)
	return nil
}

// Stats returns poller counters.
func (p *Poller) Stats() PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PollerStats{
		Polls:    p.polls.Load(),
		Failures: p.failures.Load(),
		Writes:   p.writes.Load(),
		LastPoll: p.lastPoll,
		LastErr:  p.lastErr,
	}
}
