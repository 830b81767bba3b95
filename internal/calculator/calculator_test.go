package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/router"
	"github.com/xtxerr/feedoracle/internal/storage"
	testhelp "github.com/xtxerr/feedoracle/internal/testing"
)

const (
	now      int64 = 1_750_000_000
	halfYear int64 = 15_768_000
	oneYear  int64 = 31_536_000
)

func TestTimeToExpiry(t *testing.T) {
	assert.Equal(t, 1.0, TimeToExpiry(now, now+oneYear))
	assert.Equal(t, 0.5, TimeToExpiry(now, now+halfYear))
	assert.Less(t, TimeToExpiry(now, now-1), 0.0)

	assert.True(t, IsNearExpiry(TimeToExpiry(now, now+299)))
	assert.False(t, IsNearExpiry(TimeToExpiry(now, now+int64(config.NearExpiry.Seconds()))))
}

func TestSVIImpliedVol_InputParameters(t *testing.T) {
	params := testhelp.OptionParams(now+oneYear, 110, true, false)
	got := SVIImpliedVol{}.InputParameters(params)

	require.Len(t, got, len(SVIInputTypes))
	assert.Equal(t, "[0,1]{expiry_timestamp=1781536000}", got[0].String())
	assert.Equal(t, "[0,1,0]", got[1].String())
	assert.Equal(t, "[0,1,4]", got[5].String())
}

func TestSVIImpliedVol_Calculate(t *testing.T) {
	h := SVIImpliedVol{}
	params := feed.MustParameters([]uint8{0, 1}, map[string]any{
		feed.KeyExpiryTimestamp: now + halfYear,
		feed.KeyStrike:          110.0,
	})

	iv, err := h.Calculate(now, []float64{100, 0.01, 0.1, -0.3, 0, 0.1}, params)
	require.NoError(t, err)
	assert.InDelta(t, 0.20472025181199213, iv, 1e-12)

	// Strike defaults to the forward, so k = 0.
	atm := testhelp.ExpiryParams(now + oneYear)
	iv, err = h.Calculate(now, []float64{100, 0.04, 0, 0, 0, 0}, atm)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, iv, 1e-12)

	// Expired.
	iv, err = h.Calculate(now+oneYear+1, []float64{100, 0.04, 0, 0, 0, 0}, atm)
	require.NoError(t, err)
	assert.Equal(t, 0.0, iv)

	// Negative variance.
	_, err = h.Calculate(now, []float64{100, -1, 0, 0, 0, 0}, atm)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput), "got %v", err)

	_, err = h.Calculate(now, []float64{100}, atm)
	assert.True(t, errors.Is(err, errors.ErrArityMismatch), "got %v", err)
}

func TestOptionPrice_InputParameters(t *testing.T) {
	params := testhelp.OptionParams(now+oneYear, 100, false, true)
	got := OptionPrice{}.InputParameters(params)

	require.Len(t, got, len(OptionPriceInputTypes))
	assert.Equal(t, "[0,1]", got[0].String())
	assert.Equal(t, "[0,1]{expiry_timestamp=1781536000}", got[1].String())
	assert.True(t, got[2].Equal(params))
	assert.Equal(t, "[0,1]", got[3].String())
}

func TestOptionPrice_Calculate(t *testing.T) {
	h := OptionPrice{}
	inputs := []float64{100, 100, 0.2, 0}

	call := testhelp.OptionParams(now+oneYear, 100, true, false)
	v, err := h.Calculate(now, inputs, call)
	require.NoError(t, err)
	assert.InDelta(t, 7.965567455405798, v, 1e-9)

	digital := testhelp.OptionParams(now+oneYear, 100, true, true)
	v, err = h.Calculate(now, inputs, digital)
	require.NoError(t, err)
	assert.InDelta(t, 0.46017216272297107, v, 1e-9)
}

func TestOptionPrice_ShortCircuits(t *testing.T) {
	h := OptionPrice{}

	tests := []struct {
		name   string
		ts     int64
		inputs []float64
		params feed.Parameters
		want   float64
	}{
		{"expired", now + 10, []float64{120, 120, 0.5, 0}, testhelp.OptionParams(now, 100, true, false), 0},
		{"near expiry call", now, []float64{120, 120, 0.5, 0}, testhelp.OptionParams(now+60, 100, true, false), 20},
		{"near expiry put", now, []float64{80, 80, 0.5, 0}, testhelp.OptionParams(now+60, 100, false, false), 20},
		{"near expiry otm", now, []float64{80, 80, 0.5, 0}, testhelp.OptionParams(now+60, 100, true, false), 0},
		{"zero vol", now, []float64{120, 120, 0, 0}, testhelp.OptionParams(now+oneYear, 100, true, false), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Calculate(tt.ts, tt.inputs, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			res, err := h.Greeks(tt.ts, tt.inputs, tt.params)
			require.NoError(t, err)
			assert.Equal(t, 0.0, res.Delta)
		})
	}
}

func TestBasis(t *testing.T) {
	params := testhelp.ExpiryParams(now + oneYear)
	in := Basis{}.InputParameters(params)

	require.Len(t, in, 2)
	assert.True(t, in[0].Equal(params))
	assert.Equal(t, "[0,1]", in[1].String())

	v, err := Basis{}.Calculate(now, []float64{70500, 70000}, params)
	require.NoError(t, err)
	assert.Equal(t, 500.0, v)
}

// seed writes a consistent set of base observations for the demo underlying.
func seed(t *testing.T, s *storage.Store, expiry int64) {
	t.Helper()
	p := testhelp.DemoParams()

	add := func(f feed.Feed, v float64, ts int64) {
		_, err := s.Add(f, v, ts)
		require.NoError(t, err)
	}

	add(feed.New(feed.Spot, p), 100, now+5)
	add(feed.New(feed.DomesticRate, p), 0, now+5)
	add(feed.New(feed.Forward, testhelp.ExpiryParams(expiry)), 100, now)
	svi := []float64{0.04, 0, 0, 0, 0}
	for sel, v := range svi {
		add(feed.New(feed.SVIParams, p.WithEnumerable(uint8(sel))), v, now+10)
	}
}

func TestChainedResolution(t *testing.T) {
	s := storage.New()
	r := router.New(s, router.DefaultConfig())
	require.NoError(t, RegisterDefaults(r, config.DefaultBasisFeedType))

	expiry := now + oneYear
	seed(t, s, expiry)

	// IV is not stored: the option price resolves it through the surface.
	ivData, err := r.Resolve(feed.New(feed.IV, testhelp.ExpiryParams(expiry)))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, ivData.Value, 1e-12)
	assert.Equal(t, now, ivData.Timestamp)

	price, err := r.Resolve(feed.New(feed.OptionPrice, testhelp.OptionParams(expiry, 100, true, false)))
	require.NoError(t, err)
	assert.InDelta(t, 7.965567455405798, price.Value, 1e-9)
	assert.Equal(t, now, price.Timestamp, "timestamp is the minimum across the chain")

	put, err := r.Resolve(feed.New(feed.OptionPrice, testhelp.OptionParams(expiry, 100, false, false)))
	require.NoError(t, err)
	assert.InDelta(t, price.Value, put.Value, 1e-9)

	basis, err := r.Resolve(feed.New(feed.Type(config.DefaultBasisFeedType), testhelp.ExpiryParams(expiry)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, basis.Value)
}

func TestChainedResolution_MissingSurface(t *testing.T) {
	s := storage.New()
	r := router.New(s, router.DefaultConfig())
	require.NoError(t, RegisterDefaults(r, -1))

	expiry := now + oneYear
	seed(t, s, expiry)
	require.NoError(t, s.Remove(feed.New(feed.SVIParams, testhelp.DemoParams().WithEnumerable(uint8(feed.SVIRho)))))

	_, err := r.Resolve(feed.New(feed.OptionPrice, testhelp.OptionParams(expiry, 100, true, false)))
	assert.True(t, errors.IsNotFound(err), "got %v", err)
	assert.False(t, r.IsDerived(feed.Type(config.DefaultBasisFeedType)))
}
