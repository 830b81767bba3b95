// Package calculator provides the built-in router handlers: implied
// volatility from an SVI surface, option premiums, and the forward basis.
//
// All handlers take the router reference timestamp (the minimum input
// timestamp) as "now" when computing time to expiry.
package calculator

import (
	"math"

	"github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/pricing"
	"github.com/xtxerr/feedoracle/internal/router"
)

// nearExpiryYears is config.NearExpiry as a year fraction.
var nearExpiryYears = config.NearExpiry.Seconds() / config.SecondsInYear

// TimeToExpiry returns (expiry - timestamp) in years. It is negative for
// expired contracts.
func TimeToExpiry(timestamp, expiry int64) float64 {
	return float64(expiry-timestamp) / config.SecondsInYear
}

// IsNearExpiry reports whether t (in years) is inside the intrinsic-value window.
func IsNearExpiry(t float64) bool {
	return t < nearExpiryYears
}

// underlying returns the [source, asset] prefix of params.
func underlying(params feed.Parameters) feed.Parameters {
	return params.Prefix(2)
}

// withExpiry returns the underlying parameters plus the expiry of params.
// A missing expiry is carried as 0.
func withExpiry(params feed.Parameters) feed.Parameters {
	p, _ := underlying(params).With(feed.KeyExpiryTimestamp, params.Int(feed.KeyExpiryTimestamp, 0))
	return p
}

func checkArity(name string, inputs []float64, want int) error {
	if len(inputs) != want {
		return errors.Wrapf(errors.ErrArityMismatch, "%s: expected %d inputs, got %d", name, want, len(inputs))
	}
	return nil
}

// =============================================================================
// SVI implied volatility
// =============================================================================

// SVIImpliedVol derives implied volatility from the raw SVI parameterisation
// of total variance:
//
//	w(k) = a + b*(rho*(k-m) + sqrt((k-m)^2 + sigma^2)),  k = ln(K/F)
//	iv   = sqrt(w / t)
//
// Inputs: [Forward, SVI a, SVI b, SVI rho, SVI m, SVI sigma].
type SVIImpliedVol struct{}

// SVIInputTypes is the registration input list of SVIImpliedVol.
var SVIInputTypes = []feed.Type{
	feed.Forward,
	feed.SVIParams, feed.SVIParams, feed.SVIParams, feed.SVIParams, feed.SVIParams,
}

// InputParameters implements router.Handler.
func (SVIImpliedVol) InputParameters(params feed.Parameters) []feed.Parameters {
	base := underlying(params)
	out := make([]feed.Parameters, 0, 1+feed.SVIParamCount)
	out = append(out, withExpiry(params))
	for sel := feed.SVIA; sel <= feed.SVISigma; sel++ {
		out = append(out, base.WithEnumerable(uint8(sel)))
	}
	return out
}

// Calculate implements router.Handler.
func (SVIImpliedVol) Calculate(timestamp int64, inputs []float64, params feed.Parameters) (float64, error) {
	if err := checkArity("svi implied vol", inputs, len(SVIInputTypes)); err != nil {
		return 0, err
	}

	forward := inputs[0]
	a, b, rho, m, sigma := inputs[1], inputs[2], inputs[3], inputs[4], inputs[5]

	t := TimeToExpiry(timestamp, params.Int(feed.KeyExpiryTimestamp, 0))
	if t <= 0 {
		return 0, nil
	}

	strike := params.Float(feed.KeyStrike, forward)
	var k float64
	if forward > 0 {
		k = math.Log(strike / forward)
	}

	totalVar := a + b*(rho*(k-m)+math.Sqrt((k-m)*(k-m)+sigma*sigma))
	if totalVar < 0 || math.IsNaN(totalVar) {
		return 0, errors.NewInvalidInput("svi total variance %g at k=%g", totalVar, k)
	}
	return math.Sqrt(totalVar / t), nil
}

// =============================================================================
// Option price
// =============================================================================

// OptionPrice prices vanilla and digital options from spot, forward, implied
// volatility and the domestic rate.
//
// Parameters: expiry_timestamp, strike (defaults to the forward),
// is_call (default true), is_digital (default false).
type OptionPrice struct{}

// OptionPriceInputTypes is the registration input list of OptionPrice.
var OptionPriceInputTypes = []feed.Type{feed.Spot, feed.Forward, feed.IV, feed.DomesticRate}

// InputParameters implements router.Handler. The IV input is requested with
// the option's own parameters so the surface is evaluated at its strike.
func (OptionPrice) InputParameters(params feed.Parameters) []feed.Parameters {
	base := underlying(params)
	return []feed.Parameters{base, withExpiry(params), params, base}
}

// Calculate implements router.Handler and returns the premium.
func (o OptionPrice) Calculate(timestamp int64, inputs []float64, params feed.Parameters) (float64, error) {
	res, err := o.Greeks(timestamp, inputs, params)
	if err != nil {
		return 0, err
	}
	return res.Premium, nil
}

// Greeks returns the full pricing result. The expired, near-expiry and
// zero-vol cases carry only a premium.
func (OptionPrice) Greeks(timestamp int64, inputs []float64, params feed.Parameters) (pricing.Result, error) {
	if err := checkArity("option price", inputs, len(OptionPriceInputTypes)); err != nil {
		return pricing.Result{}, err
	}

	spot, forward, iv, rd := inputs[0], inputs[1], inputs[2], inputs[3]
	strike := params.Float(feed.KeyStrike, forward)

	right := pricing.Call
	if !params.Bool(feed.KeyIsCall, true) {
		right = pricing.Put
	}
	style := pricing.Vanilla
	if params.Bool(feed.KeyIsDigital, false) {
		style = pricing.Digital
	}

	t := TimeToExpiry(timestamp, params.Int(feed.KeyExpiryTimestamp, 0))
	switch {
	case t <= 0:
		return pricing.Result{}, nil
	case IsNearExpiry(t):
		return pricing.Result{Premium: pricing.Intrinsic(spot, strike, right)}, nil
	case iv <= 0:
		return pricing.Result{}, nil
	}

	return pricing.Price(pricing.Inputs{
		Spot:         spot,
		Forward:      forward,
		Strike:       strike,
		Vol:          iv,
		T:            t,
		DomesticRate: rd,
		Right:        right,
		Style:        style,
	})
}

// =============================================================================
// Basis
// =============================================================================

// Basis is forward minus spot. The forward is requested with the output
// parameters, the spot with the enumerable part only.
type Basis struct{}

// BasisInputTypes is the registration input list of Basis.
var BasisInputTypes = []feed.Type{feed.Forward, feed.Spot}

// InputParameters implements router.Handler.
func (Basis) InputParameters(params feed.Parameters) []feed.Parameters {
	return []feed.Parameters{params, feed.Enum(params.Enumerable()...)}
}

// Calculate implements router.Handler.
func (Basis) Calculate(_ int64, inputs []float64, _ feed.Parameters) (float64, error) {
	if err := checkArity("basis", inputs, len(BasisInputTypes)); err != nil {
		return 0, err
	}
	return inputs[0] - inputs[1], nil
}

// =============================================================================
// Registration
// =============================================================================

// Registrar is the registration side of the router.
type Registrar interface {
	Register(output feed.Type, inputs []feed.Type, handler router.Handler) error
}

// RegisterDefaults registers the implied volatility and option price
// calculators, and Basis under basisType when it is non-negative.
func RegisterDefaults(r Registrar, basisType int) error {
	if err := r.Register(feed.IV, SVIInputTypes, SVIImpliedVol{}); err != nil {
		return err
	}
	if err := r.Register(feed.OptionPrice, OptionPriceInputTypes, OptionPrice{}); err != nil {
		return err
	}
	if basisType >= 0 {
		if err := r.Register(feed.Type(basisType), BasisInputTypes, Basis{}); err != nil {
			return err
		}
	}
	return nil
}
