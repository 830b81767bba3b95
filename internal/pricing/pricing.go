// Package pricing implements Black-Scholes premiums and sensitivities for
// vanilla and digital (cash-or-nothing) options on a forward, with the foreign
// rate implied from spot and forward.
//
// Conventions:
//   - t is in years, vol and rates are annualised decimals
//   - vega is per 1 vol point, theta is per calendar day
//   - the vanilla premium is floored at 0
package pricing

import (
	"math"

	"github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
)

// Right is the option right.
type Right int

const (
	Call Right = iota
	Put
)

// Phi returns +1 for calls and -1 for puts.
func (r Right) Phi() float64 {
	if r == Put {
		return -1
	}
	return 1
}

func (r Right) String() string {
	if r == Put {
		return "put"
	}
	return "call"
}

// Style is the payoff style.
type Style int

const (
	Vanilla Style = iota
	Digital
)

func (s Style) String() string {
	if s == Digital {
		return "digital"
	}
	return "vanilla"
}

// Inputs to Price.
type Inputs struct {
	Spot         float64
	Forward      float64
	Strike       float64
	Vol          float64
	T            float64
	DomesticRate float64
	Right        Right
	Style        Style
}

// Result holds the premium and sensitivities.
type Result struct {
	Premium float64
	Delta   float64
	Gamma   float64
	Vega    float64
	Theta   float64
	Volga   float64
	Vanna   float64
}

// ForeignRate returns the rate implied by the spot/forward basis. For t <= 0
// it returns rd unchanged.
func ForeignRate(spot, rd, forward, t float64) float64 {
	if t <= 0 {
		return rd
	}
	return rd - math.Log(forward/spot)/t
}

// Price computes premium and Greeks. Spot, forward, strike, vol and t must be
// strictly positive.
func Price(in Inputs) (Result, error) {
	if in.Spot <= 0 || in.Forward <= 0 || in.T <= 0 {
		return Result{}, errors.NewInvalidInput("spot=%g forward=%g t=%g must be > 0", in.Spot, in.Forward, in.T)
	}
	if in.Strike <= 0 || in.Vol <= 0 {
		return Result{}, errors.NewInvalidInput("strike=%g vol=%g must be > 0", in.Strike, in.Vol)
	}

	phi := in.Right.Phi()
	sqrtT := math.Sqrt(in.T)
	volSqrtT := in.Vol * sqrtT
	rd := in.DomesticRate
	rf := ForeignRate(in.Spot, rd, in.Forward, in.T)

	dp := (math.Log(in.Forward/in.Strike) + 0.5*in.Vol*in.Vol*in.T) / volSqrtT
	dm := dp - volSqrtT

	dfd := math.Exp(-rd * in.T)
	dff := math.Exp(-rf * in.T)

	if in.Style == Digital {
		return digital(in, phi, sqrtT, rd, dp, dm, dfd), nil
	}
	return vanilla(in, phi, sqrtT, rd, rf, dp, dm, dfd, dff), nil
}

func vanilla(in Inputs, phi, sqrtT, rd, rf, dp, dm, dfd, dff float64) Result {
	s, k, vol := in.Spot, in.Strike, in.Vol
	pdfDp := NormPDF(dp)
	cdfDp := NormCDF(phi * dp)
	cdfDm := NormCDF(phi * dm)

	premium := math.Max(phi*dfd*(in.Forward*cdfDp-k*cdfDm), 0)

	theta1 := dff * pdfDp * s * vol / (2 * sqrtT)
	theta2 := rf * s * dff * cdfDp
	theta3 := rd * k * dfd * cdfDm

	return Result{
		Premium: premium,
		Delta:   phi * dff * cdfDp,
		Gamma:   dff * pdfDp / (s * vol * sqrtT),
		Vega:    s * dff * sqrtT * pdfDp / 100,
		Theta:   (-theta1 + phi*(theta2-theta3)) / config.DaysInYear,
		Volga:   s * dff * sqrtT * pdfDp * (dp * dm / vol),
		Vanna:   -dff * pdfDp * dm / vol,
	}
}

func digital(in Inputs, phi, sqrtT, rd, dp, dm, dfd float64) Result {
	s, vol, t := in.Spot, in.Vol, in.T
	pdfDm := NormPDF(dm)
	premium := dfd * NormCDF(phi*dm)

	return Result{
		Premium: premium,
		Delta:   phi * dfd * pdfDm / (s * vol * sqrtT),
		Gamma:   -phi * dfd * pdfDm * dp / (s * s * vol * vol * t),
		Vega:    -phi * dfd * pdfDm * dp / (vol * 100),
		Theta:   (rd*premium + phi*dfd*pdfDm*(dp/(2*t)+rd*dm/(vol*sqrtT))) / config.DaysInYear,
		Volga:   phi * dfd * pdfDm * dp * (dp*dm - 1) / (vol * vol),
		Vanna:   phi * dfd * pdfDm * (dm*dp - 1) / (s * vol * vol * sqrtT),
	}
}

// Intrinsic returns max(spot-strike, 0) for calls and max(strike-spot, 0)
// for puts.
func Intrinsic(spot, strike float64, right Right) float64 {
	if right == Put {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
