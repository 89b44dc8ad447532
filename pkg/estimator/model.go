package estimator

import (
	"math"

	"github.com/nova-systems/cachectl/pkg/system/util"
)

// alphaEpsilon is how close alpha must be to 1 before the logarithmic limit
// is used instead of the power-law form, avoiding the 1/(1-alpha) blowup.
const alphaEpsilon = 1e-4

// cumulativeAccessPowerLaw is Φ(x; α, β, γ, G) for α ≠ 1:
//
//	β·G/(1−α)·[(1+x/G)^(1−α) − 1] + γ·x
func cumulativeAccessPowerLaw(x, alpha, beta, gamma, g float64) float64 {
	return beta*g/(1-alpha)*(util.Pow(1+x/g, 1-alpha)-1) + gamma*x
}

// cumulativeAccessLogarithmic is the α = 1 limit of Φ: β·G·ln(1+x/G) + γ·x.
// Kept as its own function per the resolution of open question (a): the two
// branches never share mutable state, only the (β, γ, G) tuple.
func cumulativeAccessLogarithmic(x, beta, gamma, g float64) float64 {
	return beta*g*math.Log(1+x/g) + gamma*x
}

// cumulativeAccess dispatches to whichever branch applies for the current α.
func cumulativeAccess(x float64, s FitState) float64 {
	if math.Abs(s.Alpha-1) < alphaEpsilon {
		return cumulativeAccessLogarithmic(x, s.Beta, s.Gamma, s.G)
	}
	return cumulativeAccessPowerLaw(x, s.Alpha, s.Beta, s.Gamma, s.G)
}

// computeBetaCoeff recomputes β analytically from the first observed data
// point (a1 = cumulative access at x=1) whenever α changes, clipped to
// [0, 100·a1].
func computeBetaCoeff(a1, alpha, g float64) float64 {
	var beta float64
	if math.Abs(alpha-1) < alphaEpsilon {
		beta = util.SafeDiv(a1*g, math.Log(1+1/g))
	} else {
		denom := util.Pow(1+1/g, 1-alpha) - 1
		beta = util.SafeDiv(a1*g*(1-alpha), denom)
	}
	return clip(beta, 0, 100*a1)
}

// computeMissRatio is MR(K) = 1 − Φ(K)/Φ(anonPages), clamped to [0,1].
func computeMissRatio(cachePages, anonPages float64, s FitState) float64 {
	denom := cumulativeAccess(anonPages, s)
	if denom <= 0 {
		return 1
	}
	return util.Clamp01(1 - cumulativeAccess(cachePages, s)/denom)
}

// precomputeDeltaCoeff centers a numerical derivative of f around v using
// step dx, the ∂f/∂v the miss-ratio phase's gradient steps are built from.
func precomputeDeltaCoeff(f func(v float64) float64, v float64) float64 {
	plus := f(v + dx)
	minus := f(v - dx)
	return clip((plus-minus)/(2*dx), -100, 100)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// computeCompulsoryMissPoint solves, via Newton-Raphson, the page index m*
// beyond which additional cache capacity yields no further hit-rate gain —
// the point where the marginal access rate Φ'(m) falls to the floor rate
// γ (the purely-linear, "always a miss regardless of cache size" term).
// Only invoked when SeparateCompulsory is requested.
func computeCompulsoryMissPoint(s FitState, seed float64) (float64, error) {
	m := seed
	if m <= 0 {
		m = 1
	}
	for i := 0; i < maxNewtonIterations; i++ {
		fm := marginalAccessRate(m, s) - s.Gamma
		if math.Abs(fm) < newtonTolerance {
			return m, nil
		}
		deriv := precomputeDeltaCoeff(func(v float64) float64 {
			return marginalAccessRate(v, s) - s.Gamma
		}, m)
		if deriv == 0 {
			break
		}
		next := m - fm/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= 0 {
			break
		}
		m = next
	}
	return 0, ErrFitDiverged
}

// marginalAccessRate is Φ'(x), the derivative of the cumulative-access
// model at x, via central difference, clipped to [-100, 100] like every
// precomputeDeltaCoeff result.
func marginalAccessRate(x float64, s FitState) float64 {
	return precomputeDeltaCoeff(func(v float64) float64 {
		return cumulativeAccess(v, s)
	}, x)
}
