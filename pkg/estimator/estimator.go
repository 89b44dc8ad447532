// Package estimator fits a miss-ratio curve to a tenant's sparse
// hardware-sampled address multiset: a two-parameter access-frequency model
// is fitted by two-phase gradient descent, then evaluated over a fixed grid
// of cache sizes. Fitting is a pure function of its inputs; no package-level
// mutable state.
package estimator

import (
	"errors"
	"fmt"
	"math"
)

const (
	// osPrefetchFactor accounts for kernel read-ahead amplifying block I/O
	// relative to cache-line-level misses.
	osPrefetchFactor = 8

	epsilon = 1e-6

	etaShape     = 0.1
	etaSensitive = 0.01
	dx           = 1e-4

	shapeTolerance     = 0.05
	missRatioTolerance = 0.03

	// divergenceTolerance is the final-error ceiling applied when the
	// miss-ratio phase exhausts its iterations without converging: a fit
	// that close is still publishable, anything worse is diverged.
	divergenceTolerance = 0.05

	maxShapeIterations     = 500
	maxMissRatioIterations = 500
	maxNewtonIterations    = 100
	newtonTolerance        = 1e-6
)

// Observation is one (page rank, cumulative access count) point derived
// from the frequency-bucketed address sample.
type Observation struct {
	Pages            float64
	CumulativeAccess float64
}

// FitState is the (α, β, γ, G) coefficient tuple carried across calls: the
// previous α seeds the next shape-phase search, and the previous (γ, G)
// seed the miss-ratio phase; β is always recomputed from the first
// observation. No other state leaks between calls.
type FitState struct {
	Alpha float64
	Beta  float64
	Gamma float64
	G     float64
}

// defaultSeed is the FitState used when no previous fit is available: α=1
// starts at the logarithmic branch, G=1 is the unitless pages-per-GB
// constant.
func defaultSeed() FitState {
	return FitState{Alpha: 1, Beta: 0, Gamma: epsilon, G: 1}
}

// Fit runs the two-phase gradient descent against observed, returning the
// coefficients that best reproduce the observed cumulative-access curve
// while also matching the observed miss ratio hitTarget at cachePages (the
// miss-ratio phase aims at a hit ratio of 1 − hitTarget).
//
// seed is not read by Fit, which is deterministic given its other
// arguments; Estimate uses the same seed for BuildObservations' tie-break
// order.
func Fit(observed []Observation, anonPages, cachePages, hitTarget float64, seed int64, prev *FitState) (FitState, error) {
	if len(observed) == 0 {
		return FitState{}, fmt.Errorf("estimator: no observations: %w", ErrInsufficientData)
	}
	if anonPages <= 0 || cachePages <= 0 {
		return FitState{}, fmt.Errorf("estimator: non-positive anonPages/cachePages: %w", ErrInsufficientData)
	}

	state := defaultSeed()
	if prev != nil {
		state = *prev
	}

	alpha, beta, err := shapePhase(observed, state.G, state.Alpha)
	if err != nil {
		return FitState{}, err
	}
	state.Alpha, state.Beta = alpha, beta

	targetHit := 1 - missRatioObserved(hitTarget)
	state, err = missRatioPhase(state, observed, cachePages, anonPages, targetHit)
	if err != nil {
		return FitState{}, err
	}

	if err := validate(state); err != nil {
		return FitState{}, err
	}
	return state, nil
}

// missRatioObserved clamps hitTarget into [0, 1). A value >= 1 means the
// sample window was too transient to trust; callers abort before reaching
// Fit.
func missRatioObserved(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return 1 - epsilon
	}
	return v
}

// shapePhase minimizes the squared relative error between the model and the
// observed (x, cumulative_access) points by gradient descent on α alone; β
// is recomputed analytically from the first observation every iteration.
func shapePhase(observed []Observation, g, alphaSeed float64) (alpha, beta float64, err error) {
	a1 := observed[0].CumulativeAccess
	if a1 <= 0 {
		return 0, 0, fmt.Errorf("estimator: first observation's cumulative access must be positive: %w", ErrFitDiverged)
	}

	alpha = alphaSeed
	if alpha <= 0 {
		alpha = epsilon
	}
	upper := 2 * a1

	prevErr := math.Inf(1)
	for i := 0; i < maxShapeIterations; i++ {
		beta = computeBetaCoeff(a1, alpha, g)
		curErr := shapeSquaredError(observed, alpha, beta, g)

		if !math.IsInf(prevErr, 1) && prevErr > 0 {
			if math.Abs(curErr-prevErr)/prevErr < shapeTolerance {
				break
			}
		}
		prevErr = curErr

		grad := precomputeDeltaCoeff(func(a float64) float64 {
			b := computeBetaCoeff(a1, a, g)
			return shapeSquaredError(observed, a, b, g)
		}, alpha)

		alpha = clip(alpha-etaShape*grad, epsilon, upper)
	}
	beta = computeBetaCoeff(a1, alpha, g)

	if err := validateScalar(alpha); err != nil {
		return 0, 0, err
	}
	if err := validateScalar(beta); err != nil {
		return 0, 0, err
	}
	return alpha, beta, nil
}

// shapeSquaredError is the mean squared relative error of the model against
// observed, with γ held at 0 — the shape phase fits the curvature only.
func shapeSquaredError(observed []Observation, alpha, beta, g float64) float64 {
	s := FitState{Alpha: alpha, Beta: beta, Gamma: 0, G: g}
	var sum float64
	for _, o := range observed {
		model := cumulativeAccess(o.Pages, s)
		if o.CumulativeAccess == 0 {
			continue
		}
		rel := (model - o.CumulativeAccess) / o.CumulativeAccess
		sum += rel * rel
	}
	return sum / float64(len(observed))
}

// missRatioPhase minimizes ((1−computed_hit)−(1−target_hit))²/(1−target_hit)²
// by numerical derivative, stepping α then γ then G each iteration.
func missRatioPhase(state FitState, observed []Observation, cachePages, anonPages, targetHit float64) (FitState, error) {
	a1 := observed[0].CumulativeAccess
	upper := 2 * a1

	for i := 0; i < maxMissRatioIterations; i++ {
		curErr := missRatioSquaredError(state, cachePages, anonPages, targetHit)
		if curErr < missRatioTolerance {
			return state, nil
		}

		dAlpha := precomputeDeltaCoeff(func(a float64) float64 {
			s := state
			s.Alpha = a
			s.Beta = computeBetaCoeff(a1, a, s.G)
			return missRatioSquaredError(s, cachePages, anonPages, targetHit)
		}, state.Alpha)
		state.Alpha = clip(state.Alpha-etaSensitive*dAlpha, epsilon, upper)
		state.Beta = computeBetaCoeff(a1, state.Alpha, state.G)

		dGamma := precomputeDeltaCoeff(func(gm float64) float64 {
			s := state
			s.Gamma = gm
			return missRatioSquaredError(s, cachePages, anonPages, targetHit)
		}, state.Gamma)
		state.Gamma = math.Max(epsilon, state.Gamma-etaSensitive*dGamma)

		dG := precomputeDeltaCoeff(func(g float64) float64 {
			s := state
			s.G = g
			return missRatioSquaredError(s, cachePages, anonPages, targetHit)
		}, state.G)
		state.G = math.Max(epsilon, state.G-etaSensitive*dG)
	}

	// Out of iterations without hitting the convergence tolerance: accept
	// the fit only if the residual error is still below the divergence
	// ceiling, otherwise the caller keeps the previous curve.
	finalErr := missRatioSquaredError(state, cachePages, anonPages, targetHit)
	if finalErr > divergenceTolerance {
		return FitState{}, fmt.Errorf("estimator: miss-ratio error %.4f after %d iterations: %w",
			finalErr, maxMissRatioIterations, ErrFitDiverged)
	}
	return state, nil
}

func missRatioSquaredError(s FitState, cachePages, anonPages, targetHit float64) float64 {
	computedHit := 1 - computeMissRatio(cachePages, anonPages, s)
	num := (1 - computedHit) - (1 - targetHit)
	denom := (1 - targetHit) * (1 - targetHit)
	if denom <= 0 {
		return math.Inf(1)
	}
	return (num * num) / denom
}

func validate(s FitState) error {
	if err := validateScalar(s.Alpha); err != nil {
		return err
	}
	if err := validateScalar(s.Beta); err != nil {
		return err
	}
	if err := validateScalar(s.Gamma); err != nil {
		return err
	}
	if err := validateScalar(s.G); err != nil {
		return err
	}
	return nil
}

func validateScalar(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("estimator: coefficient %v invalid: %w", v, ErrFitDiverged)
	}
	return nil
}

// IsDiverged reports whether err signals a fit failure the caller should
// respond to by keeping the previous MRC snapshot.
func IsDiverged(err error) bool {
	return errors.Is(err, ErrFitDiverged)
}
