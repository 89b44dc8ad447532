package estimator

import "errors"

// ErrFitDiverged means the fit failed: one of the fitted coefficients turned
// NaN, infinite, or negative, the first observation's cumulative access was
// not positive, the miss-ratio phase ended above the divergence ceiling, or
// the compulsory-miss Newton search found no root. The caller (pkg/agent)
// keeps the previous MRC snapshot rather than publishing a corrupted one.
var ErrFitDiverged = errors.New("estimator: fit diverged")

// ErrInsufficientData covers the "skip estimation this cycle" edge cases
// Fit detects: an empty observation set, or non-positive anonPages or
// cachePages. The 100-report readiness gate is checked by the caller.
var ErrInsufficientData = errors.New("estimator: insufficient data")
