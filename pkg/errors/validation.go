package errors

import "math"

// DepthCeiling is the largest max depth any caller may configure. A tree of
// depth 12 already holds 61,035,156 nodes; past it node counts head for int
// overflow and allocations no host can satisfy.
const DepthCeiling = 12

// ValidateDepth checks that depth lies in [1, maxDepth] and that maxDepth
// does not exceed DepthCeiling. Out-of-range depths are rejected rather than
// clamped.
func ValidateDepth(depth, maxDepth int) error {
	if maxDepth < 1 || maxDepth > DepthCeiling {
		return New(ErrCodeInvalidDepth, "max depth %d outside [1, %d]", maxDepth, DepthCeiling)
	}
	if depth < 1 || depth > maxDepth {
		return New(ErrCodeInvalidDepth, "depth %d outside [1, %d]", depth, maxDepth)
	}
	return nil
}

// ValidateRange checks that lo <= hi and both lie inside [min, max].
// name is used in the error message, e.g. "sag angle".
func ValidateRange(name string, lo, hi, min, max float64) error {
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return New(ErrCodeInvalidConfig, "%s range contains NaN", name)
	}
	if lo < min || hi > max {
		return New(ErrCodeInvalidConfig, "%s range [%g, %g] outside [%g, %g]", name, lo, hi, min, max)
	}
	if lo > hi {
		return New(ErrCodeInvalidConfig, "%s range is inverted: %g > %g", name, lo, hi)
	}
	return nil
}

// ValidateProbability checks that p is a probability in [0, 1].
func ValidateProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return New(ErrCodeInvalidConfig, "%s must be in [0, 1], got %g", name, p)
	}
	return nil
}
