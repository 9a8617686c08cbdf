package domain

import "math"

// Epsilon is the tolerance for all price/quantity comparisons. Exact float64
// equality would churn levels on binary representation noise, so a quantity
// within Epsilon of zero is treated as zero.
const Epsilon = 100 * 2.220446049250313e-16

// FloatEq reports whether a and b are equal within Epsilon.
func FloatEq(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatLess reports whether a is less than b by more than Epsilon.
func FloatLess(a, b float64) bool {
	return b-a > Epsilon
}

// FloatGreater reports whether a is greater than b by more than Epsilon.
func FloatGreater(a, b float64) bool {
	return a-b > Epsilon
}
