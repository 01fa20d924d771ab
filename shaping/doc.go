// Package shaping maps uniformly distributed entropy to bias scores that
// follow the protocol's target right-skewed distribution.
//
// The mapping is a monotone piecewise-cubic approximation of the target
// distribution's inverse CDF, evaluated with fixed-point integer
// arithmetic only. Floating point is banned here: bias scores are
// consensus-critical and must be bit-identical across platforms and
// reimplementations.
//
// Coefficients live in an immutable, versioned Table shared by all pools.
// Changing the table changes every future bias score, so upgrades are an
// explicit administrative operation producing a new version while the
// engine is paused; in-place mutation is not expressible through this
// package's API.
package shaping
