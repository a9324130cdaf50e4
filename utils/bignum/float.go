// Package bignum provides arbitrary-precision floating point helpers used to
// derive fixed-point scaling factors with fractional log2 exponents.
package bignum

import (
	"math/big"

	"github.com/ALTree/bigfloat"
)

// DefaultPrecision is the mantissa precision used by NewFloat when no
// precision is provided.
const DefaultPrecision = 128

// NewFloat creates a new big.Float element with 128 bits of precision.
func NewFloat(x float64) (y *big.Float) {
	y = new(big.Float)
	y.SetPrec(DefaultPrecision)
	y.SetFloat64(x)
	return
}

// Pow returns x^y.
func Pow(x, y *big.Float) (z *big.Float) {
	return bigfloat.Pow(x, y)
}

// Exp2 returns 2^x computed with 128 bits of precision and rounded to the
// nearest float64. Exact for integer x, and stable for the fractional log
// scales used by the encoder.
func Exp2(x float64) float64 {
	z, _ := Pow(NewFloat(2), NewFloat(x)).Float64()
	return z
}
