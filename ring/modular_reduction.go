package ring

import (
	"math/bits"
)

//============================
//=== MONTGOMERY REDUCTION ===
//============================

// MForm returns a*2^64 mod q.
func MForm(a, q uint64, bredConstant [2]uint64) (r uint64) {
	mhi, _ := bits.Mul64(a, bredConstant[1])
	r = -(a*bredConstant[0] + mhi) * q
	if r >= q {
		r -= q
	}
	return
}

// GenMRedConstant computes the constant qInv = (q^-1) mod 2^64 required for
// MRed.
func GenMRedConstant(q uint64) (qInv uint64) {
	qInv = 1
	x := q
	for i := 0; i < 63; i++ {
		qInv *= x
		x *= x
	}
	return
}

// MRed computes x*y*(2^-64) mod q, for y in the Montgomery domain.
func MRed(x, y, q, qInv uint64) (r uint64) {
	ahi, alo := bits.Mul64(x, y)
	R := alo * qInv
	H, _ := bits.Mul64(R, q)
	r = ahi - H + q
	if r >= q {
		r -= q
	}
	return
}

//==========================
//=== BARRETT REDUCTION  ===
//==========================

// GenBRedConstant computes the constant for the Barrett reduction with a
// radix of 2^128.
func GenBRedConstant(q uint64) (constant [2]uint64) {
	// floor(2^128/q) computed as a 128-bit long division in two steps.
	mhi, rhi := bits.Div64(1, 0, q)
	mlo, _ := bits.Div64(rhi, 0, q)
	return [2]uint64{mhi, mlo}
}

// BRedAdd reduces a 64-bit integer by q.
func BRedAdd(x, q uint64, bredConstant [2]uint64) (r uint64) {
	s0, _ := bits.Mul64(x, bredConstant[0])
	r = x - s0*q
	if r >= q {
		r -= q
	}
	return
}

// BRed computes x*y mod q with a Barrett reduction.
func BRed(x, y, q uint64, bredConstant [2]uint64) (r uint64) {

	var lhi, mhi, mlo, s0, s1, carry uint64

	ahi, alo := bits.Mul64(x, y)

	// (alo*ulo)>>64

	lhi, _ = bits.Mul64(alo, bredConstant[1])

	// ((ahi*ulo + alo*uhi) + (alo*ulo))>>64

	mhi, mlo = bits.Mul64(alo, bredConstant[0])

	s0, carry = bits.Add64(mlo, lhi, 0)

	s1 = mhi + carry

	mhi, mlo = bits.Mul64(ahi, bredConstant[1])

	_, carry = bits.Add64(mlo, s0, 0)

	lhi = mhi + carry

	// (ahi*uhi) + (((ahi*ulo + alo*uhi) + (alo*ulo))>>64)

	s0 = ahi*bredConstant[0] + s1 + lhi

	r = alo - s0*q

	if r >= q {
		r -= q
	}

	return
}

//===============================
//==== CONDITIONAL REDUCTION ====
//===============================

// CRed returns a mod q, for a in the range [0, 2q-1].
func CRed(a, q uint64) uint64 {
	if a >= q {
		return a - q
	}
	return a
}
