// Package ring implements arithmetic over the negacyclic polynomial ring
// Z_q[X]/(X^N+1) for a single word-sized NTT-friendly modulus, together with
// the samplers used for key and error generation.
package ring

import (
	"fmt"
	"math/bits"

	"github.com/snuhcs-course/swpp-2025-project-team-07/utils"
)

// MinimumRingDegree is the smallest supported ring degree.
const MinimumRingDegree = 8

// Ring stores the precomputation for fast modular reduction and for the
// negacyclic NTT of degree N modulo Modulus. A Ring is read-only after
// construction and safe for concurrent use.
type Ring struct {
	// Number of coefficients.
	N int

	// Modulus.
	Modulus uint64

	// Distinct prime factors of Modulus-1.
	Factors []uint64

	// Smallest primitive root of Modulus.
	PrimitiveRoot uint64

	// 2^bit_length(Modulus) - 1
	Mask uint64

	// Fast reduction constants.
	BRedConstant [2]uint64 // Barrett reduction
	MRedConstant uint64    // Montgomery reduction

	// N^-1 mod Modulus, in the Montgomery domain.
	NInv uint64

	// Powers of the 2N-th primitive root in the Montgomery domain, in
	// bit-reversed order.
	RootsForward  []uint64
	RootsBackward []uint64
}

// NewRing creates a new Ring of degree N (a power of two) and the given
// prime modulus, which must satisfy modulus = 1 mod 2N. The NTT tables are
// generated eagerly so that all later operations have deterministic cost.
func NewRing(N int, modulus uint64) (r *Ring, err error) {

	if N < MinimumRingDegree || !utils.IsPowerOfTwo(N) {
		return nil, fmt.Errorf("invalid ring degree: must be a power of 2 greater than %d", MinimumRingDegree)
	}

	if !IsPrime(modulus) {
		return nil, fmt.Errorf("invalid modulus: %d is not prime", modulus)
	}

	nthRoot := uint64(2 * N)

	if modulus&(nthRoot-1) != 1 {
		return nil, fmt.Errorf("invalid modulus: %d != 1 mod 2N", modulus)
	}

	r = &Ring{
		N:       N,
		Modulus: modulus,
		Mask:    (1 << uint64(bits.Len64(modulus-1))) - 1,
	}

	r.BRedConstant = GenBRedConstant(modulus)
	r.MRedConstant = GenMRedConstant(modulus)

	if r.Factors, err = Factorize(modulus - 1); err != nil {
		return nil, err
	}

	r.PrimitiveRoot = PrimitiveRoot(modulus, r.Factors)

	r.generateNTTTables()

	return r, nil
}

// generateNTTTables precomputes N^-1 and the bit-reversed powers of the
// 2N-th root of unity in the Montgomery domain.
func (r *Ring) generateNTTTables() {

	modulus := r.Modulus
	nthRoot := uint64(2 * r.N)
	logNthRoot := bits.Len64(nthRoot>>1) - 1

	r.NInv = MForm(ModExp(uint64(r.N), modulus-2, modulus), modulus, r.BRedConstant)

	psiMont := MForm(ModExp(r.PrimitiveRoot, (modulus-1)/nthRoot, modulus), modulus, r.BRedConstant)
	psiInvMont := MForm(ModExp(r.PrimitiveRoot, modulus-((modulus-1)/nthRoot)-1, modulus), modulus, r.BRedConstant)

	r.RootsForward = make([]uint64, nthRoot>>1)
	r.RootsBackward = make([]uint64, nthRoot>>1)

	r.RootsForward[0] = MForm(1, modulus, r.BRedConstant)
	r.RootsBackward[0] = MForm(1, modulus, r.BRedConstant)

	for j := uint64(1); j < nthRoot>>1; j++ {
		indexReversePrev := utils.BitReverse64(j-1, logNthRoot)
		indexReverseNext := utils.BitReverse64(j, logNthRoot)

		r.RootsForward[indexReverseNext] = MRed(r.RootsForward[indexReversePrev], psiMont, modulus, r.MRedConstant)
		r.RootsBackward[indexReverseNext] = MRed(r.RootsBackward[indexReversePrev], psiInvMont, modulus, r.MRedConstant)
	}
}

// NewPoly creates a new polynomial of degree r.N with all coefficients set
// to zero.
func (r *Ring) NewPoly() *Poly {
	return NewPoly(r.N, r.Modulus)
}

// checkBinary panics if the operands are not compatible for a coefficient
// wise binary operation on this ring.
func (r *Ring) checkBinary(op1, op2, res *Poly) {
	if op1.IsNTT != op2.IsNTT {
		panic(ErrInvalidNTTState)
	}
	if res.Mod != op1.Mod || op1.Mod != op2.Mod || op1.Mod != r.Modulus {
		panic(ErrInvalidModulus)
	}
}
