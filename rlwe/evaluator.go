package rlwe

import (
	"fmt"
	"runtime"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils"
)

// Evaluator implements the homomorphic operations on polynomials and
// ciphertexts. It owns the NTT tables for the degree-N ring and the degree-R
// subring under both moduli, the automorphism-inverse lookup tables and the
// bit-reversal tables. An Evaluator is read-only after construction and safe
// for concurrent use by parallel readers.
type Evaluator struct {
	logRank int
	rank    int
	stack   int

	ringQN *ring.Ring
	ringPN *ring.Ring
	ringQR *ring.Ring
	ringPR *ring.Ring

	inv    map[int][]uint64
	bitRev map[int][]uint64

	threads int
}

// NewEvaluator creates a new Evaluator at the given log-rank. All tables are
// built eagerly so that the cost of later operations is deterministic.
func NewEvaluator(logRank int) (e *Evaluator, err error) {

	if logRank < 0 || logRank > LogN {
		return nil, fmt.Errorf("%w: log-rank %d outside [0, %d]", ring.ErrInvalidRank, logRank, LogN)
	}

	e = &Evaluator{
		logRank: logRank,
		rank:    1 << logRank,
		stack:   N >> logRank,
	}

	if e.ringQN, err = ring.NewRing(N, Q); err != nil {
		return nil, err
	}
	if e.ringPN, err = ring.NewRing(N, P); err != nil {
		return nil, err
	}

	if e.rank == N {
		e.ringQR, e.ringPR = e.ringQN, e.ringPN
	} else {
		if e.ringQR, err = ring.NewRing(e.rank, Q); err != nil {
			return nil, err
		}
		if e.ringPR, err = ring.NewRing(e.rank, P); err != nil {
			return nil, err
		}
	}

	e.inv = map[int][]uint64{
		e.rank: genInvTable(e.rank),
		N:      genInvTable(N),
	}

	e.bitRev = make(map[int][]uint64, LogN+1)
	for log := 0; log <= LogN; log++ {
		size := 1 << log
		table := make([]uint64, size)
		for i := 1; i < size; i++ {
			table[i] = utils.BitReverse64(uint64(i), log)
		}
		e.bitRev[size] = table
	}

	e.threads = numThreads()

	return e, nil
}

// genInvTable returns the table of multiplicative inverses modulo 2*degree:
// for odd i, i^(degree-1) = i^-1 in the unit group of Z_{2*degree}.
func genInvTable(degree int) []uint64 {
	table := make([]uint64, 2*degree)
	for i := range table {
		table[i] = ring.ModExp(uint64(i), uint64(degree-1), uint64(2*degree))
	}
	return table
}

// numThreads returns the worker fan-out: the largest power of two not above
// GOMAXPROCS, clamped to [1, MaxThreads] so that it always divides N.
func numThreads() int {
	t := 1
	for t<<1 <= runtime.GOMAXPROCS(0) && t<<1 <= MaxThreads {
		t <<= 1
	}
	return t
}

// LogRank returns the log2 of the evaluator rank.
func (e *Evaluator) LogRank() int { return e.logRank }

// RingQN returns the degree-N ring modulo Q.
func (e *Evaluator) RingQN() *ring.Ring { return e.ringQN }

// RingPN returns the degree-N ring modulo P.
func (e *Evaluator) RingPN() *ring.Ring { return e.ringPN }

// RingQR returns the degree-rank ring modulo Q.
func (e *Evaluator) RingQR() *ring.Ring { return e.ringQR }

// RingPR returns the degree-rank ring modulo P.
func (e *Evaluator) RingPR() *ring.Ring { return e.ringPR }

// Rank returns the module rank of the evaluator.
func (e *Evaluator) Rank() int { return e.rank }

// Stack returns N divided by the rank.
func (e *Evaluator) Stack() int { return e.stack }

// Inv returns the multiplicative inverse of op modulo 2*degree, for degree
// either the rank or N.
func (e *Evaluator) Inv(op, degree int) int {
	return int(e.inv[degree][op])
}

// BitRev returns the bit-reversal of op within the given power-of-two size.
func (e *Evaluator) BitRev(op, size int) int {
	return int(e.bitRev[size][op])
}

// ringFor returns the precomputed ring matching the degree and modulus of p.
func (e *Evaluator) ringFor(p *ring.Poly) *ring.Ring {
	switch {
	case p.N() == N && p.Mod == Q:
		return e.ringQN
	case p.N() == N && p.Mod == P:
		return e.ringPN
	case p.N() == e.rank && p.Mod == Q:
		return e.ringQR
	case p.N() == e.rank && p.Mod == P:
		return e.ringPR
	}
	panic(ring.ErrInvalidRank)
}

// Add evaluates res = op1 + op2.
func (e *Evaluator) Add(op1, op2, res *ring.Poly) {
	e.ringFor(op1).Add(op1, op2, res)
}

// Sub evaluates res = op1 - op2.
func (e *Evaluator) Sub(op1, op2, res *ring.Poly) {
	e.ringFor(op1).Sub(op1, op2, res)
}

// MulCoeffs evaluates res = op1 * op2, coefficient-wise in the NTT domain.
func (e *Evaluator) MulCoeffs(op1, op2, res *ring.Poly) {
	e.ringFor(op1).MulCoeffs(op1, op2, res)
}

// MulScalar evaluates res = op1 * scalar.
func (e *Evaluator) MulScalar(op1 *ring.Poly, scalar uint64, res *ring.Poly) {
	e.ringFor(op1).MulScalar(op1, scalar, res)
}

// MulScalarThenAdd evaluates res = op1 * scalar + op3.
func (e *Evaluator) MulScalarThenAdd(op1 *ring.Poly, scalar uint64, op3, res *ring.Poly) {
	e.ringFor(op1).MulScalarThenAdd(op1, scalar, op3, res)
}

// Shift multiplies op, viewed as interleaved polynomials of the given rank,
// by the monomial X^exponent.
func (e *Evaluator) Shift(op *ring.Poly, exponent, rank int, res *ring.Poly) {
	e.ringFor(op).Shift(op, exponent, rank, res)
}

// Aut applies the automorphism X -> X^exponent on op, viewed as interleaved
// polynomials of the given rank.
func (e *Evaluator) Aut(op *ring.Poly, exponent, rank int, res *ring.Poly) {
	e.ringFor(op).Aut(op, exponent, rank, res)
}

// NormMod mod-switches op onto the modulus of res.
func (e *Evaluator) NormMod(op, res *ring.Poly) {
	e.ringFor(res).NormMod(op, res)
}

// Extract projects a degree-N polynomial onto a degree-rank polynomial by
// selecting every stack-th coefficient.
func (e *Evaluator) Extract(op, res *ring.Poly) {
	e.ringFor(op).Extract(op, res)
}

// NTT evaluates res = NTT(op).
func (e *Evaluator) NTT(op, res *ring.Poly) {
	e.ringFor(op).NTT(op, res)
}

// INTT evaluates res = INTT(op).
func (e *Evaluator) INTT(op, res *ring.Poly) {
	e.ringFor(op).INTT(op, res)
}

// AddMLWE evaluates res = op1 + op2 componentwise.
func (e *Evaluator) AddMLWE(op1, op2, res *MLWECiphertext) {
	for i := range op1.A {
		e.Add(op1.A[i], op2.A[i], res.A[i])
	}
	e.Add(op1.B, op2.B, res.B)
}

// SubMLWE evaluates res = op1 - op2 componentwise.
func (e *Evaluator) SubMLWE(op1, op2, res *MLWECiphertext) {
	for i := range op1.A {
		e.Sub(op1.A[i], op2.A[i], res.A[i])
	}
	e.Sub(op1.B, op2.B, res.B)
}

// MulMLWEScalar evaluates res = op * scalar componentwise.
func (e *Evaluator) MulMLWEScalar(op *MLWECiphertext, scalar uint64, res *MLWECiphertext) {
	for i := range op.A {
		e.MulScalar(op.A[i], scalar, res.A[i])
	}
	e.MulScalar(op.B, scalar, res.B)
}

// ShiftMLWE multiplies each component of op by the monomial X^exponent
// modulo X^rank+1.
func (e *Evaluator) ShiftMLWE(op *MLWECiphertext, exponent int, res *MLWECiphertext) {
	for i := range op.A {
		e.Shift(op.A[i], exponent, op.Rank(), res.A[i])
	}
	e.Shift(op.B, exponent, op.Rank(), res.B)
}

// AutMLWE applies the automorphism X -> X^exponent on each component of op.
func (e *Evaluator) AutMLWE(op *MLWECiphertext, exponent int, res *MLWECiphertext) {
	for i := range op.A {
		e.Aut(op.A[i], exponent, op.Rank(), res.A[i])
	}
	e.Aut(op.B, exponent, op.Rank(), res.B)
}

// AddCt evaluates res = op1 + op2 componentwise.
func (e *Evaluator) AddCt(op1, op2, res *Ciphertext) {
	if op1.IsNTT() != op2.IsNTT() {
		panic(ring.ErrInvalidNTTState)
	}
	if op1.IsExtended() != op2.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}
	e.Add(op1.A(), op2.A(), res.A())
	e.Add(op1.B(), op2.B(), res.B())
	if op1.IsExtended() {
		e.Add(op1.C(), op2.C(), res.C())
	}
}

// SubCt evaluates res = op1 - op2 componentwise.
func (e *Evaluator) SubCt(op1, op2, res *Ciphertext) {
	if op1.IsNTT() != op2.IsNTT() {
		panic(ring.ErrInvalidNTTState)
	}
	if op1.IsExtended() != op2.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}
	e.Sub(op1.A(), op2.A(), res.A())
	e.Sub(op1.B(), op2.B(), res.B())
	if op1.IsExtended() {
		e.Sub(op1.C(), op2.C(), res.C())
	}
}

// MulCt evaluates the ciphertext-ciphertext product of two rank-1
// ciphertexts into the extended ciphertext res = (A1*A2, A1*B2+B1*A2,
// B1*B2). Both operands must be in the NTT domain.
func (e *Evaluator) MulCt(op1, op2, res *Ciphertext) {
	if !op1.IsNTT() || !op2.IsNTT() {
		panic(ring.ErrInvalidNTTState)
	}
	if !res.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}
	e.MulCoeffs(op1.A(), op2.A(), res.A())
	e.MulCoeffs(op1.B(), op2.B(), res.C())

	temp := ring.NewPoly(op1.Degree(), Q)
	e.MulCoeffs(op1.A(), op2.B(), temp)
	e.MulCoeffs(op1.B(), op2.A(), res.B())
	e.Add(temp, res.B(), res.B())
}

// MulCtPoly scales the A and B components of op by the plaintext polynomial
// op2.
func (e *Evaluator) MulCtPoly(op *Ciphertext, op2 *ring.Poly, res *Ciphertext) {
	e.MulCoeffs(op.A(), op2, res.A())
	e.MulCoeffs(op.B(), op2, res.B())
}

// MulCtScalar scales all components of op by a scalar.
func (e *Evaluator) MulCtScalar(op *Ciphertext, scalar uint64, res *Ciphertext) {
	e.MulScalar(op.A(), scalar, res.A())
	e.MulScalar(op.B(), scalar, res.B())
	if res.IsExtended() {
		e.MulScalar(op.C(), scalar, res.C())
	}
}

// ShiftCt multiplies the A and B components of op by the monomial
// X^exponent.
func (e *Evaluator) ShiftCt(op *Ciphertext, exponent int, res *Ciphertext) {
	e.Shift(op.A(), exponent, op.Degree(), res.A())
	e.Shift(op.B(), exponent, op.Degree(), res.B())
}

// NTTCt evaluates the forward NTT on all components of op.
func (e *Evaluator) NTTCt(op, res *Ciphertext) {
	for i := range op.Value {
		e.NTT(op.Value[i], res.Value[i])
	}
}

// INTTCt evaluates the backward NTT on all components of op.
func (e *Evaluator) INTTCt(op, res *Ciphertext) {
	for i := range op.Value {
		e.INTT(op.Value[i], res.Value[i])
	}
}
