package rlwe

import (
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
)

// KeySwitch rebinds op, tagged as representing a message under the source
// secret of swk, to the target secret of swk. The A component is lifted to
// the special modulus P, multiplied against both halves of the key, and the
// two residues are reconciled back to Q with a final scaling by P^-1. For an
// extended input, the B and C components are absorbed during the final
// multiply-add, reducing the ciphertext back to rank-1. The result is in the
// NTT domain. res may alias op.
func (e *Evaluator) KeySwitch(op *Ciphertext, swk *SwitchingKey, res *Ciphertext) {

	tempQ := ring.NewPoly(N, Q)
	tempP := ring.NewPoly(N, P)
	polyAQ := ring.NewPoly(N, Q)
	polyAP := ring.NewPoly(N, P)
	polyBQ := ring.NewPoly(N, Q)
	polyBP := ring.NewPoly(N, P)

	// Up: A mod Q (NTT) and A mod P (NTT).
	if op.IsNTT() {
		e.INTT(op.A(), tempQ)
		e.NormMod(tempQ, tempP)
		e.MulCoeffs(op.A(), swk.AQ, polyAQ)
		e.MulCoeffs(op.A(), swk.BQ, polyBQ)
	} else {
		e.NTT(op.A(), tempQ)
		e.NormMod(op.A(), tempP)
		e.MulCoeffs(tempQ, swk.AQ, polyAQ)
		e.MulCoeffs(tempQ, swk.BQ, polyBQ)
	}
	e.NTT(tempP, tempP)
	e.MulCoeffs(tempP, swk.AP, polyAP)
	e.MulCoeffs(tempP, swk.BP, polyBP)

	// New A: (A*a_Q - down(A*a_P)) * P^-1, plus B for the extended case.
	e.INTT(polyAP, polyAP)
	e.NormMod(polyAP, tempQ)
	e.NTT(tempQ, tempQ)
	e.Sub(polyAQ, tempQ, polyAQ)
	if op.IsExtended() {
		e.MulScalarThenAdd(polyAQ, PInvModQ, op.B(), res.A())
	} else {
		e.MulScalar(polyAQ, PInvModQ, res.A())
	}

	// Contribution to B: (A*b_Q - down(A*b_P)) * P^-1, added to the original
	// B (or C for the extended case).
	e.INTT(polyBP, polyBP)
	e.NormMod(polyBP, tempQ)
	e.NTT(tempQ, tempQ)
	e.Sub(polyBQ, tempQ, tempQ)
	if op.IsExtended() {
		e.MulScalarThenAdd(tempQ, PInvModQ, op.C(), res.B())
	} else if op.IsNTT() {
		e.MulScalarThenAdd(tempQ, PInvModQ, op.B(), res.B())
	} else {
		e.NTT(op.B(), res.B())
		e.MulScalarThenAdd(tempQ, PInvModQ, res.B(), res.B())
	}

	res.A().IsNTT = true
	res.B().IsNTT = true
}

// Relin reduces an extended ciphertext back to rank-1 using the
// relinearization key.
func (e *Evaluator) Relin(op *Ciphertext, relinKey *SwitchingKey, res *Ciphertext) {
	if !op.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}
	e.KeySwitch(op, relinKey, res)
}
