package rlwe

import (
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
)

// ModPack combines stack MLWE ciphertexts of rank R into a single RLWE
// ciphertext over degree N. The MLWE bodies are laid out into the sparse
// slots of the result body, and for each stack coordinate the strided
// polynomial assembled from the i-th A component of every input is key
// switched with modPackKeys[i] and accumulated, with a single Q/P
// reconciliation at the end. The result is in the NTT domain.
func (e *Evaluator) ModPack(op []*MLWECiphertext, modPackKeys []*SwitchingKey, res *Ciphertext) {

	rank, stack := e.rank, e.stack

	res.SetIsNTT(false)
	res.A().Zero()
	res.B().Zero()

	for i := 0; i < rank; i++ {
		for j := 0; j < stack; j++ {
			res.B().Coeffs[i*stack+j] = op[j].B.Coeffs[i]
		}
	}

	tempQ := ring.NewPoly(N, Q)
	tempP := ring.NewPoly(N, P)
	tempModQ := ring.NewPoly(N, Q)
	tempModP := ring.NewPoly(N, P)
	polyAQ := ring.NewPoly(N, Q)
	polyAP := ring.NewPoly(N, P)
	polyBQ := ring.NewPoly(N, Q)
	polyBP := ring.NewPoly(N, P)
	polyAQ.IsNTT = true
	polyAP.IsNTT = true
	polyBQ.IsNTT = true
	polyBP.IsNTT = true

	for i := 0; i < stack; i++ {

		for j := 0; j < rank; j++ {
			for k := 0; k < stack; k++ {
				tempModQ.Coeffs[j*stack+k] = op[k].A[i].Coeffs[j]
			}
		}
		tempModQ.IsNTT = false
		e.NormMod(tempModQ, tempModP)

		e.NTT(tempModQ, tempModQ)
		e.NTT(tempModP, tempModP)

		e.MulCoeffs(tempModQ, modPackKeys[i].AQ, tempQ)
		e.Add(polyAQ, tempQ, polyAQ)
		e.MulCoeffs(tempModQ, modPackKeys[i].BQ, tempQ)
		e.Add(polyBQ, tempQ, polyBQ)

		e.MulCoeffs(tempModP, modPackKeys[i].AP, tempP)
		e.Add(polyAP, tempP, polyAP)
		e.MulCoeffs(tempModP, modPackKeys[i].BP, tempP)
		e.Add(polyBP, tempP, polyBP)
	}

	e.INTT(polyAP, polyAP)
	e.NormMod(polyAP, tempModQ)
	e.NTT(tempModQ, tempModQ)
	e.Sub(polyAQ, tempModQ, polyAQ)
	e.MulScalar(polyAQ, PInvModQ, res.A())

	e.INTT(polyBP, polyBP)
	e.NormMod(polyBP, tempModQ)
	e.NTT(tempModQ, tempModQ)
	e.Sub(polyBQ, tempModQ, tempModQ)
	e.NTT(res.B(), res.B())
	e.MulScalarThenAdd(tempModQ, PInvModQ, res.B(), res.B())
}

// ModPackPlain combines stack plaintext polynomials of degree R into one
// degree-N polynomial laid out on the same sparse slots, in the NTT domain.
func (e *Evaluator) ModPackPlain(op []*ring.Poly, res *ring.Poly) {

	rank, stack := e.rank, e.stack

	res.IsNTT = false
	for i := 0; i < rank; i++ {
		for j := 0; j < stack; j++ {
			res.Coeffs[i*stack+j] = op[j].Coeffs[i]
		}
	}
	e.NTT(res, res)
}
