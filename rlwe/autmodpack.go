package rlwe

import (
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
)

// AutModPack lifts an MLWE ciphertext into an RLWE ciphertext while applying
// the automorphism X -> X^exponent: the MLWE body is auted and laid out on
// the sparse slots of the result body, and each auted A component is
// combined with the matching row of reshaped switching keys, accumulated per
// stack column, reconciled from P down to Q, and recombined into the dense
// degree-N A component. The result is in the NTT domain.
func (e *Evaluator) AutModPack(op *MLWECiphertext, keys []*MLWESwitchingKey, exponent int, res *Ciphertext) {

	rank, stack := e.rank, e.stack

	temp := ring.NewPoly(rank, Q)
	tempModP := ring.NewPoly(rank, P)
	multed := NewMLWESwitchingKey(rank)

	res.SetIsNTT(false)
	res.A().Zero()
	res.B().Zero()

	mask := 2*rank - 1
	for j := 0; j < rank; j++ {
		idx := (j * exponent) & mask
		if idx < rank {
			res.B().Coeffs[idx*stack] = op.B.Coeffs[j]
		} else if c := op.B.Coeffs[j]; c != 0 {
			res.B().Coeffs[(idx-rank)*stack] = Q - c
		}
	}

	tq := ring.NewPoly(rank, Q)
	tp := ring.NewPoly(rank, P)

	for i := 0; i < stack; i++ {
		e.Aut(op.A[i], exponent, rank, temp)
		e.NormMod(temp, tempModP)

		e.NTT(temp, temp)
		e.NTT(tempModP, tempModP)

		if i == 0 {
			for j := 0; j < stack; j++ {
				e.MulCoeffs(temp, keys[0].AQ[j], multed.AQ[j])
				e.MulCoeffs(temp, keys[0].BQ[j], multed.BQ[j])
				e.MulCoeffs(tempModP, keys[0].AP[j], multed.AP[j])
				e.MulCoeffs(tempModP, keys[0].BP[j], multed.BP[j])
			}
		} else {
			for j := 0; j < stack; j++ {
				e.MulCoeffs(temp, keys[i].AQ[j], tq)
				e.Add(multed.AQ[j], tq, multed.AQ[j])
				e.MulCoeffs(temp, keys[i].BQ[j], tq)
				e.Add(multed.BQ[j], tq, multed.BQ[j])
				e.MulCoeffs(tempModP, keys[i].AP[j], tp)
				e.Add(multed.AP[j], tp, multed.AP[j])
				e.MulCoeffs(tempModP, keys[i].BP[j], tp)
				e.Add(multed.BP[j], tp, multed.BP[j])
			}
		}
	}

	for i := 0; i < stack; i++ {
		e.INTT(multed.AP[i], multed.AP[i])
		e.NormMod(multed.AP[i], tq)
		e.INTT(multed.AQ[i], multed.AQ[i])
		e.Sub(multed.AQ[i], tq, multed.AQ[i])
		e.MulScalar(multed.AQ[i], PInvModQ, multed.AQ[i])

		e.INTT(multed.BP[i], multed.BP[i])
		e.NormMod(multed.BP[i], tq)
		e.INTT(multed.BQ[i], multed.BQ[i])
		e.Sub(multed.BQ[i], tq, multed.BQ[i])
		e.MulScalar(multed.BQ[i], PInvModQ, multed.BQ[i])
	}

	for i := 0; i < rank; i++ {
		for j := 0; j < stack; j++ {
			res.A().Coeffs[i*stack+j] = multed.AQ[j].Coeffs[i]
			res.B().Coeffs[i*stack+j] = ring.CRed(res.B().Coeffs[i*stack+j]+multed.BQ[j].Coeffs[i], Q)
		}
	}

	e.NTT(res.A(), res.A())
	e.NTT(res.B(), res.B())
}
