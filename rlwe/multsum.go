package rlwe

import (
	"sync"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
)

// MultSum evaluates the extended ciphertext res = sum_j op1[j*gap] * op2[j]
// componentwise in the NTT domain, with gap = len(op1)/len(op2). The N
// coefficients are partitioned into contiguous chunks, one per worker, and
// each worker owns its output tile for both reads and writes, so no
// synchronization beyond the final join is needed.
func (e *Evaluator) MultSum(op1, op2 []*Ciphertext, res *Ciphertext) {
	if !op1[0].IsNTT() || !op2[0].IsNTT() {
		panic(ring.ErrInvalidNTTState)
	}
	if !res.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}

	gap := len(op1) / len(op2)

	for _, p := range res.Value {
		p.Zero()
	}

	ringQ := e.ringQN
	chunk := N / e.threads

	var wg sync.WaitGroup
	wg.Add(e.threads)
	for t := 0; t < e.threads; t++ {
		go func(t int) {
			defer wg.Done()
			lo, hi := t*chunk, (t+1)*chunk
			resA := res.A().Coeffs[lo:hi]
			resB := res.B().Coeffs[lo:hi]
			resC := res.C().Coeffs[lo:hi]
			for j := range op2 {
				a1 := op1[j*gap].A().Coeffs[lo:hi]
				b1 := op1[j*gap].B().Coeffs[lo:hi]
				a2 := op2[j].A().Coeffs[lo:hi]
				b2 := op2[j].B().Coeffs[lo:hi]
				ringQ.MulCoeffsThenAddVec(a1, a2, resA)
				ringQ.MulCoeffsThenAddVec(a1, b2, resB)
				ringQ.MulCoeffsThenAddVec(b1, a2, resB)
				ringQ.MulCoeffsThenAddVec(b1, b2, resC)
			}
		}(t)
	}
	wg.Wait()

	res.SetIsNTT(true)
}

// MultSumPlain evaluates the rank-1 ciphertext res = sum_j op1[j*gap] *
// op2[j] for plaintext polynomials op2, componentwise in the NTT domain.
func (e *Evaluator) MultSumPlain(op1 []*Ciphertext, op2 []*ring.Poly, res *Ciphertext) {
	if !op1[0].IsNTT() || !op2[0].IsNTT {
		panic(ring.ErrInvalidNTTState)
	}

	gap := len(op1) / len(op2)

	res.A().Zero()
	res.B().Zero()

	ringQ := e.ringQN
	chunk := N / e.threads

	var wg sync.WaitGroup
	wg.Add(e.threads)
	for t := 0; t < e.threads; t++ {
		go func(t int) {
			defer wg.Done()
			lo, hi := t*chunk, (t+1)*chunk
			resA := res.A().Coeffs[lo:hi]
			resB := res.B().Coeffs[lo:hi]
			for j := range op2 {
				a1 := op1[j*gap].A().Coeffs[lo:hi]
				b1 := op1[j*gap].B().Coeffs[lo:hi]
				pt := op2[j].Coeffs[lo:hi]
				ringQ.MulCoeffsThenAddVec(a1, pt, resA)
				ringQ.MulCoeffsThenAddVec(b1, pt, resB)
			}
		}(t)
	}
	wg.Wait()

	res.A().IsNTT = true
	res.B().IsNTT = true
}

// MultSumBitRev evaluates the extended ciphertext res = sum_j
// op1[bitRev(j, rank)] * op2[j] componentwise in the NTT domain. It is used
// by the PIR second dimension, whose decomposed slots are produced in
// bit-reversed order.
func (e *Evaluator) MultSumBitRev(op1, op2 []*Ciphertext, res *Ciphertext) {
	if !op1[0].IsNTT() || !op2[0].IsNTT() {
		panic(ring.ErrInvalidNTTState)
	}
	if !res.IsExtended() {
		panic(ring.ErrInvalidExtendedState)
	}

	for _, p := range res.Value {
		p.Zero()
	}

	ringQ := e.ringQN
	chunk := N / e.threads
	rank := e.rank

	var wg sync.WaitGroup
	wg.Add(e.threads)
	for t := 0; t < e.threads; t++ {
		go func(t int) {
			defer wg.Done()
			lo, hi := t*chunk, (t+1)*chunk
			resA := res.A().Coeffs[lo:hi]
			resB := res.B().Coeffs[lo:hi]
			resC := res.C().Coeffs[lo:hi]
			for j := 0; j < rank; j++ {
				rev := e.BitRev(j, rank)
				a1 := op1[rev].A().Coeffs[lo:hi]
				b1 := op1[rev].B().Coeffs[lo:hi]
				a2 := op2[j].A().Coeffs[lo:hi]
				b2 := op2[j].B().Coeffs[lo:hi]
				ringQ.MulCoeffsThenAddVec(a1, a2, resA)
				ringQ.MulCoeffsThenAddVec(a1, b2, resB)
				ringQ.MulCoeffsThenAddVec(b1, a2, resB)
				ringQ.MulCoeffsThenAddVec(b1, b2, resC)
			}
		}(t)
	}
	wg.Wait()

	res.SetIsNTT(true)
}
