package evd

import (
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

// PIRServer evaluates the two-dimensional private information retrieval
// over the encoded payload grid: each encrypted one-hot coordinate is
// decomposed into its automorphism images, recombined by an inverse
// butterfly, and accumulated against the grid in bit-reversed order.
type PIRServer struct {
	logRank int
	rank    int
	stack   int

	eval *rlwe.Evaluator

	relinKey   *rlwe.SwitchingKey
	invAutKeys *rlwe.InvAutKeys
}

// NewPIRServer creates a new PIRServer over the shared relinearization key
// and the PIR inverse-automorphism keys.
func NewPIRServer(relinKey *rlwe.SwitchingKey, invAutKeys *rlwe.InvAutKeys) (s *PIRServer, err error) {
	s = &PIRServer{
		logRank:    rlwe.PIRLogRank,
		rank:       rlwe.PIRRank,
		stack:      rlwe.N / rlwe.PIRRank,
		relinKey:   relinKey,
		invAutKeys: invAutKeys,
	}
	if s.eval, err = rlwe.NewEvaluator(rlwe.PIRLogRank); err != nil {
		return nil, err
	}
	return s, nil
}

// Decompose expands op into its rank automorphism images: slot i is key
// switched with the i-th inverse-automorphism key and then auted by
// step*i+1 (step = 2N/rank), yielding a ciphertext of sigma_{step*i+1}(m)
// under the original secret, in the coefficient domain.
func (s *PIRServer) Decompose(op *rlwe.Ciphertext, res []*rlwe.Ciphertext) {
	e := s.eval
	step := 2 * rlwe.N / s.rank

	parallelFor(s.rank, func(i int) {
		ks := rlwe.NewCiphertext()
		e.KeySwitch(op, s.invAutKeys.Keys[i], ks)
		e.INTTCt(ks, ks)
		e.Aut(ks.A(), step*i+1, rlwe.N, res[i].A())
		e.Aut(ks.B(), step*i+1, rlwe.N, res[i].B())
	})
}

// InvButterfly recombines the decomposed slots in place with log(rank)
// stages of pair-wise add/sub and negacyclic shifts, then transforms every
// slot to the NTT domain. The output is in bit-reversed slot order.
func (s *PIRServer) InvButterfly(op []*rlwe.Ciphertext) {
	e := s.eval
	rank := s.rank

	for i := s.logRank - 1; i >= 0; i-- {
		half := 1 << i
		size := half << 1
		groups := rank / size
		parallelFor(groups*half, func(t int) {
			j, k := t/half, t%half
			idx := size*j + k
			factor := rank/size + (rlwe.N/half)*k
			tmp := rlwe.NewCiphertext()
			e.SubCt(op[idx], op[idx+half], tmp)
			e.AddCt(op[idx], op[idx+half], op[idx])
			e.ShiftCt(tmp, 2*rlwe.N-factor, op[idx+half])
		})
	}

	parallelFor(rank, func(i int) {
		e.NTTCt(op[i], op[i])
	})
}

// PIR evaluates the oblivious two-dimensional selection: the first
// coordinate selects a stripe of the grid through a plaintext multiply-sum
// per grid row, and the second coordinate folds the stripe into a single
// ciphertext, which is relinearized into res. Grid cells beyond the end of
// db are treated as zero.
func (s *PIRServer) PIR(q1, q2 *rlwe.Ciphertext, db []*ring.Poly, res *rlwe.Ciphertext) {
	e := s.eval
	rank := s.rank

	decomposed := make([]*rlwe.Ciphertext, rank)
	for i := range decomposed {
		decomposed[i] = rlwe.NewCiphertext()
	}

	s.Decompose(q1, decomposed)
	s.InvButterfly(decomposed)

	// The butterfly output stores the image of slot j at position
	// bitRev(j); undo the permutation for the stripe accumulation.
	perm := make([]*rlwe.Ciphertext, rank)
	for j := 0; j < rank; j++ {
		perm[j] = decomposed[e.BitRev(j, rank)]
	}

	firstDim := make([]*rlwe.Ciphertext, rank)
	cts := make([]*rlwe.Ciphertext, 0, rank)
	polys := make([]*ring.Poly, 0, rank)
	for i := 0; i < rank; i++ {
		firstDim[i] = rlwe.NewCiphertext()
		cts = cts[:0]
		polys = polys[:0]
		for j := 0; i+rank*j < len(db); j++ {
			cts = append(cts, perm[j])
			polys = append(polys, db[i+rank*j])
		}
		if len(polys) == 0 {
			firstDim[i].SetIsNTT(true)
			continue
		}
		e.MultSumPlain(cts, polys, firstDim[i])
	}

	s.Decompose(q2, decomposed)
	s.InvButterfly(decomposed)

	temp := rlwe.NewExtendedCiphertext()
	e.MultSumBitRev(decomposed, firstDim, temp)
	e.Relin(temp, s.relinKey, res)
}
