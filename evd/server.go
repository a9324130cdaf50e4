package evd

import (
	"runtime"
	"sync"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

// parallelFor runs f over [0, n) on up to GOMAXPROCS workers. Iterations
// must be independent and must not open a nested parallel region.
func parallelFor(n int, f func(i int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}
	var next sync.Mutex
	cursor := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				next.Lock()
				i := cursor
				cursor++
				next.Unlock()
				if i >= n {
					return
				}
				f(i)
			}
		}()
	}
	wg.Wait()
}

// CachedQuery holds the R RLWE ciphertexts derived once per encrypted
// query, one per decomposed slot, in bit-reversed order.
type CachedQuery struct {
	Ctxts []*rlwe.Ciphertext
}

// NewCachedQuery allocates a CachedQuery for the given rank.
func NewCachedQuery(rank int) *CachedQuery {
	ctxts := make([]*rlwe.Ciphertext, rank)
	for i := range ctxts {
		ctxts[i] = rlwe.NewCiphertext()
	}
	return &CachedQuery{Ctxts: ctxts}
}

// CachedPlaintextQuery plays the role of CachedQuery for the non-private
// query path, as R plaintext polynomials.
type CachedPlaintextQuery struct {
	Polys []*ring.Poly
}

// NewCachedPlaintextQuery allocates a CachedPlaintextQuery for the given
// rank.
func NewCachedPlaintextQuery(rank int) *CachedPlaintextQuery {
	polys := make([]*ring.Poly, rank)
	for i := range polys {
		polys[i] = ring.NewPoly(rlwe.N, rlwe.Q)
	}
	return &CachedPlaintextQuery{Polys: polys}
}

// CachedKeys holds the R RLWE ciphertexts representing one block of up to N
// database vectors. A cached block is immutable once built.
type CachedKeys struct {
	Ctxts []*rlwe.Ciphertext
}

// NewCachedKeys allocates a CachedKeys for the given rank.
func NewCachedKeys(rank int) *CachedKeys {
	ctxts := make([]*rlwe.Ciphertext, rank)
	for i := range ctxts {
		ctxts[i] = rlwe.NewCiphertext()
	}
	return &CachedKeys{Ctxts: ctxts}
}

// Server evaluates the similarity pipeline of one collection. It holds
// immutable references to the evaluation keys uploaded at setup and its own
// evaluator at the collection log-rank.
type Server struct {
	logRank int
	rank    int
	stack   int

	eval *rlwe.Evaluator

	relinKey             *rlwe.SwitchingKey
	autedModPackKeys     *rlwe.AutedModPackKeys
	autedModPackMLWEKeys *rlwe.AutedModPackMLWEKeys
}

// NewServer creates a new Server at the given log-rank over the given
// evaluation keys.
func NewServer(logRank int, relinKey *rlwe.SwitchingKey, autedModPackKeys *rlwe.AutedModPackKeys, autedModPackMLWEKeys *rlwe.AutedModPackMLWEKeys) (s *Server, err error) {
	s = &Server{
		logRank:              logRank,
		rank:                 1 << logRank,
		stack:                rlwe.N >> logRank,
		relinKey:             relinKey,
		autedModPackKeys:     autedModPackKeys,
		autedModPackMLWEKeys: autedModPackMLWEKeys,
	}
	if s.eval, err = rlwe.NewEvaluator(logRank); err != nil {
		return nil, err
	}
	return s, nil
}

// Rank returns the module rank of the server.
func (s *Server) Rank() int { return s.rank }

// Evaluator returns the evaluator of the server.
func (s *Server) Evaluator() *rlwe.Evaluator { return s.eval }

// CacheQuery lifts an encrypted MLWE query into the R RLWE ciphertexts of
// the query cache. The A components are raised to the special modulus once,
// then for each slot i the lifted switching-key output is assembled per
// stack column, reconciled down to Q, recombined into a dense degree-N
// ciphertext, and finally auted by 2i+1 and NTT-transformed. Slot i lands
// at the bit-reversed position.
func (s *Server) CacheQuery(query *rlwe.MLWECiphertext, res *CachedQuery) {
	e := s.eval
	rank, stack := s.rank, s.stack

	up := rlwe.NewMLWESwitchingKey(rank)
	for i := 0; i < stack; i++ {
		e.NormMod(query.A[i], up.AP[i])
		e.NTT(query.A[i], up.AQ[i])
		e.NTT(up.AP[i], up.AP[i])
	}

	parallelFor(rank, func(i int) {
		exponent := 2*i + 1
		ct := res.Ctxts[e.BitRev(i, rank)]

		multed := rlwe.NewMLWESwitchingKey(rank)

		ct.SetIsNTT(false)
		ct.B().Zero()

		for j := 0; j < rank; j++ {
			ct.B().Coeffs[j*stack] = query.B.Coeffs[j]
		}

		keys := s.autedModPackMLWEKeys.Keys[i]
		tempQ := ring.NewPoly(rank, rlwe.Q)
		tempP := ring.NewPoly(rank, rlwe.P)
		for k := 0; k < stack; k++ {
			e.MulCoeffs(up.AQ[0], keys[0].AQ[k], multed.AQ[k])
			e.MulCoeffs(up.AQ[0], keys[0].BQ[k], multed.BQ[k])
			e.MulCoeffs(up.AP[0], keys[0].AP[k], multed.AP[k])
			e.MulCoeffs(up.AP[0], keys[0].BP[k], multed.BP[k])
			for j := 1; j < stack; j++ {
				e.MulCoeffs(up.AQ[j], keys[j].AQ[k], tempQ)
				e.Add(multed.AQ[k], tempQ, multed.AQ[k])
				e.MulCoeffs(up.AQ[j], keys[j].BQ[k], tempQ)
				e.Add(multed.BQ[k], tempQ, multed.BQ[k])
				e.MulCoeffs(up.AP[j], keys[j].AP[k], tempP)
				e.Add(multed.AP[k], tempP, multed.AP[k])
				e.MulCoeffs(up.AP[j], keys[j].BP[k], tempP)
				e.Add(multed.BP[k], tempP, multed.BP[k])
			}

			e.INTT(multed.AP[k], multed.AP[k])
			e.NormMod(multed.AP[k], tempQ)
			e.INTT(multed.AQ[k], multed.AQ[k])
			e.Sub(multed.AQ[k], tempQ, multed.AQ[k])
			e.MulScalar(multed.AQ[k], rlwe.PInvModQ, multed.AQ[k])

			e.INTT(multed.BP[k], multed.BP[k])
			e.NormMod(multed.BP[k], tempQ)
			e.INTT(multed.BQ[k], multed.BQ[k])
			e.Sub(multed.BQ[k], tempQ, multed.BQ[k])
			e.MulScalar(multed.BQ[k], rlwe.PInvModQ, multed.BQ[k])
		}

		for j := 0; j < rank; j++ {
			for k := 0; k < stack; k++ {
				ct.A().Coeffs[j*stack+k] = multed.AQ[k].Coeffs[j]
				ct.B().Coeffs[j*stack+k] = ring.CRed(ct.B().Coeffs[j*stack+k]+multed.BQ[k].Coeffs[j], rlwe.Q)
			}
		}

		temp := rlwe.NewCiphertext()
		e.Aut(ct.A(), exponent, rlwe.N, temp.A())
		e.Aut(ct.B(), exponent, rlwe.N, temp.B())
		e.NTT(temp.A(), ct.A())
		e.NTT(temp.B(), ct.B())
	})
}

// CachePlaintextQuery is the plaintext analogue of CacheQuery: the query
// polynomial is laid out sparsely, auted by 2i+1 and NTT-transformed per
// slot.
func (s *Server) CachePlaintextQuery(query *ring.Poly, res *CachedPlaintextQuery) {
	e := s.eval
	rank, stack := s.rank, s.stack

	parallelFor(rank, func(i int) {
		poly := res.Polys[e.BitRev(i, rank)]
		temp := ring.NewPoly(rlwe.N, rlwe.Q)

		poly.Zero()
		poly.IsNTT = false
		for j := 0; j < rank; j++ {
			poly.Coeffs[j*stack] = query.Coeffs[j]
		}
		e.Aut(poly, 2*i+1, rlwe.N, temp)
		e.NTT(temp, poly)
	})
}

// CacheKeys folds exactly N MLWE key ciphertexts into the R RLWE
// ciphertexts of a block cache: a pair-by-pair inverse butterfly over the
// shifted ciphertexts, followed per slot by the automorphism 2i+1 and a
// mod-pack. Partial blocks must be zero padded to N by the caller.
func (s *Server) CacheKeys(keys []*rlwe.MLWECiphertext, res *CachedKeys) {
	if len(keys) != rlwe.N {
		panic(ring.ErrInvalidRank)
	}
	e := s.eval
	rank, stack := s.rank, s.stack
	logRank := s.logRank

	temp := make([][]*rlwe.MLWECiphertext, rank)
	parallelFor(rank, func(i int) {
		temp[i] = make([]*rlwe.MLWECiphertext, stack)
		for j := 0; j < stack; j++ {
			temp[i][j] = rlwe.NewMLWECiphertext(rank)
		}
	})

	for iter := 0; iter < stack; iter++ {
		iter := iter
		{
			// First stage reads from keys.
			start := rank / 2
			parallelFor(start, func(j int) {
				factor := start
				index := 2 * j
				twiddle := rlwe.NewMLWECiphertext(rank)
				e.ShiftMLWE(keys[e.BitRev(index+1, rank)*stack+iter], factor, twiddle)
				e.SubMLWE(keys[e.BitRev(index, rank)*stack+iter], twiddle, temp[index+1][iter])
				e.AddMLWE(keys[e.BitRev(index, rank)*stack+iter], twiddle, temp[index][iter])
			})
		}
		for i := 1; i < logRank; i++ {
			half := 1 << i
			size := half << 1
			start := rank / size
			step := rank >> i
			parallelFor(start*half, func(t int) {
				j, k := t/half, t%half
				factor := start + step*k
				index := size*j + k
				twiddle := rlwe.NewMLWECiphertext(rank)
				e.ShiftMLWE(temp[index+half][iter], factor, twiddle)
				e.SubMLWE(temp[index][iter], twiddle, temp[index+half][iter])
				e.AddMLWE(temp[index][iter], twiddle, temp[index][iter])
			})
		}
	}

	parallelFor(rank, func(i int) {
		auted := make([]*rlwe.MLWECiphertext, stack)
		for j := 0; j < stack; j++ {
			auted[j] = rlwe.NewMLWECiphertext(rank)
		}
		src := e.Inv(2*i+1, rank) / 2
		for j := 0; j < stack; j++ {
			e.AutMLWE(temp[src][j], 2*i+1, auted[j])
		}
		e.ModPack(auted, s.autedModPackKeys.Keys[i], res.Ctxts[e.BitRev(i, rank)])
	})
}

// InnerProduct evaluates one block of similarity scores: the batched
// multiply-sum of the query cache against the key cache, scaled by R to
// undo the R^-1 factors baked into both operands, then relinearized.
func (s *Server) InnerProduct(query *CachedQuery, keys *CachedKeys, res *rlwe.Ciphertext) {
	temp := rlwe.NewExtendedCiphertext()
	s.eval.MultSum(query.Ctxts, keys.Ctxts, temp)
	s.eval.MulCtScalar(temp, uint64(s.rank), temp)
	s.eval.Relin(temp, s.relinKey, res)
}

// InnerProductPlain evaluates one block of similarity scores against a
// plaintext query cache; the rank-1 multiply-sum needs no relinearization.
func (s *Server) InnerProductPlain(query *CachedPlaintextQuery, keys *CachedKeys, res *rlwe.Ciphertext) {
	s.eval.MultSumPlain(keys.Ctxts, query.Polys, res)
	s.eval.MulCtScalar(res, uint64(s.rank), res)
}
