package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/sampling"
)

const (
	testQ uint64 = 18014398491918337
	testP uint64 = 36028797005856769
)

func testString(opname string, N int, mod uint64) string {
	return fmt.Sprintf("%s/N=%d/mod=%d", opname, N, mod)
}

func newTestRing(t *testing.T, N int, mod uint64) *Ring {
	r, err := NewRing(N, mod)
	require.NoError(t, err)
	return r
}

func newTestSampler(t *testing.T, r *Ring) *UniformSampler {
	prng, err := sampling.NewKeyedPRNG([]byte("ring-test"))
	require.NoError(t, err)
	return NewUniformSampler(prng, r)
}

func TestNewRing(t *testing.T) {
	r := newTestRing(t, 16, testQ)
	require.Equal(t, []uint64{2, 3, 17, 1347440719}, r.Factors)
	require.Equal(t, uint64(7), r.PrimitiveRoot)

	rp := newTestRing(t, 16, testP)
	require.Equal(t, []uint64{2, 3, 87383, 262139}, rp.Factors)
	require.Equal(t, uint64(17), rp.PrimitiveRoot)

	_, err := NewRing(12, testQ)
	require.Error(t, err)

	_, err = NewRing(16, testQ-1)
	require.Error(t, err)
}

func TestModularReduction(t *testing.T) {
	for _, q := range []uint64{testQ, testP} {
		bred := GenBRedConstant(q)
		mred := GenMRedConstant(q)
		x := q - 12345
		y := q - 67891
		require.Equal(t, MulMod(x, y, q), BRed(x, y, q, bred))
		require.Equal(t, MulMod(x, y, q), MRed(x, MForm(y, q, bred), q, mred))
		require.Equal(t, x, BRedAdd(x, q, bred))
		require.Equal(t, uint64(1), CRed(q+1, q))
	}
}

func TestNTT(t *testing.T) {
	for _, mod := range []uint64{testQ, testP} {
		for _, N := range []int{16, 1024, 4096} {
			t.Run(testString("roundtrip", N, mod), func(t *testing.T) {
				r := newTestRing(t, N, mod)
				sampler := newTestSampler(t, r)

				p := r.NewPoly()
				sampler.Read(p)
				want := p.CopyNew()

				r.NTT(p, p)
				require.True(t, p.IsNTT)
				r.INTT(p, p)
				require.True(t, want.Equal(p))
			})
		}
	}
}

// naiveNegacyclicMul is the schoolbook product in Z_q[X]/(X^N+1).
func naiveNegacyclicMul(p1, p2 *Poly, q uint64) *Poly {
	N := p1.N()
	res := NewPoly(N, q)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			prod := MulMod(p1.Coeffs[i], p2.Coeffs[j], q)
			if i+j < N {
				res.Coeffs[i+j] = CRed(res.Coeffs[i+j]+prod, q)
			} else {
				res.Coeffs[i+j-N] = CRed(res.Coeffs[i+j-N]+q-prod, q)
			}
		}
	}
	return res
}

func TestNTTMultiplication(t *testing.T) {
	r := newTestRing(t, 16, testQ)
	sampler := newTestSampler(t, r)

	p1 := r.NewPoly()
	p2 := r.NewPoly()
	sampler.Read(p1)
	sampler.Read(p2)

	want := naiveNegacyclicMul(p1, p2, testQ)

	res := r.NewPoly()
	r.NTT(p1, p1)
	r.NTT(p2, p2)
	r.MulCoeffs(p1, p2, res)
	r.INTT(res, res)

	require.True(t, want.Equal(res))
}

func TestNTTLinearity(t *testing.T) {
	r := newTestRing(t, 64, testQ)
	sampler := newTestSampler(t, r)

	p1 := r.NewPoly()
	p2 := r.NewPoly()
	sampler.Read(p1)
	sampler.Read(p2)

	sum := r.NewPoly()
	r.Add(p1, p2, sum)
	r.NTT(sum, sum)

	r.NTT(p1, p1)
	r.NTT(p2, p2)
	want := r.NewPoly()
	r.Add(p1, p2, want)

	require.True(t, want.Equal(sum))
}

func TestAutomorphismGroupLaw(t *testing.T) {
	N := 64
	r := newTestRing(t, N, testQ)
	sampler := newTestSampler(t, r)

	p := r.NewPoly()
	sampler.Read(p)

	for _, exps := range [][2]int{{3, 5}, {7, 2*N - 1}, {N + 1, 3}} {
		e1, e2 := exps[0], exps[1]

		tmp := r.NewPoly()
		res1 := r.NewPoly()
		r.Aut(p, e1, N, tmp)
		r.Aut(tmp, e2, N, res1)

		res2 := r.NewPoly()
		r.Aut(p, (e1*e2)%(2*N), N, res2)

		require.True(t, res1.Equal(res2), "e1=%d e2=%d", e1, e2)
	}
}

func TestAutAliasPanics(t *testing.T) {
	r := newTestRing(t, 16, testQ)
	p := r.NewPoly()
	require.PanicsWithValue(t, ErrSameDataReference, func() { r.Aut(p, 3, 16, p) })
	require.PanicsWithValue(t, ErrSameDataReference, func() { r.Shift(p, 1, 16, p) })
}

func TestShiftNegacyclic(t *testing.T) {
	N := 16
	r := newTestRing(t, N, testQ)

	// X^(N-1) * X = -1.
	p := r.NewPoly()
	p.Coeffs[N-1] = 1
	res := r.NewPoly()
	r.Shift(p, 1, N, res)
	require.Equal(t, testQ-1, res.Coeffs[0])

	// Shifting by e then 2N-e is the identity.
	sampler := newTestSampler(t, r)
	sampler.Read(p)
	p.IsNTT = false
	back := r.NewPoly()
	r.Shift(p, 5, N, res)
	r.Shift(res, 2*N-5, N, back)
	require.True(t, p.Equal(back))
}

func TestNormModCentrality(t *testing.T) {
	N := 16
	rQ := newTestRing(t, N, testQ)
	rP := newTestRing(t, N, testP)

	centerLift := func(c, mod uint64) int64 {
		if c > mod/2 {
			return -int64(mod - c)
		}
		return int64(c)
	}

	// Values around 0 and around the modulus.
	cases := []int64{0, 1, -1, 12345, -12345, 1 << 40, -(1 << 40)}

	up := NewPoly(N, testQ)
	for i, v := range cases {
		if v < 0 {
			up.Coeffs[i] = testQ - uint64(-v)
		} else {
			up.Coeffs[i] = uint64(v)
		}
	}
	res := NewPoly(N, testP)
	rP.NormMod(up, res)
	for i, v := range cases {
		require.Equal(t, v, centerLift(res.Coeffs[i], testP), "Q->P case %d", i)
	}

	down := NewPoly(N, testP)
	for i, v := range cases {
		if v < 0 {
			down.Coeffs[i] = testP - uint64(-v)
		} else {
			down.Coeffs[i] = uint64(v)
		}
	}
	res = NewPoly(N, testQ)
	rQ.NormMod(down, res)
	for i, v := range cases {
		require.Equal(t, v, centerLift(res.Coeffs[i], testQ), "P->Q case %d", i)
	}
}

func TestExtract(t *testing.T) {
	N, rank := 64, 16
	stack := N / rank
	r := newTestRing(t, N, testQ)

	p := r.NewPoly()
	for i := range p.Coeffs {
		p.Coeffs[i] = uint64(i)
	}
	res := NewPoly(rank, testQ)
	r.Extract(p, res)
	for i := 0; i < rank; i++ {
		require.Equal(t, uint64((i+1)*stack-1), res.Coeffs[i])
	}
}
