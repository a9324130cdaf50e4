package ring

import (
	"encoding/binary"
	"math"

	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/sampling"
)

// UniformSampler samples polynomials with coefficients uniform in
// [0, Modulus) by rejection on masked 64-bit words from the underlying PRNG.
type UniformSampler struct {
	prng     sampling.PRNG
	baseRing *Ring
	buff     []byte
	ptr      int
}

// NewUniformSampler creates a new UniformSampler from a PRNG and a ring.
func NewUniformSampler(prng sampling.PRNG, baseRing *Ring) *UniformSampler {
	return &UniformSampler{
		prng:     prng,
		baseRing: baseRing,
		buff:     make([]byte, 1024),
		ptr:      1024,
	}
}

// Read overwrites the coefficients of pol with uniform values in
// [0, Modulus). The domain tag of pol is left untouched, as uniform
// coefficients are uniform in either domain.
func (u *UniformSampler) Read(pol *Poly) {
	if pol.Mod != u.baseRing.Modulus {
		panic(ErrInvalidModulus)
	}
	mask := u.baseRing.Mask
	q := u.baseRing.Modulus
	for i := range pol.Coeffs {
		for {
			if u.ptr == len(u.buff) {
				if _, err := u.prng.Read(u.buff); err != nil {
					panic(err)
				}
				u.ptr = 0
			}
			c := binary.LittleEndian.Uint64(u.buff[u.ptr:]) & mask
			u.ptr += 8
			if c < q {
				pol.Coeffs[i] = c
				break
			}
		}
	}
}

// GaussianSampler samples discrete gaussian polynomials using the Box-Muller
// transform over two 32-bit uniform streams. A sampled signed integer can be
// emitted simultaneously as its residues modulo two different primes, which
// is required for the shared error of switching keys.
type GaussianSampler struct {
	prng  sampling.PRNG
	sigma float64
	bound int64
	buff  []byte
	ptr   int
}

// NewGaussianSampler creates a new GaussianSampler with the given standard
// deviation, truncated at bound.
func NewGaussianSampler(prng sampling.PRNG, sigma float64, bound int64) *GaussianSampler {
	return &GaussianSampler{
		prng:  prng,
		sigma: sigma,
		bound: bound,
		buff:  make([]byte, 1024),
		ptr:   1024,
	}
}

func (g *GaussianSampler) randUint32() uint32 {
	if g.ptr == len(g.buff) {
		if _, err := g.prng.Read(g.buff); err != nil {
			panic(err)
		}
		g.ptr = 0
	}
	c := binary.LittleEndian.Uint32(g.buff[g.ptr:])
	g.ptr += 4
	return c
}

// sampleInt returns one discrete gaussian signed sample.
func (g *GaussianSampler) sampleInt() int64 {
	for {
		u1 := (float64(g.randUint32()) + 1) / (1 << 32)
		u2 := float64(g.randUint32()) / (1 << 32)
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2) * g.sigma
		v := int64(math.Round(z))
		if v >= -g.bound && v <= g.bound {
			return v
		}
	}
}

// Read overwrites the coefficients of pol with discrete gaussian samples
// reduced modulo its modulus. The result is in the coefficient domain.
func (g *GaussianSampler) Read(pol *Poly) {
	mod := pol.Mod
	for i := range pol.Coeffs {
		v := g.sampleInt()
		if v < 0 {
			pol.Coeffs[i] = mod - uint64(-v)
		} else {
			pol.Coeffs[i] = uint64(v)
		}
	}
	pol.IsNTT = false
}

// ReadPair overwrites polQ and polP with the residues of the same signed
// gaussian samples modulo their respective moduli.
func (g *GaussianSampler) ReadPair(polQ, polP *Poly) {
	modQ, modP := polQ.Mod, polP.Mod
	for i := range polQ.Coeffs {
		v := g.sampleInt()
		if v < 0 {
			polQ.Coeffs[i] = modQ - uint64(-v)
			polP.Coeffs[i] = modP - uint64(-v)
		} else {
			polQ.Coeffs[i] = uint64(v)
			polP.Coeffs[i] = uint64(v)
		}
	}
	polQ.IsNTT = false
	polP.IsNTT = false
}

// TernarySampler samples ternary polynomials with exactly hammingWeight
// non-zero coefficients of uniform random sign, using a Fisher-Yates shuffle
// of the coefficient positions.
type TernarySampler struct {
	prng          sampling.PRNG
	hammingWeight int
	buff          []byte
	ptr           int
}

// NewTernarySampler creates a new TernarySampler with the given Hamming
// weight.
func NewTernarySampler(prng sampling.PRNG, hammingWeight int) *TernarySampler {
	return &TernarySampler{
		prng:          prng,
		hammingWeight: hammingWeight,
		buff:          make([]byte, 1024),
		ptr:           1024,
	}
}

func (t *TernarySampler) randUint64() uint64 {
	if t.ptr == len(t.buff) {
		if _, err := t.prng.Read(t.buff); err != nil {
			panic(err)
		}
		t.ptr = 0
	}
	c := binary.LittleEndian.Uint64(t.buff[t.ptr:])
	t.ptr += 8
	return c
}

// randBelow returns a uniform value in [0, n) by rejection.
func (t *TernarySampler) randBelow(n uint64) uint64 {
	mask := uint64(1)
	for mask < n {
		mask <<= 1
	}
	mask--
	for {
		if c := t.randUint64() & mask; c < n {
			return c
		}
	}
}

// ReadPair overwrites polQ and polP with the residues of the same ternary
// secret modulo their respective moduli. The result is in the coefficient
// domain.
func (t *TernarySampler) ReadPair(polQ, polP *Poly) {
	n := polQ.N()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(t.randBelow(uint64(i + 1)))
		indices[i], indices[j] = indices[j], indices[i]
	}
	polQ.Zero()
	polP.Zero()
	for i := 0; i < t.hammingWeight; i++ {
		if t.randUint64()&1 == 1 {
			polQ.Coeffs[indices[i]] = 1
			polP.Coeffs[indices[i]] = 1
		} else {
			polQ.Coeffs[indices[i]] = polQ.Mod - 1
			polP.Coeffs[indices[i]] = polP.Mod - 1
		}
	}
	polQ.IsNTT = false
	polP.IsNTT = false
}
