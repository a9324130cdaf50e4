package rlwe

import (
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
)

// Ciphertext is an RLWE ciphertext over the degree-N ring modulo Q. A rank-1
// ciphertext holds two polynomials (A, B) with decryption contract
// A*s + B = m; the extended form produced by a ciphertext-ciphertext
// multiplication holds three polynomials (A, B, C) with contract
// A*s^2 + B*s + C = m, and is reduced back to rank-1 by relinearization.
type Ciphertext struct {
	Value []*ring.Poly
}

// NewCiphertext creates a new rank-1 ciphertext with zero polynomials.
func NewCiphertext() *Ciphertext {
	return &Ciphertext{Value: []*ring.Poly{ring.NewPoly(N, Q), ring.NewPoly(N, Q)}}
}

// NewExtendedCiphertext creates a new extended (three-component) ciphertext.
func NewExtendedCiphertext() *Ciphertext {
	return &Ciphertext{Value: []*ring.Poly{ring.NewPoly(N, Q), ring.NewPoly(N, Q), ring.NewPoly(N, Q)}}
}

// A returns the first component.
func (ct *Ciphertext) A() *ring.Poly { return ct.Value[0] }

// B returns the second component.
func (ct *Ciphertext) B() *ring.Poly { return ct.Value[1] }

// C returns the third component of an extended ciphertext.
func (ct *Ciphertext) C() *ring.Poly { return ct.Value[2] }

// IsExtended returns true if the ciphertext has three components.
func (ct *Ciphertext) IsExtended() bool { return len(ct.Value) == 3 }

// IsNTT returns the NTT domain tag of the ciphertext.
func (ct *Ciphertext) IsNTT() bool { return ct.Value[0].IsNTT }

// SetIsNTT sets the NTT domain tag on all components.
func (ct *Ciphertext) SetIsNTT(isNTT bool) {
	for _, p := range ct.Value {
		p.IsNTT = isNTT
	}
}

// Degree returns the number of coefficients of each component.
func (ct *Ciphertext) Degree() int { return ct.Value[0].N() }

// CopyNew returns a deep copy of the ciphertext.
func (ct *Ciphertext) CopyNew() *Ciphertext {
	cp := &Ciphertext{Value: make([]*ring.Poly, len(ct.Value))}
	for i := range ct.Value {
		cp.Value[i] = ct.Value[i].CopyNew()
	}
	return cp
}

// MLWECiphertext is a module-LWE ciphertext of rank R | N: stack = N/R
// polynomials A_0..A_{stack-1} of degree R plus a body B of degree R, all
// modulo Q. Its size scales with the vector dimension instead of the ring
// degree.
type MLWECiphertext struct {
	A []*ring.Poly
	B *ring.Poly
}

// NewMLWECiphertext creates a new MLWE ciphertext of the given rank with
// zero polynomials.
func NewMLWECiphertext(rank int) *MLWECiphertext {
	stack := N / rank
	ct := &MLWECiphertext{A: make([]*ring.Poly, stack), B: ring.NewPoly(rank, Q)}
	for i := range ct.A {
		ct.A[i] = ring.NewPoly(rank, Q)
	}
	return ct
}

// Rank returns the degree of the component polynomials.
func (ct *MLWECiphertext) Rank() int { return ct.B.N() }

// Stack returns the number of A components.
func (ct *MLWECiphertext) Stack() int { return len(ct.A) }

// CopyNew returns a deep copy of the ciphertext.
func (ct *MLWECiphertext) CopyNew() *MLWECiphertext {
	cp := &MLWECiphertext{A: make([]*ring.Poly, len(ct.A)), B: ct.B.CopyNew()}
	for i := range ct.A {
		cp.A[i] = ct.A[i].CopyNew()
	}
	return cp
}
