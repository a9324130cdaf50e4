package rlwe

import (
	"io"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/buffer"
)

// SecretKey is a ternary secret of fixed Hamming weight stored as its two
// ring images modulo Q and modulo P, both in the NTT domain. The two images
// carry the same signed coefficients.
type SecretKey struct {
	PolyQ *ring.Poly
	PolyP *ring.Poly
}

// NewSecretKey creates a new zero SecretKey.
func NewSecretKey() *SecretKey {
	return &SecretKey{PolyQ: ring.NewPoly(N, Q), PolyP: ring.NewPoly(N, P)}
}

// Save writes the secret key to w in its on-disk format: the mod-Q image
// followed by the mod-P image, both NTT-form, 8 bytes per coefficient.
func (sk *SecretKey) Save(w io.Writer) (err error) {
	if err = buffer.WriteUint64Slice(w, sk.PolyQ.Coeffs); err != nil {
		return
	}
	return buffer.WriteUint64Slice(w, sk.PolyP.Coeffs)
}

// Load reads a secret key written by Save.
func (sk *SecretKey) Load(r io.Reader) (err error) {
	if err = buffer.ReadUint64Slice(r, sk.PolyQ.Coeffs); err != nil {
		return
	}
	if err = buffer.ReadUint64Slice(r, sk.PolyP.Coeffs); err != nil {
		return
	}
	sk.PolyQ.IsNTT = true
	sk.PolyP.IsNTT = true
	return
}

// SwitchingKey rebinds a ciphertext from a source secret to the target
// secret. Its four degree-N polynomials are in the NTT domain and satisfy
// B + A*s = P*s_src mod Q (and the analogous relation mod P with an
// independent image of the same fresh error).
type SwitchingKey struct {
	AQ *ring.Poly
	AP *ring.Poly
	BQ *ring.Poly
	BP *ring.Poly
}

// NewSwitchingKey creates a new zero SwitchingKey.
func NewSwitchingKey() *SwitchingKey {
	return &SwitchingKey{
		AQ: ring.NewPoly(N, Q),
		AP: ring.NewPoly(N, P),
		BQ: ring.NewPoly(N, Q),
		BP: ring.NewPoly(N, P),
	}
}

// MLWESwitchingKey is a switching key reshaped as stack = N/rank polynomials
// of degree rank per component, so the server can combine it with MLWE
// coefficient blocks directly. It also serves as the scratch layout for the
// query-cache pipeline.
type MLWESwitchingKey struct {
	AQ []*ring.Poly
	AP []*ring.Poly
	BQ []*ring.Poly
	BP []*ring.Poly
}

// NewMLWESwitchingKey creates a new zero MLWESwitchingKey of the given rank.
func NewMLWESwitchingKey(rank int) *MLWESwitchingKey {
	stack := N / rank
	swk := &MLWESwitchingKey{
		AQ: make([]*ring.Poly, stack),
		AP: make([]*ring.Poly, stack),
		BQ: make([]*ring.Poly, stack),
		BP: make([]*ring.Poly, stack),
	}
	for i := 0; i < stack; i++ {
		swk.AQ[i] = ring.NewPoly(rank, Q)
		swk.AP[i] = ring.NewPoly(rank, P)
		swk.BQ[i] = ring.NewPoly(rank, Q)
		swk.BP[i] = ring.NewPoly(rank, P)
	}
	return swk
}

// Rank returns the degree of the component polynomials.
func (swk *MLWESwitchingKey) Rank() int { return swk.AQ[0].N() }

// Stack returns the number of component polynomials per part.
func (swk *MLWESwitchingKey) Stack() int { return len(swk.AQ) }

// AutedModPackKeys is the matrix of switching keys enabling the combined
// lift-and-pack of an MLWE ciphertext auted by exponent 2i+1 into an RLWE
// ciphertext. Entry [i][j] is built from the automorphism by exponent 2i+1
// of the secret, with j selecting a stack coordinate.
type AutedModPackKeys struct {
	Keys [][]*SwitchingKey
}

// NewAutedModPackKeys creates a zero AutedModPackKeys matrix for the given
// rank.
func NewAutedModPackKeys(rank int) *AutedModPackKeys {
	stack := N / rank
	keys := make([][]*SwitchingKey, rank)
	for i := range keys {
		keys[i] = make([]*SwitchingKey, stack)
		for j := range keys[i] {
			keys[i][j] = NewSwitchingKey()
		}
	}
	return &AutedModPackKeys{Keys: keys}
}

// Rank returns the number of rows of the matrix.
func (k *AutedModPackKeys) Rank() int { return len(k.Keys) }

// AutedModPackMLWEKeys plays the same role as AutedModPackKeys with each
// switching key reshaped into the MLWE layout.
type AutedModPackMLWEKeys struct {
	Keys [][]*MLWESwitchingKey
}

// NewAutedModPackMLWEKeys creates a zero AutedModPackMLWEKeys matrix for the
// given rank.
func NewAutedModPackMLWEKeys(rank int) *AutedModPackMLWEKeys {
	stack := N / rank
	keys := make([][]*MLWESwitchingKey, rank)
	for i := range keys {
		keys[i] = make([]*MLWESwitchingKey, stack)
		for j := range keys[i] {
			keys[i][j] = NewMLWESwitchingKey(rank)
		}
	}
	return &AutedModPackMLWEKeys{Keys: keys}
}

// Rank returns the number of rows of the matrix.
func (k *AutedModPackMLWEKeys) Rank() int { return len(k.Keys) }

// InvAutKeys holds one switching key per automorphism exponent step*i+1
// (step = 2N/rank), used by the PIR decomposition.
type InvAutKeys struct {
	Keys []*SwitchingKey
}

// NewInvAutKeys creates a zero InvAutKeys vector of the given rank.
func NewInvAutKeys(rank int) *InvAutKeys {
	keys := make([]*SwitchingKey, rank)
	for i := range keys {
		keys[i] = NewSwitchingKey()
	}
	return &InvAutKeys{Keys: keys}
}

// Rank returns the number of keys.
func (k *InvAutKeys) Rank() int { return len(k.Keys) }
