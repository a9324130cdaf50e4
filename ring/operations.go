package ring

// Add evaluates res = op1 + op2 coefficient-wise. The operands must share
// modulus and NTT domain.
func (r *Ring) Add(op1, op2, res *Poly) {
	r.checkBinary(op1, op2, res)
	r.AddVec(op1.Coeffs, op2.Coeffs, res.Coeffs)
	res.IsNTT = op1.IsNTT
}

// Sub evaluates res = op1 - op2 coefficient-wise.
func (r *Ring) Sub(op1, op2, res *Poly) {
	r.checkBinary(op1, op2, res)
	r.SubVec(op1.Coeffs, op2.Coeffs, res.Coeffs)
	res.IsNTT = op1.IsNTT
}

// MulCoeffs evaluates res = op1 * op2 coefficient-wise. Both operands must
// be in the NTT domain.
func (r *Ring) MulCoeffs(op1, op2, res *Poly) {
	if !op1.IsNTT || !op2.IsNTT {
		panic(ErrInvalidNTTState)
	}
	if res.Mod != op1.Mod || op1.Mod != op2.Mod || op1.Mod != r.Modulus {
		panic(ErrInvalidModulus)
	}
	r.MulCoeffsVec(op1.Coeffs, op2.Coeffs, res.Coeffs)
	res.IsNTT = true
}

// MulScalar evaluates res = op1 * scalar coefficient-wise, in either domain.
func (r *Ring) MulScalar(op1 *Poly, scalar uint64, res *Poly) {
	if res.Mod != op1.Mod || op1.Mod != r.Modulus {
		panic(ErrInvalidModulus)
	}
	r.MulScalarVec(op1.Coeffs, scalar, res.Coeffs)
	res.IsNTT = op1.IsNTT
}

// MulScalarThenAdd evaluates res = op1 * scalar + op3 coefficient-wise.
func (r *Ring) MulScalarThenAdd(op1 *Poly, scalar uint64, op3, res *Poly) {
	if op1.IsNTT != op3.IsNTT {
		panic(ErrInvalidNTTState)
	}
	if res.Mod != op1.Mod || op1.Mod != op3.Mod || op1.Mod != r.Modulus {
		panic(ErrInvalidModulus)
	}
	for i := range res.Coeffs {
		res.Coeffs[i] = CRed(BRed(op1.Coeffs[i], scalar, r.Modulus, r.BRedConstant)+op3.Coeffs[i], r.Modulus)
	}
	res.IsNTT = op1.IsNTT
}

// Shift multiplies op, viewed as stack interleaved polynomials of the given
// rank, by the monomial X^e modulo X^rank+1. op must be in the coefficient
// domain and res must not alias op.
func (r *Ring) Shift(op *Poly, e, rank int, res *Poly) {
	if op.IsNTT {
		panic(ErrInvalidNTTState)
	}
	if op == res || &op.Coeffs[0] == &res.Coeffs[0] {
		panic(ErrSameDataReference)
	}
	stack := op.N() / rank
	mod := op.Mod
	mask := uint64(2*rank - 1)
	for i := 0; i < rank; i++ {
		idx := int(uint64(e+i) & mask)
		if idx < rank {
			for j := 0; j < stack; j++ {
				res.Coeffs[idx*stack+j] = op.Coeffs[i*stack+j]
			}
		} else {
			for j := 0; j < stack; j++ {
				if c := op.Coeffs[i*stack+j]; c != 0 {
					res.Coeffs[(idx-rank)*stack+j] = mod - c
				} else {
					res.Coeffs[(idx-rank)*stack+j] = 0
				}
			}
		}
	}
	res.IsNTT = false
}

// Aut applies the automorphism X -> X^e on op, viewed as stack interleaved
// polynomials of the given rank. e must be odd. op must be in the
// coefficient domain and res must not alias op.
func (r *Ring) Aut(op *Poly, e, rank int, res *Poly) {
	if op.IsNTT {
		panic(ErrInvalidNTTState)
	}
	if op == res || &op.Coeffs[0] == &res.Coeffs[0] {
		panic(ErrSameDataReference)
	}
	stack := op.N() / rank
	mod := op.Mod
	mask := uint64(2*rank - 1)
	for i := 0; i < rank; i++ {
		idx := int((uint64(i) * uint64(e)) & mask)
		sign := true
		if idx >= rank {
			idx -= rank
			sign = false
		}
		for j := 0; j < stack; j++ {
			c := op.Coeffs[i*stack+j]
			if !sign && c != 0 {
				c = mod - c
			}
			res.Coeffs[idx*stack+j] = c
		}
	}
	res.IsNTT = false
}

// NormMod switches op to the modulus of the receiver ring: each coefficient
// is centered around its source modulus and reduced into [0, r.Modulus).
// The result is tagged as being in the coefficient domain.
func (r *Ring) NormMod(op, res *Poly) {
	if res.Mod != r.Modulus {
		panic(ErrInvalidModulus)
	}
	halfMod := op.Mod >> 1
	isSmallPrime := halfMod <= r.Modulus
	var diff uint64
	if isSmallPrime {
		diff = r.Modulus - op.Mod
	} else {
		diff = r.Modulus - BRedAdd(op.Mod, r.Modulus, r.BRedConstant)
	}
	for i, c := range op.Coeffs {
		if c > halfMod {
			c += diff
		}
		if !isSmallPrime {
			c = BRedAdd(c, r.Modulus, r.BRedConstant)
		}
		res.Coeffs[i] = c
	}
	res.IsNTT = false
}

// Extract projects op onto res by selecting every stack-th coefficient,
// where stack = op.N() / res.N(). op must be in the coefficient domain.
func (r *Ring) Extract(op, res *Poly) {
	if op.IsNTT {
		panic(ErrInvalidNTTState)
	}
	stack := op.N() / res.N()
	for i := 0; i < res.N(); i++ {
		res.Coeffs[i] = op.Coeffs[(i+1)*stack-1]
	}
	res.IsNTT = false
}

// AddVec evaluates p3 = p1 + p2 mod the ring modulus on raw coefficient
// slices.
func (r *Ring) AddVec(p1, p2, p3 []uint64) {
	q := r.Modulus
	for i := range p3 {
		p3[i] = CRed(p1[i]+p2[i], q)
	}
}

// SubVec evaluates p3 = p1 - p2 mod the ring modulus on raw coefficient
// slices.
func (r *Ring) SubVec(p1, p2, p3 []uint64) {
	q := r.Modulus
	for i := range p3 {
		p3[i] = CRed(p1[i]+q-p2[i], q)
	}
}

// MulCoeffsVec evaluates p3 = p1 * p2 mod the ring modulus on raw
// coefficient slices.
func (r *Ring) MulCoeffsVec(p1, p2, p3 []uint64) {
	q := r.Modulus
	bred := r.BRedConstant
	for i := range p3 {
		p3[i] = BRed(p1[i], p2[i], q, bred)
	}
}

// MulScalarVec evaluates p2 = p1 * scalar mod the ring modulus on raw
// coefficient slices.
func (r *Ring) MulScalarVec(p1 []uint64, scalar uint64, p2 []uint64) {
	q := r.Modulus
	bred := r.BRedConstant
	for i := range p2 {
		p2[i] = BRed(p1[i], scalar, q, bred)
	}
}

// MulCoeffsThenAddVec evaluates p3 = p3 + p1 * p2 mod the ring modulus on
// raw coefficient slices.
func (r *Ring) MulCoeffsThenAddVec(p1, p2, p3 []uint64) {
	q := r.Modulus
	bred := r.BRedConstant
	for i := range p3 {
		p3[i] = CRed(p3[i]+BRed(p1[i], p2[i], q, bred), q)
	}
}
