package evd

import (
	"fmt"
	"math"
	"sync"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/sampling"
)

// Client owns the secret-side operations of a collection: secret and
// evaluation key generation, encoding, encryption, decryption and the
// PIR payload codec. A Client is stateless across operations except for its
// evaluator tables and sampler buffers; methods that draw randomness must
// not be called concurrently.
type Client struct {
	eval    *rlwe.Evaluator
	invRank uint64

	uniformQ *ring.UniformSampler
	uniformP *ring.UniformSampler
	gaussian *ring.GaussianSampler
	ternary  *ring.TernarySampler
}

// NewClient creates a new Client at the given log-rank, backed by the
// operating system entropy source.
func NewClient(logRank int) (c *Client, err error) {
	prng, err := sampling.NewPRNG()
	if err != nil {
		return nil, err
	}
	return NewClientWithPRNG(logRank, prng)
}

// NewClientWithPRNG creates a new Client drawing all randomness from the
// given PRNG. A KeyedPRNG yields a fully deterministic client.
func NewClientWithPRNG(logRank int, prng sampling.PRNG) (c *Client, err error) {
	c = new(Client)
	if c.eval, err = rlwe.NewEvaluator(logRank); err != nil {
		return nil, err
	}
	c.invRank = ring.ModExp(uint64(c.eval.Rank()), rlwe.Q-2, rlwe.Q)
	c.uniformQ = ring.NewUniformSampler(prng, c.eval.RingQN())
	c.uniformP = ring.NewUniformSampler(prng, c.eval.RingPN())
	c.gaussian = ring.NewGaussianSampler(prng, rlwe.Sigma, rlwe.GaussianBound)
	c.ternary = ring.NewTernarySampler(prng, rlwe.HammingWeight)
	return c, nil
}

// Evaluator returns the evaluator of the client.
func (c *Client) Evaluator() *rlwe.Evaluator { return c.eval }

// Rank returns the module rank of the client.
func (c *Client) Rank() int { return c.eval.Rank() }

// InvRank returns rank^-1 mod Q.
func (c *Client) InvRank() uint64 { return c.invRank }

// GenSecretKey overwrites res with a fresh ternary secret of Hamming weight
// h, stored as its NTT-form images modulo Q and P.
func (c *Client) GenSecretKey(res *rlwe.SecretKey) {
	c.ternary.ReadPair(res.PolyQ, res.PolyP)
	c.eval.NTT(res.PolyQ, res.PolyQ)
	c.eval.NTT(res.PolyP, res.PolyP)
}

// genSwtKey overwrites res with a switching key from the source secret
// modifiedKey (NTT form, mod Q) to the target secret:
// b = -a*s_target + e + P*s_src mod Q, and the same relation mod P without
// the source term. The error carries the same signed value in both images.
func (c *Client) genSwtKey(target *rlwe.SecretKey, modifiedKey *ring.Poly, res *rlwe.SwitchingKey) {
	tempQ := ring.NewPoly(rlwe.N, rlwe.Q)
	tempP := ring.NewPoly(rlwe.N, rlwe.P)

	res.AQ.IsNTT = false
	res.AP.IsNTT = false
	c.uniformQ.Read(res.AQ)
	c.uniformP.Read(res.AP)
	c.eval.NTT(res.AQ, res.AQ)
	c.eval.NTT(res.AP, res.AP)

	c.gaussian.ReadPair(res.BQ, res.BP)
	c.eval.NTT(res.BQ, res.BQ)
	c.eval.NTT(res.BP, res.BP)

	c.eval.MulCoeffs(res.AQ, target.PolyQ, tempQ)
	c.eval.Sub(res.BQ, tempQ, res.BQ)
	c.eval.MulCoeffs(res.AP, target.PolyP, tempP)
	c.eval.Sub(res.BP, tempP, res.BP)
	c.eval.MulScalarThenAdd(modifiedKey, rlwe.PModQ, res.BQ, res.BQ)
}

// GenRelinKey overwrites res with the relinearization key, a switching key
// from s^2 to s.
func (c *Client) GenRelinKey(sk *rlwe.SecretKey, res *rlwe.SwitchingKey) {
	modified := ring.NewPoly(rlwe.N, rlwe.Q)
	c.eval.MulCoeffs(sk.PolyQ, sk.PolyQ, modified)
	c.genSwtKey(sk, modified, res)
}

// GenInvAutKeys overwrites res with one switching key per automorphism
// exponent step*i+1 (step = 2N/rank), each from s to the image of s under
// the inverse automorphism. They drive the PIR decomposition.
func (c *Client) GenInvAutKeys(sk *rlwe.SecretKey, rank int, res *rlwe.InvAutKeys) {
	step := 2 * rlwe.N / rank

	tempQ := ring.NewPoly(rlwe.N, rlwe.Q)
	tempP := ring.NewPoly(rlwe.N, rlwe.P)
	c.eval.INTT(sk.PolyQ, tempQ)
	c.eval.INTT(sk.PolyP, tempP)

	invAut := rlwe.NewSecretKey()
	for i := 0; i < rank; i++ {
		e := c.eval.Inv(step*i+1, rlwe.N)
		c.eval.Aut(tempQ, e, rlwe.N, invAut.PolyQ)
		c.eval.NTT(invAut.PolyQ, invAut.PolyQ)
		c.eval.Aut(tempP, e, rlwe.N, invAut.PolyP)
		c.eval.NTT(invAut.PolyP, invAut.PolyP)
		c.genSwtKey(invAut, sk.PolyQ, res.Keys[i])
	}
}

// GenModPackKeys overwrites res with the stack switching keys of the plain
// mod-packing. Retained as a building block; the server pipelines use the
// auted variants below.
func (c *Client) GenModPackKeys(sk *rlwe.SecretKey, res []*rlwe.SwitchingKey) {
	rank, stack := c.eval.Rank(), c.eval.Stack()

	temp := ring.NewPoly(rlwe.N, rlwe.Q)
	c.eval.INTT(sk.PolyQ, temp)

	modified := ring.NewPoly(rlwe.N, rlwe.Q)
	nttKey := ring.NewPoly(rlwe.N, rlwe.Q)
	for i := 0; i < stack; i++ {
		modified.Zero()
		modified.IsNTT = false
		for j := 0; j < rank; j++ {
			modified.Coeffs[stack*j] = temp.Coeffs[(j+1)*stack-1-i]
		}
		c.eval.NTT(modified, nttKey)
		c.genSwtKey(sk, nttKey, res[i])
	}
}

// GenAutedModPackKeys overwrites res with the [rank][stack] matrix of
// switching keys whose source secrets are built from the automorphism of s
// by exponent 2i+1, with j selecting a stack coordinate. They enable the
// combined lift-and-pack of auted MLWE ciphertexts.
func (c *Client) GenAutedModPackKeys(sk *rlwe.SecretKey, res *rlwe.AutedModPackKeys) {
	rank, stack := c.eval.Rank(), c.eval.Stack()

	for i := 0; i < rank; i++ {
		temp := ring.NewPoly(rlwe.N, rlwe.Q)
		autedKey := ring.NewPoly(rlwe.N, rlwe.Q)
		modified := ring.NewPoly(rlwe.N, rlwe.Q)
		nttKey := ring.NewPoly(rlwe.N, rlwe.Q)

		c.eval.INTT(sk.PolyQ, temp)
		c.eval.Aut(temp, 2*i+1, rank, autedKey)
		for j := 0; j < stack; j++ {
			for k := 0; k < rank; k++ {
				modified.Coeffs[stack*k] = autedKey.Coeffs[(k+1)*stack-1-j]
			}
			modified.IsNTT = false
			c.eval.NTT(modified, nttKey)
			c.genSwtKey(sk, nttKey, res.Keys[i][j])
		}
	}
}

// GenInvAutedModPackKeys overwrites res with the MLWE-shaped variant of the
// mod-pack keys: the target secret is the image of s under the inverse
// automorphism by 2i+1, and each resulting key polynomial is re-laid into
// stack degree-rank slices for direct combination with MLWE coefficient
// blocks.
func (c *Client) GenInvAutedModPackKeys(sk *rlwe.SecretKey, res *rlwe.AutedModPackMLWEKeys) {
	rank, stack := c.eval.Rank(), c.eval.Stack()

	for i := 0; i < rank; i++ {
		intted := ring.NewPoly(rlwe.N, rlwe.Q)
		tempQ := ring.NewPoly(rlwe.N, rlwe.Q)
		tempP := ring.NewPoly(rlwe.N, rlwe.P)
		modified := ring.NewPoly(rlwe.N, rlwe.Q)
		nttKey := ring.NewPoly(rlwe.N, rlwe.Q)

		autedKey := rlwe.NewSecretKey()

		exponent := 2*i + 1
		inv := c.eval.Inv(exponent, rlwe.N)

		c.eval.INTT(sk.PolyQ, intted)
		c.eval.Aut(intted, inv, rlwe.N, autedKey.PolyQ)
		c.eval.NTT(autedKey.PolyQ, autedKey.PolyQ)
		c.eval.INTT(sk.PolyP, tempP)
		c.eval.Aut(tempP, inv, rlwe.N, autedKey.PolyP)
		c.eval.NTT(autedKey.PolyP, autedKey.PolyP)

		for j := 0; j < stack; j++ {
			swk := rlwe.NewSwitchingKey()
			modified.IsNTT = false
			for k := 0; k < rank; k++ {
				modified.Coeffs[stack*k] = intted.Coeffs[(k+1)*stack-1-j]
			}
			c.eval.NTT(modified, nttKey)
			c.genSwtKey(autedKey, nttKey, swk)

			out := res.Keys[i][j]
			c.eval.INTT(swk.AQ, tempQ)
			c.reshape(tempQ, out.AQ)
			c.eval.INTT(swk.AP, tempP)
			c.reshape(tempP, out.AP)
			c.eval.INTT(swk.BQ, tempQ)
			c.reshape(tempQ, out.BQ)
			c.eval.INTT(swk.BP, tempP)
			c.reshape(tempP, out.BP)
		}
	}
}

// reshape transposes a degree-N polynomial into stack degree-rank slices,
// NTT-transforming each slice.
func (c *Client) reshape(src *ring.Poly, dst []*ring.Poly) {
	rank, stack := c.eval.Rank(), c.eval.Stack()
	for k := 0; k < stack; k++ {
		for l := 0; l < rank; l++ {
			dst[k].Coeffs[l] = src.Coeffs[l*stack+k]
		}
		dst[k].IsNTT = false
		c.eval.NTT(dst[k], dst[k])
	}
}

// Encode writes the scaled message onto the extract slots of res: message
// coordinate i lands on coefficient (i+1)*stack-1, with stack =
// res.N()/len(msg). Negative values are represented by their additive
// inverse mod Q.
func (c *Client) Encode(msg []float64, scale float64, res *ring.Poly) {
	stack := res.N() / len(msg)
	res.Zero()
	res.IsNTT = false
	for i, v := range msg {
		value := uint64(math.Round(math.Abs(v) * scale))
		if v < 0 && value != 0 {
			res.Coeffs[(i+1)*stack-1] = rlwe.Q - value
		} else {
			res.Coeffs[(i+1)*stack-1] = value
		}
	}
}

// Decode center-lifts each coefficient of ptxt to a signed value and
// divides by the scale.
func (c *Client) Decode(ptxt *ring.Poly, scale float64) (msg []float64) {
	msg = make([]float64, ptxt.N())
	for i, v := range ptxt.Coeffs {
		if v < rlwe.Q/2 {
			msg[i] = float64(v)
		} else {
			msg[i] = -float64(rlwe.Q - v)
		}
		msg[i] /= scale
	}
	return
}

// Encrypt encrypts ptxt (coefficient domain, mod Q) as a fresh RLWE
// ciphertext under sk: B = -A*s + e + ptxt with uniform A. The result is in
// the coefficient domain.
func (c *Client) Encrypt(ptxt *ring.Poly, sk *rlwe.SecretKey, res *rlwe.Ciphertext) {
	as := ring.NewPoly(rlwe.N, rlwe.Q)
	e := ring.NewPoly(rlwe.N, rlwe.Q)

	res.A().IsNTT = true
	c.uniformQ.Read(res.A())
	c.eval.MulCoeffs(res.A(), sk.PolyQ, as)
	c.eval.INTT(res.A(), res.A())
	c.eval.INTT(as, as)
	c.eval.Sub(ptxt, as, res.B())
	c.gaussian.Read(e)
	c.eval.Add(res.B(), e, res.B())
}

// EncryptMsg encodes msg at the given scale and encrypts it as an RLWE
// ciphertext.
func (c *Client) EncryptMsg(msg []float64, sk *rlwe.SecretKey, scale float64, res *rlwe.Ciphertext) {
	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	c.Encode(msg, scale, ptxt)
	c.Encrypt(ptxt, sk, res)
}

// EncryptMLWE encrypts ptxt as an MLWE ciphertext of the client rank by
// projecting a fresh RLWE encryption: the body is the extract of the RLWE
// body and A_i[j] = A[j*stack+i].
func (c *Client) EncryptMLWE(ptxt *ring.Poly, sk *rlwe.SecretKey, res *rlwe.MLWECiphertext) {
	temp := rlwe.NewCiphertext()
	c.Encrypt(ptxt, sk, temp)

	stack := res.Stack()
	res.B.IsNTT = false
	c.eval.Extract(temp.B(), res.B)
	for i := 0; i < stack; i++ {
		res.A[i].IsNTT = false
		for j := 0; j < res.Rank(); j++ {
			res.A[i].Coeffs[j] = temp.A().Coeffs[j*stack+i]
		}
	}
}

// EncryptMsgMLWE encodes msg at the given scale and encrypts it as an MLWE
// ciphertext.
func (c *Client) EncryptMsgMLWE(msg []float64, sk *rlwe.SecretKey, scale float64, res *rlwe.MLWECiphertext) {
	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	c.Encode(msg, scale, ptxt)
	c.EncryptMLWE(ptxt, sk, res)
}

// Decrypt computes A*s + B (plus the s^2 term of an extended ciphertext)
// and decodes the result at the given scale.
func (c *Client) Decrypt(ct *rlwe.Ciphertext, sk *rlwe.SecretKey, scale float64) (msg []float64) {
	temp := ring.NewPoly(rlwe.N, rlwe.Q)

	if ct.IsNTT() {
		c.eval.MulCoeffs(ct.A(), sk.PolyQ, temp)
	} else {
		c.eval.NTT(ct.A(), temp)
		c.eval.MulCoeffs(temp, sk.PolyQ, temp)
		c.eval.INTT(temp, temp)
	}
	c.eval.Add(temp, ct.B(), temp)
	if ct.IsExtended() {
		if !ct.IsNTT() {
			c.eval.NTT(temp, temp)
		}
		c.eval.MulCoeffs(temp, sk.PolyQ, temp)
		if !ct.IsNTT() {
			c.eval.INTT(temp, temp)
		}
		c.eval.Add(temp, ct.C(), temp)
	}
	if ct.IsNTT() {
		c.eval.INTT(temp, temp)
	}
	return c.Decode(temp, scale)
}

// EncryptQuery encodes and encrypts a query vector: the encoding is auted
// by X -> X^(2R-1) so that the later inner product aligns the scores on the
// slot grid, and the ciphertext is pre-scaled by R^-1 to compensate the
// factor of R absorbed by the pipeline.
func (c *Client) EncryptQuery(msg []float64, sk *rlwe.SecretKey, scale float64, res *rlwe.MLWECiphertext) {
	rank := c.eval.Rank()
	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	temp := ring.NewPoly(rlwe.N, rlwe.Q)

	c.Encode(msg, scale, ptxt)
	c.eval.Aut(ptxt, 2*rank-1, rank, temp)
	c.EncryptMLWE(temp, sk, res)
	c.eval.MulMLWEScalar(res, c.invRank, res)
}

// EncodeQuery is the plaintext analogue of EncryptQuery for non-private
// queries: a single degree-R polynomial in the coefficient domain.
func (c *Client) EncodeQuery(msg []float64, scale float64, res *ring.Poly) {
	rank := c.eval.Rank()
	temp := ring.NewPoly(rank, rlwe.Q)

	c.Encode(msg, scale, temp)
	c.eval.Aut(temp, 2*rank-1, rank, res)
	c.eval.MulScalar(res, c.invRank, res)
}

// EncryptKey encodes and encrypts a database vector, pre-scaled by R^-1.
func (c *Client) EncryptKey(msg []float64, sk *rlwe.SecretKey, scale float64, res *rlwe.MLWECiphertext) {
	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	c.Encode(msg, scale, ptxt)
	c.EncryptMLWE(ptxt, sk, res)
	c.eval.MulMLWEScalar(res, c.invRank, res)
}

// EncodeKey encodes a database vector as a plaintext polynomial, pre-scaled
// by R^-1.
func (c *Client) EncodeKey(msg []float64, scale float64, res *ring.Poly) {
	c.Encode(msg, scale, res)
	c.eval.MulScalar(res, c.invRank, res)
}

// DecryptScore decrypts a batch of score ciphertexts in parallel.
func (c *Client) DecryptScore(scores []*rlwe.Ciphertext, sk *rlwe.SecretKey, scale float64) (msgs [][]float64) {
	msgs = make([][]float64, len(scores))
	var wg sync.WaitGroup
	wg.Add(len(scores))
	for i := range scores {
		go func(i int) {
			defer wg.Done()
			msgs[i] = c.Decrypt(scores[i], sk, scale)
		}(i)
	}
	wg.Wait()
	return
}

// TopKScore returns the indices of the k largest coefficients across the
// decrypted score slices, in descending order.
func (c *Client) TopKScore(msgs [][]float64, k int) []uint64 {
	flat := make([]float64, 0, len(msgs)*rlwe.N)
	for _, m := range msgs {
		flat = append(flat, m...)
	}
	return TopK(flat, k)
}

// EncryptPIR encrypts a one-hot selection of the given coordinate at the
// given scale, pre-scaled by R^-1 like the similarity queries.
func (c *Client) EncryptPIR(idx uint64, sk *rlwe.SecretKey, scale float64, res *rlwe.Ciphertext) error {
	if idx >= uint64(rlwe.N) {
		return fmt.Errorf("pir index %d out of range [0, %d)", idx, rlwe.N)
	}
	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	ptxt.Coeffs[idx] = uint64(math.Round(scale))
	c.eval.MulScalar(ptxt, c.invRank, ptxt)
	c.Encrypt(ptxt, sk, res)
	return nil
}
