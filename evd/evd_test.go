package evd

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/bignum"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/sampling"
)

func newTestClient(t *testing.T, logRank int, seed string) *Client {
	prng, err := sampling.NewKeyedPRNG([]byte(seed))
	require.NoError(t, err)
	c, err := NewClientWithPRNG(logRank, prng)
	require.NoError(t, err)
	return c
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("IP")
	require.NoError(t, err)
	require.Equal(t, MetricIP, m)

	m, err = ParseMetric("COSINE")
	require.NoError(t, err)
	require.Equal(t, MetricCosine, m)

	_, err = ParseMetric("L2")
	require.Error(t, err)
}

func TestScalesFor(t *testing.T) {
	s, err := ScalesFor(MetricIP, true)
	require.NoError(t, err)
	require.Equal(t, float64(1<<22), s.Query)
	require.Equal(t, float64(1<<22), s.Key)
	require.Equal(t, s.Query*s.Key, s.Output)

	s, err = ScalesFor(MetricCosine, true)
	require.NoError(t, err)
	require.InEpsilon(t, bignum.Exp2(26.25), s.Query, 1e-12)

	s, err = ScalesFor(MetricCosine, false)
	require.NoError(t, err)
	require.InEpsilon(t, bignum.Exp2(32.5), s.Key, 1e-12)

	// L2 is reserved but has no scale table yet.
	_, err = ScalesFor(MetricL2, true)
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	c := newTestClient(t, 3, "encode-test")
	rank := c.Rank()
	scale := bignum.Exp2(26.25)

	msg := []float64{0.5, -0.25, 1.0, -1.0, 0, 0.125, -0.9999, 0.0001}
	require.Len(t, msg, rank)

	ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
	c.Encode(msg, scale, ptxt)
	decoded := c.Decode(ptxt, scale)

	stack := rlwe.N / rank
	for i, v := range msg {
		require.InDelta(t, v, decoded[(i+1)*stack-1], 1.0/scale, "coordinate %d", i)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	c := newTestClient(t, 3, "encrypt-test")
	rank := c.Rank()
	stack := rlwe.N / rank
	scale := bignum.Exp2(26.25)

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	msg := []float64{0.5, -0.25, 1.0, -1.0, 0, 0.125, -0.5, 0.75}

	ct := rlwe.NewCiphertext()
	c.EncryptMsg(msg, sk, scale, ct)
	decoded := c.Decrypt(ct, sk, scale)

	// Fresh encryption noise is bounded by the gaussian tail over the scale.
	noiseBound := 64.0 / scale
	for i, v := range msg {
		require.InDelta(t, v, decoded[(i+1)*stack-1], noiseBound, "coordinate %d", i)
	}
	require.InDelta(t, 0, decoded[0], noiseBound)
}

func TestRelinearizedMultiplication(t *testing.T) {
	c := newTestClient(t, 2, "relin-test")
	scale := bignum.Exp2(22)

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	relinKey := rlwe.NewSwitchingKey()
	c.GenRelinKey(sk, relinKey)

	e := c.Evaluator()

	v1, v2 := 0.75, -0.5
	encryptConst := func(v float64) *rlwe.Ciphertext {
		ptxt := ring.NewPoly(rlwe.N, rlwe.Q)
		c.Encode([]float64{v}, scale, ptxt)
		// Move the value to the constant coefficient so that the ring
		// product of two encryptions stays a constant.
		ptxt.Coeffs[0], ptxt.Coeffs[rlwe.N-1] = ptxt.Coeffs[rlwe.N-1], 0
		ct := rlwe.NewCiphertext()
		c.Encrypt(ptxt, sk, ct)
		e.NTTCt(ct, ct)
		return ct
	}

	ct1 := encryptConst(v1)
	ct2 := encryptConst(v2)

	ext := rlwe.NewExtendedCiphertext()
	e.MulCt(ct1, ct2, ext)

	res := rlwe.NewCiphertext()
	e.Relin(ext, relinKey, res)

	decoded := c.Decrypt(res, sk, scale*scale)
	require.InDelta(t, v1*v2, decoded[0], 1e-3)
}

func TestTopK(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.9, -0.2, 0.7}

	require.Equal(t, []uint64{1}, TopK(scores, 1))
	// Ties broken by the lower index first.
	require.Equal(t, []uint64{1, 3}, TopK(scores, 2))
	require.Equal(t, []uint64{1, 3, 5}, TopK(scores, 3))
	require.Equal(t, []uint64{1, 3, 5, 2, 0, 4}, TopK(scores, 10))
	require.Nil(t, TopK(scores, 0))
	require.Nil(t, TopK(nil, 3))
}

func TestPIRPayloadCodec(t *testing.T) {
	c := newTestClient(t, rlwe.PIRLogRank, "pir-payload")

	payload := []byte("hello, encrypted world")
	poly := ring.NewPoly(rlwe.N, rlwe.Q)
	require.NoError(t, c.EncodePIRPayload(payload, poly))
	require.True(t, poly.IsNTT)

	// Decode the exact encoding: decrypting a noiseless encoding is the
	// identity on the signed alphabet.
	e := c.Evaluator()
	coeffs := ring.NewPoly(rlwe.N, rlwe.Q)
	e.INTT(poly, coeffs)
	dmsg := c.Decode(coeffs, 1)

	decoded, err := c.DecodePIRPayload(dmsg)
	require.NoError(t, err)
	require.Equal(t, payload, decoded[:len(payload)])
	for _, b := range decoded[len(payload):] {
		require.Zero(t, b)
	}

	// Out-of-alphabet values are an integrity failure.
	dmsg[17] = 3.0
	_, err = c.DecodePIRPayload(dmsg)
	require.ErrorIs(t, err, ErrPayloadDecode)

	// Oversized payloads are rejected.
	require.Error(t, c.EncodePIRPayload(make([]byte, rlwe.PIRPayloadSize+1), poly))
}

func TestAutModPackShape(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation in short mode")
	}

	c := newTestClient(t, 2, "autmodpack-test")
	rank := c.Rank()

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	keys := rlwe.NewAutedModPackMLWEKeys(rank)
	c.GenInvAutedModPackKeys(sk, keys)

	query := rlwe.NewMLWECiphertext(rank)
	c.EncryptMsgMLWE([]float64{1, 0, 0, 0}, sk, float64(1<<22), query)

	res := rlwe.NewCiphertext()
	c.Evaluator().AutModPack(query, keys.Keys[0], 1, res)
	require.True(t, res.IsNTT())
	require.False(t, res.IsExtended())

	// The lift is deterministic in its inputs.
	res2 := rlwe.NewCiphertext()
	c.Evaluator().AutModPack(query, keys.Keys[0], 1, res2)
	require.True(t, res.A().Equal(res2.A()))
	require.True(t, res.B().Equal(res2.B()))
}

func TestGenModPackKeysShape(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation in short mode")
	}

	c := newTestClient(t, 2, "modpack-keys")
	stack := rlwe.N / c.Rank()

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	keys := make([]*rlwe.SwitchingKey, stack)
	for i := range keys {
		keys[i] = rlwe.NewSwitchingKey()
	}
	c.GenModPackKeys(sk, keys)

	op := make([]*rlwe.MLWECiphertext, stack)
	for j := range op {
		op[j] = rlwe.NewMLWECiphertext(c.Rank())
		c.EncryptMsgMLWE([]float64{1, 0, 0, 0}, sk, float64(1<<22), op[j])
	}

	res := rlwe.NewCiphertext()
	c.Evaluator().ModPack(op, keys, res)
	require.True(t, res.IsNTT())

	res2 := rlwe.NewCiphertext()
	c.Evaluator().ModPack(op, keys, res2)
	require.True(t, res.A().Equal(res2.A()))
	require.True(t, res.B().Equal(res2.B()))
}

// setupSimilarity generates the full key material of a collection and
// returns the client, secret key and server.
func setupSimilarity(t *testing.T, logRank int, seed string) (*Client, *rlwe.SecretKey, *Server) {
	c := newTestClient(t, logRank, seed)

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	relinKey := rlwe.NewSwitchingKey()
	c.GenRelinKey(sk, relinKey)
	autedModPackKeys := rlwe.NewAutedModPackKeys(c.Rank())
	c.GenAutedModPackKeys(sk, autedModPackKeys)
	autedModPackMLWEKeys := rlwe.NewAutedModPackMLWEKeys(c.Rank())
	c.GenInvAutedModPackKeys(sk, autedModPackMLWEKeys)

	s, err := NewServer(logRank, relinKey, autedModPackKeys, autedModPackMLWEKeys)
	require.NoError(t, err)
	return c, sk, s
}

// cacheVectors encrypts the vectors as key ciphertexts and folds them into
// one zero-padded block cache.
func cacheVectors(t *testing.T, c *Client, sk *rlwe.SecretKey, s *Server, vectors [][]float64, keyScale float64) *CachedKeys {
	keys := make([]*rlwe.MLWECiphertext, rlwe.N)
	msg := make([]float64, c.Rank())
	for i := range keys {
		keys[i] = rlwe.NewMLWECiphertext(c.Rank())
		if i < len(vectors) {
			for j := range msg {
				msg[j] = 0
			}
			copy(msg, vectors[i])
			c.EncryptKey(msg, sk, keyScale, keys[i])
		}
	}
	cache := NewCachedKeys(c.Rank())
	s.CacheKeys(keys, cache)
	return cache
}

func TestInnerProductEncrypted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full pipeline in short mode")
	}

	c, sk, s := setupSimilarity(t, 2, "ip-encrypted")
	scales, err := ScalesFor(MetricIP, true)
	require.NoError(t, err)

	vectors := [][]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	blockCache := cacheVectors(t, c, sk, s, vectors, scales.Key)

	query := rlwe.NewMLWECiphertext(c.Rank())
	c.EncryptQuery([]float64{1, 0, 0, 0}, sk, scales.Query, query)
	queryCache := NewCachedQuery(c.Rank())
	s.CacheQuery(query, queryCache)

	res := rlwe.NewCiphertext()
	s.InnerProduct(queryCache, blockCache, res)

	scores := c.Decrypt(res, sk, scales.Output)

	eps := 1.0 / float64(uint64(1)<<10)
	require.InDelta(t, 1.0, scores[0], eps)
	require.InDelta(t, 0.0, scores[1], eps)

	top := c.TopKScore([][]float64{scores[:len(vectors)]}, 1)
	require.Equal(t, []uint64{0}, top)
}

func TestInnerProductPlaintextCosine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full pipeline in short mode")
	}

	c, sk, s := setupSimilarity(t, 3, "cosine-plain")
	scales, err := ScalesFor(MetricCosine, false)
	require.NoError(t, err)

	dim := 8
	vectors := make([][]float64, 10)
	queryVec := []float64{0.5, -0.5, 0.25, 0.25, -0.25, 0.5, 0.1, -0.1}
	norm := floats.Norm(queryVec, 2)
	for j := range queryVec {
		queryVec[j] /= norm
	}
	for i := range vectors {
		vectors[i] = make([]float64, dim)
		for j := range vectors[i] {
			vectors[i][j] = float64((i+j)%5-2) / 3
		}
		n := floats.Norm(vectors[i], 2)
		for j := range vectors[i] {
			vectors[i][j] /= n
		}
	}
	// The 7th entry matches the query exactly.
	copy(vectors[7], queryVec)

	blockCache := cacheVectors(t, c, sk, s, vectors, scales.Key)

	query := ring.NewPoly(c.Rank(), rlwe.Q)
	c.EncodeQuery(queryVec, scales.Query, query)
	queryCache := NewCachedPlaintextQuery(c.Rank())
	s.CachePlaintextQuery(query, queryCache)

	res := rlwe.NewCiphertext()
	s.InnerProductPlain(queryCache, blockCache, res)

	scores := c.Decrypt(res, sk, scales.Output)

	eps := 1.0 / float64(uint64(1)<<10)
	for i, vec := range vectors {
		require.InDelta(t, floats.Dot(queryVec, vec), scores[i], eps, "score %d", i)
	}

	top := TopK(scores[:len(vectors)], 1)
	require.Equal(t, []uint64{7}, top)
	require.InDelta(t, 1.0, scores[7], eps)
}

func TestCrossingBlockBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-block pipeline in short mode")
	}

	c, sk, s := setupSimilarity(t, 7, "block-boundary")
	scales, err := ScalesFor(MetricIP, true)
	require.NoError(t, err)

	dim := 128
	total := rlwe.N + 3
	vectors := make([][]float64, total)
	for i := range vectors {
		vectors[i] = make([]float64, dim)
		for j := range vectors[i] {
			vectors[i][j] = float64((i*31+j*17)%7-3) / 8
		}
	}

	// One full block of N keys plus a zero-padded partial block of 3.
	encryptBlock := func(block [][]float64) *CachedKeys {
		keys := make([]*rlwe.MLWECiphertext, rlwe.N)
		for i := range keys {
			keys[i] = rlwe.NewMLWECiphertext(c.Rank())
			if i < len(block) {
				c.EncryptKey(block[i], sk, scales.Key, keys[i])
			}
		}
		cache := NewCachedKeys(c.Rank())
		s.CacheKeys(keys, cache)
		return cache
	}
	fullCache := encryptBlock(vectors[:rlwe.N])
	partialCache := encryptBlock(vectors[rlwe.N:])

	queryVec := vectors[rlwe.N+1]
	query := rlwe.NewMLWECiphertext(c.Rank())
	c.EncryptQuery(queryVec, sk, scales.Query, query)
	queryCache := NewCachedQuery(c.Rank())
	s.CacheQuery(query, queryCache)

	res0 := rlwe.NewCiphertext()
	s.InnerProduct(queryCache, fullCache, res0)
	res1 := rlwe.NewCiphertext()
	s.InnerProduct(queryCache, partialCache, res1)

	scores := c.DecryptScore([]*rlwe.Ciphertext{res0, res1}, sk, scales.Output)

	eps := 1.0 / float64(uint64(1)<<8)
	require.InDelta(t, floats.Dot(queryVec, vectors[0]), scores[0][0], eps)
	require.InDelta(t, floats.Dot(queryVec, vectors[rlwe.N+1]), scores[1][1], eps)
	require.InDelta(t, floats.Dot(queryVec, queryVec), scores[1][1], eps)
}

func TestPIRRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pir pipeline in short mode")
	}

	c := newTestClient(t, rlwe.PIRLogRank, "pir-roundtrip")

	sk := rlwe.NewSecretKey()
	c.GenSecretKey(sk)

	relinKey := rlwe.NewSwitchingKey()
	c.GenRelinKey(sk, relinKey)
	invAutKeys := rlwe.NewInvAutKeys(rlwe.PIRRank)
	c.GenInvAutKeys(sk, rlwe.PIRRank, invAutKeys)

	s, err := NewPIRServer(relinKey, invAutKeys)
	require.NoError(t, err)

	payloads := [][]byte{[]byte("p0"), []byte("p1"), []byte("p2"), []byte("p3"), []byte("p4")}
	db := make([]*ring.Poly, len(payloads))
	for i, p := range payloads {
		db[i] = ring.NewPoly(rlwe.N, rlwe.Q)
		require.NoError(t, c.EncodePIRPayload(p, db[i]))
	}

	const idx = 3
	row := uint64(idx / rlwe.PIRRank)
	col := uint64(idx % rlwe.PIRRank)

	q1 := rlwe.NewCiphertext()
	q2 := rlwe.NewCiphertext()
	require.NoError(t, c.EncryptPIR(row, sk, PIRFirstScale, q1))
	require.NoError(t, c.EncryptPIR(col, sk, PIRSecondScale, q2))

	res := rlwe.NewCiphertext()
	s.PIR(q1, q2, db, res)

	dmsg := c.Decrypt(res, sk, PIRFirstScale*PIRSecondScale)
	decoded, err := c.DecodePIRPayload(dmsg)
	require.NoError(t, err)
	require.Equal(t, payloads[idx], decoded[:len(payloads[idx])])
}
