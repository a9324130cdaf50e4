// Package evdclient implements the client coordinator: per-collection
// contexts, request orchestration over the HTTP wire protocol, the AES
// payload envelope and top-K selection over decrypted scores.
package evdclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evd"
	"github.com/snuhcs-course/swpp-2025-project-team-07/evdapi"
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/buffer"
)

// Environment variables locating the optional on-disk key material.
const (
	EnvSecretKeyPath = "EVD_SEC_KEY_PATH"
	EnvAESKeyPath    = "EVD_AES_KEY_PATH"
)

// collectionContext is the client-side state of one collection.
type collectionContext struct {
	dimension      uint64
	logRank        int
	rank           int
	stack          int
	metric         evd.Metric
	isQueryEncrypt bool
	scales         evd.Scales

	client    *evd.Client
	pirClient *evd.Client
}

func newCollectionContext(dimension uint64, metric evd.Metric, isQueryEncrypt bool) (ctx *collectionContext, err error) {
	ctx = &collectionContext{
		dimension:      dimension,
		metric:         metric,
		isQueryEncrypt: isQueryEncrypt,
	}
	ctx.logRank = logRankFor(dimension)
	ctx.rank = 1 << ctx.logRank
	ctx.stack = rlwe.N / ctx.rank

	if ctx.scales, err = evd.ScalesFor(metric, isQueryEncrypt); err != nil {
		return nil, err
	}
	if ctx.client, err = evd.NewClient(ctx.logRank); err != nil {
		return nil, err
	}
	if ctx.pirClient, err = evd.NewClient(rlwe.PIRLogRank); err != nil {
		return nil, err
	}
	return ctx, nil
}

func logRankFor(dimension uint64) int {
	logRank := 0
	for 1<<logRank < int(dimension) {
		logRank++
	}
	return logRank
}

// ScoredIndex pairs a database index with its decrypted score.
type ScoredIndex struct {
	Index uint64
	Score float64
}

// Client coordinates a secret key, an AES payload key and per-collection
// contexts against one server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	secretKey       *rlwe.SecretKey
	secretKeyLoaded bool
	aesKey          []byte

	collections map[string]*collectionContext
	dbSizes     map[string]uint64
}

// New creates a coordinator against the given base URL. The secret key and
// the AES envelope key are loaded from the paths in EVD_SEC_KEY_PATH and
// EVD_AES_KEY_PATH when present; a missing AES key is generated and saved
// back when a path is configured.
func New(baseURL string) (c *Client, err error) {
	c = &Client{
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
		secretKey:   rlwe.NewSecretKey(),
		collections: make(map[string]*collectionContext),
		dbSizes:     make(map[string]uint64),
	}

	if path := os.Getenv(EnvSecretKeyPath); path != "" {
		if f, err := os.Open(path); err == nil {
			err = c.secretKey.Load(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("secret key file %s: %w", path, err)
			}
			c.secretKeyLoaded = true
		}
	}

	aesPath := os.Getenv(EnvAESKeyPath)
	if aesPath != "" {
		if key, err := loadAESKey(aesPath); err == nil {
			c.aesKey = key
		}
	}
	if c.aesKey == nil {
		if c.aesKey, err = generateAESKey(); err != nil {
			return nil, err
		}
		if aesPath != "" {
			if err = saveAESKey(aesPath, c.aesKey); err != nil {
				return nil, fmt.Errorf("save aes key: %w", err)
			}
		}
	}
	return c, nil
}

// post sends a binary request body and returns the response body. A 400
// response is surfaced with its server-side message.
func (c *Client) post(path string, body []byte) ([]byte, error) {
	resp, err := c.httpClient.Post(c.baseURL+path, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusBadRequest:
		return nil, fmt.Errorf("server rejected request: %s", bytes.TrimSpace(data))
	default:
		return nil, fmt.Errorf("server error: status %d", resp.StatusCode)
	}
}

// SetupCollection runs the two-phase handshake. For a collection the server
// already holds it adopts the stored parameters and returns the current
// database size; for a new collection it derives all evaluation keys from
// the secret key, uploads them and returns zero.
func (c *Client) SetupCollection(name string, dimension uint64, metricName string, isQueryEncrypt bool) (dbSize uint64, err error) {
	if dimension == 0 || dimension > rlwe.N {
		return 0, fmt.Errorf("dimension must be between 1 and %d, got %d", rlwe.N, dimension)
	}
	metric, err := evd.ParseMetric(metricName)
	if err != nil {
		return 0, err
	}

	hash := HashCollectionName(name)

	probe := new(bytes.Buffer)
	if err = evdapi.WriteSetupRequest(probe, &evdapi.SetupRequest{
		CollectionHash: hash,
		Dimension:      dimension,
		Metric:         uint8(metric),
	}); err != nil {
		return 0, err
	}
	data, err := c.post("/collections/setup", probe.Bytes())
	if err != nil {
		return 0, err
	}
	resp, err := evdapi.ReadSetupResponse(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}

	switch resp.Status {
	case evdapi.SetupStatusMismatch:
		return 0, fmt.Errorf("setup of collection %q failed: dimension mismatch with server", name)

	case evdapi.SetupStatusExists:
		if _, ok := c.collections[name]; !ok {
			ctx, err := newCollectionContext(resp.Dimension, evd.Metric(resp.Metric), isQueryEncrypt)
			if err != nil {
				return 0, err
			}
			c.collections[name] = ctx
		}
		c.dbSizes[name] = resp.DBSize
		return resp.DBSize, nil
	}

	// New collection: generate and upload the key material.
	ctx, ok := c.collections[name]
	if !ok {
		if ctx, err = newCollectionContext(dimension, metric, isQueryEncrypt); err != nil {
			return 0, err
		}
		c.collections[name] = ctx
		c.dbSizes[name] = 0
	}

	if !c.secretKeyLoaded {
		ctx.client.GenSecretKey(c.secretKey)
		c.secretKeyLoaded = true
		if path := os.Getenv(EnvSecretKeyPath); path != "" {
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return 0, fmt.Errorf("save secret key: %w", err)
			}
			err = c.secretKey.Save(f)
			f.Close()
			if err != nil {
				return 0, fmt.Errorf("save secret key: %w", err)
			}
		}
	}

	keys := evdapi.NewKeyBundle(ctx.rank)
	ctx.client.GenRelinKey(c.secretKey, keys.RelinKey)
	ctx.client.GenAutedModPackKeys(c.secretKey, keys.AutedModPackKeys)
	ctx.client.GenInvAutedModPackKeys(c.secretKey, keys.AutedModPackMLWEKeys)
	ctx.pirClient.GenInvAutKeys(c.secretKey, rlwe.PIRRank, keys.PIRInvAutKeys)

	upload := new(bytes.Buffer)
	if err = evdapi.WriteSetupRequest(upload, &evdapi.SetupRequest{
		CollectionHash: hash,
		Dimension:      dimension,
		Metric:         uint8(metric),
		HasKeys:        true,
		Keys:           keys,
	}); err != nil {
		return 0, err
	}
	data, err = c.post("/collections/setup", upload.Bytes())
	if err != nil {
		return 0, err
	}
	if resp, err = evdapi.ReadSetupResponse(bytes.NewReader(data)); err != nil {
		return 0, err
	}
	if resp.Status != evdapi.SetupStatusExists {
		return 0, fmt.Errorf("setup of collection %q failed: unexpected status %d", name, resp.Status)
	}
	return 0, nil
}

func (c *Client) context(name string) (*collectionContext, error) {
	ctx, ok := c.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist, call SetupCollection first", name)
	}
	return ctx, nil
}

// Insert encrypts the vectors and their payloads and uploads them. The
// payload envelope is AES-256-CTR keyed by the coordinator AES key with the
// global index as IV.
func (c *Client) Insert(name string, vectors [][]float64, payloads [][]byte) error {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) != len(payloads) {
		return fmt.Errorf("database and payloads must have the same size")
	}
	ctx, err := c.context(name)
	if err != nil {
		return err
	}
	for _, vec := range vectors {
		if len(vec) == 0 || len(vec) > ctx.rank {
			return fmt.Errorf("vector dimension %d exceeds collection capacity %d", len(vec), ctx.rank)
		}
	}

	body := new(bytes.Buffer)
	if err = buffer.WriteUint64(body, HashCollectionName(name)); err != nil {
		return err
	}
	if err = buffer.WriteUint64(body, uint64(len(vectors))); err != nil {
		return err
	}

	base := c.dbSizes[name]
	msg := make([]float64, ctx.rank)
	key := rlwe.NewMLWECiphertext(ctx.rank)
	for i, vec := range vectors {
		for j := range msg {
			msg[j] = 0
		}
		copy(msg, vec)

		ctx.client.EncryptKey(msg, c.secretKey, ctx.scales.Key, key)
		if err = evdapi.WriteMLWECiphertext(body, key); err != nil {
			return err
		}

		sealed, err := encryptPayload(payloads[i], c.aesKey, base+uint64(i))
		if err != nil {
			return err
		}
		if _, err = body.Write(sealed); err != nil {
			return err
		}
	}

	if _, err = c.post("/collections/insert", body.Bytes()); err != nil {
		return err
	}
	c.dbSizes[name] = base + uint64(len(vectors))
	return nil
}

// Query scores the query vector against the whole collection and returns
// the decrypted scores truncated to the database size.
func (c *Client) Query(name string, queryVec []float64) ([]float64, error) {
	ctx, err := c.context(name)
	if err != nil {
		return nil, err
	}
	dbSize := c.dbSizes[name]
	if dbSize == 0 {
		return nil, fmt.Errorf("collection %q is empty, call Insert first", name)
	}
	if len(queryVec) > ctx.rank {
		return nil, fmt.Errorf("query dimension %d exceeds collection capacity %d", len(queryVec), ctx.rank)
	}

	msg := make([]float64, ctx.rank)
	copy(msg, queryVec)

	body := new(bytes.Buffer)
	if err = buffer.WriteUint64(body, HashCollectionName(name)); err != nil {
		return nil, err
	}

	path := "/collections/query"
	if ctx.isQueryEncrypt {
		query := rlwe.NewMLWECiphertext(ctx.rank)
		ctx.client.EncryptQuery(msg, c.secretKey, ctx.scales.Query, query)
		if err = evdapi.WriteMLWECiphertext(body, query); err != nil {
			return nil, err
		}
	} else {
		path = "/collections/query_ptxt"
		query := ring.NewPoly(ctx.rank, rlwe.Q)
		ctx.client.EncodeQuery(msg, ctx.scales.Query, query)
		if err = evdapi.WritePoly(body, query); err != nil {
			return nil, err
		}
	}

	data, err := c.post(path, body.Bytes())
	if err != nil {
		return nil, err
	}

	iter := int(utils.DivCeil(dbSize, uint64(rlwe.N)))
	ret := make([]*rlwe.Ciphertext, iter)
	r := bytes.NewReader(data)
	for i := range ret {
		ret[i] = rlwe.NewCiphertext()
		if err = evdapi.ReadCiphertextInto(r, ret[i], true); err != nil {
			return nil, fmt.Errorf("score ciphertext %d: %w", i, err)
		}
	}

	dmsg := ctx.client.DecryptScore(ret, c.secretKey, ctx.scales.Output)

	results := make([]float64, 0, dbSize)
	for _, m := range dmsg {
		for _, v := range m {
			if uint64(len(results)) == dbSize {
				break
			}
			results = append(results, v)
		}
	}
	return results, nil
}

// QueryTopK returns the indices of the k best-scoring database entries in
// descending score order.
func (c *Client) QueryTopK(name string, queryVec []float64, k int) ([]uint64, error) {
	scores, err := c.Query(name, queryVec)
	if err != nil {
		return nil, err
	}
	return evd.TopK(scores, k), nil
}

// QueryTopKWithScores returns the k best-scoring entries with their
// decrypted scores.
func (c *Client) QueryTopKWithScores(name string, queryVec []float64, k int) ([]ScoredIndex, error) {
	scores, err := c.Query(name, queryVec)
	if err != nil {
		return nil, err
	}
	indices := evd.TopK(scores, k)
	res := make([]ScoredIndex, len(indices))
	for i, idx := range indices {
		res[i] = ScoredIndex{Index: idx, Score: scores[idx]}
	}
	return res, nil
}

// TopKIndices selects the indices of the k largest scores, descending.
func (c *Client) TopKIndices(scores []float64, k int) []uint64 {
	return evd.TopK(scores, k)
}

// Retrieve fetches and opens the payload stored at the given index.
func (c *Client) Retrieve(name string, index uint64) ([]byte, error) {
	if _, err := c.context(name); err != nil {
		return nil, err
	}

	body := new(bytes.Buffer)
	if err := buffer.WriteUint64(body, HashCollectionName(name)); err != nil {
		return nil, err
	}
	if err := buffer.WriteUint64(body, 1); err != nil {
		return nil, err
	}
	if err := buffer.WriteUint64(body, index); err != nil {
		return nil, err
	}

	data, err := c.post("/collections/retrieve", body.Bytes())
	if err != nil {
		return nil, err
	}
	if len(data) != rlwe.PIRPayloadSize {
		return nil, fmt.Errorf("retrieve response has %d bytes, want %d", len(data), rlwe.PIRPayloadSize)
	}
	return decryptPayload(data, c.aesKey, index)
}

// RetrievePIR fetches the payload at the given index without revealing the
// index: the two grid coordinates are sent as encrypted one-hot selections
// and the returned ciphertext is decrypted and decoded locally.
func (c *Client) RetrievePIR(name string, index uint64) ([]byte, error) {
	ctx, err := c.context(name)
	if err != nil {
		return nil, err
	}
	dbSize := c.dbSizes[name]
	if index >= dbSize {
		return nil, fmt.Errorf("index %d is out of range, db size is %d", index, dbSize)
	}
	if dbSize > rlwe.PIRRank*rlwe.PIRRank {
		return nil, fmt.Errorf("database size %d exceeds pir capacity %d", dbSize, rlwe.PIRRank*rlwe.PIRRank)
	}

	row := index / rlwe.PIRRank
	col := index % rlwe.PIRRank

	firstDim := rlwe.NewCiphertext()
	secondDim := rlwe.NewCiphertext()
	if err = ctx.pirClient.EncryptPIR(row, c.secretKey, evd.PIRFirstScale, firstDim); err != nil {
		return nil, err
	}
	if err = ctx.pirClient.EncryptPIR(col, c.secretKey, evd.PIRSecondScale, secondDim); err != nil {
		return nil, err
	}

	body := new(bytes.Buffer)
	if err = buffer.WriteUint64(body, HashCollectionName(name)); err != nil {
		return nil, err
	}
	if err = evdapi.WriteCiphertext(body, firstDim); err != nil {
		return nil, err
	}
	if err = evdapi.WriteCiphertext(body, secondDim); err != nil {
		return nil, err
	}

	data, err := c.post("/collections/pir_retrieve", body.Bytes())
	if err != nil {
		return nil, err
	}

	result := rlwe.NewCiphertext()
	if err = evdapi.ReadCiphertextInto(bytes.NewReader(data), result, true); err != nil {
		return nil, fmt.Errorf("pir response: %w", err)
	}

	dmsg := ctx.pirClient.Decrypt(result, c.secretKey, evd.PIRFirstScale*evd.PIRSecondScale)
	sealed, err := ctx.pirClient.DecodePIRPayload(dmsg)
	if err != nil {
		return nil, err
	}
	return decryptPayload(sealed, c.aesKey, index)
}

// DropCollection removes the collection on the server and forgets the
// local context.
func (c *Client) DropCollection(name string) error {
	hash := HashCollectionName(name)
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%d", c.baseURL, hash), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drop failed: status %d", resp.StatusCode)
	}
	delete(c.collections, name)
	delete(c.dbSizes, name)
	return nil
}

// Terminate signals the server to close the transport, best effort.
func (c *Client) Terminate() error {
	_, err := c.post("/terminate", nil)
	return err
}

// Normalize returns the vector scaled to unit L2 norm, as expected by
// cosine collections. A zero vector is returned unchanged.
func Normalize(vec []float64) []float64 {
	res := make([]float64, len(vec))
	copy(res, vec)
	if norm := floats.Norm(res, 2); norm != 0 {
		floats.Scale(1/norm, res)
	}
	return res
}
