// Package evdserver implements the server side of the encrypted vector
// database: per-collection state, the cross-collection registry and the
// HTTP transport shell over the binary wire protocol.
package evdserver

import (
	"math/bits"
	"sync"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evd"
	"github.com/snuhcs-course/swpp-2025-project-team-07/evdapi"
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

// Collection is the server-side state of one collection. All mutating
// operations are serialized under its mutex; the evaluation keys and the
// cached blocks are immutable once built.
type Collection struct {
	mu sync.Mutex

	dimension uint64
	metric    evd.Metric
	logRank   int
	rank      int
	stack     int

	server *evd.Server
	pir    *evd.PIRServer
	keys   *evdapi.KeyBundle

	pirEncoder *evd.Client

	fullBlockCaches   []*evd.CachedKeys
	partialBlockKeys  []*rlwe.MLWECiphertext
	partialBlockCache *evd.CachedKeys

	payloads    [][]byte
	pirPayloads []*ring.Poly

	dbSize uint64
}

// logRankFor returns ceil(log2(dimension)).
func logRankFor(dimension uint64) int {
	return bits.Len64(dimension - 1)
}

// newCollection builds the full collection state from the uploaded keys.
// All evaluator tables, including the PIR evaluator, are constructed here
// so that request handling has deterministic cost.
func newCollection(dimension uint64, metric evd.Metric, keys *evdapi.KeyBundle) (c *Collection, err error) {
	c = &Collection{
		dimension: dimension,
		metric:    metric,
		logRank:   logRankFor(dimension),
		keys:      keys,
	}
	c.rank = 1 << c.logRank
	c.stack = rlwe.N / c.rank

	if c.server, err = evd.NewServer(c.logRank, keys.RelinKey, keys.AutedModPackKeys, keys.AutedModPackMLWEKeys); err != nil {
		return nil, err
	}
	if c.pir, err = evd.NewPIRServer(keys.RelinKey, keys.PIRInvAutKeys); err != nil {
		return nil, err
	}
	if c.pirEncoder, err = evd.NewClient(rlwe.PIRLogRank); err != nil {
		return nil, err
	}
	return c, nil
}

// insertEntry is one vector-payload pair of an insert request.
type insertEntry struct {
	key     *rlwe.MLWECiphertext
	payload []byte
}

// insert appends the entries to the collection: payloads are stored and
// encoded onto the PIR grid, keys accumulate into the partial block, and
// every time the partial block reaches N keys it is folded into a permanent
// block cache. A remaining partial block is cached over a zero-padded copy.
func (c *Collection) insert(entries []insertEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		poly := ring.NewPoly(rlwe.N, rlwe.Q)
		// Payload size was validated by the handler; encoding cannot fail.
		if err := c.pirEncoder.EncodePIRPayload(entry.payload, poly); err != nil {
			panic(err)
		}
		c.pirPayloads = append(c.pirPayloads, poly)
		c.payloads = append(c.payloads, entry.payload)

		c.partialBlockKeys = append(c.partialBlockKeys, entry.key)

		if len(c.partialBlockKeys) == rlwe.N {
			cache := evd.NewCachedKeys(c.rank)
			c.server.CacheKeys(c.partialBlockKeys, cache)
			c.fullBlockCaches = append(c.fullBlockCaches, cache)
			c.partialBlockKeys = c.partialBlockKeys[:0]
			c.partialBlockCache = nil
		}
	}

	if len(c.partialBlockKeys) > 0 {
		padded := make([]*rlwe.MLWECiphertext, rlwe.N)
		copy(padded, c.partialBlockKeys)
		for i := len(c.partialBlockKeys); i < rlwe.N; i++ {
			padded[i] = rlwe.NewMLWECiphertext(c.rank)
		}
		c.partialBlockCache = evd.NewCachedKeys(c.rank)
		c.server.CacheKeys(padded, c.partialBlockCache)
	}

	c.dbSize += uint64(len(entries))
}

// query caches the encrypted query and inner-products it against every
// block cache, returning one score ciphertext per block.
func (c *Collection) query(query *rlwe.MLWECiphertext) []*rlwe.Ciphertext {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := evd.NewCachedQuery(c.rank)
	c.server.CacheQuery(query, cache)

	res := make([]*rlwe.Ciphertext, 0, len(c.fullBlockCaches)+1)
	for _, block := range c.fullBlockCaches {
		ct := rlwe.NewCiphertext()
		c.server.InnerProduct(cache, block, ct)
		res = append(res, ct)
	}
	if c.partialBlockCache != nil {
		ct := rlwe.NewCiphertext()
		c.server.InnerProduct(cache, c.partialBlockCache, ct)
		res = append(res, ct)
	}
	return res
}

// queryPlain is the plaintext-query variant of query.
func (c *Collection) queryPlain(query *ring.Poly) []*rlwe.Ciphertext {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := evd.NewCachedPlaintextQuery(c.rank)
	c.server.CachePlaintextQuery(query, cache)

	res := make([]*rlwe.Ciphertext, 0, len(c.fullBlockCaches)+1)
	for _, block := range c.fullBlockCaches {
		ct := rlwe.NewCiphertext()
		c.server.InnerProductPlain(cache, block, ct)
		res = append(res, ct)
	}
	if c.partialBlockCache != nil {
		ct := rlwe.NewCiphertext()
		c.server.InnerProductPlain(cache, c.partialBlockCache, ct)
		res = append(res, ct)
	}
	return res
}

// retrieve returns the stored payload blocks at the given indices.
func (c *Collection) retrieve(indices []uint64) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([][]byte, len(indices))
	for i, idx := range indices {
		if idx >= c.dbSize {
			return nil, inputErrorf("index %d out of range, db size is %d", idx, c.dbSize)
		}
		res[i] = c.payloads[idx]
	}
	return res, nil
}

// pirRetrieve evaluates the oblivious selection of one payload from the
// encoded grid.
func (c *Collection) pirRetrieve(q1, q2 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dbSize == 0 {
		return nil, inputErrorf("database is empty")
	}
	if c.dbSize > rlwe.PIRRank*rlwe.PIRRank {
		return nil, inputErrorf("database size %d exceeds pir capacity %d", c.dbSize, rlwe.PIRRank*rlwe.PIRRank)
	}

	res := rlwe.NewCiphertext()
	c.pir.PIR(q1, q2, c.pirPayloads, res)
	return res, nil
}

// info returns the immutable collection parameters and the current size.
func (c *Collection) info() (dimension uint64, metric evd.Metric, dbSize uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension, c.metric, c.dbSize
}

// Registry maps collection hashes to their state. Its lock is held only
// around lookup, insert and erase.
type Registry struct {
	mu          sync.Mutex
	collections map[uint64]*Collection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[uint64]*Collection)}
}

// Lookup returns the collection with the given hash, if present.
func (r *Registry) Lookup(hash uint64) (*Collection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[hash]
	return c, ok
}

// Store registers a collection under the given hash if none exists yet and
// returns the registered collection.
func (r *Registry) Store(hash uint64, c *Collection) *Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.collections[hash]; ok {
		return existing
	}
	r.collections[hash] = c
	return c
}

// Drop removes the collection with the given hash and reports whether it
// was present.
func (r *Registry) Drop(hash uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[hash]; !ok {
		return false
	}
	delete(r.collections, hash)
	return true
}
