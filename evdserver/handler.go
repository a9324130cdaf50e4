package evdserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evd"
	"github.com/snuhcs-course/swpp-2025-project-team-07/evdapi"
	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/buffer"
)

// Handler serves the binary protocol over HTTP. Request bodies are the raw
// wire format; responses are either raw binary bodies, a 400 with the
// failing parameter for input errors, or a generic 500 for everything else.
type Handler struct {
	registry *Registry
	log      *slog.Logger

	// Shutdown is invoked by the terminate endpoint, if set.
	Shutdown func()
}

// NewHandler creates a Handler over the given registry.
func NewHandler(registry *Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{registry: registry, log: log}
}

// ServeHTTP routes the protocol endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		// A programming error fails the request but does not poison the
		// collection.
		if rec := recover(); rec != nil {
			h.log.Error("panic while handling request", "path", r.URL.Path, "error", fmt.Sprint(rec))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/collections/setup":
		h.handle(w, r, h.setup)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/insert":
		h.handle(w, r, h.insert)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/query":
		h.handle(w, r, h.query)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/query_ptxt":
		h.handle(w, r, h.queryPtxt)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/retrieve":
		h.handle(w, r, h.retrieve)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/pir_retrieve":
		h.handle(w, r, h.pirRetrieve)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/collections/"):
		h.drop(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/terminate":
		h.terminate(w)
	default:
		http.NotFound(w, r)
	}
}

// handle wraps an endpoint with buffered body IO and the error translation
// policy.
func (h *Handler) handle(w http.ResponseWriter, r *http.Request, f func(body *bufio.Reader, resp *bytes.Buffer) error) {
	body := bufio.NewReader(r.Body)
	resp := new(bytes.Buffer)
	if err := f(body, resp); err != nil {
		if errors.Is(err, ErrInput) {
			h.log.Warn("request rejected", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// A short body is a protocol error: close the connection.
			w.Header().Set("Connection", "close")
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(resp.Bytes()); err != nil {
		h.log.Warn("response write failed", "path", r.URL.Path, "error", err)
	}
}

// lookup resolves a collection hash.
func (h *Handler) lookup(hash uint64) (*Collection, error) {
	c, ok := h.registry.Lookup(hash)
	if !ok {
		return nil, inputErrorf("collection %d not found", hash)
	}
	return c, nil
}

// setup implements the two-phase handshake: phase 1 probes for the
// collection and phase 2 uploads the key blob of a new one. A second setup
// with matching parameters is idempotent and reports the current size.
func (h *Handler) setup(body *bufio.Reader, resp *bytes.Buffer) error {
	req, err := evdapi.ReadSetupRequestPrefix(body)
	if err != nil {
		return err
	}

	if req.Dimension == 0 || req.Dimension > rlwe.N {
		return inputErrorf("dimension must be between 1 and %d, got %d", rlwe.N, req.Dimension)
	}
	metric := evd.Metric(req.Metric)
	if _, err := evd.ScalesFor(metric, true); err != nil {
		return inputErrorf("%s", err)
	}

	if c, ok := h.registry.Lookup(req.CollectionHash); ok {
		dimension, storedMetric, dbSize := c.info()
		if dimension != req.Dimension {
			h.log.Warn("setup dimension mismatch", "collection", req.CollectionHash, "got", req.Dimension, "expected", dimension)
			return evdapi.WriteSetupResponse(resp, &evdapi.SetupResponse{Status: evdapi.SetupStatusMismatch})
		}
		h.log.Info("collection re-connected", "collection", req.CollectionHash, "dbSize", dbSize)
		return evdapi.WriteSetupResponse(resp, &evdapi.SetupResponse{
			Status:    evdapi.SetupStatusExists,
			Dimension: dimension,
			Metric:    uint8(storedMetric),
			DBSize:    dbSize,
		})
	}

	if !req.HasKeys {
		return evdapi.WriteSetupResponse(resp, &evdapi.SetupResponse{Status: evdapi.SetupStatusNew, Dimension: req.Dimension, Metric: req.Metric})
	}

	keys := evdapi.NewKeyBundle(1 << logRankFor(req.Dimension))
	if err := evdapi.ReadKeyBundleInto(body, keys); err != nil {
		return fmt.Errorf("setup key blob: %w", err)
	}

	c, err := newCollection(req.Dimension, metric, keys)
	if err != nil {
		return err
	}
	h.registry.Store(req.CollectionHash, c)
	h.log.Info("collection set up", "collection", req.CollectionHash, "dimension", req.Dimension, "metric", metric.String())

	return evdapi.WriteSetupResponse(resp, &evdapi.SetupResponse{Status: evdapi.SetupStatusExists, Dimension: req.Dimension, Metric: req.Metric})
}

func (h *Handler) insert(body *bufio.Reader, resp *bytes.Buffer) error {
	hash, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	c, err := h.lookup(hash)
	if err != nil {
		return err
	}

	num, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	entries := make([]insertEntry, 0, num)
	for i := uint64(0); i < num; i++ {
		key := rlwe.NewMLWECiphertext(c.rank)
		if err := evdapi.ReadMLWECiphertextInto(body, key); err != nil {
			return fmt.Errorf("insert key %d: %w", i, err)
		}
		payload := make([]byte, rlwe.PIRPayloadSize)
		if _, err := io.ReadFull(body, payload); err != nil {
			return fmt.Errorf("insert payload %d: %w", i, err)
		}
		entries = append(entries, insertEntry{key: key, payload: payload})
	}

	c.insert(entries)
	h.log.Info("inserted", "collection", hash, "count", num)
	return nil
}

func (h *Handler) query(body *bufio.Reader, resp *bytes.Buffer) error {
	hash, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("query request: %w", err)
	}
	c, err := h.lookup(hash)
	if err != nil {
		return err
	}

	query := rlwe.NewMLWECiphertext(c.rank)
	if err := evdapi.ReadMLWECiphertextInto(body, query); err != nil {
		return fmt.Errorf("query ciphertext: %w", err)
	}

	for _, ct := range c.query(query) {
		if err := evdapi.WriteCiphertext(resp, ct); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) queryPtxt(body *bufio.Reader, resp *bytes.Buffer) error {
	hash, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("query request: %w", err)
	}
	c, err := h.lookup(hash)
	if err != nil {
		return err
	}

	query := ring.NewPoly(c.rank, rlwe.Q)
	if err := evdapi.ReadPolyInto(body, query); err != nil {
		return fmt.Errorf("query polynomial: %w", err)
	}

	for _, ct := range c.queryPlain(query) {
		if err := evdapi.WriteCiphertext(resp, ct); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) retrieve(body *bufio.Reader, resp *bytes.Buffer) error {
	hash, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("retrieve request: %w", err)
	}
	c, err := h.lookup(hash)
	if err != nil {
		return err
	}

	num, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("retrieve request: %w", err)
	}
	indices := make([]uint64, num)
	for i := range indices {
		if indices[i], err = buffer.ReadUint64(body); err != nil {
			return fmt.Errorf("retrieve index %d: %w", i, err)
		}
	}

	payloads, err := c.retrieve(indices)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := resp.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) pirRetrieve(body *bufio.Reader, resp *bytes.Buffer) error {
	hash, err := buffer.ReadUint64(body)
	if err != nil {
		return fmt.Errorf("pir request: %w", err)
	}
	c, err := h.lookup(hash)
	if err != nil {
		return err
	}

	q1, q2 := rlwe.NewCiphertext(), rlwe.NewCiphertext()
	if err := evdapi.ReadCiphertextInto(body, q1, false); err != nil {
		return fmt.Errorf("pir row ciphertext: %w", err)
	}
	if err := evdapi.ReadCiphertextInto(body, q2, false); err != nil {
		return fmt.Errorf("pir column ciphertext: %w", err)
	}

	res, err := c.pirRetrieve(q1, q2)
	if err != nil {
		return err
	}
	return evdapi.WriteCiphertext(resp, res)
}

func (h *Handler) drop(w http.ResponseWriter, r *http.Request) {
	hashStr := strings.TrimPrefix(r.URL.Path, "/collections/")
	hash, err := strconv.ParseUint(hashStr, 10, 64)
	if err != nil {
		http.Error(w, inputErrorf("invalid collection hash %q", hashStr).Error(), http.StatusBadRequest)
		return
	}
	if h.registry.Drop(hash) {
		h.log.Info("collection dropped", "collection", hash)
	} else {
		h.log.Warn("drop of unknown collection", "collection", hash)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) terminate(w http.ResponseWriter) {
	h.log.Info("terminate signal received")
	w.WriteHeader(http.StatusOK)
	if h.Shutdown != nil {
		go h.Shutdown()
	}
}
