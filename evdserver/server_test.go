package evdserver

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evd"
	"github.com/snuhcs-course/swpp-2025-project-team-07/evdapi"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/buffer"
)

// lightKeyBundle returns a bundle whose key matrices are empty. It is
// sufficient for state-machine tests that never run the crypto pipelines.
func lightKeyBundle() *evdapi.KeyBundle {
	return &evdapi.KeyBundle{
		RelinKey:             rlwe.NewSwitchingKey(),
		AutedModPackKeys:     &rlwe.AutedModPackKeys{},
		AutedModPackMLWEKeys: &rlwe.AutedModPackMLWEKeys{},
		PIRInvAutKeys:        &rlwe.InvAutKeys{},
	}
}

func newTestHandler(t *testing.T) (*Handler, *Registry) {
	registry := NewRegistry()
	return NewHandler(registry, nil), registry
}

func storeCollection(t *testing.T, registry *Registry, hash uint64, dimension uint64, metric evd.Metric) *Collection {
	c, err := newCollection(dimension, metric, lightKeyBundle())
	require.NoError(t, err)
	registry.Store(hash, c)
	return c
}

func post(t *testing.T, h *Handler, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func setupProbe(t *testing.T, h *Handler, hash, dimension uint64, metric uint8) (*httptest.ResponseRecorder, *evdapi.SetupResponse) {
	body := new(bytes.Buffer)
	require.NoError(t, evdapi.WriteSetupRequest(body, &evdapi.SetupRequest{
		CollectionHash: hash,
		Dimension:      dimension,
		Metric:         metric,
	}))
	rec := post(t, h, "/collections/setup", body.Bytes())
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	resp, err := evdapi.ReadSetupResponse(rec.Body)
	require.NoError(t, err)
	return rec, resp
}

func TestSetupHandshake(t *testing.T) {
	h, registry := newTestHandler(t)
	storeCollection(t, registry, 1, 8, evd.MetricIP)

	t.Run("ExistingCollection", func(t *testing.T) {
		rec, resp := setupProbe(t, h, 1, 8, uint8(evd.MetricIP))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, evdapi.SetupStatusExists, resp.Status)
		require.Equal(t, uint64(8), resp.Dimension)
		require.Equal(t, uint64(0), resp.DBSize)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		rec, resp := setupProbe(t, h, 1, 16, uint8(evd.MetricIP))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, evdapi.SetupStatusMismatch, resp.Status)

		// The server record is unchanged.
		_, resp = setupProbe(t, h, 1, 8, uint8(evd.MetricIP))
		require.Equal(t, evdapi.SetupStatusExists, resp.Status)
	})

	t.Run("NewCollection", func(t *testing.T) {
		rec, resp := setupProbe(t, h, 2, 8, uint8(evd.MetricIP))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, evdapi.SetupStatusNew, resp.Status)
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		rec, _ := setupProbe(t, h, 3, 0, uint8(evd.MetricIP))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		rec, _ = setupProbe(t, h, 3, rlwe.N+1, uint8(evd.MetricIP))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReservedMetric", func(t *testing.T) {
		rec, _ := setupProbe(t, h, 3, 8, uint8(evd.MetricL2))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDropCollection(t *testing.T) {
	h, registry := newTestHandler(t)
	storeCollection(t, registry, 7, 8, evd.MetricCosine)

	req := httptest.NewRequest(http.MethodDelete, "/collections/7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := registry.Lookup(7)
	require.False(t, ok)

	// Setting up again starts from an empty collection.
	_, resp := setupProbe(t, h, 7, 8, uint8(evd.MetricCosine))
	require.Equal(t, evdapi.SetupStatusNew, resp.Status)
}

func TestRetrieve(t *testing.T) {
	h, registry := newTestHandler(t)
	c := storeCollection(t, registry, 9, 8, evd.MetricIP)

	// Inject stored payloads directly; retrieval does not touch the
	// crypto pipelines.
	for i := 0; i < 3; i++ {
		payload := make([]byte, rlwe.PIRPayloadSize)
		payload[0] = byte('a' + i)
		c.payloads = append(c.payloads, payload)
	}
	c.dbSize = 3

	body := new(bytes.Buffer)
	require.NoError(t, buffer.WriteUint64(body, 9))
	require.NoError(t, buffer.WriteUint64(body, 2))
	require.NoError(t, buffer.WriteUint64(body, 2))
	require.NoError(t, buffer.WriteUint64(body, 0))

	rec := post(t, h, "/collections/retrieve", body.Bytes())
	require.Equal(t, http.StatusOK, rec.Code)
	data := rec.Body.Bytes()
	require.Len(t, data, 2*rlwe.PIRPayloadSize)
	require.Equal(t, byte('c'), data[0])
	require.Equal(t, byte('a'), data[rlwe.PIRPayloadSize])

	t.Run("OutOfRange", func(t *testing.T) {
		body := new(bytes.Buffer)
		require.NoError(t, buffer.WriteUint64(body, 9))
		require.NoError(t, buffer.WriteUint64(body, 1))
		require.NoError(t, buffer.WriteUint64(body, 3))
		rec := post(t, h, "/collections/retrieve", body.Bytes())
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownCollection", func(t *testing.T) {
		body := new(bytes.Buffer)
		require.NoError(t, buffer.WriteUint64(body, 404))
		require.NoError(t, buffer.WriteUint64(body, 0))
		rec := post(t, h, "/collections/retrieve", body.Bytes())
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCollectionIsolation(t *testing.T) {
	h, registry := newTestHandler(t)
	a := storeCollection(t, registry, 1, 8, evd.MetricIP)
	b := storeCollection(t, registry, 2, 16, evd.MetricCosine)

	snapshot := func(c *Collection) map[string]any {
		dim, metric, dbSize := c.info()
		return map[string]any{
			"dimension": dim,
			"metric":    metric,
			"dbSize":    dbSize,
			"payloads":  len(c.payloads),
		}
	}
	before := snapshot(b)

	a.payloads = append(a.payloads, make([]byte, rlwe.PIRPayloadSize))
	a.dbSize = 1

	// Mutating A leaves B untouched.
	require.Empty(t, cmp.Diff(before, snapshot(b)))

	_, resp := setupProbe(t, h, 2, 16, uint8(evd.MetricCosine))
	require.Equal(t, uint64(0), resp.DBSize)
	_, resp = setupProbe(t, h, 1, 8, uint8(evd.MetricIP))
	require.Equal(t, uint64(1), resp.DBSize)
}

func TestTerminate(t *testing.T) {
	h, _ := newTestHandler(t)
	done := make(chan struct{})
	h.Shutdown = func() { close(done) }

	rec := post(t, h, "/terminate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	<-done
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := post(t, h, fmt.Sprintf("/collections/%d/bogus", 1), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
