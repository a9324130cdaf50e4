package evdclient

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evdserver"
)

func newTestServer(t *testing.T) *httptest.Server {
	handler := evdserver.NewHandler(evdserver.NewRegistry(), slog.Default())
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// TestEndToEnd runs the full protocol through the HTTP shell: setup with
// key upload, insert, encrypted query with top-K, direct retrieve, PIR
// retrieve, and drop/recreate.
func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full protocol round-trip in short mode")
	}

	ts := newTestServer(t)

	client, err := New(ts.URL)
	require.NoError(t, err)

	const name = "e2e"

	dbSize, err := client.SetupCollection(name, 4, "IP", true)
	require.NoError(t, err)
	require.Equal(t, uint64(0), dbSize)

	vectors := [][]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	payloads := [][]byte{[]byte("a"), []byte("b")}
	require.NoError(t, client.Insert(name, vectors, payloads))

	scores, err := client.Query(name, []float64{1, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	eps := 1.0 / float64(uint64(1)<<10)
	require.InDelta(t, 1.0, scores[0], eps)
	require.InDelta(t, 0.0, scores[1], eps)

	top, err := client.QueryTopK(name, []float64{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, top)

	withScores, err := client.QueryTopKWithScores(name, []float64{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), withScores[0].Index)
	require.InDelta(t, 1.0, withScores[0].Score, eps)

	payload, err := client.Retrieve(name, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), payload)

	payload, err = client.RetrievePIR(name, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), payload)

	// A second setup with matching parameters is idempotent and reports
	// the current size.
	dbSize, err = client.SetupCollection(name, 4, "IP", true)
	require.NoError(t, err)
	require.Equal(t, uint64(2), dbSize)

	// Dimension mismatch leaves the server record intact.
	_, err = client.SetupCollection(name, 8, "IP", true)
	require.Error(t, err)

	// Drop, then recreate empty.
	require.NoError(t, client.DropCollection(name))
	dbSize, err = client.SetupCollection(name, 4, "IP", true)
	require.NoError(t, err)
	require.Equal(t, uint64(0), dbSize)

	_, err = client.Retrieve(name, 0)
	require.Error(t, err)
}

func TestQueryBeforeSetup(t *testing.T) {
	ts := newTestServer(t)
	client, err := New(ts.URL)
	require.NoError(t, err)

	_, err = client.Query("missing", []float64{1, 0})
	require.Error(t, err)

	_, err = client.Retrieve("missing", 0)
	require.Error(t, err)
}

func TestSetupValidation(t *testing.T) {
	ts := newTestServer(t)
	client, err := New(ts.URL)
	require.NoError(t, err)

	_, err = client.SetupCollection("bad", 0, "IP", true)
	require.Error(t, err)

	_, err = client.SetupCollection("bad", 8, "L2", true)
	require.Error(t, err)
}
