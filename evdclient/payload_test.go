package evdclient

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

func TestPayloadEnvelope(t *testing.T) {
	key, err := generateAESKey()
	require.NoError(t, err)

	plaintext := []byte("secret payload")
	sealed, err := encryptPayload(plaintext, key, 42)
	require.NoError(t, err)
	require.Len(t, sealed, rlwe.PIRPayloadSize)

	opened, err := decryptPayload(sealed, key, 42)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	// A different index derives a different IV.
	garbled, err := decryptPayload(sealed, key, 43)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, garbled)

	_, err = encryptPayload(make([]byte, rlwe.PIRPayloadSize+1), key, 0)
	require.Error(t, err)

	_, err = decryptPayload(sealed[:100], key, 42)
	require.Error(t, err)
}

func TestAESKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aes.key")

	key, err := generateAESKey()
	require.NoError(t, err)
	require.NoError(t, saveAESKey(path, key))

	loaded, err := loadAESKey(path)
	require.NoError(t, err)
	require.Equal(t, key, loaded)

	_, err = loadAESKey(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestHashCollectionName(t *testing.T) {
	h1 := HashCollectionName("alpha")
	h2 := HashCollectionName("alpha")
	h3 := HashCollectionName("beta")
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	require.InDelta(t, 0.6, v[0], 1e-12)
	require.InDelta(t, 0.8, v[1], 1e-12)

	zero := Normalize([]float64{0, 0})
	require.Equal(t, []float64{0, 0}, zero)
}
