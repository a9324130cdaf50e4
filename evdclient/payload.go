package evdclient

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

// AESKeySize is the size of the payload envelope key.
const AESKeySize = 32

// HashCollectionName maps a collection name to its wire identifier.
func HashCollectionName(name string) uint64 {
	sum := blake3.Sum256([]byte(name))
	return binary.LittleEndian.Uint64(sum[:8])
}

// ivFromIndex derives the CTR IV from the global payload index: the 8-byte
// little-endian index padded to the block size. An index must not be reused
// under the same key.
func ivFromIndex(index uint64) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(iv[:8], index)
	return iv
}

// encryptPayload pads the plaintext to the fixed payload size and encrypts
// it with AES-256-CTR under the index-derived IV.
func encryptPayload(plaintext []byte, key []byte, index uint64) ([]byte, error) {
	if len(plaintext) > rlwe.PIRPayloadSize {
		return nil, fmt.Errorf("payload size cannot exceed %d bytes", rlwe.PIRPayloadSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}

	padded := make([]byte, rlwe.PIRPayloadSize)
	copy(padded, plaintext)

	iv := ivFromIndex(index)
	ciphertext := make([]byte, rlwe.PIRPayloadSize)
	cipher.NewCTR(block, iv[:]).XORKeyStream(ciphertext, padded)
	return ciphertext, nil
}

// decryptPayload reverses encryptPayload and trims the null padding.
func decryptPayload(ciphertext []byte, key []byte, index uint64) ([]byte, error) {
	if len(ciphertext) != rlwe.PIRPayloadSize {
		return nil, fmt.Errorf("ciphertext size must be %d bytes", rlwe.PIRPayloadSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}

	iv := ivFromIndex(index)
	plaintext := make([]byte, rlwe.PIRPayloadSize)
	cipher.NewCTR(block, iv[:]).XORKeyStream(plaintext, ciphertext)

	if i := bytes.IndexByte(plaintext, 0); i >= 0 {
		plaintext = plaintext[:i]
	}
	return plaintext, nil
}

// generateAESKey samples a fresh envelope key from the OS entropy source.
func generateAESKey() ([]byte, error) {
	key := make([]byte, AESKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("rng unavailable: %w", err)
	}
	return key, nil
}

// saveAESKey writes the envelope key to path.
func saveAESKey(path string, key []byte) error {
	return os.WriteFile(path, key, 0o600)
}

// loadAESKey reads an envelope key written by saveAESKey.
func loadAESKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("aes key file %s has %d bytes, want %d", path, len(key), AESKeySize)
	}
	return key, nil
}
