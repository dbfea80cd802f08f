package crypto

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// CipherBlockSize is the AES block size.
	CipherBlockSize = 16
	// CipherMACSize is the truncated HMAC-SHA256 size (2 bytes).
	CipherMACSize = 2
	// SecretSize is the HMAC key size (32 bytes).
	SecretSize = 32
)

var (
	ErrInvalidKeySize       = errors.New("invalid key size: must be 16, 24 or 32 bytes")
	ErrCiphertextNotAligned = errors.New("ciphertext length is not a multiple of the block size")
)

// ValidateKey checks that key is usable as an AES key.
func ValidateKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
}

// DecryptECB decrypts ciphertext with AES in ECB mode, each 16-byte block on
// its own. The AES variant follows the key length. The wire format requires
// ECB; nothing else in this module should use it.
func DecryptECB(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%CipherBlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextNotAligned, len(ciphertext))
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += CipherBlockSize {
		block.Decrypt(plaintext[i:i+CipherBlockSize], ciphertext[i:i+CipherBlockSize])
	}
	return plaintext, nil
}

// EncryptECB zero-pads plaintext to the block size and encrypts it with AES
// in ECB mode.
func EncryptECB(key, plaintext []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	paddedLen := ((len(plaintext) + CipherBlockSize - 1) / CipherBlockSize) * CipherBlockSize
	if paddedLen == 0 {
		paddedLen = CipherBlockSize
	}
	padded := make([]byte, paddedLen)
	copy(padded, plaintext)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	ciphertext := make([]byte, paddedLen)
	for i := 0; i < paddedLen; i += CipherBlockSize {
		block.Encrypt(ciphertext[i:i+CipherBlockSize], padded[i:i+CipherBlockSize])
	}
	return ciphertext, nil
}

// ComputeMAC returns the truncated HMAC-SHA256 of ciphertext, keyed with the
// secret zero-padded to 32 bytes. This matches MeshCore's Utils::encryptThenMAC.
func ComputeMAC(secret, ciphertext []byte) [CipherMACSize]byte {
	hmacKey := make([]byte, SecretSize)
	copy(hmacKey, secret)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)
	sum := mac.Sum(nil)

	var out [CipherMACSize]byte
	copy(out[:], sum[:CipherMACSize])
	return out
}
