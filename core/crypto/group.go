package crypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// DefaultChannelKey is the default PSK for MeshCore's built-in "Public" group channel.
// Base64: izOH6cXN6mrJ5e26oRXNcg==
var DefaultChannelKey = []byte{0x8b, 0x33, 0x87, 0xe9, 0xc5, 0xcd, 0xea, 0x6a, 0xc9, 0xe5, 0xed, 0xba, 0xa1, 0x15, 0xcd, 0x72}

// ComputeChannelHash computes the MeshCore channel hash from a shared key.
// The channel hash is the first byte of SHA256(key).
func ComputeChannelHash(sharedKey []byte) uint8 {
	hash := sha256.Sum256(sharedKey)
	return hash[0]
}

// DecryptGroupCiphertext decrypts the ciphertext of a GRP_TXT payload. The
// 2-byte MAC that precedes it on the wire is not checked.
func DecryptGroupCiphertext(ciphertext, sharedKey []byte) ([]byte, error) {
	return DecryptECB(sharedKey, ciphertext)
}

// EncryptGroupMessage encrypts plaintext for a GRP_TXT message and returns
// the MAC and the ciphertext separately, ready for codec.BuildGroupPayload.
func EncryptGroupMessage(plaintext, sharedKey []byte) (mac uint16, ciphertext []byte, err error) {
	ciphertext, err = EncryptECB(sharedKey, plaintext)
	if err != nil {
		return 0, nil, err
	}
	m := ComputeMAC(sharedKey, ciphertext)
	return binary.LittleEndian.Uint16(m[:]), ciphertext, nil
}

// BuildGrpTxtPlaintext builds the plaintext for a MeshCore GRP_TXT message.
// Format: timestamp(4) + type_attempt(1) + message
func BuildGrpTxtPlaintext(timestamp uint32, message string) []byte {
	plaintext := make([]byte, 5, 5+len(message))
	binary.LittleEndian.PutUint32(plaintext[0:4], timestamp)
	plaintext[4] = 0 // TXT_TYPE_PLAIN (0) with attempt 0
	return append(plaintext, message...)
}
