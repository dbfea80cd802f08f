package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

var (
	ErrInvalidPubKeySize  = errors.New("invalid public key size: expected 32 bytes")
	ErrInvalidPrivKeySize = errors.New("invalid private key size: expected 32 or 64 bytes")
	ErrPublicKeyMismatch  = errors.New("public key does not match private key")
)

// KeyPair is a MeshCore node identity. MeshCore stores private keys in the
// 64-byte expanded form (clamped scalar followed by the nonce prefix) rather
// than as a seed, so signing is done directly on the scalar.
type KeyPair struct {
	PublicKey ed25519.PublicKey // 32 bytes
	scalar    *edwards25519.Scalar
	prefix    [32]byte
}

// KeyPairFromPrivateKey builds a KeyPair from a MeshCore private key.
// A 64-byte key is taken as scalar||prefix; a 32-byte key is taken as an
// RFC 8032 seed and expanded.
func KeyPairFromPrivateKey(privKey []byte) (*KeyPair, error) {
	var expanded []byte
	switch len(privKey) {
	case 64:
		expanded = privKey
	case ed25519.SeedSize:
		h := sha512.Sum512(privKey)
		expanded = h[:]
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPrivKeySize, len(privKey))
	}

	s, err := edwards25519.NewScalar().SetBytesWithClamping(expanded[:32])
	if err != nil {
		return nil, fmt.Errorf("invalid private scalar: %w", err)
	}

	kp := &KeyPair{
		PublicKey: new(edwards25519.Point).ScalarBaseMult(s).Bytes(),
		scalar:    s,
	}
	copy(kp.prefix[:], expanded[32:64])
	return kp, nil
}

// CheckPublicKey verifies that pubKey belongs to this key pair.
func (kp *KeyPair) CheckPublicKey(pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return ErrInvalidPubKeySize
	}
	if !kp.PublicKey.Equal(ed25519.PublicKey(pubKey)) {
		return ErrPublicKeyMismatch
	}
	return nil
}

// Hash returns the first byte of the public key, used for routing in MeshCore.
func (kp *KeyPair) Hash() uint8 {
	return kp.PublicKey[0]
}

// Sign produces an Ed25519 signature over msg. Signatures verify with
// crypto/ed25519 and are identical to ed25519.Sign for seed-derived keys.
func (kp *KeyPair) Sign(msg []byte) []byte {
	h := sha512.New()
	h.Write(kp.prefix[:])
	h.Write(msg)
	r, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))

	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(kp.PublicKey)
	h.Write(msg)
	k, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))

	S := edwards25519.NewScalar().MultiplyAdd(k, kp.scalar, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R...)
	return append(sig, S.Bytes()...)
}
