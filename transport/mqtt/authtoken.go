package mqtt

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kabili207/meshcore-wardrive/core/crypto"
)

const (
	// DefaultTokenExpiry is the lifetime of generated auth tokens.
	DefaultTokenExpiry = time.Hour

	// inlineKeyMinLen is the shortest private key value taken as inline hex;
	// anything shorter is a path to a key file.
	inlineKeyMinLen = 128
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

// TokenConfig describes the node identity used to sign a broker auth token.
type TokenConfig struct {
	// PublicKey is the node's public key in hex.
	PublicKey string
	// PrivateKey is the private key bytes (64-byte expanded or 32-byte seed).
	PrivateKey []byte
	// Expiry is the token lifetime. Defaults to DefaultTokenExpiry.
	Expiry time.Duration
	// Audience is the optional "aud" claim, usually the broker host.
	Audience string
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type tokenClaims struct {
	PublicKey string `json:"publicKey"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Audience  string `json:"aud,omitempty"`
}

// CreateAuthToken builds a JWT-style token signed with the node's Ed25519
// key: base64url(header).base64url(claims).hex(signature).
func CreateAuthToken(cfg TokenConfig, now time.Time) (string, error) {
	pub, err := hex.DecodeString(cfg.PublicKey)
	if err != nil {
		return "", fmt.Errorf("decoding public key: %w", err)
	}
	kp, err := crypto.KeyPairFromPrivateKey(cfg.PrivateKey)
	if err != nil {
		return "", err
	}
	if err := kp.CheckPublicKey(pub); err != nil {
		return "", err
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}

	header, err := json.Marshal(tokenHeader{Alg: "Ed25519", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	claims, err := json.Marshal(tokenClaims{
		PublicKey: strings.ToUpper(cfg.PublicKey),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(expiry).Unix(),
		Audience:  cfg.Audience,
	})
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(claims)
	sig := kp.Sign([]byte(signingInput))
	return signingInput + "." + hex.EncodeToString(sig), nil
}

// LoadPrivateKey resolves a configured private key. Values shorter than 128
// characters are paths to a file holding the key as hex or raw bytes.
func LoadPrivateKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if len(value) >= inlineKeyMinLen {
		return decodeKeyHex(value)
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}
	if len(data) == 64 {
		if key, err := decodeKeyHex(string(data)); err == nil {
			return key, nil
		}
		return data, nil
	}
	return decodeKeyHex(strings.TrimSpace(string(data)))
}

func decodeKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	if len(key) != 64 && len(key) != 32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPrivateKey, len(key))
	}
	return key, nil
}
