package mqtt

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kabili207/meshcore-wardrive/core/crypto"
)

func testIdentity(t *testing.T) (pubHex string, expanded []byte) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	h := sha512.Sum512(seed)
	return hex.EncodeToString(pub), h[:]
}

func TestCreateAuthToken(t *testing.T) {
	pubHex, priv := testIdentity(t)
	now := time.Unix(1700000000, 0)

	token, err := CreateAuthToken(TokenConfig{
		PublicKey:  pubHex,
		PrivateKey: priv,
		Audience:   "mqtt.example.net",
	}, now)
	if err != nil {
		t.Fatalf("CreateAuthToken() error = %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3", len(parts))
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decoding claims: %v", err)
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	want := tokenClaims{
		PublicKey: strings.ToUpper(pubHex),
		IssuedAt:  1700000000,
		ExpiresAt: 1700000000 + 3600,
		Audience:  "mqtt.example.net",
	}
	if claims != want {
		t.Errorf("claims = %+v, want %+v", claims, want)
	}

	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}
	pub, _ := hex.DecodeString(pubHex)
	if !ed25519.Verify(pub, []byte(parts[0]+"."+parts[1]), sig) {
		t.Error("token signature does not verify")
	}
}

func TestCreateAuthToken_NoAudience(t *testing.T) {
	pubHex, priv := testIdentity(t)
	token, err := CreateAuthToken(TokenConfig{PublicKey: pubHex, PrivateKey: priv, Expiry: time.Minute}, time.Unix(100, 0))
	if err != nil {
		t.Fatalf("CreateAuthToken() error = %v", err)
	}
	claimsJSON, _ := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	if strings.Contains(string(claimsJSON), "aud") {
		t.Errorf("claims %s should omit aud", claimsJSON)
	}
	if !strings.Contains(string(claimsJSON), `"exp":160`) {
		t.Errorf("claims %s should expire at 160", claimsJSON)
	}
}

func TestCreateAuthToken_KeyMismatch(t *testing.T) {
	_, priv := testIdentity(t)
	other := strings.Repeat("ab", 32)
	_, err := CreateAuthToken(TokenConfig{PublicKey: other, PrivateKey: priv}, time.Now())
	if !errors.Is(err, crypto.ErrPublicKeyMismatch) {
		t.Errorf("CreateAuthToken() error = %v, want ErrPublicKeyMismatch", err)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	_, priv := testIdentity(t)
	privHex := hex.EncodeToString(priv)

	t.Run("inline hex", func(t *testing.T) {
		got, err := LoadPrivateKey(privHex)
		if err != nil {
			t.Fatalf("LoadPrivateKey() error = %v", err)
		}
		if hex.EncodeToString(got) != privHex {
			t.Error("inline key mismatch")
		}
	})

	t.Run("hex file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.txt")
		if err := os.WriteFile(path, []byte(privHex+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := LoadPrivateKey(path)
		if err != nil {
			t.Fatalf("LoadPrivateKey() error = %v", err)
		}
		if hex.EncodeToString(got) != privHex {
			t.Error("file key mismatch")
		}
	})

	t.Run("binary file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.bin")
		if err := os.WriteFile(path, priv, 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := LoadPrivateKey(path)
		if err != nil {
			t.Fatalf("LoadPrivateKey() error = %v", err)
		}
		if hex.EncodeToString(got) != privHex {
			t.Error("binary key mismatch")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPrivateKey(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("bad inline hex", func(t *testing.T) {
		if _, err := LoadPrivateKey(strings.Repeat("zz", 64)); !errors.Is(err, ErrInvalidPrivateKey) {
			t.Errorf("LoadPrivateKey() error = %v, want ErrInvalidPrivateKey", err)
		}
	})
}
