package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Extension keys look like ck_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b:
// a marker, the environment, a public lookup prefix and the secret, all hex.
const (
	keyMarker = "ck"

	KeyPrefixLen = 6
	KeySecretLen = 32
)

// Key environments. Live keys are issued in production only.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat is returned for credentials that are not extension keys.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

// GeneratedKey is a freshly minted key. Plaintext is shown to the user once;
// only Hash and Prefix are stored.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// ParsedKey holds the segments of a well-formed key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// GenerateAPIKey mints a key for env. Unknown environments become live.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	return generateAPIKey(defaultHasher, env)
}

func generateAPIKey(h *Hasher, env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	raw := make([]byte, (KeyPrefixLen+KeySecretLen)/2)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("read random key bytes: %w", err)
	}
	encoded := hex.EncodeToString(raw)
	prefix, secret := encoded[:KeyPrefixLen], encoded[KeyPrefixLen:]

	plaintext := strings.Join([]string{keyMarker, env, prefix, secret}, "_")
	hash, err := h.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseAPIKey splits key into its segments, rejecting anything that does not
// match the extension key layout exactly.
func ParseAPIKey(key string) (*ParsedKey, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 || parts[0] != keyMarker {
		return nil, ErrInvalidKeyFormat
	}
	if parts[1] != EnvLive && parts[1] != EnvTest {
		return nil, ErrInvalidKeyFormat
	}
	if !isLowerHex(parts[2], KeyPrefixLen) || !isLowerHex(parts[3], KeySecretLen) {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: parts[1], Prefix: parts[2], Secret: parts[3]}, nil
}

// LooksLikeAPIKey tells extension keys apart from session JWTs in a bearer
// header.
func LooksLikeAPIKey(credential string) bool {
	_, err := ParseAPIKey(credential)
	return err == nil
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// GenerateToken returns n random bytes as unpadded URL-safe base64, for
// invitation links.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
