package phi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingKeyMaterial is a fatal configuration error: code paths that touch
// regulated identifiers cannot run without key material.
var ErrMissingKeyMaterial = errors.New("PHI key material is not configured")

// KeyFromMaterial hashes arbitrary key material to a fixed 256-bit key.
func KeyFromMaterial(material string) ([]byte, error) {
	if strings.TrimSpace(material) == "" {
		return nil, ErrMissingKeyMaterial
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:], nil
}

// GenerateKeyMaterial returns 32 random bytes hex encoded, suitable for
// PHI_ENCRYPTION_KEY.
func GenerateKeyMaterial() (string, error) {
	buf := make([]byte, KeySize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// VersionedMaterial is key material tagged with the key ring version it was
// used under.
type VersionedMaterial struct {
	Version  int
	Material string
}

// ParsePreviousKeys parses "version:material,version:material" as used by the
// PHI_PREVIOUS_KEYS setting. Blank input yields no keys.
func ParsePreviousKeys(s string) ([]VersionedMaterial, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []VersionedMaterial
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx <= 0 || idx == len(part)-1 {
			return nil, fmt.Errorf("previous key %q: expected version:material", part)
		}
		version, err := strconv.Atoi(part[:idx])
		if err != nil {
			return nil, fmt.Errorf("previous key %q: invalid version: %w", part, err)
		}
		out = append(out, VersionedMaterial{Version: version, Material: part[idx+1:]})
	}
	return out, nil
}

// NewCipherFromConfig builds the process-wide cipher: a key ring with the
// current material under currentVersion plus any previous versions.
func NewCipherFromConfig(material string, currentVersion int, previous []VersionedMaterial) (*Keyring, error) {
	key, err := KeyFromMaterial(material)
	if err != nil {
		return nil, err
	}
	ring, err := NewKeyring(key, currentVersion)
	if err != nil {
		return nil, err
	}
	for _, p := range previous {
		prevKey, err := KeyFromMaterial(p.Material)
		if err != nil {
			return nil, fmt.Errorf("previous key v%d: %w", p.Version, err)
		}
		if err := ring.AddPreviousKey(prevKey, p.Version); err != nil {
			return nil, err
		}
	}
	return ring, nil
}
