package phi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Versioned envelopes are stored as "v{version}:{base64 envelope}".
const (
	keyVersionPrefix    = "v"
	keyVersionSeparator = ":"
)

// Keyring seals with the current key and opens envelopes written under any
// registered key version. It is populated at startup and read-only afterwards.
type Keyring struct {
	current    *EnvelopeCipher
	currentVer int
	previous   map[int]*EnvelopeCipher
}

// NewKeyring creates a key ring around the current key.
func NewKeyring(currentKey []byte, currentVersion int) (*Keyring, error) {
	if currentVersion <= 0 {
		return nil, fmt.Errorf("keyring: version must be positive, got %d", currentVersion)
	}
	c, err := NewEnvelopeCipher(currentKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: current key: %w", err)
	}
	return &Keyring{
		current:    c,
		currentVer: currentVersion,
		previous:   make(map[int]*EnvelopeCipher),
	}, nil
}

// AddPreviousKey registers an older key for opening existing envelopes.
func (k *Keyring) AddPreviousKey(key []byte, version int) error {
	if version == k.currentVer {
		return fmt.Errorf("keyring: version %d is the current version", version)
	}
	c, err := NewEnvelopeCipher(key)
	if err != nil {
		return fmt.Errorf("keyring: previous key v%d: %w", version, err)
	}
	k.previous[version] = c
	return nil
}

// Seal encrypts with the current key and prefixes the version.
func (k *Keyring) Seal(plaintext []byte) (string, error) {
	blob, err := k.current.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return keyVersionPrefix + strconv.Itoa(k.currentVer) + keyVersionSeparator + blob, nil
}

// Open selects the key by version prefix. Unprefixed envelopes are opened
// with the current key.
func (k *Keyring) Open(envelope string) ([]byte, error) {
	version, blob, ok := parseVersionedEnvelope(envelope)
	if !ok {
		return k.current.Open(envelope)
	}
	if version == k.currentVer {
		return k.current.Open(blob)
	}
	c, found := k.previous[version]
	if !found {
		return nil, storeerr.Integrity(fmt.Sprintf("no key registered for version %d", version), nil)
	}
	return c.Open(blob)
}

// NeedsReEncryption reports whether envelope was sealed under an older or
// unknown key version.
func (k *Keyring) NeedsReEncryption(envelope string) bool {
	version, _, ok := parseVersionedEnvelope(envelope)
	if !ok {
		return true
	}
	return version != k.currentVer
}

// ReEncrypt opens envelope and seals the plaintext under the current key.
func (k *Keyring) ReEncrypt(envelope string) (string, error) {
	plaintext, err := k.Open(envelope)
	if err != nil {
		return "", fmt.Errorf("re-encrypt: %w", err)
	}
	return k.Seal(plaintext)
}

// CurrentVersion returns the version new envelopes are sealed under.
func (k *Keyring) CurrentVersion() int {
	return k.currentVer
}

func parseVersionedEnvelope(s string) (int, string, bool) {
	if !strings.HasPrefix(s, keyVersionPrefix) {
		return 0, "", false
	}
	idx := strings.Index(s, keyVersionSeparator)
	if idx < 0 {
		return 0, "", false
	}
	version, err := strconv.Atoi(s[len(keyVersionPrefix):idx])
	if err != nil {
		return 0, "", false
	}
	return version, s[idx+1:], true
}
