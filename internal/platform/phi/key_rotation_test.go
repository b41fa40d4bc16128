package phi

import (
	"errors"
	"strings"
	"testing"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

func TestKeyring_SealOpenCurrentKey(t *testing.T) {
	ring, err := NewKeyring(generateTestKey(t), 1)
	if err != nil {
		t.Fatalf("create keyring: %v", err)
	}

	blob, err := ring.Seal([]byte("123-45-6789"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(blob, "v1:") {
		t.Errorf("expected v1: prefix, got %q", blob[:5])
	}

	got, err := ring.Open(blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "123-45-6789" {
		t.Errorf("roundtrip failed: %q", got)
	}
}

func TestKeyring_OpenWithPreviousKey(t *testing.T) {
	oldKey := generateTestKey(t)
	oldRing, err := NewKeyring(oldKey, 1)
	if err != nil {
		t.Fatalf("create old ring: %v", err)
	}
	oldBlob, err := oldRing.Seal([]byte("record"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	newRing, err := NewKeyring(generateTestKey(t), 2)
	if err != nil {
		t.Fatalf("create new ring: %v", err)
	}
	if err := newRing.AddPreviousKey(oldKey, 1); err != nil {
		t.Fatalf("add previous key: %v", err)
	}

	got, err := newRing.Open(oldBlob)
	if err != nil {
		t.Fatalf("open old blob: %v", err)
	}
	if string(got) != "record" {
		t.Errorf("got %q", got)
	}
	if !newRing.NeedsReEncryption(oldBlob) {
		t.Error("expected old blob to need re-encryption")
	}

	fresh, err := newRing.ReEncrypt(oldBlob)
	if err != nil {
		t.Fatalf("re-encrypt: %v", err)
	}
	if !strings.HasPrefix(fresh, "v2:") {
		t.Errorf("expected v2: prefix after re-encryption, got %q", fresh[:5])
	}
	if newRing.NeedsReEncryption(fresh) {
		t.Error("fresh blob should not need re-encryption")
	}
}

func TestKeyring_UnknownVersion(t *testing.T) {
	ring, err := NewKeyring(generateTestKey(t), 3)
	if err != nil {
		t.Fatalf("create ring: %v", err)
	}
	_, err = ring.Open("v9:AAAA")
	if !errors.Is(err, storeerr.ErrCryptographicIntegrity) {
		t.Fatalf("expected integrity error for unknown version, got %v", err)
	}
}

func TestKeyring_UnprefixedUsesCurrentKey(t *testing.T) {
	key := generateTestKey(t)
	plain, err := NewEnvelopeCipher(key)
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}
	blob, err := plain.Seal([]byte("legacy"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	ring, err := NewKeyring(key, 1)
	if err != nil {
		t.Fatalf("create ring: %v", err)
	}
	got, err := ring.Open(blob)
	if err != nil {
		t.Fatalf("open legacy blob: %v", err)
	}
	if string(got) != "legacy" {
		t.Errorf("got %q", got)
	}
}

func TestKeyring_RejectsBadVersions(t *testing.T) {
	if _, err := NewKeyring(generateTestKey(t), 0); err == nil {
		t.Error("expected error for version 0")
	}
	ring, err := NewKeyring(generateTestKey(t), 1)
	if err != nil {
		t.Fatalf("create ring: %v", err)
	}
	if err := ring.AddPreviousKey(generateTestKey(t), 1); err == nil {
		t.Error("expected error when previous version equals current")
	}
}
