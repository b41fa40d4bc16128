package phi

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestKeyFromMaterial(t *testing.T) {
	t.Run("empty material is fatal", func(t *testing.T) {
		for _, m := range []string{"", "   "} {
			if _, err := KeyFromMaterial(m); !errors.Is(err, ErrMissingKeyMaterial) {
				t.Fatalf("expected ErrMissingKeyMaterial for %q, got %v", m, err)
			}
		}
	})

	t.Run("hashes to fixed length", func(t *testing.T) {
		for _, m := range []string{"a", "short", strings.Repeat("x", 500)} {
			key, err := KeyFromMaterial(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(key) != KeySize {
				t.Errorf("expected %d-byte key, got %d", KeySize, len(key))
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		k1, _ := KeyFromMaterial("material")
		k2, _ := KeyFromMaterial("material")
		k3, _ := KeyFromMaterial("other")
		if !bytes.Equal(k1, k2) {
			t.Error("same material should give the same key")
		}
		if bytes.Equal(k1, k3) {
			t.Error("different material should give different keys")
		}
	})
}

func TestGenerateKeyMaterial(t *testing.T) {
	m, err := GenerateKeyMaterial()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(m) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(m))
	}
}

func TestParsePreviousKeys(t *testing.T) {
	keys, err := ParsePreviousKeys("1:alpha, 2:beta:with:colons")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].Version != 1 || keys[0].Material != "alpha" {
		t.Errorf("unexpected first key %+v", keys[0])
	}
	if keys[1].Version != 2 || keys[1].Material != "beta:with:colons" {
		t.Errorf("unexpected second key %+v", keys[1])
	}

	if keys, err := ParsePreviousKeys(""); err != nil || keys != nil {
		t.Errorf("expected no keys for blank input, got %v %v", keys, err)
	}
	for _, bad := range []string{"nocolon", "x:material", ":material", "3:"} {
		if _, err := ParsePreviousKeys(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNewCipherFromConfig(t *testing.T) {
	old, err := NewCipherFromConfig("old-material", 1, nil)
	if err != nil {
		t.Fatalf("old ring: %v", err)
	}
	blob, err := old.Seal([]byte("x"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	ring, err := NewCipherFromConfig("new-material", 2, []VersionedMaterial{{Version: 1, Material: "old-material"}})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	if _, err := ring.Open(blob); err != nil {
		t.Fatalf("open with previous key: %v", err)
	}

	if _, err := NewCipherFromConfig("", 1, nil); !errors.Is(err, ErrMissingKeyMaterial) {
		t.Fatalf("expected ErrMissingKeyMaterial, got %v", err)
	}
}

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	r.sql = sql
	r.args = args
	return 1, nil
}

func TestAuditors(t *testing.T) {
	event := AccessEvent{
		Entity:     "patient",
		RecordID:   "p-1",
		Field:      "ssn",
		Action:     ActionDecrypt,
		Reason:     "billing",
		Actor:      Actor{ID: "u-1", Role: "clerk"},
		AccessedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("log auditor", func(t *testing.T) {
		var buf bytes.Buffer
		a := NewLogAuditor(zerolog.New(&buf))
		if err := a.RecordAccess(context.Background(), event); err != nil {
			t.Fatalf("record: %v", err)
		}
		out := buf.String()
		for _, want := range []string{`"event":"phi_access"`, `"record_id":"p-1"`, `"actor_id":"u-1"`} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %s in %s", want, out)
			}
		}
		if strings.Contains(out, "123") {
			t.Error("log output must not contain identifier digits")
		}
	})

	t.Run("sql auditor binds every value", func(t *testing.T) {
		ex := &recordingExecer{}
		if err := NewSQLAuditor(ex).RecordAccess(context.Background(), event); err != nil {
			t.Fatalf("record: %v", err)
		}
		if !strings.Contains(ex.sql, "phi_access_log") {
			t.Errorf("unexpected SQL %q", ex.sql)
		}
		if strings.Contains(ex.sql, "p-1") || strings.Contains(ex.sql, "billing") {
			t.Error("values must be bound, not interpolated")
		}
		if len(ex.args) != 8 {
			t.Errorf("expected 8 args, got %d", len(ex.args))
		}
	})

	t.Run("multi auditor stops at first error", func(t *testing.T) {
		failing := auditorFunc(func(context.Context, AccessEvent) error { return errors.New("down") })
		ex := &recordingExecer{}
		m := MultiAuditor{failing, NewSQLAuditor(ex)}
		if err := m.RecordAccess(context.Background(), event); err == nil {
			t.Fatal("expected error")
		}
		if ex.sql != "" {
			t.Error("second auditor should not run after a failure")
		}
	})
}

type auditorFunc func(context.Context, AccessEvent) error

func (f auditorFunc) RecordAccess(ctx context.Context, e AccessEvent) error { return f(ctx, e) }

func TestActorContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("expected no actor in empty context")
	}
	ctx := WithActor(context.Background(), Actor{ID: "u-9", Role: "nurse"})
	a, ok := ActorFromContext(ctx)
	if !ok || a.ID != "u-9" || a.Role != "nurse" {
		t.Errorf("unexpected actor %+v", a)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry
	if !r.IsEncrypted("patient", "ssn") {
		t.Error("patient.ssn should be encrypted")
	}
	if !r.IsSensitive("patient", "ssn") {
		t.Error("encrypted fields are also sensitive")
	}
	if r.IsEncrypted("patient", "email") {
		t.Error("patient.email is sensitive, not encrypted")
	}
	if !r.IsSensitive("patient", "email") {
		t.Error("patient.email should be sensitive")
	}
	if got := r.EncryptedFields("patient"); len(got) != 1 || got[0] != "ssn" {
		t.Errorf("unexpected encrypted fields %v", got)
	}

	var nilReg *Registry
	if nilReg.IsEncrypted("patient", "ssn") || nilReg.IsSensitive("patient", "ssn") {
		t.Error("nil registry classifies nothing")
	}
}
