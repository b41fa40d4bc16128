package hydrate

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

type recordingObserver struct {
	columns []string
	dates   []DatePolicy
}

func (o *recordingObserver) ColumnFallback(_, attribute, column string) {
	o.columns = append(o.columns, attribute+"<-"+column)
}

func (o *recordingObserver) DateFallback(_, _ string, policy DatePolicy) {
	o.dates = append(o.dates, policy)
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func patientMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewMapping("patient",
		Attribute{Name: "id", Columns: []string{"id"}, Required: true},
		Attribute{Name: "firstName", Columns: []string{"first_name", "legal_first_name", "fname"}, Required: true},
		Attribute{Name: "status", Columns: []string{"status"}, Default: "active"},
		Attribute{Name: "dateOfBirth", Columns: []string{"date_of_birth", "dob"}},
		Attribute{Name: "createdAt", Columns: []string{"created_at"}},
		Attribute{Name: "preferences", Columns: []string{"preferences"}, JSON: true},
		Attribute{Name: "verified", Columns: []string{"is_verified"}},
		Attribute{Name: "visits", Columns: []string{"visit_count"}},
	)
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	return m
}

func newHydrator(t *testing.T, policy DatePolicy, obs Observer, logBuf *bytes.Buffer) *Hydrator {
	t.Helper()
	logger := zerolog.Nop()
	if logBuf != nil {
		logger = zerolog.New(logBuf)
	}
	return New(patientMapping(t), Options{
		DatePolicy: policy,
		Logger:     logger,
		Observer:   obs,
		Now:        func() time.Time { return fixedNow },
	})
}

func TestRecord_LegacyFallback(t *testing.T) {
	obs := &recordingObserver{}
	h := newHydrator(t, DateNow, obs, nil)

	rec := h.Record(db.RowFromMap(map[string]any{"id": "p-1", "legal_first_name": "Ann"}))
	if got := rec.String("firstName"); got != "Ann" {
		t.Errorf("expected Ann, got %q", got)
	}
	if rec.Err() != nil {
		t.Fatalf("unexpected error: %v", rec.Err())
	}
	if len(obs.columns) != 1 || obs.columns[0] != "firstName<-legal_first_name" {
		t.Errorf("expected one recorded fallback, got %v", obs.columns)
	}
}

func TestRecord_PrimaryWinsOverFallback(t *testing.T) {
	obs := &recordingObserver{}
	h := newHydrator(t, DateNow, obs, nil)

	rec := h.Record(db.RowFromMap(map[string]any{"id": "p-1", "first_name": "Jane", "legal_first_name": "Janet"}))
	if got := rec.String("firstName"); got != "Jane" {
		t.Errorf("expected Jane, got %q", got)
	}
	if len(obs.columns) != 0 {
		t.Errorf("no fallback expected, got %v", obs.columns)
	}

	// A null primary falls through to the next candidate.
	rec = h.Record(db.RowFromMap(map[string]any{"id": "p-1", "first_name": nil, "fname": "J"}))
	if got := rec.String("firstName"); got != "J" {
		t.Errorf("expected J, got %q", got)
	}
}

func TestRecord_RequiredAndDefaults(t *testing.T) {
	h := newHydrator(t, DateNow, nil, nil)

	rec := h.Record(db.RowFromMap(map[string]any{"id": "p-1"}))
	_ = rec.String("firstName")
	if !errors.Is(rec.Err(), storeerr.ErrMissingRequiredColumn) {
		t.Fatalf("expected MissingRequiredColumn, got %v", rec.Err())
	}

	// Present but null columns satisfy the row shape; the default applies.
	rec = h.Record(db.RowFromMap(map[string]any{"id": "p-1", "legal_first_name": nil, "status": nil}))
	if got := rec.String("firstName"); got != "" || rec.Err() != nil {
		t.Errorf("expected empty first name without error, got %q %v", got, rec.Err())
	}
	if got := rec.String("status"); got != "active" {
		t.Errorf("expected default status, got %q", got)
	}

	_ = rec.String("unknown")
	if !errors.Is(rec.Err(), storeerr.ErrUnknownField) {
		t.Errorf("expected UnknownField, got %v", rec.Err())
	}
}

func TestRecord_TypedAccessors(t *testing.T) {
	h := newHydrator(t, DateNow, nil, nil)
	id := uuid.MustParse("6ba7b810-9dad-41d1-80b4-00c04fd430c8")

	rec := h.Record(db.RowFromMap(map[string]any{
		"id":            [16]byte(id),
		"first_name":    []byte("Jane"),
		"date_of_birth": "1980-04-12",
		"created_at":    "2024-01-02 03:04:05+00",
		"is_verified":   "t",
		"visit_count":   []byte("12"),
	}))

	if got := rec.UUID("id"); got != id {
		t.Errorf("UUID: got %v", got)
	}
	if got := rec.String("id"); got != id.String() {
		t.Errorf("String of uuid column: got %q", got)
	}
	if got := rec.String("firstName"); got != "Jane" {
		t.Errorf("String: got %q", got)
	}
	if got := rec.Time("dateOfBirth"); !got.Equal(time.Date(1980, 4, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Time: got %v", got)
	}
	if got := rec.Time("createdAt"); !got.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Time with zone: got %v", got)
	}
	if !rec.Bool("verified") {
		t.Error("Bool: expected true")
	}
	if got := rec.Int("visits"); got != 12 {
		t.Errorf("Int: got %d", got)
	}
	if rec.Err() != nil {
		t.Fatalf("unexpected error: %v", rec.Err())
	}
	if len(rec.Warnings()) != 0 {
		t.Errorf("unexpected warnings %v", rec.Warnings())
	}
}

func TestRecord_DatePolicies(t *testing.T) {
	row := db.RowFromMap(map[string]any{"id": "p-1", "first_name": "A", "created_at": "not a date"})

	t.Run("now", func(t *testing.T) {
		obs := &recordingObserver{}
		var logs bytes.Buffer
		rec := newHydrator(t, DateNow, obs, &logs).Record(row)

		if got := rec.Time("createdAt"); !got.Equal(fixedNow) {
			t.Errorf("expected current time, got %v", got)
		}
		if rec.Err() != nil {
			t.Fatalf("unexpected error: %v", rec.Err())
		}
		if len(rec.Warnings()) != 1 {
			t.Errorf("expected one warning, got %v", rec.Warnings())
		}
		if len(obs.dates) != 1 || obs.dates[0] != DateNow {
			t.Errorf("expected date fallback to be observed, got %v", obs.dates)
		}
		if !strings.Contains(logs.String(), `"level":"warn"`) {
			t.Errorf("expected a warning log, got %s", logs.String())
		}
	})

	t.Run("zero", func(t *testing.T) {
		rec := newHydrator(t, DateZero, nil, nil).Record(row)
		if got := rec.TimePtr("createdAt"); got == nil || !got.IsZero() {
			t.Errorf("expected zero time, got %v", got)
		}
	})

	t.Run("error", func(t *testing.T) {
		rec := newHydrator(t, DateError, nil, nil).Record(row)
		_ = rec.Time("createdAt")
		if !errors.Is(rec.Err(), storeerr.ErrInvalidFormat) {
			t.Errorf("expected InvalidFormat, got %v", rec.Err())
		}
	})

	t.Run("null is not a fallback", func(t *testing.T) {
		obs := &recordingObserver{}
		rec := newHydrator(t, DateNow, obs, nil).Record(db.RowFromMap(map[string]any{"id": "p-1", "dob": nil}))
		if rec.TimePtr("dateOfBirth") != nil || len(obs.dates) != 0 {
			t.Error("null date must hydrate to nil without a fallback")
		}
	})
}

func TestRecord_JSON(t *testing.T) {
	h := newHydrator(t, DateNow, nil, nil)
	type prefs struct {
		Language string `json:"language"`
	}

	cases := []struct {
		name  string
		value any
		ok    bool
	}{
		{"text", `{"language":"es"}`, true},
		{"bytes", []byte(`{"language":"es"}`), true},
		{"decoded by driver", map[string]any{"language": "es"}, true},
		{"empty", "", false},
		{"not json", "es", false},
		{"null", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.Record(db.RowFromMap(map[string]any{"preferences": tc.value}))
			var p prefs
			ok := rec.JSON("preferences", &p)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && p.Language != "es" {
				t.Errorf("unexpected decode %+v", p)
			}
			if rec.Err() != nil {
				t.Errorf("JSON decoding must not error: %v", rec.Err())
			}
		})
	}
}

func TestMapping_BindAndDehydrate(t *testing.T) {
	m := patientMapping(t)

	bound, err := m.Bind([]string{"id", "legal_first_name", "dob", "preferences", "deleted_at"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if col, _ := bound.WriteColumn("firstName"); col != "legal_first_name" {
		t.Errorf("expected writes to legacy column, got %q", col)
	}
	if col, _ := bound.WriteColumn("status"); col != "status" {
		t.Errorf("absent optional attribute keeps its primary column, got %q", col)
	}

	vals, err := bound.Dehydrate(map[string]any{
		"firstName":   "Ann",
		"preferences": map[string]any{"language": "es"},
	})
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}
	if vals["legal_first_name"] != "Ann" {
		t.Errorf("unexpected values %v", vals)
	}
	if vals["preferences"] != `{"language":"es"}` {
		t.Errorf("expected JSON text, got %v", vals["preferences"])
	}

	flags, err := bound.Dehydrate(map[string]any{"status": true})
	if err != nil || flags["status"] != 1 {
		t.Errorf("expected booleans to bind as 1/0, got %v %v", flags, err)
	}

	if _, err := bound.Dehydrate(map[string]any{"nope": 1}); !errors.Is(err, storeerr.ErrUnknownField) {
		t.Errorf("expected UnknownField, got %v", err)
	}
	if _, err := bound.Dehydrate(map[string]any{"preferences": "{broken"}); !errors.Is(err, storeerr.ErrInvalidFormat) {
		t.Errorf("expected InvalidFormat, got %v", err)
	}

	if _, err := m.Bind([]string{"id", "status"}); !errors.Is(err, storeerr.ErrMissingRequiredColumn) {
		t.Errorf("expected MissingRequiredColumn, got %v", err)
	}

	required, optional := m.Missing([]string{"id", "status"})
	if len(required) != 1 || required[0] != "firstName" {
		t.Errorf("unexpected required %v", required)
	}
	if len(optional) != 5 {
		t.Errorf("unexpected optional %v", optional)
	}
}

func TestNewMapping_Validation(t *testing.T) {
	if _, err := NewMapping("x", Attribute{Name: "a"}); err == nil {
		t.Error("expected error for attribute without columns")
	}
	if _, err := NewMapping("x", Attribute{Name: "a", Columns: []string{"a"}}, Attribute{Name: "a", Columns: []string{"b"}}); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := NewMapping("x", Attribute{Name: "a", Columns: []string{"a b"}}); err == nil {
		t.Error("expected invalid column error")
	}
}

func TestDiff(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := db.RowFromMap(map[string]any{
		"first_name":  []byte("Jane"),
		"visit_count": int64(3),
		"is_verified": int64(1),
		"created_at":  created,
		"preferences": `{"b":1, "a":2}`,
		"status":      nil,
	})

	diff := Diff(row, Values{
		"first_name":  "Jane",
		"visit_count": 3,
		"is_verified": true,
		"created_at":  created.In(time.FixedZone("X", 3600)),
		"preferences": `{"a":2,"b":1}`,
		"status":      "inactive",
		"last_name":   "Doe",
	})

	if len(diff) != 2 {
		t.Fatalf("expected 2 changed columns, got %v", diff)
	}
	if diff["status"] != "inactive" || diff["last_name"] != "Doe" {
		t.Errorf("unexpected diff %v", diff)
	}
}

func TestDiff_LargeIntegers(t *testing.T) {
	row := db.RowFromMap(map[string]any{
		"external_ref": int64(9007199254740993),
		"batch_id":     uint64(math.MaxUint64),
		"weight":       float64(72.5),
	})

	diff := Diff(row, Values{
		"external_ref": int64(9007199254740992),
		"batch_id":     int64(-1),
		"weight":       float32(72.5),
	})
	if len(diff) != 2 {
		t.Fatalf("expected 2 changed columns, got %v", diff)
	}
	if diff["external_ref"] != int64(9007199254740992) {
		t.Errorf("changed int64 value missing from diff: %v", diff)
	}
	if _, ok := diff["batch_id"]; !ok {
		t.Errorf("expected uint64 max and -1 to differ: %v", diff)
	}

	if !Equal(int64(9007199254740993), uint64(9007199254740993)) {
		t.Error("expected equal int64 and uint64 to compare equal")
	}
	if Equal(int64(9007199254740993), int32(3)) {
		t.Error("expected distinct integers to differ")
	}
	if !Equal(int64(2), float64(2)) {
		t.Error("expected integer and float of the same value to compare equal")
	}
}

func TestParseDatePolicy(t *testing.T) {
	for in, want := range map[string]DatePolicy{"": DateNow, "now": DateNow, "zero": DateZero, "error": DateError} {
		got, err := ParseDatePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseDatePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDatePolicy("later"); err == nil {
		t.Error("expected error")
	}
}
