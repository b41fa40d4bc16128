package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/platform/phi"
)

func TestActor_SetsContext(t *testing.T) {
	e := echo.New()
	var got phi.Actor
	var ok bool
	h := Actor()(func(c echo.Context) error {
		got, ok = phi.ActorFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, " u-42 ")
	req.Header.Set(HeaderActorRole, "physician")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || got.ID != "u-42" || got.Role != "physician" {
		t.Errorf("unexpected actor %+v (ok=%v)", got, ok)
	}
}

func TestActor_Absent(t *testing.T) {
	e := echo.New()
	ok := true
	h := Actor()(func(c echo.Context) error {
		_, ok = phi.ActorFromContext(c.Request().Context())
		return nil
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no actor on context")
	}
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	var buf bytes.Buffer
	h := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("ssn 123-45-6789")
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if strings.Contains(buf.String(), "123-45-6789") {
		t.Error("panic value leaked into log")
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Error("expected panic to be logged")
	}
}

func TestLogger_QuietPaths(t *testing.T) {
	e := echo.New()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	h := Logger(logger, "/metrics")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected quiet path to log at debug, got %q", buf.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"path":"/health"`) {
		t.Errorf("expected request line, got %q", buf.String())
	}
}
