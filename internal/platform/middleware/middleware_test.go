package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_Generated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	rid := RequestIDFrom(c)
	if rid == "" {
		t.Error("request_id not set")
	}
	if rec.Header().Get("X-Request-ID") != rid {
		t.Error("X-Request-ID header does not match context value")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rid := RequestIDFrom(c); rid != "upstream-id" {
		t.Errorf("request_id = %q, want upstream-id", rid)
	}
}

func TestLogger_LevelsByOutcome(t *testing.T) {
	e := echo.New()

	cases := []struct {
		name      string
		handler   echo.HandlerFunc
		wantLevel string
	}{
		{"ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, "info"},
		{"client error", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) }, "warn"},
		{"handler error", func(c echo.Context) error { return errors.New("pool exhausted") }, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.Set(RequestIDKey, "rid-1")

			_ = Logger(logger)(tc.handler)(c)

			var line map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			if line["level"] != tc.wantLevel {
				t.Errorf("level = %v, want %s", line["level"], tc.wantLevel)
			}
			if line["request_id"] != "rid-1" {
				t.Errorf("request_id = %v, want rid-1", line["request_id"])
			}
		})
	}
}

func TestRecovery_Panic(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	logger := zerolog.Nop()
	h := Recovery(logger)(func(c echo.Context) error { panic("boom") })
	err := h(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Errorf("error = %v, want 500 HTTPError", err)
	}
}

func TestRateLimit_Exceeded(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.0001, BurstSize: 1})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	c := e.NewContext(req, httptest.NewRecorder())
	if err := h(c); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	c = e.NewContext(req, httptest.NewRecorder())
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Errorf("second request error = %v, want 429", err)
	}
}
