package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warn": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"", "text", "JSON", "pretty"} {
		if _, err := ParseFormat(in); err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentFeed, Output: &buf})
	l.Info("snapshot delivered", FieldRecords, 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentFeed || rec[FieldRecords] != float64(3) {
		t.Fatalf("unexpected record %v", rec)
	}
	if l.WithComponent(ComponentView).Component() != ComponentView {
		t.Fatalf("component not switched")
	}
}

func TestFieldsToSliceIsOrdered(t *testing.T) {
	s := NewFields().WithOperation(OpCreate).WithExpense("e1", "Lazer", 100).ToSlice()
	if s[0] != FieldAmountCents || s[2] != FieldCategory {
		t.Fatalf("fields not sorted: %v", s)
	}
}

func TestMiddlewareAndLogHTTPEnd(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: FormatText, Output: &buf})

	h := Middleware(l)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			LogHTTPEnd(r.Context(), r, http.StatusNotFound, 2, "127.0.0.1")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/expenses", nil))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "request_id=req_1") {
		t.Fatalf("unexpected log output %q", out)
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}
