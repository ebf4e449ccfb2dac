package executor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSubmitsScript(t *testing.T) {
	var gotScript, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotScript = r.URL.Query().Get("script")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background(), "PREHEAT BED=60"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotPath != "/printer/gcode/script" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotScript != "PREHEAT BED=60" {
		t.Fatalf("script = %q", gotScript)
	}
}

func TestRunReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "Unknown command: NOPE"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	err = c.Run(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if !strings.Contains(err.Error(), "Unknown command") {
		t.Fatalf("error lost the body excerpt: %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, testLogger()); err == nil {
		t.Fatal("expected an error for an empty base url")
	}
}
