package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roseram/previewd/internal/types"
)

func newTestFly(t *testing.T, handler http.Handler) *Fly {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFly("test-token", "roseram", WithFlyBaseURL(srv.URL))
}

func TestFlyCreateSandbox(t *testing.T) {
	fly := newTestFly(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/apps":
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/machines"):
			json.NewEncoder(w).Encode(map[string]string{"id": "d89222", "region": "iad"})
		default:
			http.NotFound(w, r)
		}
	}))

	h, err := fly.CreateSandbox(context.Background(), "p-abc123-00042", CreateOptions{Region: "iad", RAMMB: 1024, CPUs: 1})
	if err != nil {
		t.Fatalf("CreateSandbox() error = %v", err)
	}
	if h.ID != "d89222" || h.Name != "p-abc123-00042" {
		t.Errorf("handle = %+v", h)
	}
}

func TestFlyCreateSandboxQuotaError(t *testing.T) {
	fly := newTestFly(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exhausted"}`, http.StatusUnprocessableEntity)
	}))

	_, err := fly.CreateSandbox(context.Background(), "p-abc123-00042", CreateOptions{Region: "iad", RAMMB: 1024, CPUs: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *types.ProvisioningError
	if !errors.As(err, &pe) {
		t.Errorf("error = %T, want ProvisioningError", err)
	}
}

func TestFlyCreateSandboxRejectsBadNameBeforeAPICall(t *testing.T) {
	called := false
	fly := newTestFly(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	}))

	_, err := fly.CreateSandbox(context.Background(), strings.Repeat("p", 64), CreateOptions{})
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
	if called {
		t.Error("API should not be reached for an invalid name")
	}
}

func TestFlyDestroySandboxIdempotent(t *testing.T) {
	fly := newTestFly(t, http.NotFoundHandler())

	// Already-gone sandbox: logs and succeeds.
	if err := fly.DestroySandbox(context.Background(), "p-abc123-00042"); err != nil {
		t.Errorf("DestroySandbox() on missing sandbox = %v, want nil", err)
	}
}

func TestFlyDestroySandboxPropagatesRealFailures(t *testing.T) {
	fly := newTestFly(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))

	if err := fly.DestroySandbox(context.Background(), "p-abc123-00042"); err == nil {
		t.Error("expected error for 500 from provider")
	}
}

func TestFlyFetchLogsNeverFailsHard(t *testing.T) {
	fly := newTestFly(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	msg, err := fly.FetchLogs(context.Background(), "p-abc123-00042", 1234, 50)
	if err != nil {
		t.Fatalf("FetchLogs() error = %v, want nil", err)
	}
	if !strings.Contains(msg, "unavailable") {
		t.Errorf("message = %q, want explanatory text", msg)
	}
}
