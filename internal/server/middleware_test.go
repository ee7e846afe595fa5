package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ttinbox/inboxd/internal/store"
)

// TestStatusWriter_WriteDeadlineThroughMiddleware verifies the middleware
// wrappers do not hide the connection from http.ResponseController: the
// SSE handler sets write deadlines through the full chain, and a wrapper
// without Unwrap would make every SetWriteDeadline fail.
func TestStatusWriter_WriteDeadlineThroughMiddleware(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, "", testLogger())

	deadlineErr := make(chan error, 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		deadlineErr <- rc.SetWriteDeadline(time.Now().Add(time.Second))
		w.WriteHeader(http.StatusOK)
	})

	// the same chain Handler() installs, over a real connection
	r := chi.NewRouter()
	r.Use(srv.requestLogger)
	r.Use(routeMetrics)
	r.Get("/", inner)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	select {
	case err := <-deadlineErr:
		if err != nil {
			t.Errorf("SetWriteDeadline through middleware = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never reported a deadline result")
	}
}

func TestStatusWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, code: http.StatusOK}

	if got := sw.Unwrap(); got != http.ResponseWriter(rec) {
		t.Errorf("Unwrap() = %v, want the wrapped writer", got)
	}
}
