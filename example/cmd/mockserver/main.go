// Standalone mock Canvas and SMS servers for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/inboxd serve -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock Canvas API starting on :9998")
	fmt.Println("Mock SMS provider starting on :9997")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	errCh := make(chan error, 2)
	go func() { errCh <- http.ListenAndServe(":9998", canvasMux()) }()
	go func() { errCh <- http.ListenAndServe(":9997", smsMux()) }()

	if err := <-errCh; err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// canvasMux serves a fixed pair of courses whose assignment due dates slide
// forward on every restart, so reminders are always upcoming.
func canvasMux() *http.ServeMux {
	mux := http.NewServeMux()
	now := time.Now()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 101, "name": "Intro to Databases", "course_code": "CS345"},
			{"id": 202, "name": "Operating Systems", "course_code": "CS440"},
		})
	})
	mux.HandleFunc("/api/v1/courses/101/assignments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{
				"id": 1, "course_id": 101, "name": "ER Diagram",
				"due_at": now.Add(2 * time.Hour), "points_possible": 25,
				"html_url": "http://localhost:9998/courses/101/assignments/1",
			},
		})
	})
	mux.HandleFunc("/api/v1/courses/202/assignments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{
				"id": 3, "course_id": 202, "name": "Scheduler Project",
				"due_at": now.Add(26 * time.Hour), "points_possible": 100,
				"html_url": "http://localhost:9998/courses/202/assignments/3",
			},
		})
	})
	return mux
}

// smsMux logs delivered messages and keeps a running count.
func smsMux() *http.ServeMux {
	mux := http.NewServeMux()

	var mu sync.Mutex
	delivered := 0

	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			To   string `json:"to"`
			From string `json:"from"`
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}

		mu.Lock()
		delivered++
		n := delivered
		mu.Unlock()

		slog.Info("mock SMS delivered", "n", n, "to", msg.To, "body", msg.Body)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
