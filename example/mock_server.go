package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// StartMockCanvasServer runs a mock Canvas API with two courses and a few
// assignments due in the near future, so the demo escalation ladder fires
// within minutes instead of days.
// Call this in a goroutine before creating the inbox.
func StartMockCanvasServer(addr string) {
	mux := http.NewServeMux()
	now := time.Now()

	courses := []map[string]any{
		{"id": 101, "name": "Intro to Databases", "course_code": "CS345"},
		{"id": 202, "name": "Operating Systems", "course_code": "CS440"},
	}
	assignments := map[string][]map[string]any{
		"101": {
			{
				"id": 1, "course_id": 101, "name": "ER Diagram",
				"due_at": now.Add(90 * time.Minute), "points_possible": 25,
				"html_url": "http://localhost:9998/courses/101/assignments/1",
			},
			{
				"id": 2, "course_id": 101, "name": "SQL Lab",
				"due_at": now.Add(5 * time.Hour), "points_possible": 50,
				"html_url": "http://localhost:9998/courses/101/assignments/2",
			},
		},
		"202": {
			{
				"id": 3, "course_id": 202, "name": "Scheduler Project",
				"due_at": now.Add(3 * time.Hour), "points_possible": 100,
				"html_url": "http://localhost:9998/courses/202/assignments/3",
			},
		},
	}

	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(courses)
	})
	mux.HandleFunc("/api/v1/courses/101/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(assignments["101"])
	})
	mux.HandleFunc("/api/v1/courses/202/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(assignments["202"])
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock canvas server error", "error", err)
	}
}

// StartMockSMSServer runs a mock SMS provider that logs every message it
// receives instead of delivering it.
// Call this in a goroutine before creating the inbox.
func StartMockSMSServer(addr string) {
	mux := http.NewServeMux()

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
		slog.Info("mock SMS delivered", "to", msg.To, "from", msg.From, "body", msg.Body)
		w.WriteHeader(http.StatusOK)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock sms server error", "error", err)
	}
}
