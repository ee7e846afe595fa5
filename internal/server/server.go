package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ttinbox/inboxd/internal/metrics"
	"github.com/ttinbox/inboxd/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write
	// operation. This prevents goroutine leaks when clients are slow or
	// disconnected. Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// dateLayout and timeLayout parse the /send-reminder form fields.
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Server handles HTTP requests for the inboxd API.
//
// Routes:
//   - POST /send-reminder: Create a one-off reminder (form contract)
//   - GET  /api/reminders: List reminders, optionally filtered by status
//   - GET  /api/reminders/{id}: Fetch one reminder
//   - POST /api/reminders/{id}/done: Acknowledge; halts escalation
//   - GET  /api/assignments: List tracked assignments
//   - GET  /api/events: Server-Sent Events stream of reminder updates
//   - GET  /health: Liveness probe
//   - GET  /metrics: Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	port       int
	secret     string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP [Server].
//
// If secret is non-empty, mutating routes require a matching
// X-Ingest-Secret header. The server is not started until [Server.Start]
// is called.
func NewServer(st store.Store, port int, secret string, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		port:   port,
		secret: secret,
		logger: logger.With("component", "server"),
	}
}

// Handler builds the chi router for the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(routeMetrics)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/send-reminder", s.handleSendReminder)
		r.Post("/api/reminders/{id}/done", s.handleMarkDone)
	})

	r.Get("/api/reminders", s.handleListReminders)
	r.Get("/api/reminders/{id}", s.handleGetReminder)
	r.Get("/api/assignments", s.handleListAssignments)
	r.Get("/api/events", s.handleEvents)

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the
// server is listening. The server runs until the context is cancelled, at
// which point it initiates a graceful shutdown with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// sendReminderRequest is the /send-reminder form contract: a message, a
// local date and time, and the destination phone.
type sendReminderRequest struct {
	Message string `json:"message"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Phone   string `json:"phone"`
}

// sendReminderResponse mirrors what the reminder form expects back.
type sendReminderResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleSendReminder creates a one-off reminder from the form contract.
func (s *Server) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sendReminderResponse{Error: "invalid JSON body"})
		return
	}

	if req.Message == "" || req.Date == "" || req.Time == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, sendReminderResponse{Error: "message, date, time, and phone are required"})
		return
	}

	sendAt, err := time.ParseInLocation(dateLayout+" "+timeLayout, req.Date+" "+req.Time, time.Local)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sendReminderResponse{Error: "invalid date or time format"})
		return
	}

	reminder := store.Reminder{
		Title:   "One-off reminder",
		Message: req.Message,
		Phone:   req.Phone,
		Rung:    -1,
		DueAt:   sendAt,
		SendAt:  sendAt,
	}
	if _, err := s.store.UpsertReminder(r.Context(), reminder); err != nil {
		s.logger.Error("failed to create reminder", "error", err)
		writeJSON(w, http.StatusInternalServerError, sendReminderResponse{Error: "failed to create reminder"})
		return
	}

	writeJSON(w, http.StatusOK, sendReminderResponse{Success: true})
}

// handleListReminders returns reminders as JSON, optionally filtered by
// the status query parameter.
func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	status := store.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status: "+status.String())
		return
	}

	reminders, err := s.store.ListReminders(r.Context(), status)
	if err != nil {
		s.logger.Error("failed to list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []store.Reminder{}
	}

	writeJSON(w, http.StatusOK, reminders)
}

// handleGetReminder returns a single reminder by ID.
func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reminder, err := s.store.GetReminder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get reminder", "reminder_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}

	writeJSON(w, http.StatusOK, reminder)
}

// markDoneResponse reports the acknowledgement and how many escalation
// rungs it halted.
type markDoneResponse struct {
	Reminder store.Reminder `json:"reminder"`
	Halted   int            `json:"halted"`
}

// handleMarkDone acknowledges a reminder. For assignment reminders the
// whole ladder is halted; one-offs just transition to done.
func (s *Server) handleMarkDone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reminder, err := s.store.GetReminder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get reminder", "reminder_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}

	halted := 0
	if reminder.OneOff() {
		reminder, err = s.store.SetStatus(r.Context(), id, store.StatusDone)
		if err == nil {
			halted = 1
		}
	} else {
		halted, err = s.store.MarkAssignmentDone(r.Context(), reminder.AssignmentID)
		if err == nil {
			reminder, err = s.store.GetReminder(r.Context(), id)
		}
	}
	if err != nil {
		s.logger.Error("failed to mark done", "reminder_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark done")
		return
	}

	s.logger.Info("reminder acknowledged", "reminder_id", id, "halted", halted)
	writeJSON(w, http.StatusOK, markDoneResponse{Reminder: reminder, Halted: halted})
}

// handleListAssignments returns all tracked assignments as JSON.
func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.store.ListAssignments(r.Context())
	if err != nil {
		s.logger.Error("failed to list assignments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	if assignments == nil {
		assignments = []store.Assignment{}
	}

	writeJSON(w, http.StatusOK, assignments)
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleEvents streams reminder updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients
// are slow or disconnected. Without deadlines, a blocked write would
// prevent the handler from detecting context cancellation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some
	// ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	metrics.EventStreamClients.Inc()
	defer metrics.EventStreamClients.Dec()

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send the current reminders as the initial snapshot
	reminders, err := s.store.ListReminders(r.Context(), "")
	if err == nil {
		for _, reminder := range reminders {
			data, err := json.Marshal(reminder)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case reminder, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(reminder)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context derives from the server context via
			// BaseContext, so this fires on both client disconnect AND
			// server shutdown
			return
		}
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// codeLabel renders an HTTP status code as a metrics label.
func codeLabel(code int) string {
	return strconv.Itoa(code)
}
