package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ttinbox/inboxd/internal/bus"
	"github.com/ttinbox/inboxd/internal/canvas"
	"github.com/ttinbox/inboxd/internal/metrics"
	"github.com/ttinbox/inboxd/internal/store"
)

// CanvasAPI is the subset of the Canvas client the poller needs.
// Extracted as an interface so tests can substitute a fake.
type CanvasAPI interface {
	ListCourses(ctx context.Context) ([]canvas.Course, error)
	ListAssignments(ctx context.Context, courseID int64) ([]canvas.Assignment, error)
}

// Agent periodically pulls assignments from Canvas, writes them to the
// store, and announces completed cycles on the canvas.poll topic.
//
// The agent polls immediately on start, then ticks at its configured
// interval until the context is cancelled or [Agent.Stop] is called.
// All lifecycle methods are safe for concurrent use.
type Agent struct {
	api            CanvasAPI
	courseIDs      []int64
	interval       time.Duration
	maxConcurrency int
	store          store.Store
	bus            *bus.Bus
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a polling [Agent].
//
// courseIDs limits polling to the given Canvas courses; when empty, the
// agent discovers active courses via ListCourses on every cycle.
// maxConcurrency bounds concurrent course fetches.
func New(api CanvasAPI, courseIDs []int64, interval time.Duration, maxConcurrency int, st store.Store, b *bus.Bus, logger *slog.Logger) *Agent {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Agent{
		api:            api,
		courseIDs:      courseIDs,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		store:          st,
		bus:            b,
		logger:         logger.With("component", "poller"),
	}
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The agent polls all
// courses once, then on every interval tick, until the context is
// cancelled. Start is idempotent; subsequent calls are no-ops, as is
// calling Start after Stop.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	pollCtx := a.ctx // capture under lock to avoid race
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()

		a.pollOnce(pollCtx)

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				a.pollOnce(pollCtx)
			}
		}
	}()
}

// Stop halts the agent and waits for the in-flight cycle to complete.
//
// Stop is idempotent and safe to call before Start.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.stopped {
		a.stopped = true
		if a.cancel != nil {
			a.cancel()
		}
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// pollOnce runs one full polling cycle and publishes the result.
func (a *Agent) pollOnce(ctx context.Context) {
	traceID := uuid.NewString()
	start := time.Now()

	courseIDs, err := a.resolveCourses(ctx)
	if err != nil {
		a.logger.Error("course discovery failed", "trace_id", traceID, "error", err)
		metrics.PollCycles.WithLabelValues("error").Inc()
		return
	}

	upserted, failures := a.pollCourses(ctx, courseIDs)

	result := bus.PollCompleted{
		PolledAt:    time.Now(),
		Assignments: upserted,
		Courses:     len(courseIDs),
		Failures:    failures,
	}
	a.bus.Publish(bus.TopicCanvasPoll, traceID, result)

	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	metrics.PollCycles.WithLabelValues(outcome).Inc()

	a.logger.Info("poll cycle complete",
		"trace_id", traceID,
		"courses", len(courseIDs),
		"assignments", upserted,
		"failures", failures,
		"elapsed", time.Since(start).String(),
	)
}

// resolveCourses returns the configured course IDs, or discovers active
// courses when none are configured.
func (a *Agent) resolveCourses(ctx context.Context) ([]int64, error) {
	if len(a.courseIDs) > 0 {
		return a.courseIDs, nil
	}

	courses, err := a.api.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return nil, errors.New("no active courses found")
	}
	return ids, nil
}

// pollCourses fetches assignments for each course with a bounded worker
// pool and upserts them into the store. Returns the number of assignments
// upserted and the number of courses that failed.
func (a *Agent) pollCourses(ctx context.Context, courseIDs []int64) (upserted, failures int) {
	jobs := make(chan int64, len(courseIDs))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < a.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				n, err := a.pollCourse(ctx, id)
				mu.Lock()
				if err != nil {
					failures++
				}
				upserted += n
				mu.Unlock()
			}
		}()
	}

	for _, id := range courseIDs {
		select {
		case jobs <- id:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return upserted, failures
		}
	}
	close(jobs)

	wg.Wait()
	return upserted, failures
}

// pollCourse fetches one course's assignments and stores the deliverable
// ones: assignments with a due date that has not passed.
func (a *Agent) pollCourse(ctx context.Context, courseID int64) (int, error) {
	assignments, err := a.api.ListAssignments(ctx, courseID)
	if err != nil {
		a.logger.Warn("course fetch failed", "course_id", courseID, "error", err)
		return 0, err
	}

	now := time.Now()
	upserted := 0
	for _, asn := range assignments {
		if asn.DueAt == nil || asn.DueAt.Before(now) {
			continue
		}
		rec := store.Assignment{
			ID:             asn.ID,
			CourseID:       courseID,
			Name:           asn.Name,
			DueAt:          *asn.DueAt,
			PointsPossible: asn.PointsPossible,
			HTMLURL:        asn.HTMLURL,
		}
		if err := a.store.UpsertAssignment(ctx, rec); err != nil {
			a.logger.Error("assignment upsert failed", "assignment_id", asn.ID, "error", err)
			continue
		}
		upserted++
		metrics.AssignmentsUpserted.Inc()
	}

	return upserted, nil
}
