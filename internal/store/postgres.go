package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectPingTimeout = 10 * time.Second

// PostgresConfig holds the configuration for connecting to the PostgreSQL
// database backing the store.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URI builds a connection URI from the configuration with the given scheme.
func (c PostgresConfig) URI(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.DBName,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PostgresStore is a PostgreSQL-backed implementation of [Store].
//
// Rows live in the assignments and reminders tables (see migrations/).
// Reminder update fan-out to subscribers is in-process: it notifies
// subscribers of this process's mutations, which is what the SSE feed
// needs in a single-instance deployment.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	subMu       sync.RWMutex
	subscribers map[chan Reminder]struct{}
}

// NewPostgresStore creates a [PostgresStore] with a pgx connection pool.
//
// The connection is validated with a ping before returning. The schema is
// not created here; run the migrate CLI subcommand first.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("connected to postgres", "host", cfg.Host, "port", cfg.Port, "database", cfg.DBName)
	return &PostgresStore{
		pool:        pool,
		logger:      logger,
		subscribers: make(map[chan Reminder]struct{}),
	}, nil
}

const reminderColumns = `id, assignment_id, course_id, title, message, phone, rung,
	priority, due_at, send_at, status, attempts, last_error, created_at, updated_at`

// scanReminder reads one reminder row in reminderColumns order.
func scanReminder(row pgx.Row) (Reminder, error) {
	var r Reminder
	var status string
	err := row.Scan(&r.ID, &r.AssignmentID, &r.CourseID, &r.Title, &r.Message,
		&r.Phone, &r.Rung, &r.Priority, &r.DueAt, &r.SendAt, &status,
		&r.Attempts, &r.LastError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Reminder{}, err
	}
	r.Status = Status(status)
	return r, nil
}

// UpsertAssignment inserts or replaces an assignment record.
func (p *PostgresStore) UpsertAssignment(ctx context.Context, a Assignment) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO assignments (id, course_id, name, due_at, points_possible, html_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			name = EXCLUDED.name,
			due_at = EXCLUDED.due_at,
			points_possible = EXCLUDED.points_possible,
			html_url = EXCLUDED.html_url,
			updated_at = now()`,
		a.ID, a.CourseID, a.Name, a.DueAt, a.PointsPossible, a.HTMLURL)
	if err != nil {
		return fmt.Errorf("upsert assignment %d: %w", a.ID, err)
	}
	return nil
}

// GetAssignment returns the assignment with the given ID.
func (p *PostgresStore) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	var a Assignment
	err := p.pool.QueryRow(ctx, `
		SELECT id, course_id, name, due_at, points_possible, html_url, updated_at
		FROM assignments WHERE id = $1`, id).
		Scan(&a.ID, &a.CourseID, &a.Name, &a.DueAt, &a.PointsPossible, &a.HTMLURL, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, ErrNotFound
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return a, nil
}

// ListAssignments returns all stored assignments ordered by due date.
func (p *PostgresStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, course_id, name, due_at, points_possible, html_url, updated_at
		FROM assignments ORDER BY due_at`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Name, &a.DueAt, &a.PointsPossible, &a.HTMLURL, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertReminder creates a reminder, or refreshes an existing rung.
func (p *PostgresStore) UpsertReminder(ctx context.Context, r Reminder) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}

	if r.OneOff() {
		row := p.pool.QueryRow(ctx, `
			INSERT INTO reminders (id, assignment_id, course_id, title, message, phone, rung,
				priority, due_at, send_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+reminderColumns,
			r.ID, r.AssignmentID, r.CourseID, r.Title, r.Message, r.Phone, r.Rung,
			r.Priority, r.DueAt, r.SendAt, string(r.Status))
		created, err := scanReminder(row)
		if err != nil {
			return false, fmt.Errorf("insert reminder: %w", err)
		}
		p.notifySubscribers(created)
		return true, nil
	}

	// rung reminders dedupe on (assignment_id, rung)
	row := p.pool.QueryRow(ctx, `
		INSERT INTO reminders (id, assignment_id, course_id, title, message, phone, rung,
			priority, due_at, send_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (assignment_id, rung) WHERE assignment_id <> 0 DO NOTHING
		RETURNING `+reminderColumns,
		r.ID, r.AssignmentID, r.CourseID, r.Title, r.Message, r.Phone, r.Rung,
		r.Priority, r.DueAt, r.SendAt, string(r.Status))
	created, err := scanReminder(row)
	if err == nil {
		p.notifySubscribers(created)
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert rung reminder: %w", err)
	}

	// rung exists: refresh it only while still pending
	row = p.pool.QueryRow(ctx, `
		UPDATE reminders
		SET send_at = $3, due_at = $4, message = $5, priority = $6, updated_at = now()
		WHERE assignment_id = $1 AND rung = $2 AND status = 'pending'
		RETURNING `+reminderColumns,
		r.AssignmentID, r.Rung, r.SendAt, r.DueAt, r.Message, r.Priority)
	updated, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // rung already past pending, leave it alone
	}
	if err != nil {
		return false, fmt.Errorf("refresh rung reminder: %w", err)
	}
	p.notifySubscribers(updated)
	return false, nil
}

// GetReminder returns the reminder with the given ID.
func (p *PostgresStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("get reminder %s: %w", id, err)
	}
	return r, nil
}

// ListReminders returns reminders ordered by SendAt, optionally filtered
// by status.
func (p *PostgresStore) ListReminders(ctx context.Context, status Status) ([]Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY send_at`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

// Due returns pending reminders whose send window has opened.
func (p *PostgresStore) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE status = 'pending' AND send_at <= $1
		ORDER BY send_at`, now)
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

// SetStatus transitions a reminder to the given status.
func (p *PostgresStore) SetStatus(ctx context.Context, id string, status Status) (Reminder, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE reminders SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+reminderColumns, id, string(status))
	r, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("set status of reminder %s: %w", id, err)
	}
	p.notifySubscribers(r)
	return r, nil
}

// RecordAttempt increments the attempt counter and records the outcome.
func (p *PostgresStore) RecordAttempt(ctx context.Context, id string, status Status, lastError string) (Reminder, error) {
	var lastErr *string
	if lastError != "" {
		lastErr = &lastError
	}
	row := p.pool.QueryRow(ctx, `
		UPDATE reminders
		SET attempts = attempts + 1, status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+reminderColumns, id, string(status), lastErr)
	r, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("record attempt on reminder %s: %w", id, err)
	}
	p.notifySubscribers(r)
	return r, nil
}

// MarkAssignmentDone halts escalation for every non-terminal reminder of
// an assignment.
func (p *PostgresStore) MarkAssignmentDone(ctx context.Context, assignmentID int64) (int, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE reminders SET status = 'done', updated_at = now()
		WHERE assignment_id = $1 AND status NOT IN ('sent', 'done')
		RETURNING `+reminderColumns, assignmentID)
	if err != nil {
		return 0, fmt.Errorf("mark assignment %d done: %w", assignmentID, err)
	}
	defer rows.Close()

	updated, err := collectReminders(rows)
	if err != nil {
		return 0, err
	}
	for _, r := range updated {
		p.notifySubscribers(r)
	}
	return len(updated), nil
}

// collectReminders drains a reminder query result.
func collectReminders(rows pgx.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Subscribe creates a new subscription for reminder updates.
func (p *PostgresStore) Subscribe() <-chan Reminder {
	ch := make(chan Reminder, 100)

	p.subMu.Lock()
	p.subscribers[ch] = struct{}{}
	p.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (p *PostgresStore) Unsubscribe(ch <-chan Reminder) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for subCh := range p.subscribers {
		if subCh == ch {
			delete(p.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Close closes subscriber channels and the connection pool.
func (p *PostgresStore) Close() error {
	p.subMu.Lock()
	for ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = make(map[chan Reminder]struct{})
	p.subMu.Unlock()

	p.pool.Close()
	return nil
}

// notifySubscribers sends the reminder to all active subscribers,
// dropping for any whose buffer is full.
func (p *PostgresStore) notifySubscribers(r Reminder) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	for ch := range p.subscribers {
		select {
		case ch <- r:
		default:
			// subscriber is slow, drop the message
		}
	}
}
