package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEntryNotFound = errors.New("outbox entry not found")

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Entry is an attendance report waiting for redelivery
type Entry struct {
	ID       uuid.UUID
	Payload  Payload
	Attempts int
}

// Outbox keeps reports the backend could not take, in the attendance_outbox table
type Outbox struct {
	db  DB
	now func() time.Time
}

func NewOutbox(db DB) *Outbox {
	return &Outbox{
		db:  db,
		now: time.Now,
	}
}

// Enqueue stores payload for a later attempt
func (o *Outbox) Enqueue(ctx context.Context, payload Payload, reason string) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO attendance_outbox (id, session_id, student_id, payload, last_error, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = o.db.Exec(ctx, query, id, payload.SessionID, payload.StudentID, data, reason, o.now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue attendance: %w", err)
	}

	return id, nil
}

// Due returns up to limit pending entries whose next attempt is not in the future, oldest first
func (o *Outbox) Due(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, payload, attempts
		FROM attendance_outbox
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := o.db.Query(ctx, query, o.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var data []byte

		if err := rows.Scan(&entry.ID, &data, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(data, &entry.Payload); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}

	return entries, nil
}

// Pending counts entries still waiting for delivery
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	var count int
	err := o.db.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_outbox WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return count, nil
}

func (o *Outbox) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE attendance_outbox
		SET status = 'delivered',
		    delivered_at = $1
		WHERE id = $2
	`
	return o.update(ctx, "mark delivered", query, o.now().UTC(), id)
}

// Reschedule records a failed attempt and sets the next one
func (o *Outbox) Reschedule(ctx context.Context, id uuid.UUID, next time.Time, reason string) error {
	query := `
		UPDATE attendance_outbox
		SET attempts = attempts + 1,
		    next_attempt_at = $1,
		    last_error = $2
		WHERE id = $3
	`
	return o.update(ctx, "reschedule", query, next.UTC(), reason, id)
}

// MarkFailed gives up on an entry
func (o *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE attendance_outbox
		SET status = 'failed',
		    attempts = attempts + 1,
		    last_error = $1
		WHERE id = $2
	`
	return o.update(ctx, "mark failed", query, reason, id)
}

func (o *Outbox) update(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := o.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrEntryNotFound)
	}
	return nil
}
