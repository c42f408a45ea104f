package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded lifecycle event.
type Entry struct {
	Seq            int64     `json:"seq"`
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	AtMillis       uint32    `json:"at_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
	DelayMillis    uint32    `json:"delay_ms"`
	Reason         string    `json:"reason,omitempty"`
	SessionPresent bool      `json:"session_present,omitempty"`
	Topic          string    `json:"topic,omitempty"`
}

// EntryFromEvent converts a supervisor event. Reason is recorded only for
// disconnects.
func EntryFromEvent(ev session.Event) Entry {
	e := Entry{
		Kind:           string(ev.Kind),
		From:           string(ev.From),
		To:             string(ev.To),
		AtMillis:       ev.AtMillis,
		RecordedAt:     ev.Time,
		DelayMillis:    ev.DelayMillis,
		SessionPresent: ev.SessionPresent,
		Topic:          ev.Topic,
	}
	if ev.Kind == session.EventDisconnected {
		e.Reason = ev.Reason.String()
	}
	return e
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   string // optional: attempt, connected, disconnected, publish_rejected, shutdown
	Limit  int    // default 50, max 500
	Offset int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores journal entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the connection_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID, RecordedAt and Seq.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.RecordedAt = e.RecordedAt.UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_events
		   (id, kind, from_state, to_state, at_millis, recorded_at, delay_ms, reason, session_present, topic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.From, e.To, e.AtMillis,
		e.RecordedAt.Format(time.RFC3339Nano),
		e.DelayMillis, e.Reason, e.SessionPresent, e.Topic,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	if seq, err := res.LastInsertId(); err == nil {
		e.Seq = seq
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := ""
	var args []any
	if filter.Kind != "" {
		where = "WHERE kind = ?"
		args = append(args, filter.Kind)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM connection_events " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := `SELECT seq, id, kind, from_state, to_state, at_millis, recorded_at, delay_ms, reason, session_present, topic
		FROM connection_events ` + where + ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.From, &e.To, &e.AtMillis,
			&recordedAt, &e.DelayMillis, &e.Reason, &e.SessionPresent, &e.Topic); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", recordedAt, err)
		}
		e.RecordedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
