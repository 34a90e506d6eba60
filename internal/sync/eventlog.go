// Package syncx persists fire-and-forget engine events (grant created,
// attempt revoked) for later delivery to notification consumers.
package syncx

import (
	"context"
	"database/sql"
	"time"
)

type Event struct {
	Seq       int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Append satisfies the engine's Events port.
func (r *EventRepo) Append(ctx context.Context, typ, key, dataJSON string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, dataJSON, time.Now().Unix())
	return err
}

// Since returns events after seq, oldest first, for pull-based consumers.
func (r *EventRepo) Since(ctx context.Context, seq int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`,
		seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
