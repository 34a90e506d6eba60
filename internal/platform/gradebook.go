package platform

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Gradebook struct{ db *sql.DB }

func NewGradebook(db *sql.DB) *Gradebook { return &Gradebook{db: db} }

// GetOrCreate returns the gradebook entry id for the actor/lesson pair,
// creating it on first use.
func (g *Gradebook) GetOrCreate(ctx context.Context, actorID, lessonID string) (string, error) {
	var id string
	err := g.db.QueryRowContext(ctx,
		`SELECT id FROM gradebook_entries WHERE actor_id = $1 AND lesson_id = $2`,
		actorID, lessonID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	_, err = g.db.ExecContext(ctx,
		`INSERT INTO gradebook_entries (id, actor_id, lesson_id, created_at) VALUES ($1, $2, $3, $4)`,
		id, actorID, lessonID, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}
