package platform

import (
	"context"
	"database/sql"
)

type Orgs struct{ db *sql.DB }

func NewOrgs(db *sql.DB) *Orgs { return &Orgs{db: db} }

func (o *Orgs) IsMember(ctx context.Context, orgID, actorID string) (bool, error) {
	var n int
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM org_members WHERE org_id = $1 AND actor_id = $2`,
		orgID, actorID).Scan(&n)
	return n > 0, err
}

func (o *Orgs) HasRole(ctx context.Context, orgID, actorID, roleID string) (bool, error) {
	var n int
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM org_members WHERE org_id = $1 AND actor_id = $2 AND role_id = $3`,
		orgID, actorID, roleID).Scan(&n)
	return n > 0, err
}

func (o *Orgs) HoldsCard(ctx context.Context, actorID, cardTemplateID string) (bool, error) {
	var n int
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actor_cards WHERE actor_id = $1 AND card_template_id = $2`,
		actorID, cardTemplateID).Scan(&n)
	return n > 0, err
}
