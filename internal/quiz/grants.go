package quiz

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// GrantInput describes a new access grant. Variant decides which fields are
// required.
type GrantInput struct {
	Variant        GrantVariant
	OrgID          string
	RoleID         string
	CardTemplateID string
	SeatCount      int
	FilterJSON     string
	UserIDs        []string
}

func (in GrantInput) validate() error {
	switch in.Variant {
	case GrantOrgAll:
		if in.OrgID == "" {
			return errors.New("org-all grant needs an organization")
		}
	case GrantOrgRole:
		if in.OrgID == "" || in.RoleID == "" {
			return errors.New("org-role grant needs an organization and a role")
		}
	case GrantOrgCard:
		if in.OrgID == "" || in.CardTemplateID == "" {
			return errors.New("org-card grant needs an organization and a card template")
		}
	case GrantOrgSelect:
		if in.OrgID == "" || in.SeatCount <= 0 {
			return errors.New("org-select grant needs an organization and a positive seat count")
		}
	case GrantUsers:
		if len(in.UserIDs) == 0 {
			return errors.New("users grant needs at least one user")
		}
	case GrantFilter:
		if in.OrgID == "" || in.CardTemplateID == "" || in.FilterJSON == "" {
			return errors.New("filter grant needs an organization, a card template and a filter")
		}
	default:
		return errors.New("unknown grant variant")
	}
	return nil
}

// AddGrant records a new access grant and fires a notification event.
// Grants only ever widen access, so no derived value depends on them.
func (s *Service) AddGrant(ctx context.Context, quizID string, in GrantInput) (AccessGrant, error) {
	if err := in.validate(); err != nil {
		return AccessGrant{}, err
	}
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return AccessGrant{}, err
	}
	g := AccessGrant{
		ID:             uuid.NewString(),
		QuizID:         quizID,
		Variant:        in.Variant,
		OrgID:          in.OrgID,
		RoleID:         in.RoleID,
		CardTemplateID: in.CardTemplateID,
		SeatCount:      in.SeatCount,
		FilterJSON:     in.FilterJSON,
		UserIDs:        in.UserIDs,
		CreatedAt:      s.now(),
	}
	if err := s.store.AddGrant(ctx, &g); err != nil {
		return AccessGrant{}, persistErr("add grant", err)
	}
	s.notifyGrant(ctx, g)
	return g, nil
}

// notifyGrant is fire and forget: eligibility does not depend on the event
// landing.
func (s *Service) notifyGrant(ctx context.Context, g AccessGrant) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(g)
	if err != nil {
		return
	}
	_ = s.events.Append(ctx, "QuizAccessGranted", g.QuizID, string(data))
}

func (s *Service) Grants(ctx context.Context, quizID string) ([]AccessGrant, error) {
	return s.store.Grants(ctx, quizID)
}

func (s *Service) RevokeGrant(ctx context.Context, quizID, grantID string) error {
	if err := s.store.RevokeGrant(ctx, quizID, grantID, s.now()); err != nil {
		return persistErr("revoke grant", err)
	}
	return nil
}

// AddGrantUser attaches a user to a select/filter grant's selection,
// respecting the grant's seat count.
func (s *Service) AddGrantUser(ctx context.Context, quizID, grantID, userID string) error {
	grants, err := s.store.Grants(ctx, quizID)
	if err != nil {
		return persistErr("grants", err)
	}
	for _, g := range grants {
		if g.ID != grantID {
			continue
		}
		if g.Variant != GrantOrgSelect && g.Variant != GrantFilter {
			return errors.New("grant does not hold a user selection")
		}
		if g.SeatCount > 0 && len(g.UserIDs) >= g.SeatCount {
			return errors.New("grant selection is full")
		}
		if err := s.store.AddGrantUser(ctx, grantID, userID); err != nil {
			return persistErr("add grant user", err)
		}
		return nil
	}
	return ErrNotFound
}

func (s *Service) RemoveGrantUser(ctx context.Context, quizID, grantID, userID string) error {
	if err := s.store.RemoveGrantUser(ctx, grantID, userID); err != nil {
		return persistErr("remove grant user", err)
	}
	return nil
}

// CanStart answers whether the actor may start the quiz without creating an
// attempt: base eligibility policy unioned with the active grants.
func (s *Service) CanStart(ctx context.Context, quizID, actorID string) (bool, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return false, err
	}
	ok, err := s.resolver.IsEligible(ctx, q, actorID)
	if err != nil {
		return false, persistErr("eligibility", err)
	}
	if ok {
		return true, nil
	}
	return s.resolver.HasGrant(ctx, quizID, actorID)
}
