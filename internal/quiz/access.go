package quiz

import "context"

// AccessResolver decides start/view eligibility. The policy check gates
// survey-kind quizzes; grants widen access beyond the policy and are
// evaluated as a plain union with no precedence between variants.
type AccessResolver struct {
	store Store
	orgs  OrgProvider
}

func NewAccessResolver(store Store, orgs OrgProvider) *AccessResolver {
	return &AccessResolver{store: store, orgs: orgs}
}

// IsEligible dispatches on the quiz's eligibility policy.
func (a *AccessResolver) IsEligible(ctx context.Context, q Quiz, actorID string) (bool, error) {
	switch q.Policy {
	case PolicyAll, "":
		return true, nil
	case PolicyOrgMembers:
		if q.AttachedTo.Kind != AttachOrganization {
			return false, nil
		}
		return a.orgs.IsMember(ctx, q.AttachedTo.RefID, actorID)
	case PolicyOrgRole:
		if q.AttachedTo.Kind != AttachOrganization {
			return false, nil
		}
		return a.orgs.HasRole(ctx, q.AttachedTo.RefID, actorID, q.PolicyRoleID)
	default:
		return false, nil
	}
}

// HasGrant reports whether any active grant of the quiz covers the actor.
func (a *AccessResolver) HasGrant(ctx context.Context, quizID, actorID string) (bool, error) {
	grants, err := a.store.Grants(ctx, quizID)
	if err != nil {
		return false, persistErr("grants", err)
	}
	for _, g := range grants {
		if !g.Active() {
			continue
		}
		ok, err := a.grantCovers(ctx, g, actorID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a *AccessResolver) grantCovers(ctx context.Context, g AccessGrant, actorID string) (bool, error) {
	switch g.Variant {
	case GrantOrgAll:
		return a.orgs.IsMember(ctx, g.OrgID, actorID)
	case GrantOrgRole:
		return a.orgs.HasRole(ctx, g.OrgID, actorID, g.RoleID)
	case GrantOrgCard:
		return a.orgs.HoldsCard(ctx, actorID, g.CardTemplateID)
	case GrantOrgSelect, GrantUsers, GrantFilter:
		// Explicit and filter-selected grants resolve through their stored
		// user selections.
		for _, id := range g.UserIDs {
			if id == actorID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}
