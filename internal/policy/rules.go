package policy

// Rule evaluation order is fixed: unauthenticated, then admin, then
// ownership relations (assignee/creator), then membership, then the
// manager division+hierarchy clause, then deny. The order only picks the
// reported clause; it never changes the boolean outcome.

// CanCreateProject allows managers and admins to create projects.
func CanCreateProject(s Subject) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	switch s.Tier {
	case TierAdmin:
		return allow(ReasonAdmin)
	case TierManager:
		return allow(ReasonManagerTier)
	default:
		return deny(ReasonTierTooLow)
	}
}

// CanEditProject allows the admin tier, the project creator, and managers
// who strictly outrank the creator within the creator's division. Editing
// covers updates, archiving and deletion.
func CanEditProject(s Subject, p ProjectRef, creator Subject) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if s.Tier == TierAdmin {
		return allow(ReasonAdmin)
	}
	if p.ID == "" {
		return deny(ReasonMissingFacts)
	}
	if s.ID == p.CreatorID {
		return allow(ReasonCreator)
	}
	if s.Tier == TierManager {
		return managerClause(s, creator)
	}
	return deny(ReasonNotCreator)
}

// CanAddProjectMembers allows managers, admins, and the project creator to
// change the membership set.
func CanAddProjectMembers(s Subject, p ProjectRef) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	switch s.Tier {
	case TierAdmin:
		return allow(ReasonAdmin)
	case TierManager:
		return allow(ReasonManagerTier)
	}
	if p.ID == "" {
		return deny(ReasonMissingFacts)
	}
	if s.ID == p.CreatorID {
		return allow(ReasonCreator)
	}
	return deny(ReasonNotCreator)
}

// CanCreateTask gates task creation. A nil project means a personal task
// and is always allowed for an authenticated subject. An inactive project
// denies before every other clause, admin included: the caller surfaces
// that denial as not-found so archived projects stay unobservable.
func CanCreateTask(s Subject, p *ProjectRef, f Facts) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if p == nil {
		return allow(ReasonPersonalTask)
	}
	if p.ID == "" {
		return deny(ReasonMissingFacts)
	}
	if !p.Active {
		return deny(ReasonProjectInactive)
	}
	if s.Tier == TierAdmin {
		return allow(ReasonAdmin)
	}
	if !f.Resolved {
		return deny(ReasonMissingFacts)
	}
	if f.IsCreator {
		return allow(ReasonCreator)
	}
	if f.IsMember {
		return allow(ReasonMember)
	}
	if s.Tier == TierManager {
		return managerClause(s, f.Creator)
	}
	return deny(ReasonNotMember)
}

// CanModifyTask gates updates, assignment changes and deletion of a task.
// Personal tasks accept only the admin and assignee clauses; the manager
// division/hierarchy override applies solely to project-owned tasks.
func CanModifyTask(s Subject, t TaskRef, p *ProjectRef, f Facts) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if s.Tier == TierAdmin {
		return allow(ReasonAdmin)
	}
	if t.ID == "" || !f.Resolved {
		return deny(ReasonMissingFacts)
	}
	if f.IsAssignee {
		return allow(ReasonAssignee)
	}
	if t.ProjectID == "" {
		return deny(ReasonNotAssignee)
	}
	if p == nil || p.ID == "" {
		return deny(ReasonMissingFacts)
	}
	if f.IsCreator {
		return allow(ReasonCreator)
	}
	if f.IsMember {
		return allow(ReasonMember)
	}
	if s.Tier == TierManager {
		return managerClause(s, f.Creator)
	}
	return deny(ReasonNotMember)
}

// CanViewProject gates read access to a project and its membership list:
// admin, creator, members, and managers who outrank the creator.
func CanViewProject(s Subject, p ProjectRef, f Facts) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if s.Tier == TierAdmin {
		return allow(ReasonAdmin)
	}
	if p.ID == "" || !f.Resolved {
		return deny(ReasonMissingFacts)
	}
	if f.IsCreator {
		return allow(ReasonCreator)
	}
	if f.IsMember {
		return allow(ReasonMember)
	}
	if s.Tier == TierManager {
		return managerClause(s, f.Creator)
	}
	return deny(ReasonNotMember)
}

// CanViewSubject gates visibility of another user: admins see everyone,
// everyone sees themselves, and managers see subjects they strictly
// outrank within their own division.
func CanViewSubject(s Subject, target Subject) Decision {
	if !s.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if s.Tier == TierAdmin {
		return allow(ReasonAdmin)
	}
	if !target.Authenticated() {
		return deny(ReasonMissingFacts)
	}
	if s.ID == target.ID {
		return allow(ReasonSelf)
	}
	if s.Tier == TierManager {
		return managerClause(s, target)
	}
	return deny(ReasonNotVisible)
}

// managerClause is the shared manager override: same division as the
// target's owner and strictly greater hierarchy. Equal hierarchy denies.
func managerClause(s Subject, owner Subject) Decision {
	if !owner.Authenticated() {
		return deny(ReasonMissingFacts)
	}
	if !s.SameDivision(owner) {
		return deny(ReasonDivisionMismatch)
	}
	if s.Hierarchy > owner.Hierarchy {
		return allow(ReasonManagerOutranks)
	}
	return deny(ReasonHierarchyNotGreater)
}
