package policy

import "fmt"

// Clause codes reported in decisions. Allow codes name the clause that
// granted access; deny codes name the first clause that refused it.
const (
	ReasonAdmin           = "admin"
	ReasonManagerTier     = "manager_tier"
	ReasonCreator         = "creator"
	ReasonAssignee        = "assignee"
	ReasonMember          = "member"
	ReasonManagerOutranks = "manager_outranks"
	ReasonPersonalTask    = "personal_task"
	ReasonSelf            = "self"

	ReasonUnauthenticated     = "unauthenticated"
	ReasonMissingFacts        = "missing_facts"
	ReasonTierTooLow          = "tier_too_low"
	ReasonNotCreator          = "not_creator"
	ReasonNotMember           = "not_member"
	ReasonNotAssignee         = "not_assignee"
	ReasonDivisionMismatch    = "division_mismatch"
	ReasonHierarchyNotGreater = "hierarchy_not_greater"
	ReasonProjectInactive     = "project_inactive"
	ReasonNotVisible          = "not_visible"
)

// Decision is the outcome of one policy evaluation. Reason identifies the
// matched (or failed) clause for diagnostics; it never changes the boolean.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ForbiddenError is returned by callers that convert a denying Decision
// into an error. Reason carries the failing clause code.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Err converts a decision into an error: nil when allowed, ForbiddenError
// carrying the clause code when denied.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ForbiddenError{Reason: d.Reason}
}
