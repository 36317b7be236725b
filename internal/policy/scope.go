package policy

import "encoding/json"

// ScopeKind selects the shape of a visibility scope.
type ScopeKind int

const (
	// ScopeOwner restricts listing to resources the subject created and,
	// when IncludeMemberships is set, resources they are a member or
	// assignee of. The exact membership condition belongs to the
	// persistence layer.
	ScopeOwner ScopeKind = iota
	// ScopeDivision restricts listing to resources whose owner is in
	// Division with hierarchy strictly below HierarchyBelow.
	ScopeDivision
	// ScopeUnrestricted lists everything.
	ScopeUnrestricted
)

var scopeKindNames = [...]string{"owner_only", "division_bounded", "unrestricted"}

func (k ScopeKind) String() string {
	if k >= 0 && int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}
	return "owner_only"
}

func (k ScopeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Scope is a declarative filter descriptor: it names the set of resources
// a subject may enumerate without executing any query. The repo layer
// translates it into SQL.
type Scope struct {
	Kind               ScopeKind `json:"kind"`
	SubjectID          string    `json:"subject_id,omitempty"`
	IncludeMemberships bool      `json:"include_memberships,omitempty"`
	Division           string    `json:"division,omitempty"`
	HierarchyBelow     int       `json:"hierarchy_below,omitempty"`
}

// ScopeFor derives the visibility scope of a subject.
//
// Admins are unrestricted. Managers with a set division see resources
// whose owner sits strictly below them in that division: the mirror of
// the strict greater-than edit rule, because here the subject must
// outrank the owner rather than the other way round. Staff see only what
// they own or belong to. An unauthenticated subject, or a manager with no
// division on record, collapses to an owner-only scope; for the
// unauthenticated case the empty subject id matches nothing, keeping the
// builder fail-closed.
func ScopeFor(s Subject) Scope {
	switch {
	case !s.Authenticated():
		return Scope{Kind: ScopeOwner}
	case s.Tier == TierAdmin:
		return Scope{Kind: ScopeUnrestricted}
	case s.Tier == TierManager && s.Division != nil:
		return Scope{
			Kind:           ScopeDivision,
			Division:       *s.Division,
			HierarchyBelow: s.Hierarchy,
		}
	default:
		return Scope{
			Kind:               ScopeOwner,
			SubjectID:          s.ID,
			IncludeMemberships: true,
		}
	}
}
