// Package policy decides whether a subject may act on a project, task or
// user. Every function here is pure: inputs are resolved by the caller
// (engine), decisions carry the clause that granted or refused access, and
// anything unresolved denies.
package policy

import (
	"strings"

	"crewdesk/internal/domain"
)

// Tier is the coarse role ordering: staff < manager < admin.
type Tier int

const (
	TierStaff Tier = iota
	TierManager
	TierAdmin
)

var tierNames = [...]string{"staff", "manager", "admin"}

func (t Tier) String() string {
	if t >= 0 && int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "staff"
}

// ParseTier maps a role string to a tier. Unknown or empty roles fall back
// to staff.
func ParseTier(role string) Tier {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin":
		return TierAdmin
	case "manager":
		return TierManager
	default:
		return TierStaff
	}
}

// Subject is the canonical acting identity. The zero value is the
// unauthenticated sentinel: Authenticated() is false and every policy
// function denies it.
type Subject struct {
	ID         string
	Tier       Tier
	Hierarchy  int
	Division   *string
	Department *string
}

func (s Subject) Authenticated() bool {
	return s.ID != ""
}

// SameDivision reports whether both subjects carry a set division and the
// two are equal. Comparison is exact; an unset division matches nothing,
// including another unset division.
func (s Subject) SameDivision(o Subject) bool {
	return s.Division != nil && o.Division != nil && *s.Division == *o.Division
}

// Outranks reports strict hierarchy seniority over another subject in the
// same division. Equal hierarchy never outranks.
func (s Subject) Outranks(o Subject) bool {
	return s.SameDivision(o) && s.Hierarchy > o.Hierarchy
}

// Normalizer builds Subjects from raw user records, defaulting every
// missing attribute to least privilege.
type Normalizer struct {
	// RoleAliases maps org-specific role names (e.g. "supervisor") onto
	// the canonical staff/manager/admin names before tier parsing.
	RoleAliases map[string]string
	// DefaultHierarchy is used when the record has no positive rank.
	// Zero means 1.
	DefaultHierarchy int
}

// Normalize converts a raw user into a Subject. A nil user yields the
// unauthenticated sentinel, never an error.
func (n Normalizer) Normalize(raw *domain.User) Subject {
	if raw == nil || raw.ID == "" {
		return Subject{}
	}
	role := strings.ToLower(strings.TrimSpace(raw.Role))
	if alias, ok := n.RoleAliases[role]; ok {
		role = alias
	}
	hierarchy := n.DefaultHierarchy
	if hierarchy <= 0 {
		hierarchy = 1
	}
	if raw.Hierarchy != nil && *raw.Hierarchy > 0 {
		hierarchy = *raw.Hierarchy
	}
	return Subject{
		ID:         raw.ID,
		Tier:       ParseTier(role),
		Hierarchy:  hierarchy,
		Division:   cloneSet(raw.Division),
		Department: cloneSet(raw.Department),
	}
}

// cloneSet copies an optional string, treating empty as unset so a blank
// column can never satisfy a division or department match.
func cloneSet(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	s := *v
	return &s
}
