package policy

import (
	"testing"

	"crewdesk/internal/domain"
)

func TestNormalizeDefaults(t *testing.T) {
	var n Normalizer
	s := n.Normalize(&domain.User{ID: "u1"})
	if s.Tier != TierStaff {
		t.Fatalf("missing role must default to staff, got %s", s.Tier)
	}
	if s.Hierarchy != 1 {
		t.Fatalf("missing hierarchy must default to 1, got %d", s.Hierarchy)
	}
	if s.Division != nil || s.Department != nil {
		t.Fatalf("missing division/department must stay unset")
	}
}

func TestNormalizeNilUser(t *testing.T) {
	var n Normalizer
	s := n.Normalize(nil)
	if s.Authenticated() {
		t.Fatalf("nil user must yield the unauthenticated sentinel")
	}
}

func TestNormalizeEmptyStringsUnset(t *testing.T) {
	var n Normalizer
	empty := ""
	s := n.Normalize(&domain.User{ID: "u1", Division: &empty, Department: &empty})
	if s.Division != nil || s.Department != nil {
		t.Fatalf("empty-string division/department must normalize to unset")
	}
	// Two subjects with blank divisions must not match each other.
	if s.SameDivision(n.Normalize(&domain.User{ID: "u2", Division: &empty})) {
		t.Fatalf("blank divisions must never compare equal")
	}
}

func TestNormalizeRoleAliases(t *testing.T) {
	n := Normalizer{RoleAliases: map[string]string{"supervisor": "manager", "administrator": "admin"}}
	if s := n.Normalize(&domain.User{ID: "u1", Role: "Supervisor"}); s.Tier != TierManager {
		t.Fatalf("alias supervisor should map to manager, got %s", s.Tier)
	}
	if s := n.Normalize(&domain.User{ID: "u2", Role: "administrator"}); s.Tier != TierAdmin {
		t.Fatalf("alias administrator should map to admin, got %s", s.Tier)
	}
	if s := n.Normalize(&domain.User{ID: "u3", Role: "wizard"}); s.Tier != TierStaff {
		t.Fatalf("unknown role must fall back to staff, got %s", s.Tier)
	}
}

func TestNormalizeHierarchy(t *testing.T) {
	n := Normalizer{DefaultHierarchy: 2}
	if s := n.Normalize(&domain.User{ID: "u1"}); s.Hierarchy != 2 {
		t.Fatalf("configured default hierarchy not applied, got %d", s.Hierarchy)
	}
	zero := 0
	if s := n.Normalize(&domain.User{ID: "u2", Hierarchy: &zero}); s.Hierarchy != 2 {
		t.Fatalf("non-positive stored hierarchy must use default, got %d", s.Hierarchy)
	}
	five := 5
	if s := n.Normalize(&domain.User{ID: "u3", Hierarchy: &five}); s.Hierarchy != 5 {
		t.Fatalf("stored hierarchy lost, got %d", s.Hierarchy)
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{
		"admin":    TierAdmin,
		" Manager": TierManager,
		"staff":    TierStaff,
		"":         TierStaff,
		"intern":   TierStaff,
	} {
		if got := ParseTier(in); got != want {
			t.Fatalf("ParseTier(%q) = %s, want %s", in, got, want)
		}
	}
}
