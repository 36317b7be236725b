package policy

import "testing"

func TestScopeForAdmin(t *testing.T) {
	if s := ScopeFor(admin("1")); s.Kind != ScopeUnrestricted {
		t.Fatalf("admin scope: %+v", s)
	}
}

func TestScopeForManager(t *testing.T) {
	s := ScopeFor(manager("2", 3, "Eng"))
	if s.Kind != ScopeDivision {
		t.Fatalf("manager scope kind: %+v", s)
	}
	if s.Division != "Eng" || s.HierarchyBelow != 3 {
		t.Fatalf("manager scope bounds: %+v", s)
	}
}

func TestScopeForManagerWithoutDivision(t *testing.T) {
	s := ScopeFor(Subject{ID: "2", Tier: TierManager, Hierarchy: 3})
	if s.Kind != ScopeOwner || s.SubjectID != "2" {
		t.Fatalf("division-less manager must collapse to owner scope: %+v", s)
	}
}

func TestScopeForStaff(t *testing.T) {
	s := ScopeFor(staff("3", 1, "Eng"))
	if s.Kind != ScopeOwner || s.SubjectID != "3" || !s.IncludeMemberships {
		t.Fatalf("staff scope: %+v", s)
	}
}

func TestScopeForUnauthenticated(t *testing.T) {
	s := ScopeFor(Subject{})
	if s.Kind != ScopeOwner || s.SubjectID != "" || s.IncludeMemberships {
		t.Fatalf("unauthenticated scope must match nothing: %+v", s)
	}
}
