package policy

import "testing"

func strptr(s string) *string { return &s }

func admin(id string) Subject {
	return Subject{ID: id, Tier: TierAdmin, Hierarchy: 1}
}

func manager(id string, hierarchy int, division string) Subject {
	return Subject{ID: id, Tier: TierManager, Hierarchy: hierarchy, Division: strptr(division)}
}

func staff(id string, hierarchy int, division string) Subject {
	s := Subject{ID: id, Tier: TierStaff, Hierarchy: hierarchy}
	if division != "" {
		s.Division = strptr(division)
	}
	return s
}

func TestAdminAlwaysAllowed(t *testing.T) {
	a := admin("1")
	creator := manager("9", 99, "Sales")
	project := ProjectRef{ID: "p1", CreatorID: "9", Active: true}
	task := TaskRef{ID: "t1", ProjectID: "p1"}
	noRelation := Facts{Resolved: true, Creator: creator}

	checks := map[string]Decision{
		"create_project": CanCreateProject(a),
		"edit_project":   CanEditProject(a, project, creator),
		"add_members":    CanAddProjectMembers(a, project),
		"create_task":    CanCreateTask(a, &project, noRelation),
		"modify_task":    CanModifyTask(a, task, &project, noRelation),
		"view_subject":   CanViewSubject(a, creator),
	}
	for name, d := range checks {
		if !d.Allowed {
			t.Fatalf("%s: admin denied with reason %s", name, d.Reason)
		}
		if name != "create_project" && d.Reason != ReasonAdmin {
			t.Fatalf("%s: expected admin clause, got %s", name, d.Reason)
		}
	}
}

// The edit rule is a disjunction of three clauses; enumerate every
// combination of them holding or failing.
func TestCanEditProjectTruthTable(t *testing.T) {
	creator := manager("owner", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "owner", Active: true}

	for _, tc := range []struct {
		name       string
		isAdmin    bool
		isCreator  bool
		outranking bool
	}{
		{"none", false, false, false},
		{"outranks", false, false, true},
		{"creator", false, true, false},
		{"creator+outranks", false, true, true},
		{"admin", true, false, false},
		{"admin+outranks", true, false, true},
		{"admin+creator", true, true, false},
		{"admin+creator+outranks", true, true, true},
	} {
		s := Subject{ID: "other", Tier: TierStaff, Hierarchy: 2, Division: strptr("Eng")}
		if tc.isAdmin {
			s.Tier = TierAdmin
		}
		if tc.isCreator {
			s.ID = "owner"
		}
		if tc.outranking {
			s.Hierarchy = 3
			if !tc.isAdmin {
				s.Tier = TierManager
			}
		}
		want := tc.isAdmin || tc.isCreator || tc.outranking
		got := CanEditProject(s, project, creator)
		if got.Allowed != want {
			t.Fatalf("%s: allowed=%v want %v (reason %s)", tc.name, got.Allowed, want, got.Reason)
		}
	}
}

func TestEqualHierarchyDenied(t *testing.T) {
	creator := manager("1", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	d := CanEditProject(manager("2", 2, "Eng"), project, creator)
	if d.Allowed {
		t.Fatalf("equal hierarchy must deny")
	}
	if d.Reason != ReasonHierarchyNotGreater {
		t.Fatalf("expected hierarchy_not_greater, got %s", d.Reason)
	}
}

func TestDivisionMismatchDenied(t *testing.T) {
	creator := manager("1", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	d := CanEditProject(manager("2", 3, "Sales"), project, creator)
	if d.Allowed {
		t.Fatalf("cross-division manager must deny regardless of hierarchy")
	}
	if d.Reason != ReasonDivisionMismatch {
		t.Fatalf("expected division_mismatch, got %s", d.Reason)
	}
}

func TestUnsetDivisionNeverMatches(t *testing.T) {
	creator := Subject{ID: "1", Tier: TierManager, Hierarchy: 1}
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	s := Subject{ID: "2", Tier: TierManager, Hierarchy: 5}
	if d := CanEditProject(s, project, creator); d.Allowed {
		t.Fatalf("two unset divisions must not match each other")
	}
}

func TestInactiveProjectGatesTaskCreation(t *testing.T) {
	creator := manager("1", 2, "Eng")
	archived := ProjectRef{ID: "p1", CreatorID: "1", Active: false}

	// Even the creator with full relationship facts is denied.
	facts := Facts{Resolved: true, Creator: creator, IsCreator: true, IsAssignee: true, IsMember: true}
	d := CanCreateTask(creator, &archived, facts)
	if d.Allowed {
		t.Fatalf("archived project must deny task creation for the creator")
	}
	if d.Reason != ReasonProjectInactive {
		t.Fatalf("expected project_inactive, got %s", d.Reason)
	}
	// The status gate precedes the admin clause: it stands in for
	// not-found, so archived projects stay unobservable.
	if d := CanCreateTask(admin("9"), &archived, facts); d.Allowed {
		t.Fatalf("archived project must deny task creation for admin")
	}
}

func TestPersonalTaskAlwaysCreatable(t *testing.T) {
	d := CanCreateTask(staff("3", 1, ""), nil, Facts{})
	if !d.Allowed || d.Reason != ReasonPersonalTask {
		t.Fatalf("personal task create: %+v", d)
	}
}

func TestTaskCreateMemberAllowed(t *testing.T) {
	creator := manager("1", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	d := CanCreateTask(staff("3", 1, "Eng"), &project, Facts{Resolved: true, Creator: creator, IsMember: true})
	if !d.Allowed || d.Reason != ReasonMember {
		t.Fatalf("member should create tasks: %+v", d)
	}
}

func TestStaffDivisionAloneGrantsNothing(t *testing.T) {
	creator := manager("1", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	task := TaskRef{ID: "t1", ProjectID: "p1"}
	// Same division as the creator but no relationship at all.
	s := staff("3", 1, "Eng")
	d := CanModifyTask(s, task, &project, Facts{Resolved: true, Creator: creator})
	if d.Allowed {
		t.Fatalf("staff without any relation must be denied despite matching division")
	}
	if d.Reason != ReasonNotMember {
		t.Fatalf("expected not_member, got %s", d.Reason)
	}
}

func TestPersonalTaskSkipsManagerOverride(t *testing.T) {
	owner := staff("3", 1, "Eng")
	task := TaskRef{ID: "t1"} // no project
	boss := manager("2", 9, "Eng")
	d := CanModifyTask(boss, task, nil, Facts{Resolved: true, Creator: owner})
	if d.Allowed {
		t.Fatalf("manager override must not apply to personal tasks")
	}
	if d.Reason != ReasonNotAssignee {
		t.Fatalf("expected not_assignee, got %s", d.Reason)
	}
	// The assignee clause still applies.
	d = CanModifyTask(boss, task, nil, Facts{Resolved: true, IsAssignee: true})
	if !d.Allowed || d.Reason != ReasonAssignee {
		t.Fatalf("assignee on personal task: %+v", d)
	}
}

func TestMissingFactsDeny(t *testing.T) {
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	task := TaskRef{ID: "t1", ProjectID: "p1"}
	s := manager("2", 9, "Eng")
	if d := CanCreateTask(s, &project, Facts{}); d.Allowed || d.Reason != ReasonMissingFacts {
		t.Fatalf("unresolved facts must deny: %+v", d)
	}
	if d := CanModifyTask(s, task, &project, Facts{}); d.Allowed || d.Reason != ReasonMissingFacts {
		t.Fatalf("unresolved facts must deny: %+v", d)
	}
	if d := CanEditProject(s, ProjectRef{}, Subject{}); d.Allowed || d.Reason != ReasonMissingFacts {
		t.Fatalf("absent project must deny: %+v", d)
	}
}

func TestUnauthenticatedDeniesEverything(t *testing.T) {
	var anon Subject
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}
	task := TaskRef{ID: "t1", ProjectID: "p1"}
	facts := Facts{Resolved: true, IsCreator: true, IsAssignee: true, IsMember: true}
	decisions := []Decision{
		CanCreateProject(anon),
		CanEditProject(anon, project, manager("1", 1, "Eng")),
		CanAddProjectMembers(anon, project),
		CanCreateTask(anon, nil, facts),
		CanCreateTask(anon, &project, facts),
		CanModifyTask(anon, task, &project, facts),
		CanViewSubject(anon, staff("3", 1, "")),
	}
	for i, d := range decisions {
		if d.Allowed || d.Reason != ReasonUnauthenticated {
			t.Fatalf("check %d: expected unauthenticated denial, got %+v", i, d)
		}
	}
}

func TestCanAddProjectMembers(t *testing.T) {
	project := ProjectRef{ID: "p1", CreatorID: "3", Active: true}
	if d := CanAddProjectMembers(manager("2", 1, "Eng"), project); !d.Allowed {
		t.Fatalf("manager should add members: %+v", d)
	}
	if d := CanAddProjectMembers(staff("3", 1, ""), project); !d.Allowed || d.Reason != ReasonCreator {
		t.Fatalf("creator should add members: %+v", d)
	}
	if d := CanAddProjectMembers(staff("4", 1, ""), project); d.Allowed {
		t.Fatalf("unrelated staff must not add members: %+v", d)
	}
}

func TestCanViewSubject(t *testing.T) {
	target := staff("3", 1, "Eng")
	if d := CanViewSubject(staff("3", 1, "Eng"), target); !d.Allowed || d.Reason != ReasonSelf {
		t.Fatalf("self view: %+v", d)
	}
	if d := CanViewSubject(manager("2", 3, "Eng"), target); !d.Allowed || d.Reason != ReasonManagerOutranks {
		t.Fatalf("outranking manager view: %+v", d)
	}
	if d := CanViewSubject(manager("2", 1, "Eng"), target); d.Allowed {
		t.Fatalf("equal hierarchy view must deny: %+v", d)
	}
	if d := CanViewSubject(staff("4", 9, "Eng"), target); d.Allowed || d.Reason != ReasonNotVisible {
		t.Fatalf("staff view of other: %+v", d)
	}
}

// Literal scenarios kept as a regression block.
func TestScenarios(t *testing.T) {
	creator := manager("1", 2, "Eng")
	project := ProjectRef{ID: "p1", CreatorID: "1", Active: true}

	if d := CanEditProject(admin("1"), project, creator); !d.Allowed {
		t.Fatalf("scenario 1: admin edit: %+v", d)
	}
	if d := CanEditProject(manager("2", 3, "Eng"), project, creator); !d.Allowed {
		t.Fatalf("scenario 2: outranking manager edit: %+v", d)
	}
	if d := CanEditProject(manager("2", 2, "Eng"), project, creator); d.Allowed {
		t.Fatalf("scenario 3: peer manager edit must deny: %+v", d)
	}
	if d := CanCreateProject(staff("3", 1, "")); d.Allowed {
		t.Fatalf("scenario 4: staff create project must deny: %+v", d)
	}
	task := TaskRef{ID: "10", ProjectID: "p1"}
	if d := CanModifyTask(staff("3", 1, ""), task, &project, Facts{Resolved: true, Creator: creator, IsAssignee: true}); !d.Allowed {
		t.Fatalf("scenario 5: assignee modify: %+v", d)
	}
	scope := ScopeFor(manager("2", 3, "Eng"))
	if scope.Kind != ScopeDivision || scope.Division != "Eng" || scope.HierarchyBelow != 3 {
		t.Fatalf("scenario 6: scope %+v", scope)
	}
}
