package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crewdesk/internal/config"
	"crewdesk/internal/db"
	"crewdesk/internal/domain"
	"crewdesk/internal/engine"
	"crewdesk/internal/migrate"
	"crewdesk/internal/policy"
	"crewdesk/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	// first user bootstraps as admin
	if _, err := eng.CreateUser(ctx, "", engine.UserCreateOptions{ID: "root", Name: "Root"}); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) seedUser(t *testing.T, id, role, division, department string, hierarchy int) {
	t.Helper()
	opts := engine.UserCreateOptions{
		ID:         id,
		Name:       id,
		Role:       role,
		Division:   division,
		Department: department,
	}
	if hierarchy > 0 {
		opts.Hierarchy = &hierarchy
	}
	if _, err := env.Engine.CreateUser(env.Ctx, "root", opts); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func isForbidden(err error, reason string) bool {
	var fe policy.ForbiddenError
	return errors.As(err, &fe) && fe.Reason == reason
}

func TestBootstrapFirstUserIsAdmin(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.GetUser(env.Ctx, "root", "root")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	if u.Role != "admin" {
		t.Fatalf("bootstrap role = %q, want admin", u.Role)
	}
	// second creation requires admin
	env.seedUser(t, "alice", "staff", "Eng", "Eng.Backend", 1)
	_, err = env.Engine.CreateUser(env.Ctx, "alice", engine.UserCreateOptions{Name: "intruder"})
	if !isForbidden(err, policy.ReasonTierTooLow) {
		t.Fatalf("staff user creation = %v, want tier_too_low", err)
	}
}

func TestProjectCreateRequiresManagerTier(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)

	if _, err := env.Engine.CreateProject(env.Ctx, "alice", engine.ProjectCreateOptions{Name: "nope"}); !isForbidden(err, policy.ReasonTierTooLow) {
		t.Fatalf("staff create project = %v, want tier_too_low", err)
	}
	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatalf("manager create project: %v", err)
	}
	if p.CreatorID != "mila" || p.Status != domain.StatusActive {
		t.Fatalf("unexpected project %+v", p)
	}
}

func TestProjectEditHierarchy(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 2)
	env.seedUser(t, "dana", "manager", "Eng", "", 3)
	env.seedUser(t, "peer", "manager", "Eng", "", 2)
	env.seedUser(t, "sala", "manager", "Sales", "", 5)

	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatal(err)
	}
	desc := "updated"

	// creator edits
	if _, err := env.Engine.UpdateProject(env.Ctx, "mila", p.ID, engine.ProjectUpdateOptions{Description: &desc}); err != nil {
		t.Fatalf("creator edit: %v", err)
	}
	// strictly higher manager in the same division edits
	if _, err := env.Engine.UpdateProject(env.Ctx, "dana", p.ID, engine.ProjectUpdateOptions{Description: &desc}); err != nil {
		t.Fatalf("senior manager edit: %v", err)
	}
	// equal hierarchy denied
	if _, err := env.Engine.UpdateProject(env.Ctx, "peer", p.ID, engine.ProjectUpdateOptions{Description: &desc}); !isForbidden(err, policy.ReasonHierarchyNotGreater) {
		t.Fatalf("peer edit = %v, want hierarchy_not_greater", err)
	}
	// other division denied regardless of rank
	if _, err := env.Engine.UpdateProject(env.Ctx, "sala", p.ID, engine.ProjectUpdateOptions{Description: &desc}); !isForbidden(err, policy.ReasonDivisionMismatch) {
		t.Fatalf("cross-division edit = %v, want division_mismatch", err)
	}
	// admin edits anything
	if _, err := env.Engine.ArchiveProject(env.Ctx, "root", p.ID); err != nil {
		t.Fatalf("admin archive: %v", err)
	}
}

func TestTaskCreateOnArchivedProjectReportsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)

	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ArchiveProject(env.Ctx, "mila", p.ID); err != nil {
		t.Fatal(err)
	}
	// creator and admin alike get not-found, never forbidden
	if _, err := env.Engine.CreateTask(env.Ctx, "mila", engine.TaskCreateOptions{ProjectID: p.ID, Title: "late"}); err != repo.ErrNotFound {
		t.Fatalf("creator on archived = %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, "root", engine.TaskCreateOptions{ProjectID: p.ID, Title: "late"}); err != repo.ErrNotFound {
		t.Fatalf("admin on archived = %v, want ErrNotFound", err)
	}
}

func TestPersonalTasks(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)
	env.seedUser(t, "bob", "staff", "Eng", "", 1)
	env.seedUser(t, "mila", "manager", "Eng", "", 5)

	task, err := env.Engine.CreateTask(env.Ctx, "alice", engine.TaskCreateOptions{Title: "errand"})
	if err != nil {
		t.Fatalf("personal task: %v", err)
	}
	if !task.Personal() {
		t.Fatalf("task should be personal: %+v", task)
	}
	done := "done"
	// creator is not automatically an assignee; only assignees and admins touch personal tasks
	if _, err := env.Engine.UpdateTask(env.Ctx, "bob", task.ID, engine.TaskUpdateOptions{Status: &done}); !isForbidden(err, policy.ReasonNotAssignee) {
		t.Fatalf("other staff update = %v, want not_assignee", err)
	}
	// the manager division override does not reach personal tasks
	if _, err := env.Engine.UpdateTask(env.Ctx, "mila", task.ID, engine.TaskUpdateOptions{Status: &done}); !isForbidden(err, policy.ReasonNotAssignee) {
		t.Fatalf("manager update = %v, want not_assignee", err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "root", task.ID, []string{"bob"}); err != nil {
		t.Fatalf("admin assign: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, "bob", task.ID, engine.TaskUpdateOptions{Status: &done}); err != nil {
		t.Fatalf("assignee update: %v", err)
	}
}

func TestMembersCanCreateAndModifyTasks(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)
	env.seedUser(t, "bob", "staff", "Sales", "", 1)

	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, "mila", p.ID, "alice"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, "alice", engine.TaskCreateOptions{ProjectID: p.ID, Title: "ship"})
	if err != nil {
		t.Fatalf("member create task: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, "bob", engine.TaskCreateOptions{ProjectID: p.ID, Title: "nope"}); !isForbidden(err, policy.ReasonNotMember) {
		t.Fatalf("outsider create task = %v, want not_member", err)
	}
	status := "in_progress"
	if _, err := env.Engine.UpdateTask(env.Ctx, "alice", task.ID, engine.TaskUpdateOptions{Status: &status}); err != nil {
		t.Fatalf("member update task: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, "bob", task.ID); !isForbidden(err, policy.ReasonNotMember) {
		t.Fatalf("outsider delete = %v, want not_member", err)
	}
}

func TestTaskCreatorLosesAccessWithMembership(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)
	env.seedUser(t, "bob", "staff", "Eng", "", 1)

	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, "mila", p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, "bob", engine.TaskCreateOptions{ProjectID: p.ID, Title: "ship"})
	if err != nil {
		t.Fatalf("member create task: %v", err)
	}
	if err := env.Engine.RemoveMember(env.Ctx, "mila", p.ID, "bob"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	// having created the task grants nothing once the membership is gone;
	// the creator clause belongs to the owning project's creator
	done := "done"
	if _, err := env.Engine.UpdateTask(env.Ctx, "bob", task.ID, engine.TaskUpdateOptions{Status: &done}); !isForbidden(err, policy.ReasonNotMember) {
		t.Fatalf("ex-member update = %v, want not_member", err)
	}
	// the project creator keeps the creator clause over every task in it
	if _, err := env.Engine.UpdateTask(env.Ctx, "mila", task.ID, engine.TaskUpdateOptions{Status: &done}); err != nil {
		t.Fatalf("project creator update: %v", err)
	}
}

func TestScopeDrivenProjectListing(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 5)
	env.seedUser(t, "lena", "manager", "Eng", "", 2)
	env.seedUser(t, "sala", "manager", "Sales", "", 2)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)

	pl, err := env.Engine.CreateProject(env.Ctx, "lena", engine.ProjectCreateOptions{Name: "eng-junior"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, "sala", engine.ProjectCreateOptions{Name: "sales"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, "lena", pl.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	// admin sees both
	all, err := env.Engine.ListProjects(env.Ctx, "root", repo.ProjectFilters{})
	if err != nil || len(all) != 2 {
		t.Fatalf("admin list = %d projects, err %v", len(all), err)
	}
	// senior Eng manager sees the junior Eng manager's project but not Sales
	mine, err := env.Engine.ListProjects(env.Ctx, "mila", repo.ProjectFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != pl.ID {
		t.Fatalf("manager scope = %+v, want only %s", mine, pl.ID)
	}
	// member sees projects they belong to
	member, err := env.Engine.ListProjects(env.Ctx, "alice", repo.ProjectFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(member) != 1 || member[0].ID != pl.ID {
		t.Fatalf("member scope = %+v, want only %s", member, pl.ID)
	}
	// junior manager does not see the senior's absence either way
	if _, err := env.Engine.ListProjects(env.Ctx, "", repo.ProjectFilters{}); err != engine.ErrUnauthenticated {
		t.Fatalf("anonymous list = %v, want ErrUnauthenticated", err)
	}
}

func TestUserVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)
	env.seedUser(t, "bob", "staff", "Sales", "", 1)

	if _, err := env.Engine.GetUser(env.Ctx, "alice", "alice"); err != nil {
		t.Fatalf("self view: %v", err)
	}
	if _, err := env.Engine.GetUser(env.Ctx, "alice", "bob"); !isForbidden(err, policy.ReasonNotVisible) {
		t.Fatalf("staff peer view = %v, want not_visible", err)
	}
	if _, err := env.Engine.GetUser(env.Ctx, "mila", "alice"); err != nil {
		t.Fatalf("manager views subordinate: %v", err)
	}
	if _, err := env.Engine.GetUser(env.Ctx, "mila", "bob"); !isForbidden(err, policy.ReasonDivisionMismatch) {
		t.Fatalf("manager cross-division view = %v, want division_mismatch", err)
	}
	subs, err := env.Engine.ListSubordinates(env.Ctx, "mila")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].ID != "alice" {
		t.Fatalf("subordinates = %+v, want alice", subs)
	}
}

func TestDecideDiagnostic(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)
	env.seedUser(t, "alice", "staff", "Eng", "", 1)

	d, err := env.Engine.Decide(env.Ctx, "alice", "project.create", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != policy.ReasonTierTooLow {
		t.Fatalf("decide = %+v, want deny tier_too_low", d)
	}
	d, err = env.Engine.Decide(env.Ctx, "mila", "user.view", "", "", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Reason != policy.ReasonManagerOutranks {
		t.Fatalf("decide = %+v, want allow manager_outranks", d)
	}
	// decisions never mutate; an unknown actor still yields a decision
	d, err = env.Engine.Decide(env.Ctx, "", "task.create", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != policy.ReasonUnauthenticated {
		t.Fatalf("decide = %+v, want deny unauthenticated", d)
	}
}

func TestDepartmentReport(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "Eng", 5)
	env.seedUser(t, "alice", "staff", "Eng", "Eng.Backend", 1)
	env.seedUser(t, "ben", "staff", "Eng", "Eng.Backend.Infra", 1)
	env.seedUser(t, "sue", "staff", "Sales", "Sales", 1)

	rep, err := env.Engine.Report(env.Ctx, "root", "Eng.Backend")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Members) != 2 {
		t.Fatalf("admin report members = %+v, want alice and ben", rep.Members)
	}
	// manager reports are limited to subjects they can view
	rep, err = env.Engine.Report(env.Ctx, "mila", "Eng")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range rep.Members {
		if m.ID == "sue" {
			t.Fatalf("cross-division member leaked into report: %+v", rep.Members)
		}
	}
	if len(rep.Members) != 3 {
		t.Fatalf("manager report = %+v, want mila, alice, ben", rep.Members)
	}
	if _, err := env.Engine.Report(env.Ctx, "alice", "Eng"); !isForbidden(err, policy.ReasonTierTooLow) {
		t.Fatalf("staff report = %v, want tier_too_low", err)
	}
}

func TestEventsAreAppended(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mila", "manager", "Eng", "", 3)
	p, err := env.Engine.CreateProject(env.Ctx, "mila", engine.ProjectCreateOptions{Name: "rollout"})
	if err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, p.ID, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Type != "project.created" || evts[0].ActorID != "mila" {
		t.Fatalf("events = %+v, want one project.created by mila", evts)
	}
}
