package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"crewdesk/internal/domain"
	"crewdesk/internal/events"
	"crewdesk/internal/policy"
	"crewdesk/internal/repo"
)

type UserCreateOptions struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Hierarchy  *int
	Division   string
	Department string
}

// CreateUser creates a user record. Only admins may create users, with one
// exception: an empty store accepts the first user and forces it to admin
// so a fresh workspace can bootstrap itself.
func (e Engine) CreateUser(ctx context.Context, actorID string, opts UserCreateOptions) (domain.User, error) {
	if opts.Name == "" {
		return domain.User{}, errors.New("name is required")
	}
	count, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return domain.User{}, UnavailableError{Err: err}
	}
	bootstrap := count == 0
	actor := policy.Subject{}
	if !bootstrap {
		actor, err = e.ResolveSubject(ctx, actorID)
		if err != nil {
			return domain.User{}, err
		}
		if !actor.Authenticated() {
			return domain.User{}, ErrUnauthenticated
		}
		if actor.Tier != policy.TierAdmin {
			return domain.User{}, policy.ForbiddenError{Reason: policy.ReasonTierTooLow}
		}
	}
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if bootstrap {
		role = "admin"
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	u := domain.User{
		ID:         id,
		Name:       opts.Name,
		Email:      opts.Email,
		Role:       role,
		Hierarchy:  opts.Hierarchy,
		Division:   optionalString(opts.Division),
		Department: optionalString(opts.Department),
		CreatedAt:  e.timestamp(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	eventActor := actor.ID
	if bootstrap {
		eventActor = u.ID
	}
	if err := e.Events.Append(ctx, nil, "user.created", "", "user", u.ID, eventActor, events.EventPayload{"role": role}); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UpdateUser changes user attributes. Admin only: role, hierarchy and
// division are authorization inputs and must not be self-serviced.
func (e Engine) UpdateUser(ctx context.Context, actorID, userID string, upd repo.UserUpdate) (domain.User, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if !s.Authenticated() {
		return domain.User{}, ErrUnauthenticated
	}
	if s.Tier != policy.TierAdmin {
		return domain.User{}, policy.ForbiddenError{Reason: policy.ReasonTierTooLow}
	}
	if err := e.Repo.UpdateUser(ctx, userID, upd); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, nil, "user.updated", "", "user", userID, s.ID, nil); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// GetUser returns a user record if the actor is allowed to see it.
func (e Engine) GetUser(ctx context.Context, actorID, userID string) (domain.User, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err == repo.ErrNotFound {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, UnavailableError{Err: err}
	}
	if err := decisionErr(policy.CanViewSubject(s, e.Norm.Normalize(&u))); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, actorID string) ([]domain.User, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if s.Tier != policy.TierAdmin {
		return nil, policy.ForbiddenError{Reason: policy.ReasonTierTooLow}
	}
	return e.Repo.ListUsers(ctx)
}

// ListSubordinates returns the users the actor strictly outranks within
// their own division. Staff and subjects without a division get an empty
// list, admins get everyone.
func (e Engine) ListSubordinates(ctx context.Context, actorID string) ([]domain.User, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if s.Tier == policy.TierAdmin {
		return e.Repo.ListUsers(ctx)
	}
	if s.Tier != policy.TierManager || s.Division == nil {
		return nil, nil
	}
	return e.Repo.ListSubordinates(ctx, *s.Division, s.Hierarchy)
}

// DepartmentReport lists users under a department subtree, restricted to
// what the actor may see.
type DepartmentReport struct {
	Department  string        `json:"department"`
	Departments []string      `json:"departments"`
	Members     []domain.User `json:"members"`
}

func (e Engine) Report(ctx context.Context, actorID, department string) (DepartmentReport, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return DepartmentReport{}, err
	}
	if !s.Authenticated() {
		return DepartmentReport{}, ErrUnauthenticated
	}
	if s.Tier == policy.TierStaff {
		return DepartmentReport{}, policy.ForbiddenError{Reason: policy.ReasonTierTooLow}
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return DepartmentReport{}, UnavailableError{Err: err}
	}
	report := DepartmentReport{Department: department}
	seen := map[string]bool{}
	for _, u := range users {
		if u.Department == nil || !policy.InDepartment(department, *u.Department) {
			continue
		}
		target := e.Norm.Normalize(&u)
		if !policy.CanViewSubject(s, target).Allowed {
			continue
		}
		if !seen[*u.Department] {
			seen[*u.Department] = true
			report.Departments = append(report.Departments, *u.Department)
		}
		report.Members = append(report.Members, u)
	}
	return report, nil
}

// Decide evaluates a named authorization check and returns the decision
// without mutating anything. Used by the authz diagnostic endpoints.
func (e Engine) Decide(ctx context.Context, actorID, action, projectID, taskID, targetUserID string) (policy.Decision, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil && err != ErrUnauthenticated {
		return policy.Decision{}, err
	}

	loadProject := func() (*domain.Project, *policy.ProjectRef, policy.Facts, error) {
		if projectID == "" {
			return nil, nil, policy.Facts{}, nil
		}
		p, err := e.Repo.GetProject(ctx, projectID)
		if err == repo.ErrNotFound {
			return nil, nil, policy.Facts{}, nil
		}
		if err != nil {
			return nil, nil, policy.Facts{}, UnavailableError{Err: err}
		}
		f, err := e.projectFacts(ctx, s, p)
		if err != nil {
			return nil, nil, policy.Facts{}, err
		}
		ref := policy.ProjectRefOf(p)
		return &p, &ref, f, nil
	}

	switch action {
	case "project.create":
		return policy.CanCreateProject(s), nil
	case "project.edit":
		_, ref, f, err := loadProject()
		if err != nil {
			return policy.Decision{}, err
		}
		if ref == nil {
			return policy.CanEditProject(s, policy.ProjectRef{}, policy.Subject{}), nil
		}
		return policy.CanEditProject(s, *ref, f.Creator), nil
	case "project.members":
		_, ref, _, err := loadProject()
		if err != nil {
			return policy.Decision{}, err
		}
		if ref == nil {
			return policy.CanAddProjectMembers(s, policy.ProjectRef{}), nil
		}
		return policy.CanAddProjectMembers(s, *ref), nil
	case "project.view":
		_, ref, f, err := loadProject()
		if err != nil {
			return policy.Decision{}, err
		}
		if ref == nil {
			return policy.CanViewProject(s, policy.ProjectRef{}, policy.Facts{}), nil
		}
		return policy.CanViewProject(s, *ref, f), nil
	case "task.create":
		_, ref, f, err := loadProject()
		if err != nil {
			return policy.Decision{}, err
		}
		if projectID != "" && ref == nil {
			return policy.CanCreateTask(s, &policy.ProjectRef{}, policy.Facts{}), nil
		}
		return policy.CanCreateTask(s, ref, f), nil
	case "task.modify":
		if taskID == "" {
			return policy.CanModifyTask(s, policy.TaskRef{}, nil, policy.Facts{}), nil
		}
		t, err := e.Repo.GetTask(ctx, taskID)
		if err == repo.ErrNotFound {
			return policy.CanModifyTask(s, policy.TaskRef{}, nil, policy.Facts{}), nil
		}
		if err != nil {
			return policy.Decision{}, UnavailableError{Err: err}
		}
		var project *domain.Project
		var ref *policy.ProjectRef
		if !t.Personal() {
			p, err := e.Repo.GetProject(ctx, *t.ProjectID)
			if err != nil && err != repo.ErrNotFound {
				return policy.Decision{}, UnavailableError{Err: err}
			}
			if err == nil {
				project = &p
				r := policy.ProjectRefOf(p)
				ref = &r
			}
		}
		f, err := e.taskFacts(ctx, s, t, project)
		if err != nil {
			return policy.Decision{}, err
		}
		return policy.CanModifyTask(s, policy.TaskRefOf(t), ref, f), nil
	case "user.view":
		if targetUserID == "" {
			return policy.CanViewSubject(s, policy.Subject{}), nil
		}
		u, err := e.Repo.GetUser(ctx, targetUserID)
		if err == repo.ErrNotFound {
			return policy.CanViewSubject(s, policy.Subject{}), nil
		}
		if err != nil {
			return policy.Decision{}, UnavailableError{Err: err}
		}
		return policy.CanViewSubject(s, e.Norm.Normalize(&u)), nil
	default:
		return policy.Decision{}, fmt.Errorf("unknown action %s", action)
	}
}

// ScopeOf returns the visibility scope descriptor for a user.
func (e Engine) ScopeOf(ctx context.Context, actorID string) (policy.Scope, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil && err != ErrUnauthenticated {
		return policy.Scope{}, err
	}
	return policy.ScopeFor(s), nil
}
