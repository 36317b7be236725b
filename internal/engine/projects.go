package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crewdesk/internal/domain"
	"crewdesk/internal/events"
	"crewdesk/internal/policy"
	"crewdesk/internal/repo"
)

type ProjectCreateOptions struct {
	ID          string
	Name        string
	Description string
}

func (e Engine) CreateProject(ctx context.Context, actorID string, opts ProjectCreateOptions) (domain.Project, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := decisionErr(policy.CanCreateProject(s)); err != nil {
		return domain.Project{}, err
	}
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Project{
		ID:          id,
		CreatorID:   s.ID,
		Name:        opts.Name,
		Status:      domain.StatusActive,
		Description: opts.Description,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, s.ID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// editableProject loads a project and checks the edit rule against it.
func (e Engine) editableProject(ctx context.Context, s policy.Subject, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err == repo.ErrNotFound {
		return domain.Project{}, err
	}
	if err != nil {
		return domain.Project{}, UnavailableError{Err: err}
	}
	creator, err := e.creatorOf(ctx, p.CreatorID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := decisionErr(policy.CanEditProject(s, policy.ProjectRefOf(p), creator)); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) creatorOf(ctx context.Context, userID string) (policy.Subject, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err == repo.ErrNotFound {
		return policy.Subject{}, nil
	}
	if err != nil {
		return policy.Subject{}, UnavailableError{Err: err}
	}
	return e.Norm.Normalize(&u), nil
}

type ProjectUpdateOptions struct {
	Name        *string
	Status      *string
	Description *string
}

func (e Engine) UpdateProject(ctx context.Context, actorID, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := e.editableProject(ctx, s, projectID); err != nil {
		return domain.Project{}, err
	}
	if opts.Status != nil {
		switch *opts.Status {
		case domain.StatusActive, domain.StatusPaused, domain.StatusArchived:
		default:
			return domain.Project{}, fmt.Errorf("invalid status %s", *opts.Status)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProject(ctx, tx, projectID, opts.Name, opts.Status, opts.Description); err != nil {
		return domain.Project{}, err
	}
	payload := events.EventPayload{}
	if opts.Name != nil {
		payload["name"] = *opts.Name
	}
	if opts.Status != nil {
		payload["status"] = *opts.Status
	}
	if err := e.Events.Append(ctx, tx, "project.updated", projectID, "project", projectID, s.ID, payload); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) ArchiveProject(ctx context.Context, actorID, projectID string) (domain.Project, error) {
	status := domain.StatusArchived
	return e.UpdateProject(ctx, actorID, projectID, ProjectUpdateOptions{Status: &status})
}

func (e Engine) DeleteProject(ctx context.Context, actorID, projectID string) error {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return err
	}
	if _, err := e.editableProject(ctx, s, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", projectID, "project", projectID, s.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetProject(ctx context.Context, actorID, projectID string) (domain.Project, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err == repo.ErrNotFound {
		return domain.Project{}, err
	}
	if err != nil {
		return domain.Project{}, UnavailableError{Err: err}
	}
	f, err := e.projectFacts(ctx, s, p)
	if err != nil {
		return domain.Project{}, err
	}
	if err := decisionErr(policy.CanViewProject(s, policy.ProjectRefOf(p), f)); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, actorID string, f repo.ProjectFilters) ([]domain.Project, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return e.Repo.ListProjectsInScope(ctx, policy.ScopeFor(s), f)
}

func (e Engine) AddMember(ctx context.Context, actorID, projectID, userID string) (domain.Membership, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err == repo.ErrNotFound {
		return domain.Membership{}, err
	}
	if err != nil {
		return domain.Membership{}, UnavailableError{Err: err}
	}
	if err := decisionErr(policy.CanAddProjectMembers(s, policy.ProjectRefOf(p))); err != nil {
		return domain.Membership{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Membership{}, err
		}
		return domain.Membership{}, UnavailableError{Err: err}
	}
	m := domain.Membership{
		ProjectID: projectID,
		UserID:    userID,
		AddedBy:   s.ID,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.AddMember(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.member.added", projectID, "membership", userID, s.ID, events.EventPayload{"user_id": userID}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, actorID, projectID, userID string) error {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err == repo.ErrNotFound {
		return err
	}
	if err != nil {
		return UnavailableError{Err: err}
	}
	if err := decisionErr(policy.CanAddProjectMembers(s, policy.ProjectRefOf(p))); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.RemoveMember(ctx, tx, projectID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.member.removed", projectID, "membership", userID, s.ID, events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListMembers(ctx context.Context, actorID, projectID string) ([]domain.Membership, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err == repo.ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, UnavailableError{Err: err}
	}
	f, err := e.projectFacts(ctx, s, p)
	if err != nil {
		return nil, err
	}
	if err := decisionErr(policy.CanViewProject(s, policy.ProjectRefOf(p), f)); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, projectID)
}
