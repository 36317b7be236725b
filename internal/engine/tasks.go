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

type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	ParentID    string
	Title       string
	Description string
	AssignedTo  []string
}

// CreateTask creates a project task or, when ProjectID is empty, a
// personal task. Task creation against an archived or paused project
// reports not-found so the project's existence is not revealed.
func (e Engine) CreateTask(ctx context.Context, actorID string, opts TaskCreateOptions) (domain.Task, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}

	var ref *policy.ProjectRef
	var facts policy.Facts
	var projectID string
	if opts.ProjectID != "" {
		p, err := e.Repo.GetProject(ctx, opts.ProjectID)
		if err == repo.ErrNotFound {
			return domain.Task{}, err
		}
		if err != nil {
			return domain.Task{}, UnavailableError{Err: err}
		}
		facts, err = e.projectFacts(ctx, s, p)
		if err != nil {
			return domain.Task{}, err
		}
		r := policy.ProjectRefOf(p)
		ref = &r
		projectID = p.ID
	}
	d := policy.CanCreateTask(s, ref, facts)
	if !d.Allowed && d.Reason == policy.ReasonProjectInactive {
		return domain.Task{}, repo.ErrNotFound
	}
	if err := decisionErr(d); err != nil {
		return domain.Task{}, err
	}

	if opts.ParentID != "" {
		parent, err := e.Repo.GetTask(ctx, opts.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		parentProject := ""
		if parent.ProjectID != nil {
			parentProject = *parent.ProjectID
		}
		if parentProject != opts.ProjectID {
			return domain.Task{}, errors.New("parent in different project")
		}
	}

	id := opts.ID
	now := e.timestamp()
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Task{
		ID:          id,
		ProjectID:   optionalString(opts.ProjectID),
		ParentID:    optionalString(opts.ParentID),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      "open",
		CreatedBy:   s.ID,
		AssignedTo:  opts.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", projectID, "task", t.ID, s.ID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// modifiableTask loads a task plus its project and checks the modify rule.
func (e Engine) modifiableTask(ctx context.Context, s policy.Subject, taskID string) (domain.Task, string, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err == repo.ErrNotFound {
		return domain.Task{}, "", err
	}
	if err != nil {
		return domain.Task{}, "", UnavailableError{Err: err}
	}
	var project *domain.Project
	projectID := ""
	if !t.Personal() {
		p, err := e.Repo.GetProject(ctx, *t.ProjectID)
		if err != nil && err != repo.ErrNotFound {
			return domain.Task{}, "", UnavailableError{Err: err}
		}
		if err == nil {
			project = &p
			projectID = p.ID
		}
	}
	facts, err := e.taskFacts(ctx, s, t, project)
	if err != nil {
		return domain.Task{}, "", err
	}
	var ref *policy.ProjectRef
	if project != nil {
		r := policy.ProjectRefOf(*project)
		ref = &r
	}
	if err := decisionErr(policy.CanModifyTask(s, policy.TaskRefOf(t), ref, facts)); err != nil {
		return domain.Task{}, "", err
	}
	return t, projectID, nil
}

type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Status      *string
}

var taskStatuses = map[string]bool{"open": true, "in_progress": true, "done": true, "canceled": true}

func (e Engine) UpdateTask(ctx context.Context, actorID, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, projectID, err := e.modifiableTask(ctx, s, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != nil {
		if !taskStatuses[*opts.Status] {
			return domain.Task{}, fmt.Errorf("invalid status %s", *opts.Status)
		}
		t.Status = *opts.Status
	}
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", projectID, "task", t.ID, s.ID, events.EventPayload{"status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) AssignTask(ctx context.Context, actorID, taskID string, userIDs []string) (domain.Task, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, projectID, err := e.modifiableTask(ctx, s, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, userID := range userIDs {
		if _, err := e.Repo.GetUser(ctx, userID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, err
			}
			return domain.Task{}, UnavailableError{Err: err}
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetAssignees(ctx, tx, taskID, userIDs); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", projectID, "task", taskID, s.ID, events.EventPayload{"assigned_to": userIDs}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.AssignedTo = userIDs
	t.UpdatedAt = e.timestamp()
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return err
	}
	_, projectID, err := e.modifiableTask(ctx, s, taskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", projectID, "task", taskID, s.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetTask(ctx context.Context, actorID, taskID string) (domain.Task, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, _, err := e.modifiableTask(ctx, s, taskID)
	return t, err
}

func (e Engine) ListTasks(ctx context.Context, actorID string, f repo.TaskFilters) ([]domain.Task, error) {
	s, err := e.ResolveSubject(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return e.Repo.ListTasksInScope(ctx, policy.ScopeFor(s), f)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
