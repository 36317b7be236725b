// Package engine is the service layer: it resolves subjects and
// authorization facts from the store, asks the policy package for a
// decision, and performs the mutation plus audit event in one transaction.
package engine

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/sync/errgroup"

	"crewdesk/internal/config"
	"crewdesk/internal/domain"
	"crewdesk/internal/events"
	"crewdesk/internal/policy"
	"crewdesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Norm   policy.Normalizer
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	var norm policy.Normalizer
	if cfg != nil {
		norm.RoleAliases = cfg.Roles.Aliases
		norm.DefaultHierarchy = cfg.Roles.DefaultHierarchy
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Norm:   norm,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ResolveSubject loads and normalizes the acting user. An empty id yields
// the unauthenticated sentinel without touching the store; an unknown id
// is treated the same as missing credentials.
func (e Engine) ResolveSubject(ctx context.Context, userID string) (policy.Subject, error) {
	if userID == "" {
		return policy.Subject{}, nil
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err == repo.ErrNotFound {
		return policy.Subject{}, ErrUnauthenticated
	}
	if err != nil {
		return policy.Subject{}, UnavailableError{Err: err}
	}
	return e.Norm.Normalize(&u), nil
}

// decisionErr converts a denial into the transport-facing error. An
// unauthenticated denial maps to the 401 sentinel rather than a 403.
func decisionErr(d policy.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Reason == policy.ReasonUnauthenticated {
		return ErrUnauthenticated
	}
	return policy.ForbiddenError{Reason: d.Reason}
}

// projectFacts resolves the subject's relationship to a project. The
// creator lookup and the membership check run concurrently; a missing
// creator leaves that fact unresolved, any other store error aborts.
func (e Engine) projectFacts(ctx context.Context, s policy.Subject, p domain.Project) (policy.Facts, error) {
	var (
		creator policy.Subject
		member  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.Repo.GetUser(gctx, p.CreatorID)
		if err == repo.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		creator = e.Norm.Normalize(&u)
		return nil
	})
	if s.Authenticated() {
		g.Go(func() error {
			ok, err := e.Repo.IsMember(gctx, p.ID, s.ID)
			if err != nil {
				return err
			}
			member = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return policy.Facts{}, UnavailableError{Err: err}
	}
	return policy.Facts{
		Resolved:  true,
		Creator:   creator,
		IsCreator: s.Authenticated() && s.ID == p.CreatorID,
		IsMember:  member,
	}, nil
}

// taskFacts resolves the subject's relationship to a task and, when the
// task belongs to a project, to that project as well. The creator facts
// name the owning project's creator for project tasks and the task
// creator for personal ones.
func (e Engine) taskFacts(ctx context.Context, s policy.Subject, t domain.Task, p *domain.Project) (policy.Facts, error) {
	var (
		creator  policy.Subject
		member   bool
		assignee bool
	)
	creatorID := t.CreatedBy
	if p != nil {
		creatorID = p.CreatorID
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.Repo.GetUser(gctx, creatorID)
		if err == repo.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		creator = e.Norm.Normalize(&u)
		return nil
	})
	if s.Authenticated() {
		g.Go(func() error {
			ok, err := e.Repo.IsAssignee(gctx, t.ID, s.ID)
			if err != nil {
				return err
			}
			assignee = ok
			return nil
		})
		if p != nil {
			g.Go(func() error {
				ok, err := e.Repo.IsMember(gctx, p.ID, s.ID)
				if err != nil {
					return err
				}
				member = ok
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return policy.Facts{}, UnavailableError{Err: err}
	}
	return policy.Facts{
		Resolved:   true,
		Creator:    creator,
		IsCreator:  s.Authenticated() && s.ID == creatorID,
		IsAssignee: assignee,
		IsMember:   member,
	}, nil
}
