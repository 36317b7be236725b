package policy

import "crewdesk/internal/domain"

// ProjectRef is the slice of project state the rules read. The zero value
// means "project context absent" and denies.
type ProjectRef struct {
	ID        string
	CreatorID string
	Active    bool
}

func ProjectRefOf(p domain.Project) ProjectRef {
	return ProjectRef{ID: p.ID, CreatorID: p.CreatorID, Active: p.Active()}
}

// TaskRef is the slice of task state the rules read. An empty ProjectID
// marks a personal task.
type TaskRef struct {
	ID        string
	ProjectID string
}

func TaskRefOf(t domain.Task) TaskRef {
	ref := TaskRef{ID: t.ID}
	if t.ProjectID != nil {
		ref.ProjectID = *t.ProjectID
	}
	return ref
}

// Facts are the relationship facts between a subject and a target
// resource, computed by the caller from the store. The zero value means
// the facts could not be resolved and denies (fail closed); callers must
// never substitute optimistic defaults for a failed lookup.
type Facts struct {
	Resolved   bool
	Creator    Subject
	IsCreator  bool
	IsAssignee bool
	IsMember   bool
}
