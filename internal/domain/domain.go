package domain

const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusArchived = "archived"
)

// User is the raw persisted user record. Role, hierarchy, division and
// department may all be absent in the store; the policy normalizer turns
// this into a canonical Subject.
type User struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email,omitempty"`
	Role       string  `json:"role,omitempty"`
	Hierarchy  *int    `json:"hierarchy,omitempty"`
	Division   *string `json:"division,omitempty"`
	Department *string `json:"department,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"active,paused,archived"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Active reports whether the project accepts new work.
func (p Project) Active() bool {
	return p.Status == StatusActive
}

type Task struct {
	ID          string   `json:"id"`
	ProjectID   *string  `json:"project_id,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"open,in_progress,done,canceled"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  []string `json:"assigned_to,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// Personal reports whether the task is unattached to any project.
func (t Task) Personal() bool {
	return t.ProjectID == nil || *t.ProjectID == ""
}

type Membership struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	AddedBy   string `json:"added_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
