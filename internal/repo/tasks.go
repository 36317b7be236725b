package repo

import (
	"context"
	"database/sql"
	"strings"

	"crewdesk/internal/domain"
	"crewdesk/internal/policy"
)

const taskCols = `id,project_id,parent_id,title,COALESCE(description,'') AS description,status,created_by,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var projectID, parentID sql.NullString
	err := scan(&t.ID, &projectID, &parentID, &t.Title, &t.Description, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,parent_id,title,description,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, nullableStringPtr(t.ProjectID), nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.Status, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	for _, userID := range t.AssignedTo {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id) VALUES (?,?)`, t.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, parent_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, nullableStringPtr(t.ParentID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id).Scan)
	if err != nil {
		return t, err
	}
	assignees, err := r.ListAssignees(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.AssignedTo = assignees
	return t, nil
}

func (r Repo) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_assignees WHERE task_id=? ORDER BY user_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) IsAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) SetAssignees(ctx context.Context, tx *sql.Tx, taskID string, userIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id) VALUES (?,?)`, taskID, userID); err != nil {
			return err
		}
	}
	return nil
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListTasksInScope lists tasks visible under the given scope. Under the
// owner scope a task is visible to its creator, its assignees and the
// members of its project. The division scope follows the task's owner: the
// project creator for project tasks, the task creator for personal ones.
func (r Repo) ListTasksInScope(ctx context.Context, scope policy.Scope, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	switch scope.Kind {
	case policy.ScopeUnrestricted:
	case policy.ScopeDivision:
		clauses = append(clauses, `(
			(t.project_id IS NOT NULL AND EXISTS (
				SELECT 1 FROM projects p WHERE p.id=t.project_id AND EXISTS (
					SELECT 1 FROM users u WHERE u.id=p.creator_id AND u.division=? AND u.hierarchy IS NOT NULL AND u.hierarchy<?
				)
			))
			OR (t.project_id IS NULL AND EXISTS (
				SELECT 1 FROM users u WHERE u.id=t.created_by AND u.division=? AND u.hierarchy IS NOT NULL AND u.hierarchy<?
			))
		)`)
		args = append(args, scope.Division, scope.HierarchyBelow, scope.Division, scope.HierarchyBelow)
	default:
		clauses = append(clauses, `(
			t.created_by=?
			OR EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id=t.id AND a.user_id=?)
			OR (t.project_id IS NOT NULL AND EXISTS (
				SELECT 1 FROM projects p WHERE p.id=t.project_id AND (
					p.creator_id=?
					OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id=p.id AND m.user_id=?)
				)
			))
		)`)
		args = append(args, scope.SubjectID, scope.SubjectID, scope.SubjectID, scope.SubjectID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(t.created_at < ? OR (t.created_at = ? AND t.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT t.id,t.project_id,t.parent_id,t.title,COALESCE(t.description,'') AS description,t.status,t.created_by,t.created_at,t.updated_at FROM tasks t ` + where + ` ORDER BY t.created_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		assignees, err := r.ListAssignees(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].AssignedTo = assignees
	}
	return res, nil
}
