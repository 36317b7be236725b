package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crewdesk/internal/domain"
	"crewdesk/internal/policy"
)

const projectCols = `id,creator_id,name,status,COALESCE(description,'') AS description,created_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.CreatorID, &p.Name, &p.Status, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,creator_id,name,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.CreatorID, p.Name, p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name, status, description *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ProjectFilters struct {
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListProjectsInScope lists projects visible under the given scope. Owner
// scope matches projects the subject created and, when the scope says so,
// projects the subject is a member of. Division scope matches projects
// created by strictly lower-ranked users in the scope division.
func (r Repo) ListProjectsInScope(ctx context.Context, scope policy.Scope, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	switch scope.Kind {
	case policy.ScopeUnrestricted:
	case policy.ScopeDivision:
		clauses = append(clauses, `EXISTS (
			SELECT 1 FROM users u WHERE u.id=p.creator_id AND u.division=? AND u.hierarchy IS NOT NULL AND u.hierarchy<?
		)`)
		args = append(args, scope.Division, scope.HierarchyBelow)
	default:
		if scope.IncludeMemberships {
			clauses = append(clauses, `(p.creator_id=? OR EXISTS (
				SELECT 1 FROM project_members m WHERE m.project_id=p.id AND m.user_id=?
			))`)
			args = append(args, scope.SubjectID, scope.SubjectID)
		} else {
			clauses = append(clauses, "p.creator_id=?")
			args = append(args, scope.SubjectID)
		}
	}
	if f.Status != "" {
		clauses = append(clauses, "p.status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(p.created_at < ? OR (p.created_at = ? AND p.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT p.id,p.creator_id,p.name,p.status,COALESCE(p.description,'') AS description,p.created_at FROM projects p ` + where + ` ORDER BY p.created_at DESC, p.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
