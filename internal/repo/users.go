package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crewdesk/internal/domain"
)

const userCols = `id,name,COALESCE(email,'') AS email,COALESCE(role,'') AS role,hierarchy,division,department,created_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var hierarchy sql.NullInt64
	var division, department sql.NullString
	err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &hierarchy, &division, &department, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if hierarchy.Valid {
		h := int(hierarchy.Int64)
		u.Hierarchy = &h
	}
	if division.Valid {
		u.Division = &division.String
	}
	if department.Valid {
		u.Department = &department.String
	}
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,role,hierarchy,division,department,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), nullable(u.Role), nullableIntPtr(u.Hierarchy), nullableStringPtr(u.Division), nullableStringPtr(u.Department), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

type UserUpdate struct {
	Name       *string
	Email      *string
	Role       *string
	Hierarchy  *int
	Division   *string
	Department *string
}

func (r Repo) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	var (
		fields []string
		args   []any
	)
	if upd.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Email != nil {
		fields = append(fields, "email=?")
		args = append(args, nullable(*upd.Email))
	}
	if upd.Role != nil {
		fields = append(fields, "role=?")
		args = append(args, nullable(*upd.Role))
	}
	if upd.Hierarchy != nil {
		fields = append(fields, "hierarchy=?")
		args = append(args, *upd.Hierarchy)
	}
	if upd.Division != nil {
		fields = append(fields, "division=?")
		args = append(args, nullable(*upd.Division))
	}
	if upd.Department != nil {
		fields = append(fields, "department=?")
		args = append(args, nullable(*upd.Department))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ListSubordinates returns users in the division whose hierarchy is strictly
// below the given rank. Users with no division or no hierarchy never match.
func (r Repo) ListSubordinates(ctx context.Context, division string, hierarchyBelow int) ([]domain.User, error) {
	if division == "" {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE division=? AND hierarchy IS NOT NULL AND hierarchy<? ORDER BY hierarchy DESC, id ASC`,
		division, hierarchyBelow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// CountUsers reports how many users exist. Used to decide whether the next
// created user should bootstrap as admin.
func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}
