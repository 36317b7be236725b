package repo

import (
	"database/sql"
	"errors"
)

// Repo wraps all SQLite access. Methods taking a *sql.Tx participate in a
// caller-owned transaction; the rest run on the pooled connection.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
