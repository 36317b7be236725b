// Package app wires a workspace together: it ensures the .crewdesk
// directory exists, opens and migrates the database, loads crewdesk.yml
// and hands back a ready engine.
package app

import (
	"database/sql"

	"crewdesk/internal/config"
	"crewdesk/internal/db"
	"crewdesk/internal/engine"
	"crewdesk/internal/migrate"
)

// Open prepares a workspace and returns the open connection plus an
// engine bound to it. The caller owns the connection and must close it.
func Open(workspace string) (*sql.DB, engine.Engine, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, engine.Engine{}, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, engine.New(conn, cfg), nil
}
