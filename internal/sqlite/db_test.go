package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"organizations",
		"users",
		"user_permissions",
		"user_organizations",
		"organization_memberships",
		"teams",
		"team_memberships",
		"projects",
		"project_memberships",
		"api_tokens",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	// Running again is a no-op
	require.NoError(t, db.RunMigrations())
}

// TestForeignKeys verifies that foreign key constraints are enabled
func TestForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled, "foreign keys not enabled")
}

// TestProjectsTable verifies the projects table constraints
func TestProjectsTable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	insert := `INSERT INTO projects (id, name, created_at, modified_at) VALUES (?, ?, datetime('now'), datetime('now'))`

	_, err := db.ExecContext(ctx, insert, "p1", "acme")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "p2", "acme")
	require.Error(t, err, "names are unique")

	_, err = db.ExecContext(ctx, insert, "p3", "")
	require.Error(t, err, "empty name rejected")

	long := make([]byte, 72)
	for i := range long {
		long[i] = 'x'
	}
	_, err = db.ExecContext(ctx, insert, "p4", string(long))
	require.Error(t, err, "name longer than 71 rejected")
}

// TestProjectMembershipsTable verifies role and foreign key constraints
func TestProjectMembershipsTable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, modified_at) VALUES ('p1', 'acme', datetime('now'), datetime('now'))`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO teams (id, name) VALUES ('t1', 'ops'), ('t2', 'dev')`)
	require.NoError(t, err)

	insert := `INSERT INTO project_memberships (id, project_id, team_id, role, created_at) VALUES (?, ?, ?, ?, datetime('now'))`

	_, err = db.ExecContext(ctx, insert, "m1", "p1", "t1", "admin")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "m2", "p1", "t1", "read")
	require.Error(t, err, "one membership per (project, team)")

	_, err = db.ExecContext(ctx, insert, "m3", "p1", "missing", "read")
	require.Error(t, err, "unknown team rejected")

	_, err = db.ExecContext(ctx, insert, "m4", "p1", "t2", "owner")
	require.Error(t, err, "invalid role rejected")
}
