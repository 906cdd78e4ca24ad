package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/repository"
)

// MembershipRepository implements project.MembershipRepository for SQLite
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Upsert inserts the membership or updates the role of the existing
// (project, team) pair. m.ID and m.CreatedAt are replaced with the stored
// values.
func (r *MembershipRepository) Upsert(ctx context.Context, m *project.Membership) error {
	query := `
		INSERT INTO project_memberships (id, project_id, team_id, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, team_id) DO UPDATE SET role = excluded.role
	`

	if _, err := r.db.ExecContext(ctx, query, m.ID, m.ProjectID, m.TeamID, string(m.Role), m.CreatedAt); err != nil {
		return mapWriteError("upsert membership", err)
	}

	stored, err := r.Get(ctx, m.ProjectID, m.TeamID)
	if err != nil {
		return err
	}
	m.ID = stored.ID
	m.CreatedAt = stored.CreatedAt
	return nil
}

// Get retrieves the membership of a team on a project
func (r *MembershipRepository) Get(ctx context.Context, projectID, teamID string) (*project.Membership, error) {
	query := `
		SELECT id, project_id, team_id, role, created_at
		FROM project_memberships
		WHERE project_id = ? AND team_id = ?
	`

	var (
		m    project.Membership
		role string
	)
	err := r.db.QueryRowContext(ctx, query, projectID, teamID).Scan(&m.ID, &m.ProjectID, &m.TeamID, &role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = project.Role(role)
	return &m, nil
}

// Delete removes a membership by ID
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM project_memberships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByProject returns the memberships of a project ordered by creation
func (r *MembershipRepository) ListByProject(ctx context.Context, projectID string) ([]project.Membership, error) {
	query := `
		SELECT id, project_id, team_id, role, created_at
		FROM project_memberships
		WHERE project_id = ?
		ORDER BY created_at, team_id
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []project.Membership
	for rows.Next() {
		var (
			m    project.Membership
			role string
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.TeamID, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = project.Role(role)
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}
