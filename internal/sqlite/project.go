package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/repository"
)

const projectColumns = `p.id, p.organization_id, p.name, p.description, p.enabled, p.openstack_id,
	p.billing_contact_id, p.has_public_co2_reporting, p.keycloak_id, p.gardener_id,
	p.gardener_enabled, p.deleted_at, p.created_at, p.modified_at`

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (id, organization_id, name, description, enabled, openstack_id,
			billing_contact_id, has_public_co2_reporting, keycloak_id, gardener_id,
			gardener_enabled, deleted_at, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.ID,
		proj.OrganizationID,
		proj.Name,
		proj.Description,
		proj.Enabled,
		proj.OpenstackID,
		proj.BillingContactID,
		proj.HasPublicCO2Reporting,
		proj.KeycloakID,
		proj.GardenerID,
		proj.GardenerEnabled,
		proj.DeletedAt,
		proj.CreatedAt,
		proj.ModifiedAt,
	)
	if err != nil {
		return mapWriteError("create project", err)
	}

	return nil
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`, id)
}

// GetByName retrieves a project by its unique name
func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*project.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.name = ?`, name)
}

func (r *ProjectRepository) getOne(ctx context.Context, query string, arg string) (*project.Project, error) {
	proj, err := scanProject(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return proj, nil
}

// Update writes every mutable column of the project
func (r *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	query := `
		UPDATE projects SET
			organization_id = ?, name = ?, description = ?, enabled = ?, openstack_id = ?,
			billing_contact_id = ?, has_public_co2_reporting = ?, keycloak_id = ?,
			gardener_id = ?, gardener_enabled = ?, deleted_at = ?, modified_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		proj.OrganizationID,
		proj.Name,
		proj.Description,
		proj.Enabled,
		proj.OpenstackID,
		proj.BillingContactID,
		proj.HasPublicCO2Reporting,
		proj.KeycloakID,
		proj.GardenerID,
		proj.GardenerEnabled,
		proj.DeletedAt,
		proj.ModifiedAt,
		proj.ID,
	)
	if err != nil {
		return mapWriteError("update project", err)
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

// Delete removes the project and its memberships in one transaction
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_memberships WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project memberships: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns all projects matching opts, ordered by name
func (r *ProjectRepository) List(ctx context.Context, opts project.ListOptions) ([]project.Project, error) {
	where, args := listFilter(opts)
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE 1 = 1` + where + ` ORDER BY p.name`
	return r.query(ctx, query, args...)
}

// ListForUser returns projects of the user's organizations that are linked
// to one of the user's teams.
func (r *ProjectRepository) ListForUser(ctx context.Context, userID string, opts project.ListOptions) ([]project.Project, error) {
	where, args := listFilter(opts)
	query := `
		SELECT DISTINCT ` + projectColumns + `
		FROM projects p
		JOIN user_organizations uo ON uo.organization_id = p.organization_id AND uo.user_id = ?
		JOIN project_memberships pm ON pm.project_id = p.id
		JOIN team_memberships tm ON tm.team_id = pm.team_id AND tm.user_id = ?
		WHERE 1 = 1` + where + `
		ORDER BY p.name
	`
	return r.query(ctx, query, append([]any{userID, userID}, args...)...)
}

// ListOwnedByOrganization returns projects whose organization has an
// organization membership for the user.
func (r *ProjectRepository) ListOwnedByOrganization(ctx context.Context, userID string, opts project.ListOptions) ([]project.Project, error) {
	where, args := listFilter(opts)
	query := `
		SELECT DISTINCT ` + projectColumns + `
		FROM projects p
		JOIN organization_memberships om ON om.organization_id = p.organization_id
		WHERE om.user_id = ?` + where + `
		ORDER BY p.name
	`
	return r.query(ctx, query, append([]any{userID}, args...)...)
}

func listFilter(opts project.ListOptions) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if opts.ID != "" {
		clauses = append(clauses, " AND p.id = ?")
		args = append(args, opts.ID)
	}
	if opts.Name != "" {
		clauses = append(clauses, " AND p.name = ?")
		args = append(args, opts.Name)
	}
	return strings.Join(clauses, ""), args
}

func (r *ProjectRepository) query(ctx context.Context, query string, args ...any) ([]project.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*project.Project, error) {
	var (
		proj                                       project.Project
		orgID, billingContact, keycloak, gardener sql.NullString
		deletedAt                                  sql.NullTime
	)
	err := s.Scan(
		&proj.ID,
		&orgID,
		&proj.Name,
		&proj.Description,
		&proj.Enabled,
		&proj.OpenstackID,
		&billingContact,
		&proj.HasPublicCO2Reporting,
		&keycloak,
		&gardener,
		&proj.GardenerEnabled,
		&deletedAt,
		&proj.CreatedAt,
		&proj.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	proj.OrganizationID = nullString(orgID)
	proj.BillingContactID = nullString(billingContact)
	proj.KeycloakID = nullString(keycloak)
	proj.GardenerID = nullString(gardener)
	if deletedAt.Valid {
		t := deletedAt.Time
		proj.DeletedAt = &t
	}
	return &proj, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
