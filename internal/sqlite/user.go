package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/repository"
)

// ErrInvalidToken is returned when an API token does not resolve to a user.
var ErrInvalidToken = errors.New("unauthorized: invalid token")

// UserRepository stores users with their organization and team relations and
// implements project.UserRepository.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a user together with its permissions
func (r *UserRepository) CreateUser(ctx context.Context, u *project.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, openstack_id, is_admin) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.OpenstackID, u.IsAdmin)
	if err != nil {
		return mapWriteError("create user", err)
	}

	for perm, granted := range u.Permissions {
		if !granted {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_permissions (user_id, permission) VALUES (?, ?)`, u.ID, perm)
		if err != nil {
			return mapWriteError("grant permission", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetUser retrieves a user and its permissions
func (r *UserRepository) GetUser(ctx context.Context, id string) (*project.User, error) {
	var u project.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, openstack_id, is_admin FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.OpenstackID, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	perms, err := r.permissions(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Permissions = perms
	return &u, nil
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*project.User, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *UserRepository) permissions(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT permission FROM user_permissions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[string]bool)
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms[perm] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}
	return perms, nil
}

// GrantPermission adds a named permission to a user
func (r *UserRepository) GrantPermission(ctx context.Context, userID, perm string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_permissions (user_id, permission) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, perm)
	if err != nil {
		return mapWriteError("grant permission", err)
	}
	return nil
}

// CreateToken stores the hash of an API token for a user
func (r *UserRepository) CreateToken(ctx context.Context, userID, token, description string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, user_id, description, created_at) VALUES (?, ?, ?, ?)`,
		hashToken(token), userID, description, time.Now().UTC())
	if err != nil {
		return mapWriteError("create token", err)
	}
	return nil
}

// ResolveToken returns the user owning the API token
func (r *UserRepository) ResolveToken(ctx context.Context, token string) (*project.User, error) {
	hash := hashToken(token)
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM api_tokens WHERE token_hash = ?`, hash).Scan(&userID)
	if err != nil || userID == "" {
		return nil, ErrInvalidToken
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used = ? WHERE token_hash = ?`, time.Now().UTC(), hash); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}

	return r.GetUser(ctx, userID)
}

// CreateOrganization inserts an organization
func (r *UserRepository) CreateOrganization(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO organizations (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return mapWriteError("create organization", err)
	}
	return nil
}

// AddOrganizationUser makes the organization one of the user's organizations
func (r *UserRepository) AddOrganizationUser(ctx context.Context, orgID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_organizations (user_id, organization_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, orgID)
	if err != nil {
		return mapWriteError("add organization user", err)
	}
	return nil
}

// AddOrganizationMembership records the user as an owning member of the
// organization.
func (r *UserRepository) AddOrganizationMembership(ctx context.Context, orgID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_memberships (organization_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		orgID, userID)
	if err != nil {
		return mapWriteError("add organization membership", err)
	}
	return nil
}

// CreateTeam inserts a team. orgID may be empty.
func (r *UserRepository) CreateTeam(ctx context.Context, id, orgID, name string) error {
	var org *string
	if orgID != "" {
		org = &orgID
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO teams (id, organization_id, name) VALUES (?, ?, ?)`, id, org, name)
	if err != nil {
		return mapWriteError("create team", err)
	}
	return nil
}

// AddTeamMember adds a user to a team, optionally as owner
func (r *UserRepository) AddTeamMember(ctx context.Context, teamID, userID string, owner bool) error {
	role := "member"
	if owner {
		role = "owner"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_memberships (team_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role`,
		teamID, userID, role)
	if err != nil {
		return mapWriteError("add team member", err)
	}
	return nil
}

// ListProjectMembers returns every user in a team linked to the project
func (r *UserRepository) ListProjectMembers(ctx context.Context, projectID string) ([]project.User, error) {
	return r.listUsers(ctx, `
		SELECT DISTINCT u.id, u.username, u.openstack_id, u.is_admin
		FROM users u
		JOIN team_memberships tm ON tm.user_id = u.id
		JOIN project_memberships pm ON pm.team_id = tm.team_id
		WHERE pm.project_id = ?
		ORDER BY u.username
	`, projectID)
}

// ListProjectOwners returns the owners of the teams linked to the project
func (r *UserRepository) ListProjectOwners(ctx context.Context, projectID string) ([]project.User, error) {
	return r.listUsers(ctx, `
		SELECT DISTINCT u.id, u.username, u.openstack_id, u.is_admin
		FROM users u
		JOIN team_memberships tm ON tm.user_id = u.id AND tm.role = 'owner'
		JOIN project_memberships pm ON pm.team_id = tm.team_id
		WHERE pm.project_id = ?
		ORDER BY u.username
	`, projectID)
}

func (r *UserRepository) listUsers(ctx context.Context, query string, args ...any) ([]project.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []project.User
	for rows.Next() {
		var u project.User
		if err := rows.Scan(&u.ID, &u.Username, &u.OpenstackID, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
