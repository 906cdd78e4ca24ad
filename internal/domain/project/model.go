package project

import "time"

// Name and description limits mirror the column sizes of the projects table.
const (
	MaxNameLength        = 71
	MaxDescriptionLength = 128
)

// PermManageAllOrganizationProjects lets a user see every project regardless
// of organization or team membership.
const PermManageAllOrganizationProjects = "can_manage_all_organization_projects"

// Project is a billing and organizational unit wrapping an OpenStack tenant.
// Name is the natural key used to correlate with external systems and should
// not change after creation.
type Project struct {
	ID                    string     `json:"id"`
	OrganizationID        *string    `json:"organization_id,omitempty"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Enabled               bool       `json:"enabled"`
	OpenstackID           string     `json:"openstack_id"`
	BillingContactID      *string    `json:"billing_contact_id,omitempty"`
	HasPublicCO2Reporting bool       `json:"has_public_co2_reporting"`
	KeycloakID            *string    `json:"keycloak_id,omitempty"`
	GardenerID            *string    `json:"gardener_id,omitempty"`
	GardenerEnabled       bool       `json:"gardener_enabled"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	ModifiedAt            time.Time  `json:"modified_at"`
}

// Provisioned reports whether the project has an OpenStack tenant.
func (p *Project) Provisioned() bool {
	return p.OpenstackID != ""
}

// Role is the access level a team has on a project.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleWrite Role = "write"
	RoleRead  Role = "read"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleWrite, RoleRead:
		return true
	}
	return false
}

// Membership links a team to a project with a role.
type Membership struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TeamID    string    `json:"team_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamRole is the nested team entry of the admin representation.
type TeamRole struct {
	Team string `json:"team"`
	Role Role   `json:"role,omitempty"`
}

// User is the acting principal. Organization and team membership are
// resolved by the repository.
type User struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	OpenstackID string          `json:"openstack_id,omitempty"`
	IsAdmin     bool            `json:"is_admin"`
	Permissions map[string]bool `json:"-"`
}

// HasPerm reports whether the user holds the named permission.
func (u *User) HasPerm(perm string) bool {
	if u == nil {
		return false
	}
	return u.Permissions[perm]
}

// Tenant is the OpenStack-side view of a project.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Server is a compute instance inside a tenant.
type Server struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Volume is a block storage volume inside a tenant.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Status string `json:"status"`
}
