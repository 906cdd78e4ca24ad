package project

import "context"

// ListOptions narrows project listings. Zero values match everything.
type ListOptions struct {
	ID   string
	Name string
}

// Repository provides persistence for projects.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	GetByName(ctx context.Context, name string) (*Project, error)
	Update(ctx context.Context, proj *Project) error
	// Delete removes the project together with its memberships.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Project, error)
	// ListForUser returns projects in the user's organizations that are
	// linked to at least one of the user's teams.
	ListForUser(ctx context.Context, userID string, opts ListOptions) ([]Project, error)
	// ListOwnedByOrganization returns projects whose organization has an
	// organization membership for the user.
	ListOwnedByOrganization(ctx context.Context, userID string, opts ListOptions) ([]Project, error)
}

// MembershipRepository provides persistence for project memberships.
type MembershipRepository interface {
	// Upsert inserts the membership or updates the role of the existing
	// (project, team) pair.
	Upsert(ctx context.Context, m *Membership) error
	Get(ctx context.Context, projectID, teamID string) (*Membership, error)
	Delete(ctx context.Context, id string) error
	ListByProject(ctx context.Context, projectID string) ([]Membership, error)
}

// UserRepository resolves the users attached to a project through teams.
type UserRepository interface {
	ListProjectMembers(ctx context.Context, projectID string) ([]User, error)
	ListProjectOwners(ctx context.Context, projectID string) ([]User, error)
}

// Provisioner keeps the provisioning service's copy of a project in sync.
type Provisioner interface {
	UpsertProject(ctx context.Context, proj *Project) error
	DeleteProject(ctx context.Context, proj *Project) error
}

// TenantClient talks to the OpenStack tenant and infrastructure APIs.
type TenantClient interface {
	CreateTenant(ctx context.Context, name string) (*Tenant, error)
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListServers(ctx context.Context, tenantID string) ([]Server, error)
	ListVolumes(ctx context.Context, tenantID string) ([]Volume, error)
	GrantRoles(ctx context.Context, userExternalID, tenantID string) error
	SetGPUQuota(ctx context.Context, tenantID string) error
}

// TaskRunner runs jobs in the background. Callers never observe the result.
type TaskRunner interface {
	Enqueue(name string, job func(ctx context.Context) error)
}
