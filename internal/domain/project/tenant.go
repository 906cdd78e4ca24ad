package project

import (
	"context"
	"errors"
	"fmt"
)

// AuthorizeUsersTask is the background job name used by AuthorizeUsers.
const AuthorizeUsersTask = "authorize_openstack_users"

// CreateExternalTenant creates the OpenStack tenant for the project and
// stores its id. A project that already has a tenant is left untouched and
// nil is returned.
func (s *Service) CreateExternalTenant(ctx context.Context, proj *Project) (*Tenant, error) {
	if proj.Provisioned() {
		s.logger.Warn("project already has an OpenStack ID, no new tenant will be created",
			"project", proj.Name, "openstack_id", proj.OpenstackID)
		return nil, nil
	}

	tenant, err := s.tenants.CreateTenant(ctx, proj.Name)
	if err != nil {
		return nil, fmt.Errorf("creating tenant for %q: %w", proj.Name, err)
	}

	proj.OpenstackID = tenant.ID
	if err := s.Save(ctx, proj, SaveOptions{}); err != nil {
		s.logger.Error("tenant created but saving the project failed",
			"project", proj.Name, "openstack_id", tenant.ID, "error", err)
		return nil, fmt.Errorf("storing tenant %s for %q: %w", tenant.ID, proj.Name, err)
	}
	return tenant, nil
}

// AuthorizeUsers schedules a background grant of tenant roles to every
// member of the project. The caller does not wait for the outcome.
func (s *Service) AuthorizeUsers(proj *Project) {
	projectID := proj.ID
	s.tasks.Enqueue(AuthorizeUsersTask, func(ctx context.Context) error {
		return s.authorizeUsers(ctx, projectID)
	})
}

func (s *Service) authorizeUsers(ctx context.Context, projectID string) error {
	proj, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, proj)
	if err != nil {
		return err
	}

	var errs []error
	for i := range members {
		if err := s.GrantRights(ctx, proj, &members[i]); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", members[i].Username, err))
		}
	}
	return errors.Join(errs...)
}

// GrantRights gives the user's OpenStack identity roles on the project's
// tenant. Nothing happens when either side has no OpenStack id.
func (s *Service) GrantRights(ctx context.Context, proj *Project, user *User) error {
	if user.OpenstackID == "" || !proj.Provisioned() {
		return nil
	}
	if err := s.tenants.GrantRoles(ctx, user.OpenstackID, proj.OpenstackID); err != nil {
		return fmt.Errorf("granting tenant roles: %w", err)
	}
	return nil
}

// SetGPUQuota applies the GPU quota to the project's tenant.
func (s *Service) SetGPUQuota(ctx context.Context, proj *Project) error {
	if !proj.Provisioned() {
		return nil
	}
	if err := s.tenants.SetGPUQuota(ctx, proj.OpenstackID); err != nil {
		return fmt.Errorf("setting gpu quota: %w", err)
	}
	return nil
}

// EnabledOnOpenstack reports the tenant's enabled flag. Any failure reaching
// OpenStack reads as disabled.
func (s *Service) EnabledOnOpenstack(ctx context.Context, proj *Project) bool {
	if !proj.Provisioned() {
		return false
	}
	tenant, err := s.tenants.GetTenant(ctx, proj.OpenstackID)
	if err != nil {
		s.logger.Debug("tenant lookup failed", "project", proj.Name, "error", err)
		return false
	}
	return tenant != nil && tenant.Enabled
}

// Servers lists the compute instances of the project's tenant.
func (s *Service) Servers(ctx context.Context, proj *Project) ([]Server, error) {
	if !proj.Provisioned() {
		return nil, nil
	}
	servers, err := s.tenants.ListServers(ctx, proj.OpenstackID)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	return servers, nil
}

// Volumes lists the block storage volumes of the project's tenant.
func (s *Service) Volumes(ctx context.Context, proj *Project) ([]Volume, error) {
	if !proj.Provisioned() {
		return nil, nil
	}
	volumes, err := s.tenants.ListVolumes(ctx, proj.OpenstackID)
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %w", err)
	}
	return volumes, nil
}

// Members returns every user in a team linked to the project.
func (s *Service) Members(ctx context.Context, proj *Project) ([]User, error) {
	users, err := s.users.ListProjectMembers(ctx, proj.ID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return users, nil
}

// Owners returns the members holding the owner role in their team.
func (s *Service) Owners(ctx context.Context, proj *Project) ([]User, error) {
	users, err := s.users.ListProjectOwners(ctx, proj.ID)
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	return users, nil
}
