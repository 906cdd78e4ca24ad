package project

import (
	"context"
	"fmt"
)

// ListVisible returns the projects the user may see and manage. Holders of
// PermManageAllOrganizationProjects see every project; everyone else sees
// projects of their organizations that are linked to one of their teams.
// Each project appears once.
func (s *Service) ListVisible(ctx context.Context, user *User, opts ListOptions) ([]Project, error) {
	if user == nil {
		return nil, ErrForbidden
	}

	var (
		list []Project
		err  error
	)
	if user.HasPerm(PermManageAllOrganizationProjects) {
		list, err = s.repo.List(ctx, opts)
	} else {
		list, err = s.repo.ListForUser(ctx, user.ID, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("listing visible projects: %w", err)
	}
	return dedupe(list), nil
}

// ListOwnedByOrganization returns projects whose organization the user is a
// member of, independent of team membership.
func (s *Service) ListOwnedByOrganization(ctx context.Context, user *User, opts ListOptions) ([]Project, error) {
	if user == nil {
		return nil, ErrForbidden
	}
	list, err := s.repo.ListOwnedByOrganization(ctx, user.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing owned projects: %w", err)
	}
	return dedupe(list), nil
}

// ListManaged is the scope of the public project endpoint: admins see every
// project, other users the projects their organizations own.
func (s *Service) ListManaged(ctx context.Context, user *User, opts ListOptions) ([]Project, error) {
	if user == nil {
		return nil, ErrForbidden
	}
	if !user.IsAdmin {
		return s.ListOwnedByOrganization(ctx, user, opts)
	}
	list, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return list, nil
}

// GetManaged fetches a project inside the user's managed scope. Projects
// outside the scope are reported as not found.
func (s *Service) GetManaged(ctx context.Context, user *User, id string) (*Project, error) {
	list, err := s.ListManaged(ctx, user, ListOptions{ID: id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrProjectNotFound
	}
	return &list[0], nil
}

// SetPublicCO2Reporting is the only write the public endpoint allows.
func (s *Service) SetPublicCO2Reporting(ctx context.Context, user *User, id string, enabled bool) (*Project, error) {
	proj, err := s.GetManaged(ctx, user, id)
	if err != nil {
		return nil, err
	}
	proj.HasPublicCO2Reporting = enabled
	if err := s.Save(ctx, proj, SaveOptions{}); err != nil {
		return nil, err
	}
	return proj, nil
}

func dedupe(list []Project) []Project {
	seen := make(map[string]bool, len(list))
	out := make([]Project, 0, len(list))
	for _, p := range list {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
