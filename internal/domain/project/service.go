package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudportal/projectd/internal/repository"
	"github.com/google/uuid"
)

// Service handles project persistence and keeps the provisioner in sync
// with every write.
type Service struct {
	repo        Repository
	memberships MembershipRepository
	users       UserRepository
	provisioner Provisioner
	tenants     TenantClient
	tasks       TaskRunner
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new project service.
func NewService(
	repo Repository,
	memberships MembershipRepository,
	users UserRepository,
	provisioner Provisioner,
	tenants TenantClient,
	tasks TaskRunner,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:        repo,
		memberships: memberships,
		users:       users,
		provisioner: provisioner,
		tenants:     tenants,
		tasks:       tasks,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	Name                  string
	OrganizationID        *string
	Description           string
	HasPublicCO2Reporting bool
	GardenerEnabled       bool
	Teams                 []TeamRole
}

// UpdateRequest defines the admin update inputs. Teams replaces the full
// membership list; a nil slice removes every membership.
type UpdateRequest struct {
	Name                  *string
	HasPublicCO2Reporting *bool
	GardenerEnabled       *bool
	Teams                 []TeamRole
}

// SaveOptions tunes a single Save call.
type SaveOptions struct {
	// SkipProvisioner suppresses the provisioner push for this save.
	SkipProvisioner bool
}

// Create persists a new project, pushes it to the provisioner and then
// creates its memberships.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if err := validate(name, req.Description); err != nil {
		return nil, err
	}
	if err := validateTeams(req.Teams); err != nil {
		return nil, err
	}

	now := s.now()
	proj := &Project{
		ID:                    uuid.NewString(),
		OrganizationID:        req.OrganizationID,
		Name:                  name,
		Description:           req.Description,
		HasPublicCO2Reporting: req.HasPublicCO2Reporting,
		GardenerEnabled:       req.GardenerEnabled,
		CreatedAt:             now,
		ModifiedAt:            now,
	}

	if err := s.repo.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	if err := s.provisioner.UpsertProject(ctx, proj); err != nil {
		return nil, fmt.Errorf("provisioning project %q: %w", proj.Name, err)
	}

	for _, team := range req.Teams {
		if _, err := s.SaveMembership(ctx, proj, team.Team, team.Role); err != nil {
			return nil, err
		}
	}

	s.logger.Info("project created", "project", proj.Name, "id", proj.ID)
	return proj, nil
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	proj, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// GetByName fetches a project by its natural key.
func (s *Service) GetByName(ctx context.Context, name string) (*Project, error) {
	proj, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project by name: %w", err)
	}
	return proj, nil
}

// Save persists the current state of proj and, unless suppressed, pushes the
// full project to the provisioner. Provisioner errors are returned.
func (s *Service) Save(ctx context.Context, proj *Project, opts SaveOptions) error {
	if err := validate(proj.Name, proj.Description); err != nil {
		return err
	}

	proj.ModifiedAt = s.now()
	if err := s.repo.Update(ctx, proj); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrProjectNotFound
		case errors.Is(err, repository.ErrConflict):
			return ErrDuplicateName
		}
		return fmt.Errorf("saving project: %w", err)
	}

	if opts.SkipProvisioner {
		return nil
	}
	if err := s.provisioner.UpsertProject(ctx, proj); err != nil {
		return fmt.Errorf("provisioning project %q: %w", proj.Name, err)
	}
	return nil
}

// Update applies the admin representation to an existing project and
// replaces its team list.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Project, error) {
	if err := validateTeams(req.Teams); err != nil {
		return nil, err
	}

	proj, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		proj.Name = strings.TrimSpace(*req.Name)
	}
	if req.HasPublicCO2Reporting != nil {
		proj.HasPublicCO2Reporting = *req.HasPublicCO2Reporting
	}
	if req.GardenerEnabled != nil {
		proj.GardenerEnabled = *req.GardenerEnabled
	}

	if err := s.Save(ctx, proj, SaveOptions{}); err != nil {
		return nil, err
	}
	if err := s.SetTeams(ctx, proj, req.Teams); err != nil {
		return nil, err
	}
	return proj, nil
}

// Delete removes the project and its memberships, then deletes it from the
// provisioner exactly once. Cascaded memberships do not re-sync the project.
func (s *Service) Delete(ctx context.Context, id string) error {
	proj, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, proj.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("deleting project: %w", err)
	}
	if err := s.provisioner.DeleteProject(ctx, proj); err != nil {
		return fmt.Errorf("deprovisioning project %q: %w", proj.Name, err)
	}

	s.logger.Info("project deleted", "project", proj.Name, "id", proj.ID)
	return nil
}

// Memberships lists the teams linked to a project.
func (s *Service) Memberships(ctx context.Context, projectID string) ([]Membership, error) {
	list, err := s.memberships.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	return list, nil
}

// SaveMembership creates or updates the (project, team) membership and
// re-pushes the project to the provisioner.
func (s *Service) SaveMembership(ctx context.Context, proj *Project, teamID string, role Role) (*Membership, error) {
	if role == "" {
		role = RoleAdmin
	}
	if teamID == "" || !role.Valid() {
		return nil, ErrInvalidInput
	}

	m := &Membership{
		ID:        uuid.NewString(),
		ProjectID: proj.ID,
		TeamID:    teamID,
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := s.memberships.Upsert(ctx, m); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil, fmt.Errorf("team %q: %w", teamID, ErrInvalidInput)
		}
		return nil, fmt.Errorf("saving membership: %w", err)
	}
	if err := s.provisioner.UpsertProject(ctx, proj); err != nil {
		return nil, fmt.Errorf("provisioning project %q: %w", proj.Name, err)
	}
	return m, nil
}

// DeleteMembership removes the membership and re-pushes the project so the
// provisioner drops the team wiring.
func (s *Service) DeleteMembership(ctx context.Context, proj *Project, m *Membership) error {
	if err := s.memberships.Delete(ctx, m.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("deleting membership: %w", err)
	}
	if err := s.provisioner.UpsertProject(ctx, proj); err != nil {
		return fmt.Errorf("provisioning project %q: %w", proj.Name, err)
	}
	return nil
}

// SetTeams makes the project's memberships match teams: memberships for
// teams missing from the list are deleted, the rest are upserted with the
// given role.
func (s *Service) SetTeams(ctx context.Context, proj *Project, teams []TeamRole) error {
	keep := make(map[string]bool, len(teams))
	for _, t := range teams {
		keep[t.Team] = true
	}

	existing, err := s.Memberships(ctx, proj.ID)
	if err != nil {
		return err
	}
	for i := range existing {
		if keep[existing[i].TeamID] {
			continue
		}
		if err := s.DeleteMembership(ctx, proj, &existing[i]); err != nil {
			return err
		}
	}

	for _, t := range teams {
		if _, err := s.SaveMembership(ctx, proj, t.Team, t.Role); err != nil {
			return err
		}
	}
	return nil
}

func validate(name, description string) error {
	if name == "" || len(name) > MaxNameLength {
		return ErrInvalidInput
	}
	if len(description) > MaxDescriptionLength {
		return ErrInvalidInput
	}
	return nil
}

func validateTeams(teams []TeamRole) error {
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		if t.Team == "" || seen[t.Team] {
			return ErrInvalidInput
		}
		if t.Role != "" && !t.Role.Valid() {
			return ErrInvalidInput
		}
		seen[t.Team] = true
	}
	return nil
}
