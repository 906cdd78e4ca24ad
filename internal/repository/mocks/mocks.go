package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for project.Repository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	args := m.Called(ctx, id)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) GetByName(ctx context.Context, name string) (*project.Project, error) {
	args := m.Called(ctx, name)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ProjectRepository) List(ctx context.Context, opts project.ListOptions) ([]project.Project, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]project.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) ListForUser(ctx context.Context, userID string, opts project.ListOptions) ([]project.Project, error) {
	args := m.Called(ctx, userID, opts)
	if list, ok := args.Get(0).([]project.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) ListOwnedByOrganization(ctx context.Context, userID string, opts project.ListOptions) ([]project.Project, error) {
	args := m.Called(ctx, userID, opts)
	if list, ok := args.Get(0).([]project.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// MembershipRepository is a mock for project.MembershipRepository.
type MembershipRepository struct {
	mock.Mock
}

func (m *MembershipRepository) Upsert(ctx context.Context, membership *project.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MembershipRepository) Get(ctx context.Context, projectID, teamID string) (*project.Membership, error) {
	args := m.Called(ctx, projectID, teamID)
	if membership, ok := args.Get(0).(*project.Membership); ok {
		return membership, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MembershipRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MembershipRepository) ListByProject(ctx context.Context, projectID string) ([]project.Membership, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]project.Membership); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// UserRepository is a mock for project.UserRepository.
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) ListProjectMembers(ctx context.Context, projectID string) ([]project.User, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]project.User); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) ListProjectOwners(ctx context.Context, projectID string) ([]project.User, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]project.User); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Provisioner is a mock for project.Provisioner.
type Provisioner struct {
	mock.Mock
}

func (m *Provisioner) UpsertProject(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *Provisioner) DeleteProject(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

// TenantClient is a mock for project.TenantClient.
type TenantClient struct {
	mock.Mock
}

func (m *TenantClient) CreateTenant(ctx context.Context, name string) (*project.Tenant, error) {
	args := m.Called(ctx, name)
	if tenant, ok := args.Get(0).(*project.Tenant); ok {
		return tenant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TenantClient) GetTenant(ctx context.Context, id string) (*project.Tenant, error) {
	args := m.Called(ctx, id)
	if tenant, ok := args.Get(0).(*project.Tenant); ok {
		return tenant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TenantClient) ListServers(ctx context.Context, tenantID string) ([]project.Server, error) {
	args := m.Called(ctx, tenantID)
	if list, ok := args.Get(0).([]project.Server); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TenantClient) ListVolumes(ctx context.Context, tenantID string) ([]project.Volume, error) {
	args := m.Called(ctx, tenantID)
	if list, ok := args.Get(0).([]project.Volume); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TenantClient) GrantRoles(ctx context.Context, userExternalID, tenantID string) error {
	args := m.Called(ctx, userExternalID, tenantID)
	return args.Error(0)
}

func (m *TenantClient) SetGPUQuota(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// TaskRunner is a mock for project.TaskRunner. Run executes the most
// recently enqueued job synchronously.
type TaskRunner struct {
	mock.Mock
	jobs []func(ctx context.Context) error
}

func (m *TaskRunner) Enqueue(name string, job func(ctx context.Context) error) {
	m.Called(name)
	m.jobs = append(m.jobs, job)
}

func (m *TaskRunner) Run(ctx context.Context) error {
	if len(m.jobs) == 0 {
		return nil
	}
	job := m.jobs[len(m.jobs)-1]
	m.jobs = m.jobs[:len(m.jobs)-1]
	return job(ctx)
}

// UsageSource is a mock for usage.Source.
type UsageSource struct {
	mock.Mock
}

func (m *UsageSource) ComputeUsage(ctx context.Context, tenantID string, start, end time.Time) ([]usage.ServerUsage, error) {
	args := m.Called(ctx, tenantID, start, end)
	if list, ok := args.Get(0).([]usage.ServerUsage); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// BillingClient is a mock for usage.BillingClient.
type BillingClient struct {
	mock.Mock
}

func (m *BillingClient) GetReport(ctx context.Context, tenantID string, start, end *time.Time) (json.RawMessage, error) {
	args := m.Called(ctx, tenantID, start, end)
	if report, ok := args.Get(0).(json.RawMessage); ok {
		return report, args.Error(1)
	}
	return nil, args.Error(1)
}

// Store is a mock for usage.Store.
type Store struct {
	mock.Mock
}

func (m *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Bool(1), args.Error(2)
}

func (m *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}
