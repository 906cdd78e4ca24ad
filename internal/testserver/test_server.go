// Package testserver assembles the full HTTP stack on an in-memory database
// with in-process collaborators, for transport and end-to-end tests.
package testserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudportal/projectd/internal/cache"
	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/cloudportal/projectd/internal/mcp"
	"github.com/cloudportal/projectd/internal/sqlite"
	"github.com/cloudportal/projectd/internal/tasks"
	"github.com/cloudportal/projectd/internal/transport"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

// Tokens seeded by New.
const (
	AdminToken  = "admin-token"
	MemberToken = "member-token"
	OwnerToken  = "owner-token"
)

type TestServer struct {
	Server      *httptest.Server
	DB          *sqlite.DB
	Users       *sqlite.UserRepository
	Projects    *project.Service
	Tasks       *tasks.Runner
	Provisioner *Provisioner
	Cloud       *Cloud
	Clock       *quartz.Mock
}

// New starts a server with an admin, a team member of org o1 (alice, team
// t1) and an owner of org o1 (bob).
func New(t *testing.T) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	users := sqlite.NewUserRepository(db)
	seed(t, users)

	runner, err := tasks.New(2, 5*time.Second, nil)
	require.NoError(t, err)

	store, err := cache.NewMemoryStore(1 << 20)
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC))

	provisioner := &Provisioner{}
	cloud := NewCloud()

	projectSvc := project.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewMembershipRepository(db),
		users,
		provisioner,
		cloud,
		runner,
		nil,
	)
	usageSvc := usage.NewService(usage.NewCache(store, nil), cloud, cloud, time.Hour, clock, nil)

	mcpServer := mcp.NewServer(mcp.Config{
		Services:    mcp.Services{Projects: projectSvc, Usage: usageSvc},
		Resolver:    users,
		AuthEnabled: true,
	})
	router := transport.NewServer(projectSvc, usageSvc, transport.Options{
		Auth: transport.AuthMiddleware(users),
		MCP:  mcp.NewHTTPHandler(mcpServer),
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		_ = runner.Close(context.Background())
		store.Close()
		_ = db.Close()
	})

	return &TestServer{
		Server:      server,
		DB:          db,
		Users:       users,
		Projects:    projectSvc,
		Tasks:       runner,
		Provisioner: provisioner,
		Cloud:       cloud,
		Clock:       clock,
	}
}

func seed(t *testing.T, users *sqlite.UserRepository) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, users.CreateOrganization(ctx, "o1", "Org One"))
	require.NoError(t, users.CreateUser(ctx, &project.User{
		ID: "admin", Username: "admin", IsAdmin: true,
		Permissions: map[string]bool{project.PermManageAllOrganizationProjects: true},
	}))
	require.NoError(t, users.CreateUser(ctx, &project.User{ID: "alice", Username: "alice", OpenstackID: "os-alice"}))
	require.NoError(t, users.CreateUser(ctx, &project.User{ID: "bob", Username: "bob"}))
	require.NoError(t, users.CreateTeam(ctx, "t1", "o1", "ops"))
	require.NoError(t, users.CreateTeam(ctx, "t2", "o1", "dev"))
	require.NoError(t, users.AddOrganizationUser(ctx, "o1", "alice"))
	require.NoError(t, users.AddTeamMember(ctx, "t1", "alice", true))
	require.NoError(t, users.AddOrganizationMembership(ctx, "o1", "bob"))

	require.NoError(t, users.CreateToken(ctx, "admin", AdminToken, "test"))
	require.NoError(t, users.CreateToken(ctx, "alice", MemberToken, "test"))
	require.NoError(t, users.CreateToken(ctx, "bob", OwnerToken, "test"))
}

// Provisioner records the calls it receives.
type Provisioner struct {
	mu      sync.Mutex
	Upserts []string
	Deletes []string
}

func (p *Provisioner) UpsertProject(_ context.Context, proj *project.Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Upserts = append(p.Upserts, proj.Name)
	return nil
}

func (p *Provisioner) DeleteProject(_ context.Context, proj *project.Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Deletes = append(p.Deletes, proj.Name)
	return nil
}

// UpsertCount returns how many upserts were seen.
func (p *Provisioner) UpsertCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Upserts)
}

// DeleteCount returns how many deletes were seen.
func (p *Provisioner) DeleteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Deletes)
}

// Cloud is an in-process tenant client, usage source and billing client.
type Cloud struct {
	mu           sync.Mutex
	tenants      map[string]*project.Tenant
	Usage        map[string][]usage.ServerUsage
	UsageFetches int
	Grants       []string
	Quotas       []string
}

// NewCloud creates an empty Cloud.
func NewCloud() *Cloud {
	return &Cloud{
		tenants: make(map[string]*project.Tenant),
		Usage:   make(map[string][]usage.ServerUsage),
	}
}

func (c *Cloud) CreateTenant(_ context.Context, name string) (*project.Tenant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tenant := &project.Tenant{ID: "os-" + name, Name: name, Enabled: true}
	c.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (c *Cloud) GetTenant(_ context.Context, id string) (*project.Tenant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tenant, ok := c.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s not found", id)
	}
	return tenant, nil
}

func (c *Cloud) ListServers(_ context.Context, tenantID string) ([]project.Server, error) {
	return []project.Server{{ID: "s1", Name: tenantID + "-web", Status: "ACTIVE"}}, nil
}

func (c *Cloud) ListVolumes(_ context.Context, tenantID string) ([]project.Volume, error) {
	return []project.Volume{{ID: "v1", Name: tenantID + "-data", Size: 10, Status: "available"}}, nil
}

func (c *Cloud) GrantRoles(_ context.Context, userExternalID, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Grants = append(c.Grants, userExternalID+"@"+tenantID)
	return nil
}

// GrantList returns a copy of the recorded grants.
func (c *Cloud) GrantList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Grants...)
}

func (c *Cloud) SetGPUQuota(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Quotas = append(c.Quotas, tenantID)
	return nil
}

func (c *Cloud) ComputeUsage(_ context.Context, tenantID string, _, _ time.Time) ([]usage.ServerUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UsageFetches++
	return c.Usage[tenantID], nil
}

// SetUsage stores the usage report returned for a tenant.
func (c *Cloud) SetUsage(tenantID string, list []usage.ServerUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Usage[tenantID] = list
}

// Fetches returns how many usage reports were requested.
func (c *Cloud) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.UsageFetches
}

func (c *Cloud) GetReport(_ context.Context, tenantID string, _, _ *time.Time) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"tenant":%q,"total":1.5}`, tenantID)), nil
}
