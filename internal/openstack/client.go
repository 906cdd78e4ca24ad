// Package openstack talks to the identity, compute and volume APIs behind a
// single gateway endpoint. It is both the tenant client of the project
// service and the compute usage source of the usage service.
package openstack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudportal/projectd/internal/apiclient"
	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
)

// Options holds the role and quota settings applied to tenants.
type Options struct {
	// MemberRoles are granted to every authorized user on a tenant.
	MemberRoles []string
	// GPUQuota is the number of GPUs a tenant may allocate.
	GPUQuota int
}

// Client implements project.TenantClient and usage.Source.
type Client struct {
	api    *apiclient.Client
	opts   Options
	logger *slog.Logger
}

// New creates an OpenStack client.
func New(cfg apiclient.Config, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(opts.MemberRoles) == 0 {
		opts.MemberRoles = []string{"member"}
	}
	api, err := apiclient.New("openstack", cfg)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, opts: opts, logger: logger}, nil
}

type tenantBody struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type tenantEnvelope struct {
	Project tenantBody `json:"project"`
}

// CreateTenant creates an enabled identity project.
func (c *Client) CreateTenant(ctx context.Context, name string) (*project.Tenant, error) {
	var out tenantEnvelope
	in := tenantEnvelope{Project: tenantBody{Name: name, Enabled: true}}
	if err := c.api.Do(ctx, "create_tenant", http.MethodPost, "/identity/v3/projects", nil, in, &out); err != nil {
		return nil, err
	}
	c.logger.Info("openstack tenant created", "name", name, "tenant_id", out.Project.ID)
	return &project.Tenant{ID: out.Project.ID, Name: out.Project.Name, Enabled: out.Project.Enabled}, nil
}

// GetTenant fetches an identity project.
func (c *Client) GetTenant(ctx context.Context, id string) (*project.Tenant, error) {
	var out tenantEnvelope
	if err := c.api.Do(ctx, "get_tenant", http.MethodGet, "/identity/v3/projects/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &project.Tenant{ID: out.Project.ID, Name: out.Project.Name, Enabled: out.Project.Enabled}, nil
}

// ListServers returns the tenant's compute instances.
func (c *Client) ListServers(ctx context.Context, tenantID string) ([]project.Server, error) {
	var out struct {
		Servers []project.Server `json:"servers"`
	}
	query := url.Values{"all_tenants": {"1"}, "project_id": {tenantID}}
	if err := c.api.Do(ctx, "list_servers", http.MethodGet, "/compute/v2.1/servers/detail", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

// ListVolumes returns the tenant's block storage volumes.
func (c *Client) ListVolumes(ctx context.Context, tenantID string) ([]project.Volume, error) {
	var out struct {
		Volumes []project.Volume `json:"volumes"`
	}
	query := url.Values{"all_tenants": {"1"}, "project_id": {tenantID}}
	if err := c.api.Do(ctx, "list_volumes", http.MethodGet, "/volume/v3/volumes/detail", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Volumes, nil
}

// GrantRoles assigns the configured member roles to a user on a tenant.
func (c *Client) GrantRoles(ctx context.Context, userExternalID, tenantID string) error {
	for _, role := range c.opts.MemberRoles {
		path := fmt.Sprintf("/identity/v3/projects/%s/users/%s/roles/%s",
			url.PathEscape(tenantID), url.PathEscape(userExternalID), url.PathEscape(role))
		if err := c.api.Do(ctx, "grant_role", http.MethodPut, path, nil, nil, nil); err != nil {
			return fmt.Errorf("grant %s to %s: %w", role, userExternalID, err)
		}
	}
	return nil
}

// SetGPUQuota applies the configured GPU quota to a tenant.
func (c *Client) SetGPUQuota(ctx context.Context, tenantID string) error {
	body := map[string]any{
		"quota_set": map[string]int{"resources:VGPU": c.opts.GPUQuota},
	}
	path := "/compute/v2.1/os-quota-sets/" + url.PathEscape(tenantID)
	return c.api.Do(ctx, "set_gpu_quota", http.MethodPut, path, nil, body, nil)
}

// Timestamps in usage reports carry no zone and are UTC.
const usageTimeLayout = "2006-01-02T15:04:05.999999"

type serverUsageWire struct {
	InstanceID string   `json:"instance_id"`
	Name       string   `json:"name"`
	Flavor     string   `json:"flavor"`
	State      string   `json:"state"`
	MemoryMB   *float64 `json:"memory_mb"`
	VCPUs      *float64 `json:"vcpus"`
	Hours      float64  `json:"hours"`
	StartedAt  *string  `json:"started_at"`
	EndedAt    *string  `json:"ended_at"`
}

// ComputeUsage returns the per-instance usage of a tenant in [start, end].
func (c *Client) ComputeUsage(ctx context.Context, tenantID string, start, end time.Time) ([]usage.ServerUsage, error) {
	var out struct {
		TenantUsage struct {
			ServerUsages []serverUsageWire `json:"server_usages"`
		} `json:"tenant_usage"`
	}
	query := url.Values{
		"start":    {start.UTC().Format(usageTimeLayout)},
		"end":      {end.UTC().Format(usageTimeLayout)},
		"detailed": {"1"},
	}
	path := "/compute/v2.1/os-simple-tenant-usage/" + url.PathEscape(tenantID)
	if err := c.api.Do(ctx, "compute_usage", http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}

	list := make([]usage.ServerUsage, 0, len(out.TenantUsage.ServerUsages))
	for _, w := range out.TenantUsage.ServerUsages {
		list = append(list, usage.ServerUsage{
			InstanceID: w.InstanceID,
			Name:       w.Name,
			Flavor:     w.Flavor,
			State:      w.State,
			MemoryMB:   w.MemoryMB,
			VCPUs:      w.VCPUs,
			Hours:      w.Hours,
			StartedAt:  parseUsageTime(w.StartedAt),
			EndedAt:    parseUsageTime(w.EndedAt),
		})
	}
	return list, nil
}

func parseUsageTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{usageTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
