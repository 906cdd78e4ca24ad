package openstack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudportal/projectd/internal/apiclient"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts Options, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(apiclient.Config{BaseURL: srv.URL, MaxRetries: -1}, opts, nil)
	require.NoError(t, err)
	return c
}

func TestCreateAndGetTenant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity/v3/projects", func(w http.ResponseWriter, r *http.Request) {
		var in tenantEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.True(t, in.Project.Enabled)
		_ = json.NewEncoder(w).Encode(tenantEnvelope{Project: tenantBody{ID: "os-1", Name: in.Project.Name, Enabled: true}})
	})
	mux.HandleFunc("GET /identity/v3/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tenantEnvelope{Project: tenantBody{ID: r.PathValue("id"), Name: "acme", Enabled: false}})
	})
	c := newTestClient(t, Options{}, mux)

	tenant, err := c.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "os-1", tenant.ID)
	require.Equal(t, "acme", tenant.Name)

	tenant, err = c.GetTenant(context.Background(), "os-2")
	require.NoError(t, err)
	require.Equal(t, "os-2", tenant.ID)
	require.False(t, tenant.Enabled)
}

func TestListServersAndVolumes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /compute/v2.1/servers/detail", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "os-1", r.URL.Query().Get("project_id"))
		_, _ = w.Write([]byte(`{"servers":[{"id":"s1","name":"web","status":"ACTIVE"}]}`))
	})
	mux.HandleFunc("GET /volume/v3/volumes/detail", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"volumes":[{"id":"v1","name":"data","size":20,"status":"in-use"}]}`))
	})
	c := newTestClient(t, Options{}, mux)

	servers, err := c.ListServers(context.Background(), "os-1")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "ACTIVE", servers[0].Status)

	volumes, err := c.ListVolumes(context.Background(), "os-1")
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	require.Equal(t, 20, volumes[0].Size)
}

func TestGrantRoles(t *testing.T) {
	var granted []string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /identity/v3/projects/{tenant}/users/{user}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "os-1", r.PathValue("tenant"))
		require.Equal(t, "os-alice", r.PathValue("user"))
		granted = append(granted, r.PathValue("role"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, Options{MemberRoles: []string{"member", "load-balancer_member"}}, mux)

	require.NoError(t, c.GrantRoles(context.Background(), "os-alice", "os-1"))
	require.Equal(t, []string{"member", "load-balancer_member"}, granted)
}

func TestSetGPUQuota(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /compute/v2.1/os-quota-sets/{tenant}", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			QuotaSet map[string]int `json:"quota_set"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, 2, in.QuotaSet["resources:VGPU"])
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, Options{GPUQuota: 2}, mux)

	require.NoError(t, c.SetGPUQuota(context.Background(), "os-1"))
}

func TestComputeUsage(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /compute/v2.1/os-simple-tenant-usage/{tenant}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "os-1", r.PathValue("tenant"))
		require.Equal(t, "2024-03-01T00:00:00", r.URL.Query().Get("start"))
		require.Equal(t, "2024-03-15T00:00:00", r.URL.Query().Get("end"))
		_, _ = w.Write([]byte(`{"tenant_usage":{"server_usages":[
			{"instance_id":"i1","name":"web","state":"active","memory_mb":2048,"vcpus":2,"hours":10.5,
			 "started_at":"2024-03-02T08:30:00.000000","ended_at":null},
			{"instance_id":"i2","name":"old","state":"terminated","hours":1}
		]}}`))
	})
	c := newTestClient(t, Options{}, mux)

	list, err := c.ComputeUsage(context.Background(), "os-1", start, end)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Equal(t, "active", list[0].State)
	require.Equal(t, 2048.0, *list[0].MemoryMB)
	require.Equal(t, 2.0, *list[0].VCPUs)
	require.NotNil(t, list[0].StartedAt)
	require.Equal(t, time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC), *list[0].StartedAt)
	require.Nil(t, list[0].EndedAt)

	require.Nil(t, list[1].MemoryMB, "missing numbers stay missing")
}

func TestCreateTenant_NotResentOnServerError(t *testing.T) {
	var posts, gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity/v3/projects", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /identity/v3/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		if gets.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(tenantEnvelope{Project: tenantBody{ID: r.PathValue("id"), Name: "acme", Enabled: true}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// Retries left at their default, as the server builds it.
	c, err := New(apiclient.Config{BaseURL: srv.URL}, Options{}, nil)
	require.NoError(t, err)

	_, err = c.CreateTenant(context.Background(), "acme")
	require.Error(t, err)
	require.Equal(t, int32(1), posts.Load())

	tenant, err := c.GetTenant(context.Background(), "os-1")
	require.NoError(t, err)
	require.Equal(t, "os-1", tenant.ID)
	require.Equal(t, int32(2), gets.Load())
}
