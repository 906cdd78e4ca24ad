package functional_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/cloudportal/projectd/internal/testserver"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	if b.token != "" {
		r.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(r)
}

// connect opens an MCP session over streamable HTTP acting with token.
func connect(t *testing.T, ts *testserver.TestServer, token string) *sdkmcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: &bearerTransport{token: token, base: http.DefaultTransport}},
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callTool calls a tool and decodes its structured output into out.
func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s failed: %v", name, res.Content)

	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

type projectList struct {
	Projects []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		OpenstackID string `json:"openstack_id"`
	} `json:"projects"`
}

func seedProject(t *testing.T, ts *testserver.TestServer, name string) *project.Project {
	t.Helper()
	org := "o1"
	proj, err := ts.Projects.Create(context.Background(), project.CreateRequest{
		Name:           name,
		OrganizationID: &org,
		Teams:          []project.TeamRole{{Team: "t1"}},
	})
	require.NoError(t, err)
	return proj
}

func TestFunctional_Authentication(t *testing.T) {
	ts := testserver.New(t)

	session := connect(t, ts, "")
	_, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: "list_projects", Arguments: map[string]any{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unauthorized")

	session = connect(t, ts, "wrong-token")
	_, err = session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: "list_projects", Arguments: map[string]any{}})
	require.Error(t, err)
}

func TestFunctional_ProjectVisibility(t *testing.T) {
	ts := testserver.New(t)
	seedProject(t, ts, "alpha")

	var member projectList
	callTool(t, connect(t, ts, testserver.MemberToken), "list_projects", map[string]any{}, &member)
	require.Len(t, member.Projects, 1)
	require.Equal(t, "alpha", member.Projects[0].Name)

	// bob owns the organization but is in no linked team
	var owner projectList
	session := connect(t, ts, testserver.OwnerToken)
	callTool(t, session, "list_projects", map[string]any{}, &owner)
	require.Empty(t, owner.Projects)
	callTool(t, session, "list_owned_projects", map[string]any{}, &owner)
	require.Len(t, owner.Projects, 1)

	var admin projectList
	callTool(t, connect(t, ts, testserver.AdminToken), "list_projects", map[string]any{"name": "alpha"}, &admin)
	require.Len(t, admin.Projects, 1)
}

func TestFunctional_UsageSummary(t *testing.T) {
	ts := testserver.New(t)
	proj := seedProject(t, ts, "alpha")
	_, err := ts.Projects.CreateExternalTenant(context.Background(), proj)
	require.NoError(t, err)

	mem, cpus := 8192.0, 4.0
	ts.Cloud.SetUsage(proj.OpenstackID, []usage.ServerUsage{
		{State: usage.StateActive, MemoryMB: &mem, VCPUs: &cpus},
	})

	session := connect(t, ts, testserver.MemberToken)
	var out struct {
		ProjectID string         `json:"project_id"`
		HasUsage  bool           `json:"has_usage"`
		Summary   *usage.Summary `json:"summary"`
	}
	for range 2 {
		callTool(t, session, "project_usage_summary", map[string]any{"id": proj.ID}, &out)
		require.True(t, out.HasUsage)
		require.Equal(t, &usage.Summary{Total: 1, RAM: 8192, VCPUs: 4}, out.Summary)
	}
	require.Equal(t, 1, ts.Cloud.Fetches())

	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "project_usage_summary",
		Arguments: map[string]any{"id": "missing"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
}
