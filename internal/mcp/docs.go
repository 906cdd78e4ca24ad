package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `projectd manages cloud projects: billing units that wrap an OpenStack tenant and are shared with teams.

- list_projects returns the projects you may manage. Holders of the global permission see every project; everyone else sees projects of their organizations that are linked to one of their teams.
- list_owned_projects returns projects of organizations you own.
- get_project fetches one project from that same scope.
- project_usage_summary totals the active compute instances of a project over a date window (default: first of the month until today). Projects without a tenant report no usage.

Authenticate over HTTP with "Authorization: Bearer <token>".
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "projectd://docs/usage",
		Name:        "docs_usage",
		Title:       "Compute usage reporting",
		Description: "How usage summaries are computed and cached.",
		Content: `# Compute usage

A usage report lists one entry per instance: state, memory_mb, vcpus.

The summary counts only entries in state "active":

- total: number of active instances
- ram: sum of memory_mb (MB)
- vcpus: sum of vcpus

There is no summary when the report is empty or has no active instance.

Reports are cached per project and day-granular window, so asking twice on
the same day returns the same numbers until the cache entry expires.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
