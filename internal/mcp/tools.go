package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type projectView struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	OpenstackID           string `json:"openstack_id,omitempty"`
	Enabled               bool   `json:"enabled"`
	HasPublicCO2Reporting bool   `json:"has_public_co2_reporting"`
	GardenerEnabled       bool   `json:"gardener_enabled"`
}

func toView(p *project.Project) projectView {
	return projectView{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		OpenstackID:           p.OpenstackID,
		Enabled:               p.Enabled,
		HasPublicCO2Reporting: p.HasPublicCO2Reporting,
		GardenerEnabled:       p.GardenerEnabled,
	}
}

type listProjectsInput struct {
	Name string `json:"name,omitempty" jsonschema:"Exact project name to filter by"`
}

type listProjectsOutput struct {
	Projects []projectView `json:"projects"`
}

type getProjectInput struct {
	ID string `json:"id" jsonschema:"Project ID"`
}

type usageSummaryInput struct {
	ID    string `json:"id" jsonschema:"Project ID"`
	Start string `json:"start,omitempty" jsonschema:"Window start as YYYY-MM-DD (default: first of the month)"`
	End   string `json:"end,omitempty" jsonschema:"Window end as YYYY-MM-DD (default: today)"`
}

type usageSummaryOutput struct {
	ProjectID string         `json:"project_id"`
	HasUsage  bool           `json:"has_usage"`
	Summary   *usage.Summary `json:"summary,omitempty"`
}

func registerTools(server *sdkmcp.Server, svc Services) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List the projects the caller may see and manage",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, args listProjectsInput) (*sdkmcp.CallToolResult, listProjectsOutput, error) {
		list, err := svc.Projects.ListVisible(ctx, getUser(ctx), project.ListOptions{Name: args.Name})
		if err != nil {
			return nil, listProjectsOutput{}, toolError(err)
		}
		return nil, listProjectsOutput{Projects: views(list)}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_owned_projects",
		Description: "List the projects owned by organizations the caller is a member of",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, args listProjectsInput) (*sdkmcp.CallToolResult, listProjectsOutput, error) {
		list, err := svc.Projects.ListOwnedByOrganization(ctx, getUser(ctx), project.ListOptions{Name: args.Name})
		if err != nil {
			return nil, listProjectsOutput{}, toolError(err)
		}
		return nil, listProjectsOutput{Projects: views(list)}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project",
		Description: "Get a single visible project by ID",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, args getProjectInput) (*sdkmcp.CallToolResult, projectView, error) {
		proj, err := visibleProject(ctx, svc.Projects, args.ID)
		if err != nil {
			return nil, projectView{}, toolError(err)
		}
		return nil, toView(proj), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "project_usage_summary",
		Description: "Total RAM, vCPUs and count of active compute instances of a visible project",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, args usageSummaryInput) (*sdkmcp.CallToolResult, usageSummaryOutput, error) {
		proj, err := visibleProject(ctx, svc.Projects, args.ID)
		if err != nil {
			return nil, usageSummaryOutput{}, toolError(err)
		}

		var w usage.Window
		if w.Start, err = parseDate(args.Start); err != nil {
			return nil, usageSummaryOutput{}, toolError(err)
		}
		if w.End, err = parseDate(args.End); err != nil {
			return nil, usageSummaryOutput{}, toolError(err)
		}

		summary, err := svc.Usage.Summary(ctx, proj.OpenstackID, w)
		if err != nil {
			return nil, usageSummaryOutput{}, toolError(err)
		}
		return nil, usageSummaryOutput{ProjectID: proj.ID, HasUsage: summary != nil, Summary: summary}, nil
	})
}

func visibleProject(ctx context.Context, projects ProjectService, id string) (*project.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", project.ErrInvalidInput)
	}
	list, err := projects.ListVisible(ctx, getUser(ctx), project.ListOptions{ID: id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, project.ErrProjectNotFound
	}
	return &list[0], nil
}

func views(list []project.Project) []projectView {
	out := make([]projectView, 0, len(list))
	for i := range list {
		out = append(out, toView(&list[i]))
	}
	return out
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", project.ErrInvalidInput, value)
	}
	return t, nil
}
