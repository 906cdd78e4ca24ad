// Package gardener mirrors projects into the Gardener provisioning service.
package gardener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cloudportal/projectd/internal/apiclient"
	"github.com/cloudportal/projectd/internal/domain/project"
)

// Client implements project.Provisioner.
type Client struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// New creates a Gardener client.
func New(cfg apiclient.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	api, err := apiclient.New("gardener", cfg)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, logger: logger}, nil
}

type projectPayload struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Enabled         bool    `json:"enabled"`
	OpenstackID     string  `json:"openstack_id"`
	OrganizationID  *string `json:"organization_id"`
	GardenerEnabled bool    `json:"gardener_enabled"`
}

// UpsertProject creates or replaces the provisioner's copy of the project,
// keyed by project name.
func (c *Client) UpsertProject(ctx context.Context, proj *project.Project) error {
	body := projectPayload{
		Name:            proj.Name,
		Description:     proj.Description,
		Enabled:         proj.Enabled,
		OpenstackID:     proj.OpenstackID,
		OrganizationID:  proj.OrganizationID,
		GardenerEnabled: proj.GardenerEnabled,
	}
	if err := c.api.Do(ctx, "upsert_project", http.MethodPut, projectPath(proj), nil, body, nil); err != nil {
		return fmt.Errorf("upsert project %q: %w", proj.Name, err)
	}
	c.logger.Debug("project synced to gardener", "project", proj.Name)
	return nil
}

// DeleteProject removes the provisioner's copy. A project the provisioner
// never knew about counts as deleted.
func (c *Client) DeleteProject(ctx context.Context, proj *project.Project) error {
	err := c.api.Do(ctx, "delete_project", http.MethodDelete, projectPath(proj), nil, nil, nil)
	if errors.Is(err, apiclient.ErrNotFound) {
		c.logger.Warn("project unknown to gardener", "project", proj.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete project %q: %w", proj.Name, err)
	}
	return nil
}

func projectPath(proj *project.Project) string {
	return "/api/projects/" + url.PathEscape(proj.Name)
}
