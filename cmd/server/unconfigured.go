package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
)

// unconfigured stands in for a collaborator whose URL is not set.
// Provisioner calls succeed silently; everything else fails.
type unconfigured struct {
	name string
}

func (u unconfigured) err() error {
	return fmt.Errorf("%s is not configured", u.name)
}

func (u unconfigured) UpsertProject(context.Context, *project.Project) error { return nil }

func (u unconfigured) DeleteProject(context.Context, *project.Project) error { return nil }

func (u unconfigured) CreateTenant(context.Context, string) (*project.Tenant, error) {
	return nil, u.err()
}

func (u unconfigured) GetTenant(context.Context, string) (*project.Tenant, error) {
	return nil, u.err()
}

func (u unconfigured) ListServers(context.Context, string) ([]project.Server, error) {
	return nil, u.err()
}

func (u unconfigured) ListVolumes(context.Context, string) ([]project.Volume, error) {
	return nil, u.err()
}

func (u unconfigured) GrantRoles(context.Context, string, string) error { return u.err() }

func (u unconfigured) SetGPUQuota(context.Context, string) error { return u.err() }

func (u unconfigured) ComputeUsage(context.Context, string, time.Time, time.Time) ([]usage.ServerUsage, error) {
	return nil, u.err()
}

func (u unconfigured) GetReport(context.Context, string, *time.Time, *time.Time) (json.RawMessage, error) {
	return nil, u.err()
}
