package mcp

import (
	"context"
	"log/slog"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	ListVisible(ctx context.Context, user *project.User, opts project.ListOptions) ([]project.Project, error)
	ListOwnedByOrganization(ctx context.Context, user *project.User, opts project.ListOptions) ([]project.Project, error)
}

// UsageService defines usage operations needed by MCP.
type UsageService interface {
	Summary(ctx context.Context, tenantID string, w usage.Window) (*usage.Summary, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Projects ProjectService
	Usage    UsageService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      UserResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	// DefaultUser acts for every call when auth is off.
	DefaultUser *project.User
	Logger      *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "projectd",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio mode: always disable auth (local dev only)
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(staticUserMiddleware(cfg.DefaultUser))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}
