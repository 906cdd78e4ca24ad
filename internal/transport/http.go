package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/cloudportal/projectd/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ProjectService defines the project operations exposed over HTTP.
type ProjectService interface {
	Create(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	Get(ctx context.Context, id string) (*project.Project, error)
	Update(ctx context.Context, id string, req project.UpdateRequest) (*project.Project, error)
	Delete(ctx context.Context, id string) error
	Memberships(ctx context.Context, projectID string) ([]project.Membership, error)

	ListManaged(ctx context.Context, user *project.User, opts project.ListOptions) ([]project.Project, error)
	GetManaged(ctx context.Context, user *project.User, id string) (*project.Project, error)
	SetPublicCO2Reporting(ctx context.Context, user *project.User, id string, enabled bool) (*project.Project, error)

	CreateExternalTenant(ctx context.Context, proj *project.Project) (*project.Tenant, error)
	AuthorizeUsers(proj *project.Project)
	SetGPUQuota(ctx context.Context, proj *project.Project) error
	EnabledOnOpenstack(ctx context.Context, proj *project.Project) bool
	Servers(ctx context.Context, proj *project.Project) ([]project.Server, error)
	Volumes(ctx context.Context, proj *project.Project) ([]project.Volume, error)
	Members(ctx context.Context, proj *project.Project) ([]project.User, error)
	Owners(ctx context.Context, proj *project.Project) ([]project.User, error)
}

// UsageService defines the usage reporting operations exposed over HTTP.
type UsageService interface {
	Summary(ctx context.Context, tenantID string, w usage.Window) (*usage.Summary, error)
	Rate(ctx context.Context, tenantID string, start, end *time.Time) (json.RawMessage, error)
}

// Options wires the optional parts of the router.
type Options struct {
	// Auth authenticates /api requests. Required.
	Auth func(http.Handler) http.Handler
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	projects ProjectService
	usage    UsageService
	logger   *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(projects ProjectService, usageSvc UsageService, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{projects: projects, usage: usageSvc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/health", srv.handleHealth)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(opts.Auth)

		r.Route("/admin/projects", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", srv.adminList)
			r.Post("/", srv.adminCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.adminGet)
				r.Put("/", srv.adminUpdate)
				r.Delete("/", srv.adminDelete)
				r.Get("/usage", srv.adminUsage)
				r.Get("/rate", srv.adminRate)
				r.Post("/openstack", srv.adminProvision)
				r.Post("/gpu-quota", srv.adminGPUQuota)
				r.Get("/servers", srv.adminServers)
				r.Get("/volumes", srv.adminVolumes)
				r.Get("/members", srv.adminMembers)
				r.Get("/owners", srv.adminOwners)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Use(deprecated)
			r.Get("/", srv.publicList)
			r.Get("/{id}", srv.publicGet)
			r.Patch("/{id}", srv.publicUpdate)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// deprecated marks the legacy public endpoint.
func deprecated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Deprecation", "true")
		next.ServeHTTP(w, r)
	})
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
