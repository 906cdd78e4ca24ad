package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/go-chi/chi/v5"
)

// adminProject is the admin representation of a project.
type adminProject struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	HasPublicCO2Reporting bool               `json:"has_public_co2_reporting"`
	GardenerEnabled       bool               `json:"gardener_enabled"`
	Teams                 []project.TeamRole `json:"teams"`
	EnabledOnOpenstack    *bool              `json:"enabled_on_openstack,omitempty"`
}

// adminProjectRequest is the admin write payload. Absent teams replace the
// membership list with an empty one.
type adminProjectRequest struct {
	Name                  *string            `json:"name"`
	OrganizationID        *string            `json:"organization_id"`
	Description           string             `json:"description"`
	HasPublicCO2Reporting *bool              `json:"has_public_co2_reporting"`
	GardenerEnabled       *bool              `json:"gardener_enabled"`
	Teams                 []project.TeamRole `json:"teams"`
}

type usageResponse struct {
	ProjectID string         `json:"project_id"`
	Summary   *usage.Summary `json:"summary"`
}

func (s *Server) toAdmin(r *http.Request, proj *project.Project) (*adminProject, error) {
	memberships, err := s.projects.Memberships(r.Context(), proj.ID)
	if err != nil {
		return nil, err
	}
	teams := make([]project.TeamRole, 0, len(memberships))
	for _, m := range memberships {
		teams = append(teams, project.TeamRole{Team: m.TeamID, Role: m.Role})
	}
	return &adminProject{
		ID:                    proj.ID,
		Name:                  proj.Name,
		HasPublicCO2Reporting: proj.HasPublicCO2Reporting,
		GardenerEnabled:       proj.GardenerEnabled,
		Teams:                 teams,
	}, nil
}

func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*project.Project, bool) {
	proj, err := s.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return proj, true
}

func (s *Server) adminList(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	list, err := s.projects.ListManaged(r.Context(), user, project.ListOptions{Name: r.URL.Query().Get("name")})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]*adminProject, 0, len(list))
	for i := range list {
		ap, err := s.toAdmin(r, &list[i])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, ap)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminCreate(w http.ResponseWriter, r *http.Request) {
	var req adminProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	create := project.CreateRequest{
		Name:           *req.Name,
		OrganizationID: req.OrganizationID,
		Description:    req.Description,
		Teams:          req.Teams,
	}
	if req.HasPublicCO2Reporting != nil {
		create.HasPublicCO2Reporting = *req.HasPublicCO2Reporting
	}
	if req.GardenerEnabled != nil {
		create.GardenerEnabled = *req.GardenerEnabled
	}

	proj, err := s.projects.Create(r.Context(), create)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.toAdmin(r, proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) adminGet(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	out, err := s.toAdmin(r, proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	enabled := s.projects.EnabledOnOpenstack(r.Context(), proj)
	out.EnabledOnOpenstack = &enabled
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminUpdate(w http.ResponseWriter, r *http.Request) {
	var req adminProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	proj, err := s.projects.Update(r.Context(), chi.URLParam(r, "id"), project.UpdateRequest{
		Name:                  req.Name,
		HasPublicCO2Reporting: req.HasPublicCO2Reporting,
		GardenerEnabled:       req.GardenerEnabled,
		Teams:                 req.Teams,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.toAdmin(r, proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminUsage(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	start, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	end, err := parseDate(r.URL.Query().Get("end"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	summary, err := s.usage.Summary(r.Context(), proj.OpenstackID, usage.Window{Start: start, End: end})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{ProjectID: proj.ID, Summary: summary})
}

func (s *Server) adminRate(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	var bounds [2]*time.Time
	for i, name := range []string{"start", "end"} {
		t, err := parseDate(r.URL.Query().Get(name))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !t.IsZero() {
			bounds[i] = &t
		}
	}

	report, err := s.usage.Rate(r.Context(), proj.OpenstackID, bounds[0], bounds[1])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func (s *Server) adminProvision(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	tenant, err := s.projects.CreateExternalTenant(r.Context(), proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.projects.AuthorizeUsers(proj)

	status := http.StatusOK
	if tenant != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"openstack_id": proj.OpenstackID})
}

func (s *Server) adminGPUQuota(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !proj.Provisioned() {
		writeError(w, http.StatusConflict, "project has no openstack tenant")
		return
	}
	if err := s.projects.SetGPUQuota(r.Context(), proj); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminServers(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	servers, err := s.projects.Servers(r.Context(), proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if servers == nil {
		servers = []project.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) adminVolumes(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	volumes, err := s.projects.Volumes(r.Context(), proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if volumes == nil {
		volumes = []project.Volume{}
	}
	writeJSON(w, http.StatusOK, volumes)
}

func (s *Server) adminMembers(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.writeUsers(w, r, s.projects.Members, proj)
}

func (s *Server) adminOwners(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.writeUsers(w, r, s.projects.Owners, proj)
}

func (s *Server) writeUsers(w http.ResponseWriter, r *http.Request,
	list func(context.Context, *project.Project) ([]project.User, error), proj *project.Project) {
	users, err := list(r.Context(), proj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if users == nil {
		users = []project.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
