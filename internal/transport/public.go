package transport

import (
	"net/http"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/go-chi/chi/v5"
)

// publicProject is the legacy public representation. Only
// HasPublicCO2Reporting is writable.
type publicProject struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	HasPublicCO2Reporting bool   `json:"has_public_co2_reporting"`
	OpenstackID           string `json:"openstack_id"`
}

type publicProjectPatch struct {
	HasPublicCO2Reporting *bool `json:"has_public_co2_reporting"`
}

func toPublic(proj *project.Project) publicProject {
	return publicProject{
		ID:                    proj.ID,
		Name:                  proj.Name,
		HasPublicCO2Reporting: proj.HasPublicCO2Reporting,
		OpenstackID:           proj.OpenstackID,
	}
}

func (s *Server) publicList(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	list, err := s.projects.ListManaged(r.Context(), user, project.ListOptions{Name: r.URL.Query().Get("name")})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]publicProject, 0, len(list))
	for i := range list {
		out = append(out, toPublic(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) publicGet(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	proj, err := s.projects.GetManaged(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublic(proj))
}

func (s *Server) publicUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var patch publicProjectPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		proj *project.Project
		err  error
	)
	if patch.HasPublicCO2Reporting == nil {
		proj, err = s.projects.GetManaged(r.Context(), user, id)
	} else {
		proj, err = s.projects.SetPublicCO2Reporting(r.Context(), user, id, *patch.HasPublicCO2Reporting)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublic(proj))
}
