package project_test

import (
	"context"
	"testing"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestListVisible_GlobalPermissionSeesAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := &project.User{ID: "u1", Permissions: map[string]bool{project.PermManageAllOrganizationProjects: true}}
	f.repo.On("List", ctx, project.ListOptions{}).Return([]project.Project{
		{ID: "p1"}, {ID: "p2"}, {ID: "p1"},
	}, nil)

	list, err := f.svc.ListVisible(ctx, user, project.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	f.repo.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestListVisible_TeamScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := &project.User{ID: "u1"}
	f.repo.On("ListForUser", ctx, "u1", project.ListOptions{}).Return([]project.Project{
		{ID: "p1"}, {ID: "p1"}, {ID: "p3"},
	}, nil)

	list, err := f.svc.ListVisible(ctx, user, project.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p3"}, ids(list))
}

func TestListVisible_NoUser(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ListVisible(context.Background(), nil, project.ListOptions{})
	require.ErrorIs(t, err, project.ErrForbidden)
}

func TestListManaged(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.On("List", ctx, project.ListOptions{Name: "acme"}).Return([]project.Project{{ID: "p1", Name: "acme"}}, nil)
	f.repo.On("ListOwnedByOrganization", ctx, "u2", project.ListOptions{Name: "acme"}).Return([]project.Project{}, nil)

	list, err := f.svc.ListManaged(ctx, &project.User{ID: "admin", IsAdmin: true}, project.ListOptions{Name: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.svc.ListManaged(ctx, &project.User{ID: "u2"}, project.ListOptions{Name: "acme"})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSetPublicCO2Reporting(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := &project.User{ID: "u1"}
	f.repo.On("ListOwnedByOrganization", ctx, "u1", project.ListOptions{ID: "p1"}).Return([]project.Project{{ID: "p1", Name: "acme"}}, nil)
	f.repo.On("ListOwnedByOrganization", ctx, "u1", project.ListOptions{ID: "p2"}).Return([]project.Project{}, nil)
	f.repo.On("Update", ctx, mock.MatchedBy(func(p *project.Project) bool {
		return p.ID == "p1" && p.HasPublicCO2Reporting
	})).Return(nil)
	f.provisioner.On("UpsertProject", ctx, mock.Anything).Return(nil)

	proj, err := f.svc.SetPublicCO2Reporting(ctx, user, "p1", true)
	require.NoError(t, err)
	require.True(t, proj.HasPublicCO2Reporting)

	_, err = f.svc.SetPublicCO2Reporting(ctx, user, "p2", true)
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func ids(list []project.Project) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}
