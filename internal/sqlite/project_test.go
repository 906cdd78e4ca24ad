package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/repository"
	"github.com/stretchr/testify/require"
)

func newProject(id, name string, orgID *string) *project.Project {
	now := time.Now().UTC()
	return &project.Project{
		ID:             id,
		OrganizationID: orgID,
		Name:           name,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
}

func strPtr(s string) *string { return &s }

// seedDirectory builds two organizations, two teams and three users:
// alice belongs to org o1 and both teams, bob owns o1, carol has nothing.
func seedDirectory(t *testing.T, db *DB) *UserRepository {
	t.Helper()
	ctx := context.Background()
	users := NewUserRepository(db)

	require.NoError(t, users.CreateOrganization(ctx, "o1", "Org One"))
	require.NoError(t, users.CreateOrganization(ctx, "o2", "Org Two"))
	for _, u := range []project.User{
		{ID: "alice", Username: "alice", OpenstackID: "os-alice"},
		{ID: "bob", Username: "bob"},
		{ID: "carol", Username: "carol"},
	} {
		require.NoError(t, users.CreateUser(ctx, &u))
	}
	require.NoError(t, users.CreateTeam(ctx, "t1", "o1", "ops"))
	require.NoError(t, users.CreateTeam(ctx, "t2", "o1", "dev"))
	require.NoError(t, users.AddOrganizationUser(ctx, "o1", "alice"))
	require.NoError(t, users.AddOrganizationMembership(ctx, "o1", "bob"))
	require.NoError(t, users.AddTeamMember(ctx, "t1", "alice", true))
	require.NoError(t, users.AddTeamMember(ctx, "t2", "alice", false))
	return users
}

func TestProjectRepository_CreateAndGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	proj := newProject("p1", "acme", nil)
	proj.Description = "An example"
	proj.GardenerEnabled = true
	proj.KeycloakID = strPtr("kc-1")

	require.NoError(t, repo.Create(ctx, proj))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "acme", got.Name)
	require.Equal(t, "An example", got.Description)
	require.True(t, got.GardenerEnabled)
	require.Nil(t, got.OrganizationID)
	require.Nil(t, got.GardenerID)
	require.NotNil(t, got.KeycloakID)
	require.Equal(t, "kc-1", *got.KeycloakID)
	require.Nil(t, got.DeletedAt)
	require.WithinDuration(t, proj.CreatedAt, got.CreatedAt, time.Second)

	byName, err := repo.GetByName(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "p1", byName.ID)
}

func TestProjectRepository_GetNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByName(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_DuplicateName(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProject("p1", "acme", nil)))
	err := repo.Create(ctx, newProject("p2", "acme", nil))
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestProjectRepository_Update(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	proj := newProject("p1", "acme", nil)
	require.NoError(t, repo.Create(ctx, proj))

	proj.OpenstackID = "os-1"
	proj.HasPublicCO2Reporting = true
	proj.GardenerID = strPtr("garden-1")
	require.NoError(t, repo.Update(ctx, proj))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "os-1", got.OpenstackID)
	require.True(t, got.HasPublicCO2Reporting)
	require.Equal(t, "garden-1", *got.GardenerID)

	err = repo.Update(ctx, newProject("missing", "other", nil))
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_DeleteRemovesMemberships(t *testing.T) {
	db := NewTestDB(t)
	seedDirectory(t, db)
	repo := NewProjectRepository(db)
	memberships := NewMembershipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProject("p1", "acme", strPtr("o1"))))
	require.NoError(t, memberships.Upsert(ctx, &project.Membership{
		ID: "m1", ProjectID: "p1", TeamID: "t1", Role: project.RoleAdmin, CreatedAt: time.Now(),
	}))

	require.NoError(t, repo.Delete(ctx, "p1"))

	_, err := repo.Get(ctx, "p1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	list, err := memberships.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, list)

	err = repo.Delete(ctx, "p1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_ListFilters(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProject("p1", "beta", nil)))
	require.NoError(t, repo.Create(ctx, newProject("p2", "alpha", nil)))

	all, err := repo.List(ctx, project.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, names(all))

	byName, err := repo.List(ctx, project.ListOptions{Name: "beta"})
	require.NoError(t, err)
	require.Equal(t, []string{"beta"}, names(byName))

	byID, err := repo.List(ctx, project.ListOptions{ID: "p2"})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, names(byID))

	none, err := repo.List(ctx, project.ListOptions{ID: "p2", Name: "beta"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestProjectRepository_ListForUser(t *testing.T) {
	db := NewTestDB(t)
	seedDirectory(t, db)
	repo := NewProjectRepository(db)
	memberships := NewMembershipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProject("alpha", "alpha", strPtr("o1"))))
	require.NoError(t, repo.Create(ctx, newProject("beta", "beta", strPtr("o1"))))
	require.NoError(t, repo.Create(ctx, newProject("gamma", "gamma", strPtr("o2"))))

	link := func(id, projectID, teamID string) {
		require.NoError(t, memberships.Upsert(ctx, &project.Membership{
			ID: id, ProjectID: projectID, TeamID: teamID, Role: project.RoleRead, CreatedAt: time.Now(),
		}))
	}
	// alpha is reachable through both of alice's teams.
	link("m1", "alpha", "t1")
	link("m2", "alpha", "t2")
	// gamma is linked to alice's team but lives in an organization she is not part of.
	link("m3", "gamma", "t1")

	list, err := repo.ListForUser(ctx, "alice", project.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, names(list))

	list, err = repo.ListForUser(ctx, "alice", project.ListOptions{Name: "beta"})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = repo.ListForUser(ctx, "carol", project.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestProjectRepository_ListOwnedByOrganization(t *testing.T) {
	db := NewTestDB(t)
	seedDirectory(t, db)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProject("alpha", "alpha", strPtr("o1"))))
	require.NoError(t, repo.Create(ctx, newProject("beta", "beta", strPtr("o1"))))
	require.NoError(t, repo.Create(ctx, newProject("gamma", "gamma", strPtr("o2"))))
	require.NoError(t, repo.Create(ctx, newProject("orphan", "orphan", nil)))

	list, err := repo.ListOwnedByOrganization(ctx, "bob", project.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, names(list))

	// Team membership alone does not grant ownership.
	list, err = repo.ListOwnedByOrganization(ctx, "alice", project.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func names(list []project.Project) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.Name)
	}
	return out
}
