package services

import (
	"testing"

	"teamdrive/models"

	"github.com/stretchr/testify/require"
)

func TestSetMemberMaskKeepsLastManager(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	env.join(t, team.ID, bob.ID, models.TeamRead)

	for _, mask := range []models.TeamMask{models.TeamRead, 0} {
		err := env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, alice.ID, mask)
		appErr := requireAppError(t, err, 409)
		require.Equal(t, KindConflict, appErr.Kind)
	}

	admins, err := env.repos.Memberships.CountWithMask(env.ctx, nil, team.ID, models.TeamManageUsers)
	require.NoError(t, err)
	require.EqualValues(t, 1, admins)
	require.EqualValues(t, 2, env.teamRow(t, team.ID).UsedMembers)

	require.NoError(t, env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, bob.ID, models.TeamManageUsers))
	require.NoError(t, env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, alice.ID, models.TeamRead))

	m, err := env.repos.Memberships.Get(env.ctx, nil, team.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, models.TeamRead, m.Mask)

	// alice can no longer manage anyone
	err = env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, bob.ID, models.TeamRead)
	requireAppError(t, err, 403)
}

func TestSetMemberMaskWithoutReadRemovesMember(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	globex := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Globex"})

	outer := env.mkdir(t, alice.ID, acme.Root, "outer")
	inner := env.mkdir(t, alice.ID, outer.ID, "inner")
	elsewhere := env.mkdir(t, alice.ID, globex.Root, "elsewhere")
	env.join(t, acme.ID, bob.ID, models.TeamRead|models.TeamWrite)
	env.join(t, globex.ID, bob.ID, models.TeamRead)
	env.grant(t, outer.ID, bob.ID, models.AccessWrite)
	env.grant(t, inner.ID, bob.ID, models.AccessShare)
	env.grant(t, elsewhere.ID, bob.ID, models.AccessRead)
	require.EqualValues(t, 2, env.teamRow(t, acme.ID).UsedMembers)

	require.NoError(t, env.svc.Teams.SetMemberMask(env.ctx, acme.ID, alice.ID, bob.ID, models.TeamWrite))

	_, err := env.repos.Memberships.Get(env.ctx, nil, acme.ID, bob.ID)
	require.Error(t, err)
	require.EqualValues(t, 1, env.teamRow(t, acme.ID).UsedMembers)

	for _, id := range []uint{outer.ID, inner.ID} {
		entries, err := env.repos.AccessEntries.ListByResource(env.ctx, nil, id)
		require.NoError(t, err)
		require.Empty(t, entries, "resource %d kept bob's entry", id)
	}

	entries, err := env.repos.AccessEntries.ListByResource(env.ctx, nil, elsewhere.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, bob.ID, entries[0].UserID)
	require.EqualValues(t, 2, env.teamRow(t, globex.ID).UsedMembers)

	_, err = env.svc.Resources.Retrieve(env.ctx, outer.ID, bob.ID, 0)
	requireAppError(t, err, 403)
}

func TestSetMemberMaskValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})

	err := env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, alice.ID, models.TeamManageUsers+1)
	requireAppError(t, err, 400)

	err = env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, bob.ID, models.TeamRead)
	requireAppError(t, err, 404)

	err = env.svc.Teams.SetMemberMask(env.ctx, team.ID, bob.ID, alice.ID, models.TeamRead)
	requireAppError(t, err, 404)
}
