package services

import (
	"fmt"
	"strconv"
	"testing"

	"teamdrive/models"

	"github.com/stretchr/testify/require"
)

func TestEndToEndUploadAndAccess(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")

	team := env.createTeam(t, alice.ID, CreateTeamInput{
		Name:          "Acme",
		MemberQuota:   1,
		ResourceQuota: 100,
		StorageQuota:  1_000_000_000,
	})
	require.EqualValues(t, 1, env.teamRow(t, team.ID).UsedResources)

	folder := env.mkdir(t, alice.ID, team.Root, "F")
	require.EqualValues(t, 2, env.teamRow(t, team.ID).UsedResources)

	ticket := env.startUpload(t, alice.ID, folder.ID, "hello.txt", 11)
	require.Len(t, ticket.Parts, 1)
	require.EqualValues(t, 0, ticket.Parts[0].Start)
	require.EqualValues(t, 11, ticket.Parts[0].End)
	require.EqualValues(t, 3, env.teamRow(t, team.ID).UsedResources)

	id, params := parseCommitURL(t, ticket.Commit)
	require.Equal(t, folder.ID, id)
	detail, err := env.svc.Resources.Commit(env.ctx, id, alice.ID, params, CommitInput{Parts: []string{"etag-1"}})
	require.NoError(t, err)
	require.Equal(t, "hello.txt", detail.Name)
	require.Equal(t, models.KindFile, detail.Kind)
	require.NotNil(t, detail.Created.By)
	require.Equal(t, alice.Email, detail.Created.By.Email)

	row := env.teamRow(t, team.ID)
	require.EqualValues(t, 3, row.UsedResources)
	require.EqualValues(t, 11, row.UsedStorage)

	got, err := env.svc.Resources.Retrieve(env.ctx, detail.ID, alice.ID, 0)
	require.NoError(t, err)
	view := got.(ResourceDetail)
	original, ok := view.Original.(models.FileView)
	require.True(t, ok, "unexpected original view %T", view.Original)
	require.Contains(t, original.URL, "https://objects.test/teamdrive/objects/")

	_, err = env.svc.Resources.Retrieve(env.ctx, folder.ID, bob.ID, 0)
	requireAppError(t, err, 403)
}

func TestRetrieveMissingResourceIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")

	_, err := env.svc.Resources.Retrieve(env.ctx, 999, alice.ID, 0)
	appErr := requireAppError(t, err, 404)
	require.Equal(t, KindNotFound, appErr.Kind)
}

func TestSiblingNamesAreUniqueAcrossKinds(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})

	env.mkdir(t, alice.ID, team.Root, "docs")
	_, err := env.svc.Resources.Update(env.ctx, team.Root, alice.ID, UpdateInput{Name: "docs"})
	appErr := requireAppError(t, err, 409)
	require.Equal(t, KindConflict, appErr.Kind)

	size := int64(3)
	_, err = env.svc.Resources.Update(env.ctx, team.Root, alice.ID, UpdateInput{Name: "docs", Size: &size})
	requireAppError(t, err, 409)

	require.EqualValues(t, 2, env.teamRow(t, team.ID).UsedResources)
}

func TestUpdateValidatesArguments(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	file := env.upload(t, alice.ID, team.Root, "a.txt", 4)

	size := int64(4)
	zero := int64(0)
	from := file.ID
	cases := []struct {
		name   string
		target uint
		in     UpdateInput
	}{
		{"folder without name", team.Root, UpdateInput{}},
		{"file with name", file.ID, UpdateInput{Name: "b.txt", Size: &size}},
		{"file without source", file.ID, UpdateInput{}},
		{"size and from", team.Root, UpdateInput{Name: "b", Size: &size, From: &from}},
		{"delete without from", team.Root, UpdateInput{Name: "b", Delete: true}},
		{"non-positive size", team.Root, UpdateInput{Name: "b", Size: &zero}},
		{"invalid name", team.Root, UpdateInput{Name: "a/b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Resources.Update(env.ctx, tc.target, alice.ID, tc.in)
			appErr := requireAppError(t, err, 400)
			require.Equal(t, KindInvalidInput, appErr.Kind)
		})
	}
}

func TestUpdateRequiresTeamWrite(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	shared := env.mkdir(t, alice.ID, team.Root, "shared")
	env.join(t, team.ID, bob.ID, models.TeamRead)

	// team READ reads the whole tree
	_, err := env.svc.Resources.Retrieve(env.ctx, shared.ID, bob.ID, 0)
	require.NoError(t, err)

	env.grant(t, shared.ID, bob.ID, models.AccessWrite)
	_, err = env.svc.Resources.Update(env.ctx, shared.ID, bob.ID, UpdateInput{Name: "mine"})
	appErr := requireAppError(t, err, 403)
	require.Equal(t, KindForbidden, appErr.Kind)

	require.NoError(t, env.svc.Teams.SetMemberMask(env.ctx, team.ID, alice.ID, bob.ID, models.TeamRead|models.TeamWrite))
	env.mkdir(t, bob.ID, shared.ID, "mine")
}

func TestUpdateRequiresEffectiveWrite(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	shared := env.mkdir(t, alice.ID, team.Root, "shared")
	private := env.mkdir(t, alice.ID, team.Root, "private")

	// may write in the team but holds no root grant
	env.join(t, team.ID, bob.ID, models.TeamWrite)
	env.grant(t, shared.ID, bob.ID, models.AccessWrite)

	env.mkdir(t, bob.ID, shared.ID, "mine")
	_, err := env.svc.Resources.Update(env.ctx, private.ID, bob.ID, UpdateInput{Name: "mine"})
	requireAppError(t, err, 403)
}

func TestFolderListingPaginatesAscending(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})

	var want []uint
	for i := 0; i < 5; i++ {
		want = append(want, env.mkdir(t, alice.ID, team.Root, fmt.Sprintf("dir-%d", i)).ID)
	}

	var got []uint
	cursor := uint(0)
	for {
		res, err := env.svc.Resources.Retrieve(env.ctx, team.Root, alice.ID, cursor)
		require.NoError(t, err)
		listing := res.(FolderListing)
		require.LessOrEqual(t, len(listing.Children.Entries), 2)
		for _, e := range listing.Children.Entries {
			got = append(got, e.ID)
		}
		next, err := strconv.ParseUint(listing.Children.Next, 10, 64)
		require.NoError(t, err)
		if uint(next) == cursor {
			require.Empty(t, listing.Children.Entries)
			break
		}
		cursor = uint(next)
	}
	require.Equal(t, want, got)
}

func TestListReturnsSharedResources(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})

	var want []uint
	for i := 0; i < 3; i++ {
		dir := env.mkdir(t, alice.ID, team.Root, fmt.Sprintf("dir-%d", i))
		_, err := env.svc.Resources.UpdateMembers(env.ctx, dir.ID, alice.ID, map[string]int64{bob.Email: int64(models.AccessRead)})
		require.NoError(t, err)
		want = append(want, dir.ID)
	}
	env.mkdir(t, alice.ID, team.Root, "private")

	first, err := env.svc.Resources.List(env.ctx, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	cursor, err := strconv.ParseUint(first.Next, 10, 64)
	require.NoError(t, err)

	second, err := env.svc.Resources.List(env.ctx, bob.ID, uint(cursor))
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	require.Equal(t, want[2], second.Entries[0].ID)

	last, err := env.svc.Resources.List(env.ctx, bob.ID, want[2])
	require.NoError(t, err)
	require.Empty(t, last.Entries)
	require.Equal(t, strconv.FormatUint(uint64(want[2]), 10), last.Next)
}

func TestCopyAddsResourcesAndSharesObjects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	src := env.mkdir(t, alice.ID, team.Root, "src")
	env.upload(t, alice.ID, src.ID, "one.txt", 11)
	env.upload(t, alice.ID, src.ID, "two.txt", 7)
	dst := env.mkdir(t, alice.ID, team.Root, "dst")

	before := env.teamRow(t, team.ID)
	res, err := env.svc.Resources.Update(env.ctx, dst.ID, alice.ID, UpdateInput{Name: "src-copy", From: &src.ID})
	require.NoError(t, err)
	require.Equal(t, 201, res.Status)
	clone := res.Body.(models.ResourceSummary)
	require.Equal(t, "src-copy", clone.Name)
	require.Equal(t, dst.ID, *clone.Folder)

	after := env.teamRow(t, team.ID)
	require.Equal(t, before.UsedResources+3, after.UsedResources)
	require.Equal(t, before.UsedStorage, after.UsedStorage)

	listing, err := env.svc.Resources.Retrieve(env.ctx, clone.ID, alice.ID, 0)
	require.NoError(t, err)
	children := listing.(FolderListing).Children.Entries
	require.Len(t, children, 2)
	for _, child := range children {
		objects, err := env.repos.Objects.ListLinked(env.ctx, nil, child.ID)
		require.NoError(t, err)
		require.Len(t, objects, 1)
		require.Equal(t, 2, objects[0].RefCount)
	}
}

func TestMoveKeepsUsageAndRejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	a := env.mkdir(t, alice.ID, team.Root, "a")
	b := env.mkdir(t, alice.ID, team.Root, "b")
	file := env.upload(t, alice.ID, a.ID, "f.txt", 11)

	before := env.teamRow(t, team.ID)
	res, err := env.svc.Resources.Update(env.ctx, b.ID, alice.ID, UpdateInput{Name: "a-moved", From: &a.ID, Delete: true})
	require.NoError(t, err)
	require.Equal(t, 200, res.Status)
	moved := res.Body.(models.ResourceSummary)
	require.Equal(t, a.ID, moved.ID)
	require.Equal(t, b.ID, *moved.Folder)

	after := env.teamRow(t, team.ID)
	require.Equal(t, before.UsedResources, after.UsedResources)
	require.Equal(t, before.UsedStorage, after.UsedStorage)

	got, err := env.svc.Resources.Retrieve(env.ctx, file.ID, alice.ID, 0)
	require.NoError(t, err)
	require.Equal(t, a.ID, *got.(ResourceDetail).Folder)

	_, err = env.svc.Resources.Update(env.ctx, a.ID, alice.ID, UpdateInput{Name: "loop", From: &b.ID, Delete: true})
	requireAppError(t, err, 400)

	_, err = env.svc.Resources.Update(env.ctx, b.ID, alice.ID, UpdateInput{Name: "root", From: &team.Root, Delete: true})
	requireAppError(t, err, 403)
}

func TestCopyAcrossTeamsRequiresShare(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	globex := env.createTeam(t, bob.ID, CreateTeamInput{Name: "Globex"})
	file := env.upload(t, alice.ID, acme.Root, "memo.txt", 11)

	// READ lets bob see the file but not take it elsewhere
	env.join(t, acme.ID, bob.ID, models.TeamRead)
	_, err := env.svc.Resources.Update(env.ctx, globex.Root, bob.ID, UpdateInput{Name: "memo.txt", From: &file.ID})
	requireAppError(t, err, 403)

	_, err = env.svc.Resources.UpdateMembers(env.ctx, file.ID, alice.ID, map[string]int64{bob.Email: int64(models.AccessShare)})
	require.NoError(t, err)
	res, err := env.svc.Resources.Update(env.ctx, globex.Root, bob.ID, UpdateInput{Name: "memo.txt", From: &file.ID})
	require.NoError(t, err)
	require.Equal(t, 201, res.Status)

	require.EqualValues(t, 2, env.teamRow(t, globex.ID).UsedResources)
	require.EqualValues(t, 0, env.teamRow(t, globex.ID).UsedStorage)
	require.EqualValues(t, 11, env.teamRow(t, acme.ID).UsedStorage)

	// a move additionally needs WRITE above the source
	_, err = env.svc.Resources.Update(env.ctx, globex.Root, bob.ID, UpdateInput{Name: "memo-2.txt", From: &file.ID, Delete: true})
	requireAppError(t, err, 403)
}

func TestMoveAcrossTeamsTransfersResourceCount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	acme := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	globex := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Globex"})
	dir := env.mkdir(t, alice.ID, acme.Root, "dir")
	env.upload(t, alice.ID, dir.ID, "a.txt", 11)

	res, err := env.svc.Resources.Update(env.ctx, globex.Root, alice.ID, UpdateInput{Name: "dir", From: &dir.ID, Delete: true})
	require.NoError(t, err)
	require.Equal(t, 200, res.Status)

	require.EqualValues(t, 1, env.teamRow(t, acme.ID).UsedResources)
	require.EqualValues(t, 3, env.teamRow(t, globex.ID).UsedResources)
	// storage stays with the team that uploaded it
	require.EqualValues(t, 11, env.teamRow(t, acme.ID).UsedStorage)
}

func TestReplaceFromAnotherFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	target := env.upload(t, alice.ID, team.Root, "target.txt", 11)
	source := env.upload(t, alice.ID, team.Root, "source.png", 5)

	res, err := env.svc.Resources.Update(env.ctx, target.ID, alice.ID, UpdateInput{From: &source.ID, Delete: true})
	require.NoError(t, err)
	require.Equal(t, 200, res.Status)
	replaced := res.Body.(models.ResourceSummary)
	require.Equal(t, target.ID, replaced.ID)
	require.Equal(t, models.KindPicture, replaced.Kind)

	_, err = env.svc.Resources.Retrieve(env.ctx, source.ID, alice.ID, 0)
	requireAppError(t, err, 404)

	row := env.teamRow(t, team.ID)
	require.EqualValues(t, 2, row.UsedResources)
	require.EqualValues(t, 5, row.UsedStorage)
}

func TestDestroyCascadesAndReleasesObjects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	f := env.mkdir(t, alice.ID, team.Root, "F")
	g := env.mkdir(t, alice.ID, f.ID, "G")
	file := env.upload(t, alice.ID, g.ID, "deep.txt", 11)
	require.EqualValues(t, 4, env.teamRow(t, team.ID).UsedResources)

	err := env.svc.Resources.Destroy(env.ctx, team.Root, alice.ID)
	requireAppError(t, err, 403)

	require.NoError(t, env.svc.Resources.Destroy(env.ctx, f.ID, alice.ID))
	for _, id := range []uint{f.ID, g.ID, file.ID} {
		_, err := env.svc.Resources.Retrieve(env.ctx, id, alice.ID, 0)
		requireAppError(t, err, 404)
	}

	row := env.teamRow(t, team.ID)
	require.EqualValues(t, 1, row.UsedResources)
	require.EqualValues(t, 0, row.UsedStorage)

	orphans, err := env.repos.Objects.ListUnreferenced(env.ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.LessOrEqual(t, orphans[0].RefCount, 0)

	err = env.svc.Resources.Destroy(env.ctx, f.ID, alice.ID)
	requireAppError(t, err, 404)
}

func TestDestroyRequiresInheritedWrite(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	team := env.createTeam(t, alice.ID, CreateTeamInput{Name: "Acme"})
	shared := env.mkdir(t, alice.ID, team.Root, "shared")
	inner := env.mkdir(t, alice.ID, shared.ID, "inner")

	env.join(t, team.ID, bob.ID, models.TeamWrite)
	env.grant(t, shared.ID, bob.ID, models.AccessWrite)

	// a direct grant on the folder does not allow deleting it
	err := env.svc.Resources.Destroy(env.ctx, shared.ID, bob.ID)
	requireAppError(t, err, 403)

	require.NoError(t, env.svc.Resources.Destroy(env.ctx, inner.ID, bob.ID))
}
