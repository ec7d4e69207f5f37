package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/condition"
	"github.com/roach88/contentflow/internal/content"
)

type fakeDirectory struct {
	roles map[string]Role
	calls int
	err   error
}

func (d *fakeDirectory) GetRoles(_ context.Context, ids []string) ([]Role, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	var out []Role
	for _, id := range ids {
		if r, ok := d.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func allow() Rule { return Rule{Enabled: true} }

func newDirectory() *fakeDirectory {
	return &fakeDirectory{roles: map[string]Role{
		"editor": {ID: "editor", Name: "Editor", Permissions: []ContentTypePermission{
			{ContentTypeSlug: "Article", Create: allow(), Read: allow(), Update: allow(), Delete: allow()},
		}},
		"reviewer": {ID: "reviewer", Name: "Reviewer", Permissions: []ContentTypePermission{
			{ContentTypeSlug: "Article", Read: allow()},
		}},
		"owner": {ID: "owner", Name: "Owner", Permissions: []ContentTypePermission{
			{ContentTypeSlug: "Article", Update: Rule{
				Enabled:    true,
				Conditions: condition.Set{"author": {"_eq": condition.CurrentUser}},
			}},
		}},
		"admin": {ID: "admin", Name: DefaultPrivilegedRole},
	}}
}

func TestResolver_NoRolesDenies(t *testing.T) {
	dir := newDirectory()
	r := NewResolver(dir)

	ok, err := r.CanPerformAction(context.Background(), User{ID: "u1"}, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, dir.calls, "directory should not be consulted without roles")
}

func TestResolver_UnaddressedContentTypeDenies(t *testing.T) {
	r := NewResolver(newDirectory())

	ok, err := r.CanPerformAction(context.Background(), User{ID: "u1", RoleIDs: []string{"editor"}}, "Product", ActionRead, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_UnknownRoleIDsAreSkipped(t *testing.T) {
	r := NewResolver(newDirectory())

	ok, err := r.CanPerformAction(context.Background(), User{ID: "u1", RoleIDs: []string{"ghost"}}, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_SingleRole(t *testing.T) {
	r := NewResolver(newDirectory())
	user := User{ID: "u1", RoleIDs: []string{"editor"}}

	for _, a := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		ok, err := r.CanPerformAction(context.Background(), user, "Article", a, nil)
		require.NoError(t, err)
		assert.True(t, ok, "editor should be allowed %s", a)
	}
}

func TestResolver_MostRestrictiveWins(t *testing.T) {
	r := NewResolver(newDirectory())
	user := User{ID: "u1", RoleIDs: []string{"editor", "reviewer"}}

	ok, err := r.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.True(t, ok, "both roles allow read")

	ok, err = r.CanPerformAction(context.Background(), user, "Article", ActionUpdate, nil)
	require.NoError(t, err)
	assert.False(t, ok, "reviewer disables update, editor cannot override it")
}

func TestResolver_ConditionsUseCurrentUser(t *testing.T) {
	r := NewResolver(newDirectory())
	item := &content.Content{ID: "c1", ContentType: "Article", Data: content.Data{"author": "u1"}}

	ok, err := r.CanPerformAction(context.Background(), User{ID: "u1", RoleIDs: []string{"owner"}}, "Article", ActionUpdate, item)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanPerformAction(context.Background(), User{ID: "u2", RoleIDs: []string{"owner"}}, "Article", ActionUpdate, item)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_ConditionsSkippedWithoutContent(t *testing.T) {
	r := NewResolver(newDirectory())

	ok, err := r.CanPerformAction(context.Background(), User{ID: "u2", RoleIDs: []string{"owner"}}, "Article", ActionUpdate, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_PrivilegedRoleBypasses(t *testing.T) {
	r := NewResolver(newDirectory())
	user := User{ID: "root", RoleIDs: []string{"reviewer", "admin"}}

	ok, err := r.CanPerformAction(context.Background(), user, "Anything", ActionDelete, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_PrivilegedRoleConfigurable(t *testing.T) {
	r := NewResolver(newDirectory(), WithPrivilegedRole(""))
	user := User{ID: "root", RoleIDs: []string{"admin"}}

	ok, err := r.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_DirectoryError(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("db down")
	r := NewResolver(dir)

	_, err := r.CanPerformAction(context.Background(), User{ID: "u1", RoleIDs: []string{"editor"}}, "Article", ActionRead, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Update")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, a)

	_, err = ParseAction("update")
	assert.Error(t, err)
}

func TestCachingResolver_ReusesUntilExpiry(t *testing.T) {
	dir := newDirectory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachingResolver(NewResolver(dir), 10*time.Second, WithCacheClock(func() time.Time { return now }))
	user := User{ID: "u1", RoleIDs: []string{"editor"}}

	for i := 0; i < 3; i++ {
		ok, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, dir.calls)

	now = now.Add(10 * time.Second)
	_, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls)
}

func TestCachingResolver_KeyIncludesRolesAndContent(t *testing.T) {
	dir := newDirectory()
	c := NewCachingResolver(NewResolver(dir), time.Minute)
	ctx := context.Background()

	_, err := c.CanPerformAction(ctx, User{ID: "u1", RoleIDs: []string{"editor", "reviewer"}}, "Article", ActionRead, nil)
	require.NoError(t, err)
	_, err = c.CanPerformAction(ctx, User{ID: "u1", RoleIDs: []string{"reviewer", "editor"}}, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls, "role order should not matter")

	_, err = c.CanPerformAction(ctx, User{ID: "u1", RoleIDs: []string{"editor"}}, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls)

	item := &content.Content{ID: "c1", Version: 1}
	_, err = c.CanPerformAction(ctx, User{ID: "u1", RoleIDs: []string{"editor"}}, "Article", ActionRead, item)
	require.NoError(t, err)
	item.Version = 2
	_, err = c.CanPerformAction(ctx, User{ID: "u1", RoleIDs: []string{"editor"}}, "Article", ActionRead, item)
	require.NoError(t, err)
	assert.Equal(t, 4, dir.calls)
}

func TestCachingResolver_DoesNotCacheErrors(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("boom")
	c := NewCachingResolver(NewResolver(dir), time.Minute)
	user := User{ID: "u1", RoleIDs: []string{"editor"}}

	_, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
	require.Error(t, err)

	dir.err = nil
	ok, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, dir.calls)
}

func TestCachingResolver_Purge(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachingResolver(NewResolver(newDirectory()), time.Second, WithCacheClock(func() time.Time { return now }))

	_, err := c.CanPerformAction(context.Background(), User{ID: "u1", RoleIDs: []string{"editor"}}, "Article", ActionRead, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Purge())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 0, c.Purge())
}

func TestCachingResolver_ExpiredEntriesAreEvictedOnWrite(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachingResolver(NewResolver(newDirectory()), time.Second, WithCacheClock(func() time.Time { return now }))
	user := User{ID: "u1", RoleIDs: []string{"editor"}}
	item := &content.Content{ID: "c1"}

	peak := 0
	for v := int64(1); v <= 10000; v++ {
		item.Version = v
		_, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, item)
		require.NoError(t, err)
		peak = max(peak, c.Len())
		now = now.Add(time.Second)
	}
	assert.LessOrEqual(t, peak, minSweep)
	assert.Equal(t, 0, c.Purge())
}

func TestCachingResolver_LiveEntriesSurviveSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachingResolver(NewResolver(newDirectory()), time.Hour, WithCacheClock(func() time.Time { return now }))
	user := User{ID: "u1", RoleIDs: []string{"editor"}}

	for v := int64(1); v <= 3*minSweep; v++ {
		_, err := c.CanPerformAction(context.Background(), user, "Article", ActionRead, &content.Content{ID: "c1", Version: v})
		require.NoError(t, err)
	}
	assert.Equal(t, 3*minSweep, c.Len())
}
