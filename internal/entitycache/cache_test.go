package entitycache

import (
	"testing"

	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posts(ids ...string) []models.Post {
	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Post{ID: id})
	}
	return out
}

func ids(ps []models.Post) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestCache_GetMissingReturnsEmptyDefault(t *testing.T) {
	t.Parallel()
	c := New()
	s := c.Get(ViewProfile, "u1")
	assert.Nil(t, s.Profile)
	assert.Zero(t, s.ScrollOffset)
	assert.NotNil(t, s.Tombstones)
	assert.False(t, c.Has(ViewProfile, "u1"))
}

func TestCache_PutIsShallowMerge(t *testing.T) {
	t.Parallel()
	c := New()
	offset := 420.0
	c.Put(ViewProfile, "u1", Patch{
		Profile: &models.Profile{User: models.UserSummary{ID: "u1"}, FollowersCount: 5},
		Items:   map[pagination.Tab][]models.Post{pagination.TabPosts: posts("p1", "p2")},
	})
	c.Put(ViewProfile, "u1", Patch{ScrollOffset: &offset})

	s := c.Get(ViewProfile, "u1")
	require.NotNil(t, s.Profile)
	assert.Equal(t, 5, s.Profile.FollowersCount)
	assert.Equal(t, []string{"p1", "p2"}, ids(s.Items[pagination.TabPosts]))
	assert.InDelta(t, 420.0, s.ScrollOffset, 0.001)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(ViewPostDetail, "p1", Patch{Post: &models.Post{ID: "p1", LikesCount: 1}})

	s := c.Get(ViewPostDetail, "p1")
	s.Post.LikesCount = 99
	assert.Equal(t, 1, c.Get(ViewPostDetail, "p1").Post.LikesCount)
}

func TestCache_TombstonesAreMonotonic(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(ViewProfile, "u1", Patch{Items: map[pagination.Tab][]models.Post{pagination.TabPosts: posts("p1", "p2", "p3")}})
	c.Tombstone(ViewProfile, "u1", "p2")
	c.Put(ViewProfile, "u1", Patch{Tombstones: []string{"p3"}})
	c.Put(ViewProfile, "u1", Patch{Tombstones: nil})

	assert.True(t, c.IsTombstoned(ViewProfile, "u1", "p2"))
	assert.True(t, c.IsTombstoned(ViewProfile, "u1", "p3"))
	assert.Equal(t, []string{"p1"}, ids(c.Get(ViewProfile, "u1").Items[pagination.TabPosts]))
}

func TestCache_RefetchNeverReadmitsTombstoned(t *testing.T) {
	t.Parallel()
	c := New()
	c.Tombstone(ViewProfile, "u1", "p2")

	refetched := c.FilterPosts(ViewProfile, "u1", posts("p1", "p2", "p3"))
	assert.Equal(t, []string{"p1", "p3"}, ids(refetched))

	// Other views are unaffected.
	assert.Len(t, c.FilterPosts(ViewProfile, "u9", posts("p2")), 1)
}

func TestCache_PendingDeleteIsHiddenUntilSettled(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(ViewProfile, "u1", Patch{Items: map[pagination.Tab][]models.Post{pagination.TabPosts: posts("p1", "p2")}})

	c.MarkDeleting(ViewProfile, "u1", "p2")
	assert.True(t, c.IsHidden(ViewProfile, "u1", "p2"))
	assert.False(t, c.IsTombstoned(ViewProfile, "u1", "p2"))
	assert.Equal(t, []string{"p1"}, ids(c.FilterPosts(ViewProfile, "u1", posts("p1", "p2"))))
	assert.Equal(t, []string{"p1"}, ids(c.Get(ViewProfile, "u1").Items[pagination.TabPosts]))

	t.Run("failure makes it visible again", func(t *testing.T) {
		c.UnmarkDeleting(ViewProfile, "u1", "p2")
		assert.False(t, c.IsHidden(ViewProfile, "u1", "p2"))
		assert.Len(t, c.FilterPosts(ViewProfile, "u1", posts("p2")), 1)
	})

	t.Run("success promotes it to a tombstone", func(t *testing.T) {
		c.MarkDeleting(ViewProfile, "u1", "p2")
		c.Tombstone(ViewProfile, "u1", "p2")
		assert.True(t, c.IsTombstoned(ViewProfile, "u1", "p2"))
		assert.Empty(t, c.Get(ViewProfile, "u1").Deleting)

		c.UnmarkDeleting(ViewProfile, "u1", "p2")
		assert.True(t, c.IsHidden(ViewProfile, "u1", "p2"))
	})
}

func TestCache_ClearAll(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(ViewProfile, "u1", Patch{Tombstones: []string{"p1"}})
	c.Put(ViewPostDetail, "p9", Patch{Post: &models.Post{ID: "p9"}})
	require.Equal(t, 2, c.Len())

	c.ClearAll()
	assert.Zero(t, c.Len())
	assert.False(t, c.IsTombstoned(ViewProfile, "u1", "p1"))
}
