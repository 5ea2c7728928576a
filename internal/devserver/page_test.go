package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateWalksOffsets(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	first, err := paginate(items, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, first.Items)
	next, ok := first.Next()
	require.True(t, ok)
	assert.Equal(t, 5, *first.Pagination.Total)

	second, err := paginate(items, string(next), 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, second.Items)
	_, ok = second.Next()
	assert.False(t, ok)
	assert.False(t, second.Pagination.HasNextPage)
}

func TestPaginatePastEndIsEmpty(t *testing.T) {
	page, err := paginate([]int{1}, string(encodeCursor(9)), 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, c := range []string{"%%%", "b2ZmOg", "eDox", "b2ZmOi0x"} {
		_, err := decodeCursor(c)
		assert.ErrorIs(t, err, errBadCursor, c)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	sizes := Sizes{Users: 2, Posts: 10, AdEvery: 3, Products: 4, Ads: 2, Notifications: 5, Conversations: 2}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := Seed(42, sizes, at)
	b := Seed(42, sizes, at)

	assert.Equal(t, a.Feed[0].Key(), b.Feed[0].Key())
	assert.Equal(t, a.Users, b.Users)
	assert.Len(t, a.Feed, 12)
	for i := 1; i < len(a.Products); i++ {
		assert.False(t, a.Products[i].CreatedAt.After(a.Products[i-1].CreatedAt))
	}
}
