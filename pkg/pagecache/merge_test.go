package pagecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/pagination"
)

type item struct {
	ID   string
	Kind string
}

func itemKey(it item) string { return it.ID }

func page(ids ...string) *pagination.Page[item] {
	p := &pagination.Page[item]{Pagination: &pagination.Info{}}
	for _, id := range ids {
		p.Items = append(p.Items, item{ID: id, Kind: "post"})
	}
	return p
}

func TestFlattenKeepsFetchOrder(t *testing.T) {
	pages := []*pagination.Page[item]{page("p1", "p2"), page("p3"), nil, page("p4", "p5")}

	got := Flatten(pages)

	ids := make([]string, len(got))
	for i, it := range got {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, ids)
}

func TestFlattenIsPrefixAcrossAppends(t *testing.T) {
	var pages []*pagination.Page[item]
	previous := []item{}

	for n := 0; n < 6; n++ {
		ids := make([]string, 0, n+1)
		for i := 0; i <= n; i++ {
			ids = append(ids, fmt.Sprintf("p%d-%d", n, i))
		}
		pages = AppendPage(pages, page(ids...))

		current := Flatten(pages)
		require.GreaterOrEqual(t, len(current), len(previous))
		assert.Equal(t, previous, current[:len(previous)], "after %d pages", n+1)
		previous = current
	}
}

func TestAppendPageDoesNotMutateInput(t *testing.T) {
	base := make([]*pagination.Page[item], 1, 4)
	base[0] = page("a")

	first := AppendPage(base, page("b"))
	second := AppendPage(base, page("c"))

	assert.Len(t, base, 1)
	assert.Equal(t, "b", first[1].Items[0].ID)
	assert.Equal(t, "c", second[1].Items[0].ID)
}

func TestFilterLeavesSourceIntact(t *testing.T) {
	items := []item{{ID: "1", Kind: "post"}, {ID: "2", Kind: "ad"}, {ID: "3", Kind: "post"}}

	posts := Filter(items, func(it item) bool { return it.Kind == "post" })

	assert.Equal(t, []item{{ID: "1", Kind: "post"}, {ID: "3", Kind: "post"}}, posts)
	assert.Len(t, items, 3)
}

func TestCollectionDeduplicates(t *testing.T) {
	c := NewCollection(itemKey)

	assert.Equal(t, 3, c.Append(page("p1", "p2", "p3")))
	before := c.Items()

	// Server overlap: p3 shows up again at the head of the next page.
	assert.Equal(t, 2, c.Append(page("p3", "p4", "p5")))

	after := c.Items()
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, 2, c.PageCount())
	assert.Equal(t, 1, c.Duplicates())
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, "p5", c.Last().Items[2].ID)
}

func TestCollectionWithoutKey(t *testing.T) {
	c := NewCollection[item](nil)
	c.Append(page("p1"))
	c.Append(page("p1"))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, c.Duplicates())
}

func TestCollectionItemsIsACopy(t *testing.T) {
	c := NewCollection(itemKey)
	c.Append(page("p1"))

	view := c.Items()
	view[0].ID = "mutated"

	assert.Equal(t, "p1", c.Items()[0].ID)
	assert.Nil(t, NewCollection(itemKey).Last())
	assert.Equal(t, 0, c.Append(nil))
}
