package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progress/api/internal/store"
)

func TestFilterClients(t *testing.T) {
	clients := []store.Client{
		{ID: "zeta", Name: "Zeta Labs"},
		{ID: "acme", Name: "ACME Corp", Completed: true},
		{ID: "beta", Name: "beta corp"},
	}

	assert.Equal(t, []string{"acme", "beta", "zeta"}, clientIDs(FilterClients(clients, "", FilterAll)))
	assert.Equal(t, []string{"acme", "beta"}, clientIDs(FilterClients(clients, "CORP", FilterAll)))
	assert.Equal(t, []string{"acme"}, clientIDs(FilterClients(clients, "corp", FilterCompleted)))
	assert.Equal(t, []string{"beta", "zeta"}, clientIDs(FilterClients(clients, " ", FilterInProgress)))
}

func TestParseFilter(t *testing.T) {
	for raw, want := range map[string]Filter{
		"":            FilterAll,
		"all":         FilterAll,
		"Completed":   FilterCompleted,
		"in-progress": FilterInProgress,
	} {
		got, err := ParseFilter(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseFilter("archived")
	assert.Error(t, err)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	first := Paginate(items, 1, ClientsPerPage)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, first.Items)
	assert.Equal(t, 2, first.TotalPages)
	assert.Equal(t, 11, first.Total)

	last := Paginate(items, 2, ClientsPerPage)
	assert.Equal(t, []int{10, 11}, last.Items)

	clamped := Paginate(items, 99, TeamPerPage)
	assert.Equal(t, 2, clamped.Page)
	assert.Equal(t, []int{7, 8, 9, 10, 11}, clamped.Items)

	low := Paginate(items, 0, TeamPerPage)
	assert.Equal(t, 1, low.Page)

	empty := Paginate([]int{}, 3, TeamPerPage)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.TotalPages)
	assert.Empty(t, empty.Items)
}
