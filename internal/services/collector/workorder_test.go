package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/calbuddy/internal/models"
)

var installCriteria = WorkOrderCriteria{
	TypeKeywords: []string{"Fiber", "Install"},
	ActiveStatus: "In Process",
}

func TestSelectWorkOrder_HighestActiveNumberWins(t *testing.T) {
	rows := []models.WorkOrderRow{
		{Number: 5, Type: "Residential Fiber Install", Status: "in process", URL: "wo.php?id=5"},
		{Number: 9, Type: "Residential Fiber Install", Status: "in process", URL: "wo.php?id=9"},
		{Number: 7, Type: "Residential Fiber Install", Status: "pending", URL: "wo.php?id=7"},
	}

	lookup := SelectWorkOrder(rows, installCriteria)
	require.True(t, lookup.Found())
	assert.Equal(t, 9, lookup.Number)
	assert.Equal(t, "wo.php?id=9", lookup.URL)

	// Order of rows must not matter
	reversed := []models.WorkOrderRow{rows[2], rows[1], rows[0]}
	assert.Equal(t, lookup, SelectWorkOrder(reversed, installCriteria))
}

func TestSelectWorkOrder_StatusFallback(t *testing.T) {
	t.Run("inactive only", func(t *testing.T) {
		rows := []models.WorkOrderRow{
			{Number: 3, Type: "FIBER INSTALL", Status: "Completed"},
			{Number: 4, Type: "Fiber Install", Status: "Pending"},
			{Number: 8, Type: "Fiber Repair", Status: "In Process"},
		}
		lookup := SelectWorkOrder(rows, installCriteria)
		assert.Equal(t, models.LookupInactiveOnly, lookup.Kind)
		assert.False(t, lookup.Found())

		kind, err := lookupError(lookup)
		assert.Equal(t, models.FailureNoActiveWorkOrder, kind)
		assert.ErrorIs(t, err, ErrNoActiveWorkOrder)
	})

	t.Run("absent", func(t *testing.T) {
		rows := []models.WorkOrderRow{
			{Number: 8, Type: "Fiber Repair", Status: "In Process"},
			{Number: 2, Type: "Copper Install", Status: "In Process"},
		}
		lookup := SelectWorkOrder(rows, installCriteria)
		assert.Equal(t, models.LookupAbsent, lookup.Kind)

		kind, err := lookupError(lookup)
		assert.Equal(t, models.FailureNoWorkOrder, kind)
		assert.ErrorIs(t, err, ErrNoWorkOrder)
	})

	t.Run("empty listing", func(t *testing.T) {
		assert.Equal(t, models.LookupAbsent, SelectWorkOrder(nil, installCriteria).Kind)
	})
}

func TestParseWorkOrderRows(t *testing.T) {
	html := `<table>
		<tr><th>WO</th><th>Date</th><th>Type</th><th>Status</th><th></th></tr>
		<tr><td> 12 </td><td>4/1/25</td><td>Residential Fiber Install</td><td>In Process</td><td><a href="workorder.php?wo=12">View</a></td></tr>
		<tr><td>abc</td><td></td><td>Fiber Install</td><td>In Process</td><td></td></tr>
		<tr><td>13</td><td>short row</td></tr>
		<tr><td>14</td><td>4/2/25</td><td>Fiber Repair</td><td>Closed</td><td></td></tr>
	</table>`

	rows, err := ParseWorkOrderRows(html)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, models.WorkOrderRow{
		Number: 12,
		Type:   "Residential Fiber Install",
		Status: "In Process",
		URL:    "workorder.php?wo=12",
	}, rows[0])
	assert.Equal(t, 14, rows[1].Number)
	assert.Empty(t, rows[1].URL)
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL("http://inside.example.com/menu.php?coid=1", "customers/view.php?id=4")
	require.NoError(t, err)
	assert.Equal(t, "http://inside.example.com/customers/view.php?id=4", got)

	got, err = resolveURL("http://inside.example.com/menu.php", "https://other.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x", got)
}
