package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/calbuddy/internal/models"
)

func job(id, slot, assignee string) models.JobResult {
	return models.JobResult{
		Assignee:        assignee,
		Date:            "4-14-25",
		TimeSlot:        slot,
		DisplayName:     "Customer " + id,
		ID:              id,
		Category:        "Naked Fiber",
		Address:         "1 Main St",
		WorkOrderNumber: 7,
	}
}

func TestDiff_Identical(t *testing.T) {
	runs := []models.JobResult{job("A", "8:00", "Acme"), job("B", "10:00", "Beta"), job("C", "1:00", "Acme")}

	diff := Diff(runs, runs)
	assert.True(t, diff.Empty())
	assert.True(t, Diff(nil, nil).Empty())
}

func TestDiff_MoveAndAdd(t *testing.T) {
	a8 := job("A", "8:00", "Acme")
	a10 := job("A", "10:00", "Acme")
	b8 := job("B", "8:00", "Acme")

	diff := Diff([]models.JobResult{a8}, []models.JobResult{a10, b8})

	assert.Equal(t, []models.JobResult{b8}, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Equal(t, []models.MovedJob{{Old: a8, New: a10}}, diff.Moved)
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	a := job("A", "8:00", "Acme")
	b := job("B", "10:00", "Acme")
	c := job("C", "12:00", "Beta")

	diff := Diff([]models.JobResult{a, b}, []models.JobResult{b, c})
	assert.Equal(t, []models.JobResult{c}, diff.Added)
	assert.Equal(t, []models.JobResult{a}, diff.Removed)
	assert.Empty(t, diff.Moved)
}

func TestDiff_ExtraSlotForSameIDIsAdded(t *testing.T) {
	a8 := job("A", "8:00", "Acme")
	a2 := job("A", "2:00", "Acme")

	diff := Diff([]models.JobResult{a8}, []models.JobResult{a8, a2})
	assert.Equal(t, []models.JobResult{a2}, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Moved)
}

func TestDiff_AssigneeChangeIsNotAMove(t *testing.T) {
	old := job("A", "8:00", "Acme")
	reassigned := job("A", "8:00", "Beta")

	assert.True(t, Diff([]models.JobResult{old}, []models.JobResult{reassigned}).Empty())
}

func TestDiff_SortedOutput(t *testing.T) {
	newRun := []models.JobResult{
		job("Z", "2:00", "Acme"),
		job("Y", "9:00", "Acme"),
		job("X", "8:00", "Beta"),
	}
	diff := Diff(nil, newRun)
	require.Len(t, diff.Added, 3)
	assert.Equal(t, "Y", diff.Added[0].ID)
	assert.Equal(t, "Z", diff.Added[1].ID)
	assert.Equal(t, "X", diff.Added[2].ID)
}

func TestDiff_SortsDatesChronologically(t *testing.T) {
	dated := func(id, date string) models.JobResult {
		j := job(id, "8:00", "Acme")
		j.Date = date
		return j
	}
	newRun := []models.JobResult{
		dated("late", "10-1-25"),
		dated("unknown", models.UnknownValue),
		dated("early", "4-1-25"),
		dated("nextyear", "1-5-26"),
	}
	diff := Diff(nil, newRun)
	assert.Equal(t, []string{"early", "late", "nextyear", "unknown"}, idsOf(diff.Added))
}

func idsOf(jobs []models.JobResult) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func TestFilterByDateRange(t *testing.T) {
	jobs := []models.JobResult{
		{ID: "1", Date: "4-12-25"},
		{ID: "2", Date: "4-13-25"},
		{ID: "3", Date: "4-19-25"},
		{ID: "4", Date: "4-20-25"},
		{ID: "5", Date: models.UnknownValue},
	}

	start := time.Date(2025, 4, 13, 0, 0, 0, 0, time.Local)
	end := time.Date(2025, 4, 19, 23, 0, 0, 0, time.Local)

	kept := FilterByDateRange(jobs, start, end)
	require.Len(t, kept, 2)
	assert.Equal(t, "2", kept[0].ID)
	assert.Equal(t, "3", kept[1].ID)

	day := time.Date(2025, 4, 20, 9, 30, 0, 0, time.Local)
	kept = FilterByDateRange(jobs, day, day)
	require.Len(t, kept, 1)
	assert.Equal(t, "4", kept[0].ID)
}
