package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/calbuddy/internal/models"
)

// Diff compares two runs by composite key (id + time slot). An id present in
// both runs under different keys is a move; its old and new entries are
// paired in input order and reported only as moved. Anything else unmatched
// is added or removed.
func Diff(old, new []models.JobResult) models.DiffRecord {
	oldKeys := keySet(old)
	newKeys := keySet(new)

	var unmatchedOld []models.JobResult
	for _, job := range old {
		if !newKeys[job.Key()] {
			unmatchedOld = append(unmatchedOld, job)
		}
	}

	paired := make([]bool, len(unmatchedOld))
	var record models.DiffRecord

	for _, job := range new {
		if oldKeys[job.Key()] {
			continue
		}

		moved := false
		for i, candidate := range unmatchedOld {
			if paired[i] || candidate.ID != job.ID {
				continue
			}
			paired[i] = true
			record.Moved = append(record.Moved, models.MovedJob{Old: candidate, New: job})
			moved = true
			break
		}
		if !moved {
			record.Added = append(record.Added, job)
		}
	}

	for i, job := range unmatchedOld {
		if !paired[i] {
			record.Removed = append(record.Removed, job)
		}
	}

	sortJobs(record.Added)
	sortJobs(record.Removed)
	sort.SliceStable(record.Moved, func(i, j int) bool {
		return less(record.Moved[i].New, record.Moved[j].New)
	})

	return record
}

func keySet(jobs []models.JobResult) map[string]bool {
	keys := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		keys[job.Key()] = true
	}
	return keys
}

func sortJobs(jobs []models.JobResult) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return less(jobs[i], jobs[j])
	})
}

// less orders by assignee, date, slot, then name
func less(a, b models.JobResult) bool {
	if a.Assignee != b.Assignee {
		return a.Assignee < b.Assignee
	}
	if a.Date != b.Date {
		return models.DateLess(a.Date, b.Date)
	}
	if sa, sb := models.SlotOrder(a.TimeSlot), models.SlotOrder(b.TimeSlot); sa != sb {
		return sa < sb
	}
	if na, nb := strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName); na != nb {
		return na < nb
	}
	return a.ID < b.ID
}

// FilterByDateRange keeps jobs dated within [start, end], compared by
// calendar day. Jobs whose date is Unknown or unparseable are dropped.
func FilterByDateRange(jobs []models.JobResult, start, end time.Time) []models.JobResult {
	from := dayOf(start)
	to := dayOf(end)

	var kept []models.JobResult
	for _, job := range jobs {
		date, err := time.Parse(models.DateLayout, strings.TrimSpace(job.Date))
		if err != nil {
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}
		kept = append(kept, job)
	}
	return kept
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
