package export

import (
	"time"

	"github.com/ternarybob/calbuddy/internal/models"
)

// Range returns the first and last calendar day a run covers. Week runs
// span Sunday to Saturday around day.
func Range(mode models.RunMode, day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if mode != models.RunModeWeek {
		return start, start
	}
	start = start.AddDate(0, 0, -int(start.Weekday()))
	return start, start.AddDate(0, 0, 6)
}

// Tag names a run's output files: MMDD for a day, MMDD-MMDD for a week
func Tag(mode models.RunMode, day time.Time) string {
	start, end := Range(mode, day)
	if mode != models.RunModeWeek {
		return start.Format("0102")
	}
	return start.Format("0102") + "-" + end.Format("0102")
}

// RangeLabel is the human-readable range used in email subjects
func RangeLabel(mode models.RunMode, day time.Time) string {
	start, end := Range(mode, day)
	if mode != models.RunModeWeek {
		return start.Format("01/02/2006")
	}
	return start.Format("01/02/2006") + " - " + end.Format("01/02/2006")
}

// FileNames are the output file names for one tag
type FileNames struct {
	Jobs     string
	PDF      string
	Unparsed string
	Changes  string
}

// NamesFor returns the file names for tag
func NamesFor(tag string) FileNames {
	return FileNames{
		Jobs:     "Jobs" + tag + ".txt",
		PDF:      "Jobs" + tag + ".pdf",
		Unparsed: "UnparsedJobs" + tag + ".txt",
		Changes:  tag + "Changes.txt",
	}
}
