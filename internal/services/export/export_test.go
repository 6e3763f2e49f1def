package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/models"
)

func sampleResults() []models.JobResult {
	return []models.JobResult{
		{Assignee: "Beta Crew", Date: "4-15-25", TimeSlot: "1:00", DisplayName: "zed", ID: "3", Category: "Naked Fiber", Address: "3 Elm", WorkOrderNumber: 30},
		{Assignee: "Acme Fiber", Date: "4-15-25", TimeSlot: "2:00", DisplayName: "Bob", ID: "2", Category: "Fiber Bundle", Address: "2 Oak", WorkOrderNumber: 20},
		{Assignee: "Acme Fiber", Date: "4-15-25", TimeSlot: "10:00", DisplayName: "amy", ID: "1", Category: "Connectorized", Address: "1 Pine", WorkOrderNumber: 10},
		{Assignee: "Acme Fiber", Date: "4-14-25", TimeSlot: "8:00", DisplayName: "Cal", ID: "4", Category: "Naked Fiber", Address: "4 Ash - Unit B", WorkOrderNumber: 40},
		{Assignee: "Acme Fiber", Date: models.UnknownValue, TimeSlot: "8:00", DisplayName: "Dee", ID: "5", Category: "Naked Fiber", Address: "5 Fir", WorkOrderNumber: 50},
	}
}

func TestRangeAndTag(t *testing.T) {
	wednesday := time.Date(2025, 4, 16, 15, 0, 0, 0, time.Local)

	start, end := Range(models.RunModeWeek, wednesday)
	assert.Equal(t, time.Sunday, start.Weekday())
	assert.Equal(t, 13, start.Day())
	assert.Equal(t, 19, end.Day())

	assert.Equal(t, "0413-0419", Tag(models.RunModeWeek, wednesday))
	assert.Equal(t, "0416", Tag(models.RunModeDay, wednesday))

	sunday := time.Date(2025, 4, 13, 0, 0, 0, 0, time.Local)
	assert.Equal(t, "0413-0419", Tag(models.RunModeWeek, sunday))

	names := NamesFor("0416")
	assert.Equal(t, "Jobs0416.txt", names.Jobs)
	assert.Equal(t, "Jobs0416.pdf", names.PDF)
	assert.Equal(t, "UnparsedJobs0416.txt", names.Unparsed)
	assert.Equal(t, "0416Changes.txt", names.Changes)
}

func TestWriteJobsText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJobsText(&buf, sampleResults()))

	expected := "Acme Fiber\n\n" +
		"4-14-25\n" +
		"8:00 - Cal - 4 - Naked Fiber - 4 Ash - Unit B - WO 40\n\n" +
		"4-15-25\n" +
		"10:00 - amy - 1 - Connectorized - 1 Pine - WO 10\n" +
		"2:00 - Bob - 2 - Fiber Bundle - 2 Oak - WO 20\n\n" +
		"Unknown\n" +
		"8:00 - Dee - 5 - Naked Fiber - 5 Fir - WO 50\n\n" +
		"\n" +
		"Beta Crew\n\n" +
		"4-15-25\n" +
		"1:00 - zed - 3 - Naked Fiber - 3 Elm - WO 30\n\n" +
		"\n"
	assert.Equal(t, expected, buf.String())
}

func TestParseJobsText_ReadsWrittenList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJobsText(&buf, sampleResults()))

	parsed, err := ParseJobsText(&buf)
	require.NoError(t, err)
	assert.ElementsMatch(t, sampleResults(), parsed)
}

func TestParseJobsText_UnknownAssignee(t *testing.T) {
	results := []models.JobResult{
		{Assignee: models.UnknownValue, Date: models.UnknownValue, TimeSlot: "9:00", DisplayName: "Eve", ID: "6", Category: "Naked Fiber", Address: "6 Bay", WorkOrderNumber: 60},
		{Assignee: models.NoneAssigned, Date: "4-14-25", TimeSlot: "9:00", DisplayName: "Fay", ID: "7", Category: "Naked Fiber", Address: "7 Bay", WorkOrderNumber: 70},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJobsText(&buf, results))

	parsed, err := ParseJobsText(&buf)
	require.NoError(t, err)
	assert.ElementsMatch(t, results, parsed)
}

func TestParseJobsText_IgnoresNoise(t *testing.T) {
	input := "Acme Fiber\n\n4-14-2025\nrandom note 12\n8:00 - A - 1 - T - Addr\n8:00 - Al - 11 - Naked Fiber - 1 Main - WO 3\n"
	parsed, err := ParseJobsText(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "Acme Fiber", parsed[0].Assignee)
	assert.Equal(t, "4-14-2025", parsed[0].Date)
	assert.Equal(t, 3, parsed[0].WorkOrderNumber)
}

func TestWriteUnparsed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUnparsed(&buf, []models.IncompleteJob{{
		JobMetadata:   models.JobMetadata{ID: "9", DisplayName: "Gus", TimeSlot: "11:00"},
		FailureKind:   models.FailureNoWorkOrder,
		FailureReason: "no fiber install work order",
	}}))
	assert.Equal(t, "11:00 - Gus - 9 - REASON: no fiber install work order\n", buf.String())
}

func TestFormatStats(t *testing.T) {
	start := time.Date(2025, 4, 14, 8, 0, 0, 0, time.Local)
	stats := models.RunStats{
		Mode:       models.RunModeDay,
		Workers:    4,
		Total:      40,
		Collected:  38,
		Failed:     2,
		StartedAt:  start,
		FinishedAt: start.Add(125 * time.Second),
		Duration:   125 * time.Second,
		Host:       "tech-laptop",
	}

	out := FormatStats(stats, "04/14/2025")
	assert.Contains(t, out, "Scrape Mode:     day (04/14/2025)\n")
	assert.Contains(t, out, "Threads Used:    4\n")
	assert.Contains(t, out, "Failed/Unparsed: 2\n")
	assert.Contains(t, out, "Total Time:      2m 5s\n")
	assert.Contains(t, out, "Avg Time/Job:    3.12 sec/job\n")
	assert.Contains(t, out, "Start Time:      2025-04-14 08:00:00\n")
	assert.Contains(t, out, "Host:            tech-laptop\n")
}

func TestWriteJobsPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJobsPDF(&buf, sampleResults(), "Job list for 04/14/2025"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, WriteJobsPDF(&buf, nil, "Empty"))
	assert.NotZero(t, buf.Len())
}

func TestExporter_Export(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir, "", true, arbor.NewLogger())

	diff := &models.DiffRecord{Added: sampleResults()[:1]}
	files, err := exporter.Export("0414", "Job list", sampleResults(), nil, diff)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Jobs0414.txt"), files.Jobs)
	assert.Equal(t, filepath.Join(dir, "Jobs0414.pdf"), files.PDF)
	assert.Equal(t, filepath.Join(dir, "UnparsedJobs0414.txt"), files.Unparsed)
	assert.Equal(t, filepath.Join(dir, "0414Changes.txt"), files.Changes)
	assert.Len(t, files.Attachments(), 4)

	for _, path := range files.Attachments() {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	loaded, err := LoadJobsFile(files.Jobs)
	require.NoError(t, err)
	assert.Len(t, loaded, len(sampleResults()))

	changes, err := os.ReadFile(files.Changes)
	require.NoError(t, err)
	assert.Contains(t, string(changes), "Beta Crew\nAdded:\n  1:00 - zed")
}

func TestExporter_NoDiffNoPDF(t *testing.T) {
	dir := t.TempDir()
	files, err := NewExporter(dir, "", false, arbor.NewLogger()).Export("0414", "Job list", nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, files.PDF)
	assert.Empty(t, files.Changes)
	assert.Equal(t, []string{files.Jobs, files.Unparsed}, files.Attachments())
}
