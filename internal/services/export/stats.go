package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/calbuddy/internal/models"
)

// FormatStats renders the run summary included in logs and emails
func FormatStats(stats models.RunStats, rangeLabel string) string {
	minutes := int(stats.Duration / time.Minute)
	seconds := int((stats.Duration % time.Minute) / time.Second)

	avg := 0.0
	if stats.Total > 0 {
		avg = stats.Duration.Seconds() / float64(stats.Total)
	}

	var sb strings.Builder
	sb.WriteString("Stats for this run:\n")
	sb.WriteString("---------------------\n")
	fmt.Fprintf(&sb, "Scrape Mode:     %s (%s)\n", stats.Mode, rangeLabel)
	fmt.Fprintf(&sb, "Threads Used:    %d\n", stats.Workers)
	fmt.Fprintf(&sb, "Total Jobs:      %d\n", stats.Total)
	fmt.Fprintf(&sb, "Collected:       %d\n", stats.Collected)
	fmt.Fprintf(&sb, "Failed/Unparsed: %d\n", stats.Failed)
	fmt.Fprintf(&sb, "Total Time:      %dm %ds\n", minutes, seconds)
	fmt.Fprintf(&sb, "Avg Time/Job:    %.2f sec/job\n", avg)
	fmt.Fprintf(&sb, "Start Time:      %s\n", stats.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "End Time:        %s\n", stats.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Host:            %s\n", stats.Host)
	return sb.String()
}
