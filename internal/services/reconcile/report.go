package reconcile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ternarybob/calbuddy/internal/models"
)

// WriteChangeReport renders diff grouped by assignee. Each assignee with a
// change gets Added and Removed sections, and a Moved section when it has
// moves. Moves are listed under the new assignee. Output is deterministic.
func WriteChangeReport(w io.Writer, diff models.DiffRecord) error {
	type section struct {
		added, removed, moved []string
	}
	groups := make(map[string]*section)
	group := func(assignee string) *section {
		if assignee == "" {
			assignee = models.UnknownValue
		}
		if groups[assignee] == nil {
			groups[assignee] = &section{}
		}
		return groups[assignee]
	}

	for _, job := range diff.Added {
		g := group(job.Assignee)
		g.added = append(g.added, job.Line())
	}
	for _, job := range diff.Removed {
		g := group(job.Assignee)
		g.removed = append(g.removed, job.Line())
	}
	for _, move := range diff.Moved {
		g := group(move.New.Assignee)
		g.moved = append(g.moved, moveLine(move))
	}

	assignees := make([]string, 0, len(groups))
	for name := range groups {
		assignees = append(assignees, name)
	}
	sort.Strings(assignees)

	bw := bufio.NewWriter(w)
	for _, name := range assignees {
		g := groups[name]
		fmt.Fprintf(bw, "%s\n", name)
		writeSection(bw, "Added:", g.added)
		bw.WriteString("\n")
		writeSection(bw, "Removed:", g.removed)
		if len(g.moved) > 0 {
			bw.WriteString("\n")
			writeSection(bw, "Moved:", g.moved)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// FormatChangeReport returns the change report as a string
func FormatChangeReport(diff models.DiffRecord) string {
	var sb strings.Builder
	_ = WriteChangeReport(&sb, diff)
	return sb.String()
}

func writeSection(w *bufio.Writer, title string, lines []string) {
	sort.Strings(lines)
	w.WriteString(title + "\n")
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func moveLine(move models.MovedJob) string {
	line := fmt.Sprintf("%s (was %s", move.New.Line(), move.Old.TimeSlot)
	if move.Old.Date != move.New.Date {
		line += " on " + move.Old.Date
	}
	if move.Old.Assignee != move.New.Assignee {
		line += " with " + move.Old.Assignee
	}
	return line + ")"
}
