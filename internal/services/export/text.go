package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ternarybob/calbuddy/internal/models"
)

var dateHeaderPattern = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{2,4}$`)

// DateGroup is one date's jobs, in display order
type DateGroup struct {
	Date string
	Jobs []models.JobResult
}

// CompanyGroup is one assignee's jobs grouped by date
type CompanyGroup struct {
	Company string
	Dates   []DateGroup
}

// Group arranges results for display: assignees alphabetically, dates
// chronologically with Unknown last, jobs by time slot then name
func Group(results []models.JobResult) []CompanyGroup {
	byCompany := make(map[string]map[string][]models.JobResult)
	for _, job := range results {
		company := job.Assignee
		if company == "" {
			company = models.UnknownValue
		}
		if byCompany[company] == nil {
			byCompany[company] = make(map[string][]models.JobResult)
		}
		byCompany[company][job.Date] = append(byCompany[company][job.Date], job)
	}

	companies := make([]string, 0, len(byCompany))
	for company := range byCompany {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	groups := make([]CompanyGroup, 0, len(companies))
	for _, company := range companies {
		dates := byCompany[company]
		keys := make([]string, 0, len(dates))
		for date := range dates {
			keys = append(keys, date)
		}
		sort.Slice(keys, func(i, j int) bool { return models.DateLess(keys[i], keys[j]) })

		group := CompanyGroup{Company: company}
		for _, date := range keys {
			jobs := append([]models.JobResult(nil), dates[date]...)
			sort.SliceStable(jobs, func(i, j int) bool {
				si, sj := models.SlotOrder(jobs[i].TimeSlot), models.SlotOrder(jobs[j].TimeSlot)
				if si != sj {
					return si < sj
				}
				return strings.ToLower(jobs[i].DisplayName) < strings.ToLower(jobs[j].DisplayName)
			})
			group.Dates = append(group.Dates, DateGroup{Date: date, Jobs: jobs})
		}
		groups = append(groups, group)
	}
	return groups
}

// WriteJobsText writes the job list: each assignee, a blank line, then each
// date followed by its job lines and a blank line
func WriteJobsText(w io.Writer, results []models.JobResult) error {
	bw := bufio.NewWriter(w)
	for _, company := range Group(results) {
		fmt.Fprintf(bw, "%s\n\n", company.Company)
		for _, date := range company.Dates {
			fmt.Fprintf(bw, "%s\n", date.Date)
			for _, job := range date.Jobs {
				fmt.Fprintf(bw, "%s\n", job.Line())
			}
			bw.WriteString("\n")
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// ParseJobsText reads a job list written by WriteJobsText, or edited by
// hand in the same layout. Lines that fit no pattern are ignored.
//
// A line reading Unknown is ambiguous: it is a date header when it directly
// follows an assignee header, or a date group after a single blank line.
func ParseJobsText(r io.Reader) ([]models.JobResult, error) {
	const (
		seenNone = iota
		seenCompany
		seenDate
		seenJob
	)

	var (
		jobs    []models.JobResult
		company string
		date    string
		prev    = seenNone
		blanks  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			blanks++
			continue
		}
		gap := blanks
		blanks = 0

		if line == models.UnknownValue && (prev == seenCompany || (prev == seenJob && gap == 1)) {
			date = line
			prev = seenDate
			continue
		}
		if !strings.Contains(line, " - ") && !strings.ContainsFunc(line, unicode.IsDigit) {
			company = line
			prev = seenCompany
			continue
		}
		if dateHeaderPattern.MatchString(line) {
			date = line
			prev = seenDate
			continue
		}
		if !strings.Contains(line, " - ") || !strings.Contains(line, "WO") {
			continue
		}

		parts := strings.Split(line, " - ")
		if len(parts) < 6 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		last := len(parts) - 1
		number, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(parts[last], "WO")))
		jobs = append(jobs, models.JobResult{
			Assignee:        company,
			Date:            date,
			TimeSlot:        parts[0],
			DisplayName:     parts[1],
			ID:              parts[2],
			Category:        parts[3],
			Address:         strings.Join(parts[4:last], " - "),
			WorkOrderNumber: number,
		})
		prev = seenJob
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job list: %w", err)
	}
	return jobs, nil
}

// WriteUnparsed writes one line per incomplete job with its failure reason
func WriteUnparsed(w io.Writer, incomplete []models.IncompleteJob) error {
	bw := bufio.NewWriter(w)
	for _, job := range incomplete {
		fmt.Fprintf(bw, "%s - %s - %s - REASON: %s\n", job.TimeSlot, job.DisplayName, job.ID, job.FailureReason)
	}
	return bw.Flush()
}
