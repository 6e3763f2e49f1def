package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/calbuddy/internal/models"
)

const eventSelector = "a.fc-time-grid-event"

var customerIDPattern = regexp.MustCompile(`^(.*?)\s+-\s+(\d{4}-\d{4}-\d{4})`)

// ParseEvents extracts job metadata from calendar HTML. Only events whose
// text contains marker are kept; events without a customer id are skipped.
func ParseEvents(pageHTML, marker string, scrapeDate time.Time) ([]models.JobMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var jobs []models.JobMetadata
	doc.Find(eventSelector).Each(func(_ int, event *goquery.Selection) {
		if marker != "" && !strings.Contains(event.Text(), marker) {
			return
		}

		name, id, ok := parseTitle(event.Find(".fc-title").First().Text())
		if !ok {
			return
		}

		jobs = append(jobs, models.JobMetadata{
			ID:          id,
			DisplayName: name,
			TimeSlot:    parseTime(event.Find(".fc-time").First()),
			ScrapeDate:  scrapeDate,
		})
	})
	return jobs, nil
}

// parseTitle reads "Name - 1234-5678-9012" and tolerates trailing text such
// as an order number
func parseTitle(title string) (name, id string, ok bool) {
	title = strings.TrimSpace(title)
	if m := customerIDPattern.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1]), m[2], true
	}

	parts := strings.Split(title, " - ")
	if len(parts) < 2 {
		return "", "", false
	}
	id = strings.TrimSpace(parts[1])
	if id == "" || !strings.ContainsAny(id, "0123456789") {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), id, true
}

// parseTime prefers data-start and keeps only the start of a range
func parseTime(sel *goquery.Selection) string {
	raw, ok := sel.Attr("data-start")
	if !ok || strings.TrimSpace(raw) == "" {
		raw = sel.Text()
	}
	if start, _, found := strings.Cut(raw, "-"); found {
		raw = start
	}
	return strings.TrimSpace(raw)
}
