package collector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/calbuddy/internal/models"
)

const (
	contractorSelector     = ".contractorsection #ContractorList"
	scheduledEventSelector = "#scheduledEventList"
)

var (
	isoDatePattern     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	numericDatePattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
	installLinePattern = regexp.MustCompile(`(?i)fiber.*install`)
	blockBreakPattern  = regexp.MustCompile(`(?i)<br\s*/?>|</(div|p|li|tr|h\d)>`)
)

// ParseAssignee picks the primary contractor from the labels of the
// contractor list. "None Assigned" is reported as such; an empty or
// unrecognisable list yields Unknown.
func ParseAssignee(labels []string) string {
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		switch {
		case strings.Contains(trimmed, models.NoneAssigned):
			return models.NoneAssigned
		case strings.Contains(trimmed, " - (Primary"):
			return strings.TrimSpace(strings.SplitN(trimmed, " - ", 2)[0])
		case trimmed != "" && !strings.Contains(trimmed, "assigned to this work order"):
			return trimmed
		}
	}
	return models.UnknownValue
}

// contractorLabels returns the bold labels inside the contractor list HTML
func contractorLabels(listHTML string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contractor list: %w", err)
	}
	var labels []string
	doc.Find("b").Each(func(_ int, b *goquery.Selection) {
		labels = append(labels, b.Text())
	})
	return labels, nil
}

// eventListLines renders the scheduled-event list HTML as text lines
func eventListLines(listHTML string) ([]string, error) {
	withBreaks := blockBreakPattern.ReplaceAllStringFunc(listHTML, func(tag string) string {
		return tag + "\n"
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(withBreaks))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scheduled events: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

// eventListReady reports whether the event list has finished loading
func eventListReady(text string) bool {
	return isoDatePattern.MatchString(text) || (strings.Contains(text, "Fiber") && strings.Contains(text, "Install"))
}

// ParseScheduledDate finds the install line among the scheduled events and
// returns its date as M-D-YY, or Unknown
func ParseScheduledDate(lines []string) string {
	var installLine string
	for _, line := range lines {
		if installLinePattern.MatchString(line) {
			installLine = line
			break
		}
	}
	if installLine == "" {
		return models.UnknownValue
	}

	if m := isoDatePattern.FindStringSubmatch(installLine); m != nil {
		if formatted, ok := formatDate(m[1], m[2], m[3]); ok {
			return formatted
		}
	}

	if m := numericDatePattern.FindStringSubmatch(installLine); m != nil {
		if formatted, ok := formatDate(m[3], m[1], m[2]); ok {
			return formatted
		}
	}

	return models.UnknownValue
}

// formatDate validates the parts and renders M-D-YY
func formatDate(year, month, day string) (string, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return "", false
	}
	if y < 100 {
		y += 2000
	}

	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if date.Year() != y || int(date.Month()) != m || date.Day() != d {
		return "", false
	}
	return date.Format(models.DateLayout), true
}
