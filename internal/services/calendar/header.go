package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	yearSuffixPattern = regexp.MustCompile(`,?\s*(\d{4})\s*$`)
	weekdayPrefix     = regexp.MustCompile(`^(?i)(mon|tue|wed|thu|fri|sat|sun)[a-z]*,?\s+`)
	headerLayouts     = []string{"Jan 2 2006", "January 2 2006", "Jan 2, 2006", "January 2, 2006", "1/2/2006"}
)

// ParseHeaderDate returns the first day shown by a calendar title. Week
// titles look like "Apr 13 - 19, 2025" or "Dec 28, 2025 - Jan 3, 2026";
// day titles are a single date. A missing year is taken from the end of the
// range, then from fallbackYear.
func ParseHeaderDate(header string, fallbackYear int) (time.Time, error) {
	header = strings.TrimSpace(strings.NewReplacer("–", "-", "—", "-").Replace(header))
	if header == "" {
		return time.Time{}, fmt.Errorf("empty calendar header")
	}

	start, end, isRange := strings.Cut(header, "-")
	start = weekdayPrefix.ReplaceAllString(strings.TrimSpace(start), "")

	if !yearSuffixPattern.MatchString(start) {
		year := fallbackYear
		if isRange {
			if m := yearSuffixPattern.FindStringSubmatch(end); m != nil {
				fmt.Sscanf(m[1], "%d", &year)
			}
		}
		start = fmt.Sprintf("%s %d", strings.TrimSuffix(start, ","), year)
	}

	for _, layout := range headerLayouts {
		if parsed, err := time.Parse(layout, start); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised calendar header %q", header)
}
