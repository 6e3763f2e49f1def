package collector

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/calbuddy/internal/models"
)

// JobDetails are the work-order page fields that drive classification
type JobDetails struct {
	Address     string
	PackageInfo string
	Description string
}

// ParseJobDetails reads address, package and description from a work-order page
func ParseJobDetails(pageHTML string) (JobDetails, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return JobDetails{}, fmt.Errorf("failed to parse work order page: %w", err)
	}

	details := JobDetails{Address: models.UnknownValue}

	if addr := doc.Find("a[href*='viewServiceMap']").First(); addr.Length() > 0 {
		if text := strings.TrimSpace(addr.Text()); text != "" {
			details.Address = text
		}
	}

	details.PackageInfo = strings.TrimSpace(doc.Find(".packageName.text-indent b").First().Text())
	details.Description = descriptionText(doc)

	return details, nil
}

// descriptionText returns the cell following the "Description:" header
func descriptionText(doc *goquery.Document) string {
	var description string
	find := func(selector string) {
		doc.Find(selector).EachWithBreak(func(_ int, header *goquery.Selection) bool {
			if !strings.Contains(header.Text(), "Description:") {
				return true
			}
			if next := header.NextFiltered("td"); next.Length() > 0 {
				description = strings.TrimSpace(next.Text())
				return false
			}
			return true
		})
	}

	find("td.detailHeader")
	if description == "" {
		find("td")
	}
	return description
}

// Classify derives the job category. Branches are checked in order and all
// comparisons are case-insensitive:
//  1. "5 gig" package (not 2.5)
//  2. no package in Jefferson City: a 5 gig conversion
//  3. "2.5" package
//  4. everything else
//
// Within a branch the connectorized flag comes from the description and the
// bundle flag from "bundle" or "phone" in the package.
func Classify(details JobDetails) string {
	pkg := strings.ToLower(details.PackageInfo)
	connectorized := strings.Contains(strings.ToLower(details.Description), "connectorized")
	bundle := strings.Contains(pkg, "bundle") || strings.Contains(pkg, "phone")

	pick := func(connBundle, conn, plainBundle, plain string) string {
		switch {
		case connectorized && bundle:
			return connBundle
		case connectorized:
			return conn
		case bundle:
			return plainBundle
		default:
			return plain
		}
	}

	switch {
	case strings.Contains(pkg, "5 gig") && !strings.Contains(pkg, "2.5"):
		return pick("Connectorized 5 Gig Bundle", "Connectorized 5 Gig", "5 Gig Fiber Bundle", "5 Gig Naked Fiber")
	case pkg == "" && strings.Contains(strings.ToLower(details.Address), "jefferson city"):
		return "5 Gig Conversion"
	case strings.Contains(pkg, "2.5"):
		return pick("Connectorized 2.5G Bundle", "Connectorized 2.5G", "2.5G Fiber Bundle", "2.5G Naked Fiber")
	default:
		return pick("Connectorized Bundle", "Connectorized", "Fiber Bundle", "Naked Fiber")
	}
}
