package collector

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/calbuddy/internal/models"
)

// workOrderTableSelector is the work-order listing inside a customer record
const workOrderTableSelector = "#custWork #workShow table"

// WorkOrderCriteria decides which listing rows are candidate install orders
type WorkOrderCriteria struct {
	TypeKeywords []string // all must appear in the type column
	ActiveStatus string   // must appear in the status column
}

func (c WorkOrderCriteria) matchesType(orderType string) bool {
	lower := strings.ToLower(orderType)
	for _, keyword := range c.TypeKeywords {
		if !strings.Contains(lower, strings.ToLower(keyword)) {
			return false
		}
	}
	return true
}

func (c WorkOrderCriteria) isActive(status string) bool {
	return strings.Contains(strings.ToLower(status), strings.ToLower(c.ActiveStatus))
}

// ParseWorkOrderRows reads the listing table. Rows with fewer than five
// cells, or whose first cell is not a number, are skipped.
func ParseWorkOrderRows(tableHTML string) ([]models.WorkOrderRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse work order table: %w", err)
	}

	var rows []models.WorkOrderRow
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 5 {
			return
		}

		number, err := strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}

		href, _ := cells.Eq(4).Find("a").First().Attr("href")
		rows = append(rows, models.WorkOrderRow{
			Number: number,
			Type:   strings.TrimSpace(cells.Eq(2).Text()),
			Status: strings.TrimSpace(cells.Eq(3).Text()),
			URL:    strings.TrimSpace(href),
		})
	})

	return rows, nil
}

// SelectWorkOrder picks the highest-numbered active order of the required
// type. When none is active it distinguishes "type present but inactive"
// from "type absent".
func SelectWorkOrder(rows []models.WorkOrderRow, criteria WorkOrderCriteria) models.WorkOrderLookup {
	var best *models.WorkOrderRow
	typeSeen := false

	for i := range rows {
		row := &rows[i]
		if !criteria.matchesType(row.Type) {
			continue
		}
		typeSeen = true
		if !criteria.isActive(row.Status) {
			continue
		}
		if best == nil || row.Number > best.Number {
			best = row
		}
	}

	switch {
	case best != nil:
		return models.WorkOrderLookup{Kind: models.LookupFound, URL: best.URL, Number: best.Number}
	case typeSeen:
		return models.WorkOrderLookup{Kind: models.LookupInactiveOnly}
	default:
		return models.WorkOrderLookup{Kind: models.LookupAbsent}
	}
}

// lookupError maps a non-found lookup to its job error sentinel
func lookupError(lookup models.WorkOrderLookup) (models.FailureKind, error) {
	if lookup.Kind == models.LookupInactiveOnly {
		return models.FailureNoActiveWorkOrder, ErrNoActiveWorkOrder
	}
	return models.FailureNoWorkOrder, ErrNoWorkOrder
}

// resolveURL makes ref absolute against base
func resolveURL(base, ref string) (string, error) {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
