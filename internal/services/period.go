package services

import (
	"slices"
	"strings"
	"time"

	"margin-dashboard/internal/models"
)

// Period window helpers for the margin-analysis view. These refine
// already-enriched purchases: outlier classification and benchmarks are
// computed once at full scope and reused, narrowing is a pure re-filter.

// CalendarYearWindow covers Jan 1 to Jan 1 of the following year.
func CalendarYearWindow(today time.Time) (time.Time, time.Time) {
	from := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
	return from, from.AddDate(1, 0, 0)
}

// FinancialYearWindow covers Apr 1 to Mar 31, picking the year that contains
// today.
func FinancialYearWindow(today time.Time) (time.Time, time.Time) {
	year := today.Year()
	if today.Month() < time.April {
		year--
	}
	from := time.Date(year, time.April, 1, 0, 0, 0, 0, today.Location())
	return from, from.AddDate(1, 0, 0)
}

// TrailingWindow covers the given number of months up to and including today.
func TrailingWindow(today time.Time, months int) (time.Time, time.Time) {
	return today.AddDate(0, -months, 0), today.AddDate(0, 0, 1)
}

func inWindow(d, from, to time.Time) bool {
	return !d.Before(from) && d.Before(to)
}

// RefinePeriodSummaries re-aggregates loss, loss percentage, purchase count,
// and distinct vendor count per product over [from, to). Input records keep
// their full-scope classification.
func RefinePeriodSummaries(enriched []models.EnrichedPurchase, from, to time.Time) []models.PeriodSummary {
	type acc struct {
		name    string
		loss    float64
		cost    float64
		count   int
		vendors map[string]struct{}
	}

	accs := make(map[string]*acc)
	order := make([]string, 0)
	for _, ep := range enriched {
		if ep.IsOutlier || ep.Product.ID == "" || !inWindow(ep.Date, from, to) {
			continue
		}
		a := accs[ep.ProductID]
		if a == nil {
			a = &acc{name: ep.Product.Name, vendors: make(map[string]struct{})}
			accs[ep.ProductID] = a
			order = append(order, ep.ProductID)
		}
		a.loss += ep.MarginLoss
		a.cost += ep.PurchasePrice * float64(ep.Quantity)
		a.count++
		if ep.Vendor.ID != "" {
			a.vendors[ep.VendorID] = struct{}{}
		}
	}

	result := make([]models.PeriodSummary, 0, len(order))
	for _, pid := range order {
		a := accs[pid]
		s := models.PeriodSummary{
			ProductID:       pid,
			ProductName:     a.name,
			TotalMarginLoss: a.loss,
			PurchaseCount:   a.count,
			VendorCount:     len(a.vendors),
		}
		if a.cost > 0 {
			s.MarginLossPercentage = a.loss / a.cost * 100
		}
		result = append(result, s)
	}

	slices.SortFunc(result, func(a, b models.PeriodSummary) int {
		if a.TotalMarginLoss > b.TotalMarginLoss {
			return -1
		}
		if a.TotalMarginLoss < b.TotalMarginLoss {
			return 1
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return result
}
