package services

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"margin-dashboard/internal/dataset"
	"margin-dashboard/internal/models"
	"margin-dashboard/internal/observability"
)

const (
	// outlierMultiplier and the smallest-mode tie-break are business
	// thresholds; treat them as fixed observed behavior.
	outlierMultiplier = 4.0
	maxWorkers        = 10
)

// Engine computes margin analytics over a dataset snapshot. It holds no
// state between calls; every query recomputes from the provider.
type Engine struct {
	provider dataset.Provider
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(provider dataset.Provider) *Engine {
	return &Engine{
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// ComputeAnalytics runs the full pipeline for one scope: filter, per-product
// benchmarks, enrichment, aggregation. Overrides map product ids to manual
// mode margins and bypass mode estimation for those products.
func (e *Engine) ComputeAnalytics(ctx context.Context, filter models.ScopeFilter, overrides map[string]float64) models.AnalyticsResult {
	_, span := observability.StartSpan(ctx, "engine.compute_analytics")
	defer span.Finish()
	span.SetTag("scope.state", filter.State)
	span.SetTag("scope.city", filter.City)

	products := e.provider.Products()
	vendors := e.provider.Vendors()

	scoped := make([]models.Purchase, 0)
	for _, p := range e.provider.Purchases() {
		if filter.Matches(p) {
			scoped = append(scoped, p)
		}
	}
	span.SetTag("purchases", strconv.Itoa(len(scoped)))

	productByID := indexProducts(products)
	vendorByID := indexVendors(vendors)

	enriched := e.enrich(scoped, productByID, vendorByID, overrides)
	sortByDateDesc(enriched)

	total := 0.0
	for _, ep := range enriched {
		if !ep.IsOutlier {
			total += ep.MarginLoss
		}
	}

	productSummaries := buildProductSummaries(enriched)
	result := models.AnalyticsResult{
		TotalMarginLoss:         total,
		EnrichedPurchases:       enriched,
		ProductSummaries:        productSummaries,
		VendorSummaries:         buildVendorSummaries(enriched),
		MarginAnalysisSummaries: e.buildMarginAnalysis(productSummaries, enriched),
		Products:                presentProducts(products, scoped),
		Vendors:                 presentVendors(vendors, scoped),
	}
	return result
}

// ProductDetail returns a product with all its enriched purchases,
// nationwide regardless of any dashboard scope. The second return value is
// false for an unknown id.
func (e *Engine) ProductDetail(productID string, overrides map[string]float64) (models.ProductDetail, bool) {
	productByID := indexProducts(e.provider.Products())
	product, ok := productByID[productID]
	if !ok {
		return models.ProductDetail{}, false
	}

	own := make([]models.Purchase, 0)
	for _, p := range e.provider.Purchases() {
		if p.ProductID == productID {
			own = append(own, p)
		}
	}

	vendorByID := indexVendors(e.provider.Vendors())
	enriched := e.enrich(own, productByID, vendorByID, overrides)
	sortByDateDesc(enriched)

	summary := models.ProductSummary{
		ProductID:    product.ID,
		ProductName:  product.Name,
		SellingPrice: product.SellingPrice,
	}
	for _, s := range buildProductSummaries(enriched) {
		if s.ProductID == productID {
			summary = s
			break
		}
	}

	return models.ProductDetail{Product: product, Purchases: enriched, Summary: summary}, true
}

// VendorDetail returns a vendor with its purchases (nationwide) and a
// per-product comparison of the vendor's average margin against the
// product's benchmark best margin. Benchmarks are computed over every
// purchase of the affected products, not just this vendor's.
func (e *Engine) VendorDetail(vendorID string) (models.VendorDetail, bool) {
	vendorByID := indexVendors(e.provider.Vendors())
	vendor, ok := vendorByID[vendorID]
	if !ok {
		return models.VendorDetail{}, false
	}

	all := e.provider.Purchases()
	touched := make(map[string]struct{})
	for _, p := range all {
		if p.VendorID == vendorID {
			touched[p.ProductID] = struct{}{}
		}
	}

	affected := make([]models.Purchase, 0)
	for _, p := range all {
		if _, ok := touched[p.ProductID]; ok {
			affected = append(affected, p)
		}
	}

	productByID := indexProducts(e.provider.Products())
	enriched := e.enrich(affected, productByID, vendorByID, nil)

	type cmpAcc struct {
		name       string
		marginSum  float64
		bestMargin float64
		count      int
	}
	accs := make(map[string]*cmpAcc)
	order := make([]string, 0)

	own := make([]models.EnrichedPurchase, 0)
	for _, ep := range enriched {
		if ep.VendorID != vendorID {
			continue
		}
		own = append(own, ep)
		if ep.IsOutlier || ep.Product.ID == "" {
			continue
		}
		a := accs[ep.ProductID]
		if a == nil {
			a = &cmpAcc{name: ep.Product.Name, bestMargin: ep.BenchmarkMargin}
			accs[ep.ProductID] = a
			order = append(order, ep.ProductID)
		}
		a.marginSum += ep.Margin
		a.count++
	}
	sortByDateDesc(own)

	comparison := make([]models.VendorProductComparison, 0, len(order))
	for _, pid := range order {
		a := accs[pid]
		comparison = append(comparison, models.VendorProductComparison{
			ProductID:     pid,
			ProductName:   a.name,
			AverageMargin: a.marginSum / float64(a.count),
			BestMargin:    a.bestMargin,
			PurchaseCount: a.count,
		})
	}
	slices.SortFunc(comparison, func(a, b models.VendorProductComparison) int {
		return strings.Compare(a.ProductName, b.ProductName)
	})

	return models.VendorDetail{Vendor: vendor, Purchases: own, Comparison: comparison}, true
}

// Stats is a cheap snapshot description for the admin endpoint.
func (e *Engine) Stats() map[string]any {
	return map[string]any{
		"products":  len(e.provider.Products()),
		"vendors":   len(e.provider.Vendors()),
		"purchases": len(e.provider.Purchases()),
	}
}

// enrich partitions purchases by product, computes one benchmark per product
// (fanned out across a bounded worker pool; benchmarks are independent), and
// annotates every purchase. Purchases referencing an unknown product or one
// with a non-positive selling price get a fail-soft record: zero loss, not
// an outlier, never aborting the batch.
func (e *Engine) enrich(purchases []models.Purchase, productByID map[string]models.Product, vendorByID map[string]models.Vendor, overrides map[string]float64) []models.EnrichedPurchase {
	byProduct := make(map[string][]models.Purchase)
	order := make([]string, 0)
	for _, p := range purchases {
		product, ok := productByID[p.ProductID]
		if !ok {
			e.logger.Warn("purchase references unknown product", "purchase_id", p.ID, "product_id", p.ProductID)
			continue
		}
		if product.SellingPrice <= 0 {
			continue
		}
		if _, seen := byProduct[p.ProductID]; !seen {
			order = append(order, p.ProductID)
		}
		byProduct[p.ProductID] = append(byProduct[p.ProductID], p)
	}

	benchmarks := make([]models.ProductBenchmark, len(order))
	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for i, pid := range order {
		g.Go(func() error {
			var override *float64
			if v, ok := overrides[pid]; ok {
				override = &v
			}
			benchmarks[i] = buildBenchmark(productByID[pid].SellingPrice, byProduct[pid], override)
			return nil
		})
	}
	g.Wait()

	benchByProduct := make(map[string]models.ProductBenchmark, len(order))
	for i, pid := range order {
		benchByProduct[pid] = benchmarks[i]
	}

	enriched := make([]models.EnrichedPurchase, 0, len(purchases))
	for _, p := range purchases {
		product := productByID[p.ProductID]
		vendor := vendorByID[p.VendorID]
		bench, ok := benchByProduct[p.ProductID]
		if !ok {
			enriched = append(enriched, models.EnrichedPurchase{
				Purchase: p,
				Product:  product,
				Vendor:   vendor,
			})
			continue
		}
		enriched = append(enriched, enrichPurchase(p, product, vendor, bench))
	}
	return enriched
}

// buildBenchmark resolves the mode (or override), classifies outliers
// against 4x the mode, and picks the best non-outlier margin and its price.
// With no non-outliers it falls back to bestMargin 0 at the selling price.
// Callers only invoke it with a non-empty purchase set.
func buildBenchmark(sellingPrice float64, purchases []models.Purchase, override *float64) models.ProductBenchmark {
	margins := make([]float64, len(purchases))
	for i, p := range purchases {
		margins[i] = marginOf(sellingPrice, p.PurchasePrice)
	}

	mode := modeOf(margins)
	if override != nil {
		mode = *override
	}
	threshold := outlierMultiplier * mode

	bestMargin := math.Inf(-1)
	bestPrice := 0.0
	found := false
	for i, p := range purchases {
		if margins[i] >= threshold {
			continue
		}
		// Strict greater-than keeps the first price on margin ties.
		if margins[i] > bestMargin {
			bestMargin = margins[i]
			bestPrice = p.PurchasePrice
			found = true
		}
	}
	if !found {
		return models.ProductBenchmark{Mode: mode, BestMargin: 0, BestPrice: sellingPrice}
	}
	return models.ProductBenchmark{Mode: mode, BestMargin: bestMargin, BestPrice: bestPrice}
}

// modeOf returns the most frequent margin after rounding to 2 decimals.
// Ties resolve to the smallest value: understating the typical margin keeps
// the outlier threshold conservative.
func modeOf(margins []float64) float64 {
	counts := make(map[float64]int, len(margins))
	for _, m := range margins {
		counts[round2(m)]++
	}

	mode := 0.0
	maxFreq := 0
	for v, c := range counts {
		if c > maxFreq || (c == maxFreq && v < mode) {
			mode = v
			maxFreq = c
		}
	}
	return mode
}

func enrichPurchase(p models.Purchase, product models.Product, vendor models.Vendor, bench models.ProductBenchmark) models.EnrichedPurchase {
	m := marginOf(product.SellingPrice, p.PurchasePrice)
	outlier := m >= outlierMultiplier*bench.Mode

	loss := 0.0
	best := false
	if !outlier {
		loss = math.Max(0, (p.PurchasePrice-bench.BestPrice)*float64(p.Quantity))
		best = p.PurchasePrice == bench.BestPrice
	}

	return models.EnrichedPurchase{
		Purchase:        p,
		Margin:          m,
		MarginLoss:      loss,
		IsOutlier:       outlier,
		IsBestMargin:    best,
		ModeMargin:      bench.Mode,
		BenchmarkMargin: bench.BestMargin,
		Product:         product,
		Vendor:          vendor,
	}
}

func buildProductSummaries(enriched []models.EnrichedPurchase) []models.ProductSummary {
	type acc struct {
		product     models.Product
		loss        float64
		marginSum   float64
		cost        float64
		count       int
		quantity    int
		minMargin   float64
		bestVendor  models.Vendor
		worstVendor models.Vendor
		latest      time.Time
		latestPrice float64
		hasLatest   bool
	}

	accs := make(map[string]*acc)
	order := make([]string, 0)
	for _, ep := range enriched {
		if ep.Product.ID == "" {
			continue
		}
		a := accs[ep.ProductID]
		if a == nil {
			a = &acc{product: ep.Product, minMargin: math.Inf(1)}
			accs[ep.ProductID] = a
			order = append(order, ep.ProductID)
		}
		// Latest price is display-only and includes outliers.
		if !a.hasLatest || ep.Date.After(a.latest) {
			a.latest = ep.Date
			a.latestPrice = ep.PurchasePrice
			a.hasLatest = true
		}
		if ep.IsOutlier {
			continue
		}
		a.loss += ep.MarginLoss
		a.marginSum += ep.Margin
		a.cost += ep.PurchasePrice * float64(ep.Quantity)
		a.count++
		a.quantity += ep.Quantity
		if ep.Margin < a.minMargin {
			a.minMargin = ep.Margin
			a.worstVendor = ep.Vendor
		}
		if ep.IsBestMargin && a.bestVendor.ID == "" {
			a.bestVendor = ep.Vendor
		}
	}

	result := make([]models.ProductSummary, 0, len(order))
	for _, pid := range order {
		a := accs[pid]
		s := models.ProductSummary{
			ProductID:           pid,
			ProductName:         a.product.Name,
			SellingPrice:        a.product.SellingPrice,
			TotalMarginLoss:     a.loss,
			PurchaseCount:       a.count,
			TotalQuantity:       a.quantity,
			BestVendorID:        a.bestVendor.ID,
			BestVendorName:      a.bestVendor.Name,
			WorstVendorID:       a.worstVendor.ID,
			WorstVendorName:     a.worstVendor.Name,
			LatestPurchasePrice: a.latestPrice,
		}
		if a.count > 0 {
			s.AverageMargin = a.marginSum / float64(a.count)
			s.MinMargin = a.minMargin
		}
		if a.cost > 0 {
			s.MarginLossPercentage = a.loss / a.cost * 100
		}
		result = append(result, s)
	}

	slices.SortFunc(result, func(a, b models.ProductSummary) int {
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

func buildVendorSummaries(enriched []models.EnrichedPurchase) []models.VendorSummary {
	type acc struct {
		vendor   models.Vendor
		loss     float64
		products map[string]struct{}
	}

	accs := make(map[string]*acc)
	order := make([]string, 0)
	for _, ep := range enriched {
		if ep.IsOutlier || ep.Vendor.ID == "" || ep.Product.ID == "" {
			continue
		}
		a := accs[ep.VendorID]
		if a == nil {
			a = &acc{vendor: ep.Vendor, products: make(map[string]struct{})}
			accs[ep.VendorID] = a
			order = append(order, ep.VendorID)
		}
		a.loss += ep.MarginLoss
		a.products[ep.ProductID] = struct{}{}
	}

	result := make([]models.VendorSummary, 0, len(order))
	for _, vid := range order {
		a := accs[vid]
		result = append(result, models.VendorSummary{
			VendorID:        vid,
			VendorName:      a.vendor.Name,
			TotalMarginLoss: a.loss,
			ProductCount:    len(a.products),
		})
	}

	slices.SortFunc(result, func(a, b models.VendorSummary) int {
		if a.TotalMarginLoss > b.TotalMarginLoss {
			return -1
		}
		if a.TotalMarginLoss < b.TotalMarginLoss {
			return 1
		}
		return strings.Compare(a.VendorName, b.VendorName)
	})
	return result
}

// buildMarginAnalysis layers a distinct vendor count and a calendar
// year-to-date purchase count on top of the base product summaries.
func (e *Engine) buildMarginAnalysis(summaries []models.ProductSummary, enriched []models.EnrichedPurchase) []models.MarginAnalysisSummary {
	now := e.now()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	yearEnd := yearStart.AddDate(1, 0, 0)

	vendorSets := make(map[string]map[string]struct{})
	yearCounts := make(map[string]int)
	for _, ep := range enriched {
		if ep.IsOutlier || ep.Product.ID == "" {
			continue
		}
		set := vendorSets[ep.ProductID]
		if set == nil {
			set = make(map[string]struct{})
			vendorSets[ep.ProductID] = set
		}
		if ep.Vendor.ID != "" {
			set[ep.VendorID] = struct{}{}
		}
		if inWindow(ep.Date, yearStart, yearEnd) {
			yearCounts[ep.ProductID]++
		}
	}

	result := make([]models.MarginAnalysisSummary, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, models.MarginAnalysisSummary{
			ProductSummary:    s,
			VendorCount:       len(vendorSets[s.ProductID]),
			YearPurchaseCount: yearCounts[s.ProductID],
		})
	}
	return result
}

func indexProducts(products []models.Product) map[string]models.Product {
	m := make(map[string]models.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

func indexVendors(vendors []models.Vendor) map[string]models.Vendor {
	m := make(map[string]models.Vendor, len(vendors))
	for _, v := range vendors {
		m[v.ID] = v
	}
	return m
}

func presentProducts(products []models.Product, scoped []models.Purchase) []models.Product {
	present := make(map[string]struct{}, len(scoped))
	for _, p := range scoped {
		present[p.ProductID] = struct{}{}
	}
	result := make([]models.Product, 0, len(present))
	for _, p := range products {
		if _, ok := present[p.ID]; ok {
			result = append(result, p)
		}
	}
	return result
}

func presentVendors(vendors []models.Vendor, scoped []models.Purchase) []models.Vendor {
	present := make(map[string]struct{}, len(scoped))
	for _, p := range scoped {
		present[p.VendorID] = struct{}{}
	}
	result := make([]models.Vendor, 0, len(present))
	for _, v := range vendors {
		if _, ok := present[v.ID]; ok {
			result = append(result, v)
		}
	}
	return result
}

func sortByDateDesc(enriched []models.EnrichedPurchase) {
	slices.SortFunc(enriched, func(a, b models.EnrichedPurchase) int {
		if a.Date.After(b.Date) {
			return -1
		}
		if a.Date.Before(b.Date) {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func marginOf(sellingPrice, purchasePrice float64) float64 {
	return (sellingPrice - purchasePrice) / sellingPrice * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
