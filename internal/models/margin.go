package models

import "time"

// Product is an immutable catalog record. SellingPrice is the fixed retail
// benchmark every margin is measured against.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SellingPrice float64 `json:"selling_price"`
}

// Vendor is an immutable identity record.
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Purchase is a fact record: one historical buy of Quantity units at
// PurchasePrice per unit. ProductID and VendorID are foreign keys; the
// engine never enforces them, it only guards lookups.
type Purchase struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	VendorID      string    `json:"vendor_id"`
	Date          time.Time `json:"date"`
	Quantity      int       `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"`
	State         string    `json:"state"`
	City          string    `json:"city"`
}

// EnrichedPurchase is a Purchase annotated with the margin pipeline's
// output. Recomputed on every query, never persisted.
type EnrichedPurchase struct {
	Purchase
	Margin          float64 `json:"margin"`
	MarginLoss      float64 `json:"margin_loss"`
	IsOutlier       bool    `json:"is_outlier"`
	IsBestMargin    bool    `json:"is_best_margin"`
	ModeMargin      float64 `json:"mode_margin"`
	BenchmarkMargin float64 `json:"benchmark_margin"`
	Product         Product `json:"product"`
	Vendor          Vendor  `json:"vendor"`
}

// ProductBenchmark is computed once per product per query scope and shared
// by every purchase of that product within the scope.
type ProductBenchmark struct {
	Mode       float64 `json:"mode"`
	BestMargin float64 `json:"best_margin"`
	BestPrice  float64 `json:"best_price"`
}

// ScopeFilter restricts the purchase set before any computation runs.
// Zero value means nationwide. A city is only meaningful with its state.
type ScopeFilter struct {
	State string `json:"state"`
	City  string `json:"city"`
}

func (f ScopeFilter) IsZero() bool {
	return f.State == "" && f.City == ""
}

// Matches reports whether a purchase falls inside the scope.
func (f ScopeFilter) Matches(p Purchase) bool {
	if f.State != "" && p.State != f.State {
		return false
	}
	if f.City != "" && p.City != f.City {
		return false
	}
	return true
}

// ProductSummary aggregates a product's non-outlier purchases. Products with
// in-scope purchases are always listed, even when every purchase is an
// outlier (counts and loss drop to zero, the latest price still shows).
type ProductSummary struct {
	ProductID            string  `json:"product_id"`
	ProductName          string  `json:"product_name"`
	SellingPrice         float64 `json:"selling_price"`
	TotalMarginLoss      float64 `json:"total_margin_loss"`
	PurchaseCount        int     `json:"purchase_count"`
	AverageMargin        float64 `json:"average_margin"`
	TotalQuantity        int     `json:"total_quantity"`
	MinMargin            float64 `json:"min_margin"`
	BestVendorID         string  `json:"best_vendor_id"`
	BestVendorName       string  `json:"best_vendor_name"`
	WorstVendorID        string  `json:"worst_vendor_id"`
	WorstVendorName      string  `json:"worst_vendor_name"`
	LatestPurchasePrice  float64 `json:"latest_purchase_price"`
	MarginLossPercentage float64 `json:"margin_loss_percentage"`
}

// VendorSummary aggregates a vendor's non-outlier purchases. Vendors with no
// qualifying purchases are omitted.
type VendorSummary struct {
	VendorID        string  `json:"vendor_id"`
	VendorName      string  `json:"vendor_name"`
	TotalMarginLoss float64 `json:"total_margin_loss"`
	ProductCount    int     `json:"product_count"`
}

// MarginAnalysisSummary extends ProductSummary with a distinct vendor count
// and a purchase count limited to the current calendar year.
type MarginAnalysisSummary struct {
	ProductSummary
	VendorCount       int `json:"vendor_count"`
	YearPurchaseCount int `json:"year_purchase_count"`
}

// PeriodSummary is a per-product re-aggregation of already-enriched
// purchases over a narrower time window. Classification is never re-run.
type PeriodSummary struct {
	ProductID            string  `json:"product_id"`
	ProductName          string  `json:"product_name"`
	TotalMarginLoss      float64 `json:"total_margin_loss"`
	MarginLossPercentage float64 `json:"margin_loss_percentage"`
	PurchaseCount        int     `json:"purchase_count"`
	VendorCount          int     `json:"vendor_count"`
}

// AnalyticsResult is the engine's full answer for one scope.
type AnalyticsResult struct {
	TotalMarginLoss         float64                 `json:"total_margin_loss"`
	EnrichedPurchases       []EnrichedPurchase      `json:"enriched_purchases"`
	ProductSummaries        []ProductSummary        `json:"product_summaries"`
	VendorSummaries         []VendorSummary         `json:"vendor_summaries"`
	MarginAnalysisSummaries []MarginAnalysisSummary `json:"margin_analysis_summaries"`
	Products                []Product               `json:"products"`
	Vendors                 []Vendor                `json:"vendors"`
}

// ProductDetail backs the product drill-down view. Purchases are nationwide
// regardless of any dashboard scope.
type ProductDetail struct {
	Product   Product            `json:"product"`
	Purchases []EnrichedPurchase `json:"purchases"`
	Summary   ProductSummary     `json:"summary"`
}

// VendorProductComparison contrasts a vendor's average margin on a product
// with the product's benchmark best margin.
type VendorProductComparison struct {
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	AverageMargin float64 `json:"average_margin"`
	BestMargin    float64 `json:"best_margin"`
	PurchaseCount int     `json:"purchase_count"`
}

// VendorDetail backs the vendor drill-down view, nationwide.
type VendorDetail struct {
	Vendor     Vendor                    `json:"vendor"`
	Purchases  []EnrichedPurchase        `json:"purchases"`
	Comparison []VendorProductComparison `json:"comparison"`
}
