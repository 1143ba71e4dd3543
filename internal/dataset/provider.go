package dataset

import "margin-dashboard/internal/models"

// Provider is the read contract the margin engine computes over. Returned
// slices are snapshots: callers must treat them as immutable. A production
// deployment swaps the synthetic generator for a database- or file-backed
// implementation without touching the engine.
type Provider interface {
	Products() []models.Product
	Vendors() []models.Vendor
	Purchases() []models.Purchase
}
