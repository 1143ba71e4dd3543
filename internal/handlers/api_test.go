package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"margin-dashboard/internal/models"
	"margin-dashboard/internal/services"
)

type stubProvider struct {
	products  []models.Product
	vendors   []models.Vendor
	purchases []models.Purchase
}

func (s *stubProvider) Products() []models.Product   { return s.products }
func (s *stubProvider) Vendors() []models.Vendor     { return s.vendors }
func (s *stubProvider) Purchases() []models.Purchase { return s.purchases }

func when(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestEngine() *services.Engine {
	provider := &stubProvider{
		products: []models.Product{
			{ID: "P1", Name: "Classic Rice", SellingPrice: 100},
			{ID: "P2", Name: "Economy Oil", SellingPrice: 200},
		},
		vendors: []models.Vendor{
			{ID: "V1", Name: "Gupta Traders"},
			{ID: "V2", Name: "Iyer Agencies"},
		},
		purchases: []models.Purchase{
			{ID: "p1", ProductID: "P1", VendorID: "V1", Date: when(2025, 5, 1), Quantity: 10, PurchasePrice: 80, State: "Maharashtra", City: "Mumbai"},
			{ID: "p2", ProductID: "P1", VendorID: "V2", Date: when(2025, 4, 15), Quantity: 5, PurchasePrice: 80, State: "Maharashtra", City: "Pune"},
			{ID: "p3", ProductID: "P1", VendorID: "V1", Date: when(2025, 3, 10), Quantity: 8, PurchasePrice: 80, State: "Karnataka", City: "Bengaluru"},
			{ID: "p4", ProductID: "P1", VendorID: "V2", Date: when(2025, 2, 1), Quantity: 2, PurchasePrice: 85, State: "Maharashtra", City: "Mumbai"},
			{ID: "p5", ProductID: "P2", VendorID: "V1", Date: when(2025, 1, 5), Quantity: 1, PurchasePrice: 150, State: "Maharashtra", City: "Mumbai"},
			{ID: "p6", ProductID: "P2", VendorID: "V2", Date: when(2025, 6, 1), Quantity: 2, PurchasePrice: 160, State: "Karnataka", City: "Mysuru"},
		},
	}
	return services.NewEngine(provider)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPIHandlers() *APIHandlers {
	return NewAPIHandlers(newTestEngine(), testLogger())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid response JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func TestHandleAnalytics(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := httptest.NewRecorder()
	h.HandleAnalytics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=60") {
		t.Errorf("Cache-Control = %q", cc)
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatal("expected success envelope")
	}

	var result models.AnalyticsResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("invalid analytics payload: %v", err)
	}
	if len(result.EnrichedPurchases) != 6 {
		t.Errorf("enriched purchases = %d, want 6", len(result.EnrichedPurchases))
	}
	if len(result.ProductSummaries) != 2 {
		t.Errorf("product summaries = %d, want 2", len(result.ProductSummaries))
	}
}

func TestHandleAnalytics_ScopedByState(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/analytics?state=Karnataka", nil)
	rec := httptest.NewRecorder()
	h.HandleAnalytics(rec, req)

	env := decodeEnvelope(t, rec)
	var result models.AnalyticsResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.EnrichedPurchases) != 2 {
		t.Errorf("Karnataka purchases = %d, want 2", len(result.EnrichedPurchases))
	}
	for _, ep := range result.EnrichedPurchases {
		if ep.State != "Karnataka" {
			t.Errorf("purchase %s leaked into scope", ep.ID)
		}
	}
}

func TestHandleAnalytics_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"city without state", "?city=Mumbai"},
		{"override missing separator", "?override=abc"},
		{"override non-numeric", "?override=P1:abc"},
		{"override negative", "?override=P1:-5"},
		{"override empty product", "?override=:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPIHandlers()
			req := httptest.NewRequest(http.MethodGet, "/api/analytics"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.HandleAnalytics(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Fatal("expected error envelope")
			}
			if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
			}
		})
	}
}

func TestHandleAnalytics_Override(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/analytics?override=P1:5", nil)
	rec := httptest.NewRecorder()
	h.HandleAnalytics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var result models.AnalyticsResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatal(err)
	}
	// Threshold 20 reclassifies every margin-20 purchase of P1.
	for _, ep := range result.EnrichedPurchases {
		if ep.ProductID == "P1" && ep.PurchasePrice == 80 && !ep.IsOutlier {
			t.Errorf("purchase %s should be an outlier under the override", ep.ID)
		}
	}
}

func TestHandleProductDetail(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/products/P1", nil)
	req.SetPathValue("id", "P1")
	rec := httptest.NewRecorder()
	h.HandleProductDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var detail models.ProductDetail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Product.ID != "P1" || len(detail.Purchases) != 4 {
		t.Errorf("detail = product %s with %d purchases", detail.Product.ID, len(detail.Purchases))
	}
}

func TestHandleProductDetail_NotFound(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/products/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.HandleProductDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestHandleVendorDetail(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/vendors/V2", nil)
	req.SetPathValue("id", "V2")
	rec := httptest.NewRecorder()
	h.HandleVendorDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var detail models.VendorDetail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Vendor.ID != "V2" || len(detail.Comparison) != 2 {
		t.Errorf("detail = vendor %s with %d comparisons", detail.Vendor.ID, len(detail.Comparison))
	}
}

func TestHandleVendorDetail_NotFound(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/vendors/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.HandleVendorDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleMarginAnalysis_Periods(t *testing.T) {
	for _, period := range []string{"", "calendar", "financial", "trailing3"} {
		t.Run("period "+period, func(t *testing.T) {
			h := newTestAPIHandlers()
			url := "/api/margin-analysis"
			if period != "" {
				url += "?period=" + period
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			rec := httptest.NewRecorder()
			h.HandleMarginAnalysis(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if env := decodeEnvelope(t, rec); !env.Success {
				t.Fatal("expected success envelope")
			}
		})
	}
}

func TestHandleMarginAnalysis_InvalidPeriod(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/margin-analysis?period=weekly", nil)
	rec := httptest.NewRecorder()
	h.HandleMarginAnalysis(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
}

func TestHandleExport(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "margin-analysis.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Error("export body is empty")
	}
}

func TestHandleExport_InvalidFilter(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/export?city=Mumbai", nil)
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", data["status"])
	}
}

func TestHandleStats(t *testing.T) {
	h := newTestAPIHandlers()

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.HandleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var stats map[string]any
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats["products"] != float64(2) || stats["vendors"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}
}
