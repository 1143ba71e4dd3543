package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"margin-dashboard/internal/models"
	"margin-dashboard/internal/services"
)

const maxTableRows = 50

var productTableTemplate = template.Must(template.New("productTable").Parse(`
<div id="products-content">
<table class="modern-table">
<thead><tr><th>Product</th><th>Purchases</th><th>Avg Margin</th><th>Best Vendor</th><th>Worst Vendor</th><th>Margin Loss</th></tr></thead>
<tbody>
{{range .}}<tr>
<td>{{.ProductName}}</td>
<td>{{.PurchaseCount}}</td>
<td>{{printf "%.1f" .AverageMargin}}%</td>
<td>{{.BestVendorName}}</td>
<td>{{.WorstVendorName}}</td>
<td><strong>₹{{printf "%.2f" .TotalMarginLoss}}</strong></td>
</tr>{{end}}
</tbody>
</table>
</div>`))

type SSEHandlers struct {
	engine *services.Engine
	logger *slog.Logger
}

func NewSSEHandlers(engine *services.Engine, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		engine: engine,
		logger: logger,
	}
}

func (h *SSEHandlers) compute(r *http.Request) models.AnalyticsResult {
	scope, overrides, err := parseQuery(r)
	if err != nil {
		// SSE widgets fall back to nationwide scope on a bad filter; the
		// REST endpoints are the validating surface.
		scope, overrides = models.ScopeFilter{}, nil
	}
	return h.engine.ComputeAnalytics(r.Context(), scope, overrides)
}

func (h *SSEHandlers) renderProductTable(summaries []models.ProductSummary) (string, error) {
	if len(summaries) > maxTableRows {
		summaries = summaries[:maxTableRows]
	}

	var buf strings.Builder
	err := productTableTemplate.Execute(&buf, summaries)
	return buf.String(), err
}

// HandleOverview patches the KPI strip: total loss, entity counts, outliers.
func (h *SSEHandlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	result := h.compute(r)

	outliers := 0
	for _, ep := range result.EnrichedPurchases {
		if ep.IsOutlier {
			outliers++
		}
	}

	html := fmt.Sprintf(`<div id="overview-content">
<div class="kpi"><span class="kpi-value">₹%.2f</span><span class="kpi-label">Total Margin Loss</span></div>
<div class="kpi"><span class="kpi-value">%d</span><span class="kpi-label">Products</span></div>
<div class="kpi"><span class="kpi-value">%d</span><span class="kpi-label">Vendors</span></div>
<div class="kpi"><span class="kpi-value">%d</span><span class="kpi-label">Outlier Purchases</span></div>
</div>`,
		result.TotalMarginLoss, len(result.Products), len(result.Vendors), outliers)

	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleProductLosses(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	result := h.compute(r)
	html, err := h.renderProductTable(result.ProductSummaries)
	if err != nil {
		h.logger.Error("render product table", "error", err)
		return
	}

	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleVendorLosses(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	result := h.compute(r)
	jsonData, err := json.Marshal(map[string]any{
		"vendorsData": result.VendorSummaries,
	})
	if err != nil {
		h.logger.Error("marshal vendors data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="vendors-content">Vendor chart data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleLossTrend(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	result := h.compute(r)
	jsonData, err := json.Marshal(map[string]any{
		"trendData": monthlyLossSeries(result.EnrichedPurchases),
	})
	if err != nil {
		h.logger.Error("marshal trend data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="trend-content">Loss trend data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	result := h.compute(r)

	html, err := h.renderProductTable(result.ProductSummaries)
	if err != nil {
		h.logger.Error("render product table", "error", err)
		return
	}
	sse.PatchElements(html)

	allSignals, err := json.Marshal(map[string]any{
		"vendorsData": result.VendorSummaries,
		"trendData":   monthlyLossSeries(result.EnrichedPurchases),
	})
	if err != nil {
		h.logger.Error("marshal refresh signals", "error", err)
		return
	}
	sse.PatchSignals(allSignals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

type monthlyLoss struct {
	Month string  `json:"month"`
	Loss  float64 `json:"loss"`
}

func monthlyLossSeries(enriched []models.EnrichedPurchase) []monthlyLoss {
	groups := make(map[string]float64)
	for _, ep := range enriched {
		if ep.IsOutlier {
			continue
		}
		groups[ep.Date.Format("2006-01")] += ep.MarginLoss
	}

	series := make([]monthlyLoss, 0, len(groups))
	for month, loss := range groups {
		series = append(series, monthlyLoss{Month: month, Loss: loss})
	}
	slices.SortFunc(series, func(a, b monthlyLoss) int {
		return strings.Compare(a.Month, b.Month)
	})
	return series
}
