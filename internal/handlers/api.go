package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"margin-dashboard/internal/errors"
	"margin-dashboard/internal/models"
	"margin-dashboard/internal/observability"
	"margin-dashboard/internal/services"
)

const cacheMaxAge = "public, max-age=60"

type APIHandlers struct {
	engine *services.Engine
	logger *slog.Logger
}

func NewAPIHandlers(engine *services.Engine, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		engine: engine,
		logger: logger,
	}
}

func (h *APIHandlers) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	scope, overrides, err := parseQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	result := h.engine.ComputeAnalytics(r.Context(), scope, overrides)

	errors.WriteSuccessWithHeaders(w, result, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleProductDetail(w http.ResponseWriter, r *http.Request) {
	_, overrides, err := parseQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	detail, ok := h.engine.ProductDetail(r.PathValue("id"), overrides)
	if !ok {
		errors.WriteError(w, h.logger, errors.NotFound("product not found"), observability.GetRequestID(r.Context()))
		return
	}

	errors.WriteSuccess(w, detail)
}

func (h *APIHandlers) HandleVendorDetail(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.engine.VendorDetail(r.PathValue("id"))
	if !ok {
		errors.WriteError(w, h.logger, errors.NotFound("vendor not found"), observability.GetRequestID(r.Context()))
		return
	}

	errors.WriteSuccess(w, detail)
}

// HandleMarginAnalysis serves the period-scoped view. The calendar period is
// the engine's own margin-analysis output; financial year and trailing
// months re-filter the enriched purchases without re-running classification.
func (h *APIHandlers) HandleMarginAnalysis(w http.ResponseWriter, r *http.Request) {
	scope, overrides, err := parseQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	result := h.engine.ComputeAnalytics(r.Context(), scope, overrides)

	period := r.URL.Query().Get("period")
	switch period {
	case "", "calendar":
		errors.WriteSuccess(w, result.MarginAnalysisSummaries)
	case "financial":
		from, to := services.FinancialYearWindow(time.Now())
		errors.WriteSuccess(w, services.RefinePeriodSummaries(result.EnrichedPurchases, from, to))
	case "trailing3":
		from, to := services.TrailingWindow(time.Now(), 3)
		errors.WriteSuccess(w, services.RefinePeriodSummaries(result.EnrichedPurchases, from, to))
	default:
		err := errors.Validation("period must be one of: calendar, financial, trailing3")
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.engine.Stats())
}

// parseQuery extracts the geographic scope and mode overrides shared by the
// analytics endpoints. Validation failures never reach the engine.
func parseQuery(r *http.Request) (models.ScopeFilter, map[string]float64, error) {
	q := r.URL.Query()

	scope := models.ScopeFilter{
		State: strings.TrimSpace(q.Get("state")),
		City:  strings.TrimSpace(q.Get("city")),
	}
	// A city name alone is ambiguous across states.
	if scope.City != "" && scope.State == "" {
		return models.ScopeFilter{}, nil, errors.Validation("city filter requires its state")
	}

	raws := q["override"]
	if len(raws) == 0 {
		return scope, nil, nil
	}

	overrides := make(map[string]float64, len(raws))
	for _, raw := range raws {
		productID, value, ok := strings.Cut(raw, ":")
		if !ok || productID == "" {
			return models.ScopeFilter{}, nil, errors.Validation("override must have the form <product_id>:<mode>")
		}
		mode, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return models.ScopeFilter{}, nil, errors.Validation("override mode must be numeric")
		}
		if mode < 0 {
			return models.ScopeFilter{}, nil, errors.Validation("override mode must not be negative")
		}
		overrides[productID] = mode
	}
	return scope, overrides, nil
}
