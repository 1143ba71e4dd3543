package server

import (
	"log/slog"
	"net/http"

	"margin-dashboard/internal/handlers"
	"margin-dashboard/internal/services"
)

type Server struct {
	engine      *services.Engine
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(engine *services.Engine, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		engine:      engine,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(engine, logger),
		sseHandlers: handlers.NewSSEHandlers(engine, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/analytics", s.apiHandlers.HandleAnalytics)
	s.mux.HandleFunc("GET /api/products/{id}", s.apiHandlers.HandleProductDetail)
	s.mux.HandleFunc("GET /api/vendors/{id}", s.apiHandlers.HandleVendorDetail)
	s.mux.HandleFunc("GET /api/margin-analysis", s.apiHandlers.HandleMarginAnalysis)
	s.mux.HandleFunc("GET /api/export", s.apiHandlers.HandleExport)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/overview", s.sseHandlers.HandleOverview)
	s.mux.HandleFunc("GET /sse/product-losses", s.sseHandlers.HandleProductLosses)
	s.mux.HandleFunc("GET /sse/vendor-losses", s.sseHandlers.HandleVendorLosses)
	s.mux.HandleFunc("GET /sse/loss-trend", s.sseHandlers.HandleLossTrend)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
