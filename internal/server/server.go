package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/gateway"
	"github.com/cylonmolting/agora-oracle/internal/modules/agents"
	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
	"github.com/cylonmolting/agora-oracle/internal/modules/budget"
	"github.com/cylonmolting/agora-oracle/internal/modules/forecast"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
	"github.com/cylonmolting/agora-oracle/internal/router"
)

// Config holds server configuration and the wired components the routes
// expose.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DevMode bool

	DB *database.DB

	RateRepo      *rates.Repository
	Aggregator    *rates.Aggregator
	ProviderRepo  *providers.Repository
	MarketRepo    *marketplace.Repository
	Comparison    *marketplace.Comparison
	AgentsRepo    *agents.Repository
	BudgetRepo    *budget.Repository
	AlertManager  *alerts.Manager
	ForecastRepo  *forecast.Repository
	ForecastEng   *forecast.Engine
	Gateway       *gateway.Gateway
	RouterService *router.Service
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	db         *database.DB
	rateRepo   *rates.Repository
	marketRepo *marketplace.Repository
	gateway    *gateway.Gateway
	smart      *router.Service
	cfg        Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		db:         cfg.DB,
		rateRepo:   cfg.RateRepo,
		marketRepo: cfg.MarketRepo,
		gateway:    cfg.Gateway,
		smart:      cfg.RouterService,
		cfg:        cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (no envelope)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		// WebSocket push endpoint; authentication happens in-protocol.
		r.Get("/ws", s.gateway.HandleConnection)

		s.setupRateRoutes(r)
		s.setupProviderRoutes(r)
		s.setupMarketplaceRoutes(r)
		s.setupAccountRoutes(r)
		s.setupForecastRoutes(r)
		s.setupRouterRoutes(r)

		r.Get("/stats", s.handleStats)
		r.Get("/stats/volatility", s.handleVolatility)
	})
}

func (s *Server) setupRateRoutes(r chi.Router) {
	handler := rates.NewHandlers(s.cfg.Aggregator, s.log)

	r.Get("/rates", handler.HandleGetAllRates)
	r.Get("/rates/{category}", handler.HandleGetCategoryRate)
	r.Get("/rates/{category}/{subcategory}", handler.HandleGetSubcategoryRate)
}

func (s *Server) setupProviderRoutes(r chi.Router) {
	handler := providers.NewHandlers(s.cfg.ProviderRepo, s.log)

	r.Get("/providers", handler.HandleGetProviders)
	r.Get("/providers/{id}", handler.HandleGetProvider)
	r.Get("/compare", handler.HandleCompare)
}

func (s *Server) setupMarketplaceRoutes(r chi.Router) {
	handler := marketplace.NewHandlers(s.cfg.MarketRepo, s.cfg.Comparison, s.log)

	r.Route("/agent-services", func(r chi.Router) {
		r.Get("/", handler.HandleList)
		r.Get("/compare", handler.HandleCompare)
		r.Get("/{agentId}", handler.HandleGetAgent)
		r.Get("/{agentId}/history", handler.HandleHistory)
	})
}

func (s *Server) setupAccountRoutes(r chi.Router) {
	agentHandler := agents.NewHandlers(s.cfg.AgentsRepo, s.log)
	budgetHandler := budget.NewHandlers(s.cfg.BudgetRepo, s.log)
	alertHandler := alerts.NewHandlers(s.cfg.AlertManager, s.log)

	r.Post("/agents", agentHandler.HandleCreate)
	r.Get("/agents", agentHandler.HandleList)

	auth := requireAuth(s.cfg.AgentsRepo)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/budget/{agentId}", budgetHandler.HandleGetBudget)
		r.Post("/budget", budgetHandler.HandleSetBudget)
		r.Get("/budget/{agentId}/history", budgetHandler.HandleHistory)

		r.Post("/alerts", alertHandler.HandleCreate)
		r.Get("/alerts", alertHandler.HandleList)
		r.Patch("/alerts/{id}", alertHandler.HandleUpdate)
		r.Delete("/alerts/{id}", alertHandler.HandleDelete)
		r.Get("/alerts/{id}/history", alertHandler.HandleHistory)
	})
}

func (s *Server) setupForecastRoutes(r chi.Router) {
	handler := forecast.NewHandlers(s.cfg.ForecastEng, s.cfg.ForecastRepo, s.log)

	r.Route("/forecast", func(r chi.Router) {
		r.Get("/status", handler.HandleStatus)
		r.Post("/generate", handler.HandleGenerate)
		r.Get("/{category}", handler.HandleGetForecast)
		r.Get("/{category}/accuracy", handler.HandleAccuracy)
		r.Get("/{category}/{subcategory}", handler.HandleGetForecast)
		r.Get("/{category}/{subcategory}/accuracy", handler.HandleAccuracy)
	})
}

func (s *Server) setupRouterRoutes(r chi.Router) {
	auth := requireAuth(s.cfg.AgentsRepo)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/route", s.handleRoute)
	})
}

// routeRequest is the POST /v1/route body.
type routeRequest struct {
	Prompt string `json:"prompt"`
}

// handleRoute forwards a prompt through the smart router.
// POST /v1/route
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return
	}

	if s.smart == nil || !s.smart.Enabled() {
		api.Error(w, http.StatusServiceUnavailable, "no provider adapters configured")
		return
	}

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		api.Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result, err := s.smart.Route(r.Context(), agent.ID, req.Prompt)
	if err != nil {
		s.log.Warn().Err(err).Int64("agent_id", agent.ID).Msg("Route failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, result)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// timeoutContext bounds store-touching handlers.
func timeoutContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
