// Package server exposes the consumer-facing pull API over HTTP: the
// classified and graded working set, per-ticker market state, and health.
// Rendering, persistence, and filtering belong to the consumers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/flowgrade/flowgrade/internal/engine"
	"github.com/flowgrade/flowgrade/internal/grader"
	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/models"
	"github.com/flowgrade/flowgrade/internal/provider"
)

// Config holds the HTTP server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server serves the pull API.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	engine  *engine.Engine
	breaker *provider.CircuitBreakerProvider
	logger  *logrus.Logger
	port    int
	token   string
}

// NewServer creates the API server. breaker may be nil when the provider is
// not wrapped (tests); the health endpoint then reports degraded mode from
// market-state presence alone.
func NewServer(cfg Config, eng *engine.Engine, breaker *provider.CircuitBreakerProvider, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		engine:  eng,
		breaker: breaker,
		logger:  logger,
		port:    cfg.Port,
		token:   cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.token != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/trades", s.handleGetTrades)
	s.router.Get("/api/trades/{id}", s.handleGetTrade)
	s.router.Get("/api/state/{ticker}", s.handleGetState)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving the API until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// GradeStatus reports whether a trade's grade is a real assessment or still
// waiting on market data.
type GradeStatus string

const (
	// GradeReady means the grade is a complete assessment
	GradeReady GradeStatus = "ok"
	// GradePending means market data is still loading; any attached grade
	// is partial and must not be displayed as a real assessment
	GradePending GradeStatus = "pending"
)

// TradeView is one working-set entry with its grade, as served to
// consumers.
type TradeView struct {
	models.ClassifiedTrade
	Direction   models.Direction `json:"direction"`
	GradeStatus GradeStatus      `json:"grade_status"`
	GradeReason string           `json:"grade_reason,omitempty"`
	Grade       *grader.Grade    `json:"grade,omitempty"`
}

func (s *Server) buildView(t models.ClassifiedTrade) TradeView {
	view := TradeView{
		ClassifiedTrade: t,
		Direction:       t.Direction(),
	}
	g, err := s.engine.GradeTrade(t)
	switch {
	case err != nil:
		var insufficient *grader.InsufficientDataError
		if errors.As(err, &insufficient) {
			view.GradeStatus = GradePending
			view.GradeReason = insufficient.Error()
			return view
		}
		s.logger.WithError(err).WithField("trade", t.ID).Error("Grading failed")
		view.GradeStatus = GradePending
		view.GradeReason = "grade unavailable"
	case g.Degraded:
		view.GradeStatus = GradePending
		view.GradeReason = "waiting for option mark"
		view.Grade = g
	default:
		view.GradeStatus = GradeReady
		view.Grade = g
	}
	return view
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.engine.WorkingSet()
	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, s.buildView(t))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.engine.TradeByID(id)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.buildView(t))
}

type stateView struct {
	Ticker     string   `json:"ticker"`
	Price      *float64 `json:"price,omitempty"`
	PriceState string   `json:"price_state"`
	Volatility *float64 `json:"volatility,omitempty"`
	VolState   string   `json:"volatility_state"`
}

func statusLabel(st marketstate.Status) string {
	switch st {
	case marketstate.Ready:
		return "ready"
	case marketstate.Unavailable:
		return "unavailable"
	default:
		return "pending"
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	state := s.engine.CurrentMarketState(ticker)

	view := stateView{
		Ticker:     ticker,
		PriceState: statusLabel(state.Price.Status()),
		VolState:   statusLabel(state.Volatility.Status()),
	}
	if v, ok := state.Price.Value(); ok {
		view.Price = &v
	}
	if v, ok := state.Volatility.Value(); ok {
		view.Volatility = &v
	}
	s.writeJSON(w, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := !s.engine.HasMarketData()
	if s.breaker != nil && s.breaker.Open() {
		degraded = true
	}
	health := map[string]interface{}{
		"status":    "healthy",
		"degraded":  degraded,
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
