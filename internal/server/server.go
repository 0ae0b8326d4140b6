// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/easybet/internal/cache/memory"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
	"github.com/alanyoungcy/easybet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port              int
	CORSOrigins       []string
	APIKey            string
	RequireSignatures bool
	SignatureMaxSkew  time.Duration
	RateLimit         int
	RateWindow        time.Duration
	// Replay tracks used request signatures. Defaults to an in-process
	// guard when signatures are required.
	Replay domain.ReplayGuard
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health *handler.HealthHandler
	Calls  *handler.CallHandler
	Query  *handler.QueryHandler
	Events *handler.EventHandler
	Admin  *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in, from the outside in:
// CORS, request id, logging, per-IP rate limit, caller authentication.
// Admin routes additionally require the API key.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, hub, limiter, m, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped handler without a listener.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)
	mux.HandleFunc("GET /api/status", handlers.Health.Status)

	// MarketManager.
	mux.HandleFunc("GET /api/projects", handlers.Query.ListProjects)
	mux.HandleFunc("POST /api/projects", handlers.Calls.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", handlers.Query.GetProject)
	mux.HandleFunc("POST /api/projects/{id}/tickets", handlers.Calls.BuyTicket)
	mux.HandleFunc("POST /api/projects/{id}/result", handlers.Calls.SetResult)
	mux.HandleFunc("POST /api/projects/{id}/end", handlers.Calls.EndProject)
	mux.HandleFunc("POST /api/projects/{id}/claim", handlers.Calls.ClaimPrize)
	mux.HandleFunc("GET /api/projects/{id}/preview", handlers.Query.PreviewClaim)
	mux.HandleFunc("GET /api/projects/{id}/options/{option}/tickets", handlers.Query.OptionTickets)
	mux.HandleFunc("GET /api/projects/{id}/options/{option}/orders", handlers.Query.OrderBook)

	// AssetRegistry and ledgers.
	mux.HandleFunc("GET /api/tickets/{id}", handlers.Query.GetTicket)
	mux.HandleFunc("GET /api/tickets/index/{index}", handlers.Query.TicketByIndex)
	mux.HandleFunc("GET /api/token", handlers.Query.Token)
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Query.GetAccount)
	mux.HandleFunc("GET /api/accounts/{address}/tickets", handlers.Query.AccountTickets)
	mux.HandleFunc("GET /api/accounts/{address}/tickets/{index}", handlers.Query.AccountTicketByIndex)
	mux.HandleFunc("GET /api/accounts/{address}/allowances/{spender}", handlers.Query.Allowance)
	mux.HandleFunc("GET /api/accounts/{address}/operators/{operator}", handlers.Query.Operator)

	// ExchangeBook.
	mux.HandleFunc("POST /api/orders", handlers.Calls.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{ticket}", handlers.Query.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{ticket}", handlers.Calls.CancelOrder)
	mux.HandleFunc("POST /api/orders/{ticket}/fill", handlers.Calls.FillOrder)

	// Any engine method.
	mux.HandleFunc("POST /api/calls/{method}", handlers.Calls.Call)

	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
		mux.HandleFunc("GET /api/journal", handlers.Events.ListJournal)
	}

	if handlers.Admin != nil {
		admin := middleware.APIKey(cfg.APIKey)
		mux.Handle("POST /api/admin/snapshot", admin(http.HandlerFunc(handlers.Admin.Snapshot)))
		mux.Handle("POST /api/admin/archive", admin(http.HandlerFunc(handlers.Admin.Archive)))
		mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(handlers.Admin.ListAudit)))
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	replay := cfg.Replay
	if replay == nil && cfg.RequireSignatures {
		replay = memory.NewReplayGuard()
	}

	var h http.Handler = mux
	h = middleware.CallerAuth(middleware.CallerConfig{
		RequireSignatures: cfg.RequireSignatures,
		MaxSkew:           cfg.SignatureMaxSkew,
		Replay:            replay,
	})(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger, m)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
