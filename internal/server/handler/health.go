package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/alanyoungcy/easybet/internal/engine"
)

// Pinger is a dependency whose reachability the readiness check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and status.
type HealthHandler struct {
	engine    *engine.Engine
	deps      map[string]Pinger
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler that pings deps for readiness.
func NewHealthHandler(eng *engine.Engine, deps map[string]Pinger, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		deps:      deps,
		mode:      mode,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports liveness.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency and answers 503 if any is down.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: dependency down",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"checks": checks})
}

// Status reports the journal head, system accounts and accepted methods.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	seq, head := h.engine.Head()
	methods := engine.Methods()
	slices.Sort(methods)
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"seq":            seq,
		"head":           head.Hex(),
		"accounts":       h.engine.Accounts(),
		"token":          h.engine.TokenInfo(),
		"ticket_supply":  h.engine.TicketSupply(),
		"native_supply":  h.engine.NativeSupply(),
		"project_count":  h.engine.ProjectCount(),
		"methods":        methods,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
