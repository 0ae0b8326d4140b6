package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/service"
)

// Maintainer runs operator maintenance tasks.
type Maintainer interface {
	TakeSnapshot(ctx context.Context) (domain.Snapshot, error)
	Archive(ctx context.Context, archiver domain.Archiver, retention time.Duration) (service.ArchiveResult, error)
}

// AdminHandler serves operator routes. archiver may be nil, in which case
// archive requests answer 501.
type AdminHandler struct {
	maint     Maintainer
	audit     domain.AuditStore
	archiver  domain.Archiver
	retention time.Duration
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archiver may be nil.
func NewAdminHandler(maint Maintainer, audit domain.AuditStore, archiver domain.Archiver, retention time.Duration, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		maint:     maint,
		audit:     audit,
		archiver:  archiver,
		retention: retention,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

// Snapshot takes a snapshot now.
// POST /api/admin/snapshot
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.maint.TakeSnapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":      snap.Seq,
		"hash":     snap.Hash.Hex(),
		"taken_at": snap.TakenAt,
		"bytes":    len(snap.State),
	})
}

// Archive runs one archive pass now.
// POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}
	res, err := h.maint.Archive(r.Context(), h.archiver, h.retention)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAudit pages through the audit log, newest first.
// GET /api/admin/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
