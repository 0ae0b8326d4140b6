package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// EventHandler serves the persisted event index and the raw journal.
type EventHandler struct {
	events  domain.EventStore
	journal domain.Journal
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler over the event index and journal.
func NewEventHandler(events domain.EventStore, journal domain.Journal, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, journal: journal, logger: logger.With(slog.String("handler", "events"))}
}

// ListEvents filters events by project, ticket, kind and time window,
// newest first.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	f := domain.EventFilter{
		Kind:     domain.EventKind(r.URL.Query().Get("kind")),
		ListOpts: parseListOpts(r),
	}
	var err error
	if f.ProjectID, err = queryUint(r, "project_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.TicketID, err = queryUint(r, "ticket_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.ListEvents(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}
	if events == nil {
		events = []domain.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListJournal returns committed entries after a sequence number.
// GET /api/journal?after=N&limit=M
func (h *EventHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}
	opts := parseListOpts(r)
	entries, err := h.journal.Read(r.Context(), after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read journal failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
