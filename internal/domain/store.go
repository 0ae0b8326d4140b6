package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Journal is the durable, append-only record of committed calls. Append must
// store the entry and its events atomically.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	Read(ctx context.Context, afterSeq uint64, limit int) ([]JournalEntry, error)
	LastSeq(ctx context.Context) (uint64, error)
	ListBefore(ctx context.Context, before time.Time) ([]JournalEntry, error)
}

// EventFilter narrows an event query.
type EventFilter struct {
	ProjectID *uint64
	TicketID  *uint64
	Kind      EventKind
	ListOpts
}

// EventStore queries the events indexed by the journal.
type EventStore interface {
	ListEvents(ctx context.Context, f EventFilter) ([]StoredEvent, error)
	ListEventsBefore(ctx context.Context, before time.Time) ([]StoredEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only operator audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
