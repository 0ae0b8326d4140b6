package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/store"
)

var (
	_ domain.Journal    = (*JournalStore)(nil)
	_ domain.EventStore = (*JournalStore)(nil)
)

// JournalStore implements domain.Journal and domain.EventStore using
// PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

const journalSelectCols = `seq, method, caller, value, params, at, events, prev_hash, hash, signature`

func scanEntryRows(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	for rows.Next() {
		var r store.EntryRow
		if err := rows.Scan(
			&r.Seq, &r.Method, &r.Caller, &r.Value, &r.Params,
			&r.At, &r.Events, &r.PrevHash, &r.Hash, &r.Signature,
		); err != nil {
			return nil, err
		}
		e, err := store.FromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append writes the entry and its events in one transaction. A duplicate
// sequence number is reported as domain.ErrJournalGap.
func (s *JournalStore) Append(ctx context.Context, entry domain.JournalEntry) error {
	row, events, err := store.ToRow(entry)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertEntry = `
			INSERT INTO journal (` + journalSelectCols + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.Exec(ctx, insertEntry,
			row.Seq, row.Method, row.Caller, row.Value, row.Params,
			row.At, row.Events, row.PrevHash, row.Hash, row.Signature,
		); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		const insertEvent = `
			INSERT INTO events (seq, idx, kind, project_id, ticket_id, data, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, ev := range events {
			batch.Queue(insertEvent, ev.Seq, ev.Index, ev.Kind, ev.ProjectID, ev.TicketID, ev.Data, ev.At)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: append entry %d: %w", row.Seq, domain.ErrJournalGap)
		}
		return fmt.Errorf("postgres: append entry %d: %w", row.Seq, err)
	}
	return nil
}

// Read returns up to limit entries after afterSeq in sequence order. A
// non-positive limit reads to the end.
func (s *JournalStore) Read(ctx context.Context, afterSeq uint64, limit int) ([]domain.JournalEntry, error) {
	query := `SELECT ` + journalSelectCols + ` FROM journal WHERE seq > $1 ORDER BY seq`
	args := []any{int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: read journal after %d: %w", afterSeq, err)
	}
	defer rows.Close()

	entries, err := scanEntryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan journal: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest committed sequence, or 0 for an empty journal.
func (s *JournalStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(seq), 0) FROM journal").Scan(&seq); err != nil {
		return 0, fmt.Errorf("postgres: last journal seq: %w", err)
	}
	return uint64(seq), nil
}

// ListBefore returns every entry committed before the given time.
func (s *JournalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+journalSelectCols+` FROM journal WHERE at < $1 ORDER BY seq`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	entries, err := scanEntryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan journal: %w", err)
	}
	return entries, nil
}

const eventSelectCols = `seq, idx, kind, project_id, ticket_id, data, at`

func scanEventRows(rows pgx.Rows) ([]domain.StoredEvent, error) {
	var events []domain.StoredEvent
	for rows.Next() {
		var r store.EventRow
		if err := rows.Scan(&r.Seq, &r.Index, &r.Kind, &r.ProjectID, &r.TicketID, &r.Data, &r.At); err != nil {
			return nil, err
		}
		events = append(events, store.FromEventRow(r))
	}
	return events, rows.Err()
}

// ListEvents returns indexed events matching f, newest first.
func (s *JournalStore) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.StoredEvent, error) {
	var w where
	if f.ProjectID != nil {
		w.add("project_id = $%d", int64(*f.ProjectID))
	}
	if f.TicketID != nil {
		w.add("ticket_id = $%d", int64(*f.TicketID))
	}
	if f.Kind != "" {
		w.add("kind = $%d", string(f.Kind))
	}
	w.window("at", f.Since, f.Until)
	query, args := w.build(`SELECT `+eventSelectCols+` FROM events`, "seq DESC, idx DESC", f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

// ListEventsBefore returns every event emitted before the given time in
// call order.
func (s *JournalStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM events WHERE at < $1 ORDER BY seq, idx`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}
