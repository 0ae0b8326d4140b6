package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/store"
)

// Append writes the entry and its events in one transaction. A duplicate
// sequence number is reported as domain.ErrJournalGap.
func (s *Store) Append(ctx context.Context, entry domain.JournalEntry) error {
	row, events, err := store.ToRow(entry)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal (seq, method, caller, value, params, at_us, events, prev_hash, hash, signature)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.Seq, row.Method, row.Caller, row.Value, row.Params,
			toMicros(row.At), row.Events, row.PrevHash, row.Hash, row.Signature,
		); err != nil {
			return err
		}
		for _, ev := range events {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (seq, idx, kind, project_id, ticket_id, data, at_us)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ev.Seq, ev.Index, ev.Kind, ev.ProjectID, ev.TicketID, ev.Data, toMicros(ev.At),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("sqlite: append entry %d: %w", row.Seq, domain.ErrJournalGap)
		}
		return fmt.Errorf("sqlite: append entry %d: %w", row.Seq, err)
	}
	return nil
}

const journalCols = `seq, method, caller, value, params, at_us, events, prev_hash, hash, signature`

func scanEntries(rows *sql.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()
	var out []domain.JournalEntry
	for rows.Next() {
		var (
			r  store.EntryRow
			at int64
		)
		if err := rows.Scan(&r.Seq, &r.Method, &r.Caller, &r.Value, &r.Params,
			&at, &r.Events, &r.PrevHash, &r.Hash, &r.Signature); err != nil {
			return nil, err
		}
		r.At = fromMicros(at)
		e, err := store.FromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Read returns up to limit entries after afterSeq. A non-positive limit
// reads to the end.
func (s *Store) Read(ctx context.Context, afterSeq uint64, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+journalCols+` FROM journal WHERE seq > ? ORDER BY seq LIMIT ?`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read journal after %d: %w", afterSeq, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan journal: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest committed sequence, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM journal`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("sqlite: last journal seq: %w", err)
	}
	return uint64(seq), nil
}

// ListBefore returns every entry committed before the given time.
func (s *Store) ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+journalCols+` FROM journal WHERE at_us < ? ORDER BY seq`, toMicros(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list journal before: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan journal: %w", err)
	}
	return entries, nil
}

const eventCols = `seq, idx, kind, project_id, ticket_id, data, at_us`

func scanEvents(rows *sql.Rows) ([]domain.StoredEvent, error) {
	defer rows.Close()
	var out []domain.StoredEvent
	for rows.Next() {
		var (
			r        store.EventRow
			at       int64
			pid, tid sql.NullInt64
		)
		if err := rows.Scan(&r.Seq, &r.Index, &r.Kind, &pid, &tid, &r.Data, &at); err != nil {
			return nil, err
		}
		if pid.Valid {
			r.ProjectID = &pid.Int64
		}
		if tid.Valid {
			r.TicketID = &tid.Int64
		}
		r.At = fromMicros(at)
		out = append(out, store.FromEventRow(r))
	}
	return out, rows.Err()
}

// ListEvents returns indexed events matching f, newest first.
func (s *Store) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.StoredEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.ProjectID != nil {
		conds = append(conds, "project_id = ?")
		args = append(args, int64(*f.ProjectID))
	}
	if f.TicketID != nil {
		conds = append(conds, "ticket_id = ?")
		args = append(args, int64(*f.TicketID))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Since != nil {
		conds = append(conds, "at_us >= ?")
		args = append(args, toMicros(*f.Since))
	}
	if f.Until != nil {
		conds = append(conds, "at_us <= ?")
		args = append(args, toMicros(*f.Until))
	}

	query := `SELECT ` + eventCols + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq DESC, idx DESC"
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan events: %w", err)
	}
	return events, nil
}

// ListEventsBefore returns every event emitted before the given time in
// call order.
func (s *Store) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE at_us < ? ORDER BY seq, idx`, toMicros(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events before: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan events: %w", err)
	}
	return events, nil
}

// paginate appends LIMIT/OFFSET. SQLite needs a LIMIT before any OFFSET.
func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	return query, append(args, limit, max(offset, 0))
}
