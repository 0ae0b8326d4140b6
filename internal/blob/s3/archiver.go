package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var _ domain.Archiver = (*Archiver)(nil)

// Archiver copies journal entries and indexed events older than a cutoff to
// S3 as JSONL. Objects are keyed by the sequence range they cover, so a
// range that is already archived is skipped rather than written twice.
// Nothing is deleted from the primary store.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	journal domain.Journal
	events  domain.EventStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver that copies old rows from the stores to S3.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	journal domain.Journal,
	events domain.EventStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{writer: writer, reader: reader, journal: journal, events: events, audit: audit}
}

// ArchiveJournal archives entries committed before the cutoff and returns
// how many were written.
func (a *Archiver) ArchiveJournal(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.journal.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	from, to := entries[0].Call.Seq, entries[len(entries)-1].Call.Seq
	return upload(ctx, a, "journal", from, to, before, entries)
}

// ArchiveEvents archives events emitted before the cutoff.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListEventsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	from, to := events[0].Seq, events[len(events)-1].Seq
	return upload(ctx, a, "events", from, to, before, events)
}

func upload[T any](ctx context.Context, a *Archiver, kind string, from, to uint64, before time.Time, records []T) (int64, error) {
	path := archivePath(kind, from, to)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if exists {
			return 0, nil
		}
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"from":   from,
			"to":     to,
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath builds the key for an archived sequence range, zero padded so
// keys sort in sequence order:
//
//	archive/journal/00000000000000000001-00000000000000000420.jsonl
func archivePath(kind string, from, to uint64) string {
	return fmt.Sprintf("archive/%s/%020d-%020d.jsonl", kind, from, to)
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
