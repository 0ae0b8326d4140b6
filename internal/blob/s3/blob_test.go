package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart++
	m.mu.Unlock()
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type memJournal struct{ entries []domain.JournalEntry }

func (j *memJournal) Append(context.Context, domain.JournalEntry) error { return nil }
func (j *memJournal) Read(context.Context, uint64, int) ([]domain.JournalEntry, error) {
	return j.entries, nil
}
func (j *memJournal) LastSeq(context.Context) (uint64, error) { return 0, nil }
func (j *memJournal) ListBefore(_ context.Context, before time.Time) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range j.entries {
		if e.Call.At.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memEvents struct{ events []domain.StoredEvent }

func (m *memEvents) ListEvents(context.Context, domain.EventFilter) ([]domain.StoredEvent, error) {
	return m.events, nil
}
func (m *memEvents) ListEventsBefore(context.Context, time.Time) ([]domain.StoredEvent, error) {
	return m.events, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}
func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSnapshotStoreLoadsHighestSeq(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	store := NewSnapshotStore(blobs, blobs)

	_, err := store.LoadLatest(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	for _, seq := range []uint64{9, 120, 11} {
		require.NoError(t, store.Save(ctx, domain.Snapshot{
			Seq:   seq,
			Hash:  common.BigToHash(common.Big1),
			State: json.RawMessage(fmt.Sprintf(`{"seq":%d}`, seq)),
		}))
	}
	assert.Contains(t, blobs.objects, "snapshots/00000000000000000120.json")

	snap, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), snap.Seq)
	assert.JSONEq(t, `{"seq":120}`, string(snap.State))
	assert.Zero(t, blobs.multipart)
}

func TestArchiverWritesRangeOnce(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	blobs := newMemBlobs()
	journal := &memJournal{entries: []domain.JournalEntry{
		{Call: domain.Call{Seq: 1, Method: domain.MethodTokenClaim, At: t0}},
		{Call: domain.Call{Seq: 2, Method: domain.MethodTokenClaim, At: t0.Add(time.Hour)}},
		{Call: domain.Call{Seq: 3, Method: domain.MethodTokenClaim, At: t0.Add(48 * time.Hour)}},
	}}
	events := &memEvents{events: []domain.StoredEvent{
		{Seq: 1, Kind: domain.EventFaucetClaimed, Data: json.RawMessage(`{}`), At: t0},
	}}
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, journal, events, audit)

	n, err := a.ArchiveJournal(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := blobs.objects[archivePath("journal", 1, 2)]
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	var first domain.JournalEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, uint64(1), first.Call.Seq)

	// Same range again is skipped.
	n, err = a.ArchiveJournal(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = a.ArchiveEvents(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []string{"archive.journal", "archive.events"}, audit.events)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}
