package domain

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Snapshot is the full engine state as of journal sequence Seq.
type Snapshot struct {
	Seq     uint64          `json:"seq"`
	Hash    common.Hash     `json:"hash"`
	TakenAt time.Time       `json:"taken_at"`
	State   json.RawMessage `json:"state"`
}

// SnapshotStore keeps engine snapshots in cold storage.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// LoadLatest returns ErrNotFound when no snapshot exists.
	LoadLatest(ctx context.Context) (Snapshot, error)
}

// Archiver copies old journal data to cold storage.
type Archiver interface {
	ArchiveJournal(ctx context.Context, before time.Time) (int64, error)
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
