package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/easybet/internal/domain"
)

const (
	snapshotPrefix = "snapshots/"
	// multipartThreshold switches snapshot uploads to the multipart manager.
	multipartThreshold = 16 * 1024 * 1024
)

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore keeps engine snapshots at snapshots/<seq>.json.
type SnapshotStore struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewSnapshotStore creates a SnapshotStore on top of the blob writer and reader.
func NewSnapshotStore(writer domain.BlobWriter, reader domain.BlobReader) *SnapshotStore {
	return &SnapshotStore{writer: writer, reader: reader}
}

func snapshotPath(seq uint64) string {
	return fmt.Sprintf("%s%020d.json", snapshotPrefix, seq)
}

// Save uploads snap, through the multipart manager when it is large.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: encode snapshot %d: %w", snap.Seq, err)
	}
	path := snapshotPath(snap.Seq)
	if len(body) >= multipartThreshold {
		err = s.writer.PutMultipart(ctx, path, bytes.NewReader(body), minPartSize)
	} else {
		err = s.writer.Put(ctx, path, bytes.NewReader(body), "application/json")
	}
	if err != nil {
		return fmt.Errorf("s3blob: save snapshot %d: %w", snap.Seq, err)
	}
	return nil
}

// LoadLatest returns the snapshot with the highest sequence, or
// domain.ErrNotFound.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (domain.Snapshot, error) {
	infos, err := s.reader.List(ctx, snapshotPrefix)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: list snapshots: %w", err)
	}
	latest := ""
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") && info.Path > latest {
			latest = info.Path
		}
	}
	if latest == "" {
		return domain.Snapshot{}, fmt.Errorf("s3blob: load snapshot: %w", domain.ErrNotFound)
	}

	body, err := s.reader.Get(ctx, latest)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: load snapshot: %w", err)
	}
	defer body.Close()

	var snap domain.Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", latest, err)
	}
	return snap, nil
}
