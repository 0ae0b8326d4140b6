package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// replayBatch is the number of journal entries read per page.
const replayBatch = 500

// RecoveryReport summarizes a startup recovery.
type RecoveryReport struct {
	SnapshotSeq uint64 `json:"snapshot_seq"`
	Replayed    int    `json:"replayed"`
	Head        uint64 `json:"head"`
	HeadHash    string `json:"head_hash"`
}

// Recover rebuilds engine state from the newest snapshot, if any, followed
// by every journal entry after it. A broken hash chain stops recovery.
func (s *SettlementService) Recover(ctx context.Context, journal domain.Journal) (RecoveryReport, error) {
	var rep RecoveryReport

	if s.snapshots != nil {
		snap, err := s.snapshots.LoadLatest(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.logger.InfoContext(ctx, "settlement_service: no snapshot, replaying from genesis")
		case err != nil:
			return rep, fmt.Errorf("settlement_service: load snapshot: %w", err)
		default:
			if err := s.engine.Restore(snap); err != nil {
				return rep, fmt.Errorf("settlement_service: restore snapshot seq %d: %w", snap.Seq, err)
			}
			rep.SnapshotSeq = snap.Seq
			s.logger.InfoContext(ctx, "settlement_service: snapshot restored", slog.Uint64("seq", snap.Seq))
		}
	}

	for {
		after, _ := s.engine.Head()
		entries, err := journal.Read(ctx, after, replayBatch)
		if err != nil {
			return rep, fmt.Errorf("settlement_service: read journal after %d: %w", after, err)
		}
		if len(entries) == 0 {
			break
		}
		if err := s.engine.Replay(ctx, entries); err != nil {
			return rep, fmt.Errorf("settlement_service: replay: %w", err)
		}
		rep.Replayed += len(entries)
		if len(entries) < replayBatch {
			break
		}
	}

	seq, hash := s.engine.Head()
	rep.Head = seq
	rep.HeadHash = hash.Hex()
	s.metrics.JournalSeq.Set(float64(seq))

	s.auditLog(ctx, "replay", map[string]any{
		"snapshot_seq": rep.SnapshotSeq,
		"replayed":     rep.Replayed,
		"head":         rep.Head,
		"head_hash":    rep.HeadHash,
	})
	s.logger.InfoContext(ctx, "settlement_service: recovery complete",
		slog.Uint64("snapshot_seq", rep.SnapshotSeq),
		slog.Int("replayed", rep.Replayed),
		slog.Uint64("head", rep.Head),
	)
	return rep, nil
}
