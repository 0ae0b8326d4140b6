package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// maybeSnapshot starts a background snapshot once SnapshotEvery commits
// have accumulated. At most one runs at a time.
func (s *SettlementService) maybeSnapshot(ctx context.Context) {
	if s.snapshots == nil || s.cfg.SnapshotEvery == 0 {
		return
	}
	s.mu.Lock()
	s.sinceSnapshot++
	if s.sinceSnapshot < s.cfg.SnapshotEvery || s.snapshotting {
		s.mu.Unlock()
		return
	}
	s.snapshotting = true
	s.mu.Unlock()

	s.snapshotWG.Add(1)
	go func() {
		defer s.snapshotWG.Done()
		if _, err := s.TakeSnapshot(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "settlement_service: periodic snapshot failed",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// TakeSnapshot captures the engine state and saves it to cold storage.
func (s *SettlementService) TakeSnapshot(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	s.snapshotting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.snapshotting = false
		s.mu.Unlock()
	}()

	if s.snapshots == nil {
		return domain.Snapshot{}, fmt.Errorf("settlement_service: snapshot: no snapshot store configured")
	}
	snap, err := s.engine.Snapshot()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("settlement_service: snapshot: %w", err)
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("settlement_service: snapshot seq %d: %w", snap.Seq, err)
	}

	s.mu.Lock()
	s.sinceSnapshot = 0
	s.mu.Unlock()
	s.metrics.Snapshots.Add(1)

	s.auditLog(ctx, "snapshot", map[string]any{
		"seq":   snap.Seq,
		"hash":  snap.Hash.Hex(),
		"bytes": len(snap.State),
	})
	s.logger.InfoContext(ctx, "settlement_service: snapshot saved",
		slog.Uint64("seq", snap.Seq),
		slog.Int("bytes", len(snap.State)),
	)
	return snap, nil
}

// Wait blocks until any background snapshot has finished.
func (s *SettlementService) Wait() {
	s.snapshotWG.Wait()
}

// ArchiveResult reports how many records one archive run copied.
type ArchiveResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Entries int64     `json:"entries"`
	Events  int64     `json:"events"`
}

// Archive copies journal entries and events older than retention to cold
// storage.
func (s *SettlementService) Archive(ctx context.Context, archiver domain.Archiver, retention time.Duration) (ArchiveResult, error) {
	res := ArchiveResult{Cutoff: time.Now().UTC().Add(-retention)}

	n, err := archiver.ArchiveJournal(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("settlement_service: archive journal: %w", err)
	}
	res.Entries = n
	s.metrics.Archived.With("kind", "journal").Add(float64(n))

	n, err = archiver.ArchiveEvents(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("settlement_service: archive events: %w", err)
	}
	res.Events = n
	s.metrics.Archived.With("kind", "events").Add(float64(n))

	s.logger.InfoContext(ctx, "settlement_service: archive complete",
		slog.Time("cutoff", res.Cutoff),
		slog.Int64("entries", res.Entries),
		slog.Int64("events", res.Events),
	)
	return res, nil
}

// RunSnapshotLoop snapshots on every tick until ctx is cancelled. Ticks
// with no new commits since the last snapshot are skipped.
func (s *SettlementService) RunSnapshotLoop(ctx context.Context, interval time.Duration) error {
	if s.snapshots == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			seq, _ := s.engine.Head()
			if seq == lastSeq {
				continue
			}
			snap, err := s.TakeSnapshot(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "settlement_service: scheduled snapshot failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			lastSeq = snap.Seq
		}
	}
}

// RunArchiveLoop archives on every tick until ctx is cancelled.
func (s *SettlementService) RunArchiveLoop(ctx context.Context, archiver domain.Archiver, interval, retention time.Duration) error {
	if archiver == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Archive(ctx, archiver, retention); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "settlement_service: scheduled archive failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
