package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/server"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// FullMode takes the single-writer lock, recovers the engine and serves the
// API with periodic snapshots and archiving.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	lease, err := a.acquireWriter(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	defer lease.Release()

	if _, err := deps.Service.Recover(ctx, deps.Journal); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.holdWriter(ctx, lease)
	})

	if iv := a.cfg.Snapshot.Interval.Duration; iv > 0 {
		g.Go(func() error {
			return deps.Service.RunSnapshotLoop(ctx, iv)
		})
	}
	if a.cfg.Archive.Enabled && deps.Archiver != nil && a.cfg.Archive.Interval.Duration > 0 {
		g.Go(func() error {
			return deps.Service.RunArchiveLoop(ctx, deps.Archiver, a.cfg.Archive.Interval.Duration, a.retention())
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return ignoreCanceled(g.Wait())
}

// StandaloneMode runs one process on SQLite with the in-process bus.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting standalone mode",
		slog.String("sqlite", a.cfg.SQLite.Path),
	)

	if _, err := deps.Service.Recover(ctx, deps.Journal); err != nil {
		return fmt.Errorf("standalone mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}
	return ignoreCanceled(g.Wait())
}

// VerifyMode replays the journal on top of the newest snapshot, checking
// sequence continuity and the hash chain, then exits.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting verify mode")

	rep, err := deps.Service.Recover(ctx, deps.Journal)
	if err != nil {
		return fmt.Errorf("verify mode: %w", err)
	}
	last, err := deps.Journal.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("verify mode: %w", err)
	}
	if last != rep.Head {
		return fmt.Errorf("verify mode: journal ends at %d but replay stopped at %d: %w", last, rep.Head, domain.ErrJournalGap)
	}

	eng := deps.Engine
	tok := eng.TokenInfo()
	a.logger.InfoContext(ctx, "app: journal verified",
		slog.Uint64("snapshot_seq", rep.SnapshotSeq),
		slog.Int("replayed", rep.Replayed),
		slog.Uint64("head", rep.Head),
		slog.String("head_hash", rep.HeadHash),
		slog.Uint64("projects", eng.ProjectCount()),
		slog.Uint64("tickets", eng.TicketSupply()),
		slog.String("token_supply", tok.TotalSupply.Dec()),
		slog.String("native_supply", eng.NativeSupply().Dec()),
	)
	return nil
}

// ArchiveMode copies old journal data to S3 and writes a fresh snapshot.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting archive mode")

	if deps.Archiver == nil {
		return errors.New("archive mode: no archiver configured")
	}
	if _, err := deps.Service.Recover(ctx, deps.Journal); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	res, err := deps.Service.Archive(ctx, deps.Archiver, a.retention())
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	snap, err := deps.Service.TakeSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "app: archive complete",
		slog.Time("cutoff", res.Cutoff),
		slog.Int64("entries", res.Entries),
		slog.Int64("events", res.Events),
		slog.Uint64("snapshot_seq", snap.Seq),
	)
	return nil
}

// acquireWriter takes the engine writer lock so that a second instance
// cannot append to the same journal.
func (a *App) acquireWriter(ctx context.Context, deps *Dependencies) (domain.Lease, error) {
	key, ttl := a.cfg.Lock.Key, a.cfg.Lock.TTL.Duration
	lease, err := deps.LockManager.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if err := deps.AuditStore.Log(ctx, "lock_acquired", map[string]any{
		"key": key,
		"ttl": ttl.String(),
	}); err != nil {
		a.logger.WarnContext(ctx, "app: audit lock failed", slog.String("error", err.Error()))
	}
	a.logger.InfoContext(ctx, "app: writer lock acquired", slog.String("key", key))
	return lease, nil
}

// holdWriter extends the lease at a third of its TTL. Losing the lock ends
// the mode so that two writers never append at once.
func (a *App) holdWriter(ctx context.Context, lease domain.Lease) error {
	ttl := a.cfg.Lock.TTL.Duration
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lease.Extend(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("writer lock: %w", err)
			}
		}
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub to g. The server is
// shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	eng := deps.Engine

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Head: func() uint64 {
			seq, _ := eng.Head()
			return seq
		},
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(eng, deps.Pingers, a.cfg.Mode, a.logger),
		Calls:  handler.NewCallHandler(deps.Service, eng, a.logger),
		Query:  handler.NewQueryHandler(eng, a.logger),
		Events: handler.NewEventHandler(deps.EventStore, deps.Journal, a.logger),
		Admin:  handler.NewAdminHandler(deps.Service, deps.AuditStore, deps.Archiver, a.retention(), a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequireSignatures: a.cfg.Server.RequireSignatures,
		SignatureMaxSkew:  a.cfg.Server.SignatureMaxSkew.Duration,
		Replay:            deps.ReplayGuard,
		RateLimit:         a.cfg.Server.RateLimit,
		RateWindow:        a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) retention() time.Duration {
	return time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
}

// ignoreCanceled treats a cancelled context as a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
