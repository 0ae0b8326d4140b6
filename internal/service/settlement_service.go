// Package service sits between the transports and the engine. It applies
// per-account limits, fans committed events out to the signal bus and the
// notifier, and drives snapshots, archiving and startup recovery.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/engine"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/notify"
)

// EventStream is the durable stream every committed event is appended to.
const EventStream = "events"

// EventChannel returns the Pub/Sub channel for an event kind.
func EventChannel(kind domain.EventKind) string {
	return "ev:" + string(kind)
}

// Config tunes the settlement service.
type Config struct {
	// CallRateLimit caps mutating calls per account per RateWindow. Zero
	// disables the limit.
	CallRateLimit int
	RateWindow    time.Duration
	// SnapshotEvery takes a snapshot after that many commits. Zero disables.
	SnapshotEvery uint64
	// LargeClaim is the payout at which a claim alert is sent. Nil disables.
	LargeClaim   *uint256.Int
	NativeSymbol string
}

// SettlementService is the single entry point for mutating calls.
type SettlementService struct {
	engine    *engine.Engine
	bus       domain.SignalBus
	limiter   domain.RateLimiter
	snapshots domain.SnapshotStore
	audit     domain.AuditStore
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config

	mu            sync.Mutex
	sinceSnapshot uint64
	snapshotting  bool
	snapshotWG    sync.WaitGroup
}

// NewSettlementService creates a SettlementService. snapshots, limiter and
// notifier may be nil.
func NewSettlementService(
	eng *engine.Engine,
	bus domain.SignalBus,
	limiter domain.RateLimiter,
	snapshots domain.SnapshotStore,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *SettlementService {
	if m == nil {
		m = metrics.NopMetrics()
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	return &SettlementService{
		engine:    eng,
		bus:       bus,
		limiter:   limiter,
		snapshots: snapshots,
		audit:     audit,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With(slog.String("component", "settlement_service")),
		cfg:       cfg,
	}
}

// Engine returns the underlying engine for read queries.
func (s *SettlementService) Engine() *engine.Engine { return s.engine }

// Submit runs one call through the engine. Bus, notifier and snapshot
// failures after a commit are logged and never fail the call.
func (s *SettlementService) Submit(ctx context.Context, call domain.Call) (domain.Receipt, error) {
	if err := s.checkRate(ctx, call.Caller); err != nil {
		return domain.Receipt{}, err
	}

	start := time.Now()
	rcpt, err := s.engine.Submit(ctx, call)
	s.metrics.CallDuration.With("method", string(call.Method)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Calls.With("method", string(call.Method), "outcome", outcome(err)).Add(1)
		if errors.Is(err, domain.ErrJournalWrite) {
			s.onJournalFailure(ctx, call.Method, err)
		}
		return domain.Receipt{}, err
	}
	s.metrics.Calls.With("method", string(call.Method), "outcome", "ok").Add(1)
	s.metrics.JournalSeq.Set(float64(rcpt.Call.Seq))

	s.logger.DebugContext(ctx, "settlement_service: call committed",
		slog.Uint64("seq", rcpt.Call.Seq),
		slog.String("method", string(call.Method)),
		slog.String("caller", call.Caller.Hex()),
		slog.Int("events", len(rcpt.Events)),
	)

	s.publish(ctx, rcpt.Events)
	s.alert(ctx, rcpt)
	s.maybeSnapshot(ctx)
	return rcpt, nil
}

// Call encodes params and submits them as method.
func (s *SettlementService) Call(ctx context.Context, caller common.Address, value *uint256.Int, method domain.Method, params any) (domain.Receipt, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("settlement_service: encode %s params: %w", method, err)
	}
	return s.Submit(ctx, domain.Call{Method: method, Caller: caller, Value: value, Params: raw})
}

// checkRate fails open when the limiter itself errors.
func (s *SettlementService) checkRate(ctx context.Context, caller common.Address) error {
	if s.limiter == nil || s.cfg.CallRateLimit <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "call:"+caller.Hex(), s.cfg.CallRateLimit, s.cfg.RateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement_service: rate limiter failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		s.metrics.RateLimited.Add(1)
		return fmt.Errorf("settlement_service: %s: %w", caller.Hex(), domain.ErrRateLimited)
	}
	return nil
}

func (s *SettlementService) publish(ctx context.Context, events []domain.EventRecord) {
	if s.bus == nil {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.ErrorContext(ctx, "settlement_service: encode event failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.bus.Publish(ctx, EventChannel(ev.Kind), payload); err != nil {
			s.metrics.PublishFailures.Add(1)
			s.logger.WarnContext(ctx, "settlement_service: publish event failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
			s.metrics.PublishFailures.Add(1)
			s.logger.WarnContext(ctx, "settlement_service: stream append failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.EventsPublished.With("kind", string(ev.Kind)).Add(1)
	}
}

// alert sends operator notifications for resolutions and large claims.
func (s *SettlementService) alert(ctx context.Context, rcpt domain.Receipt) {
	if s.notifier == nil {
		return
	}
	for _, ev := range rcpt.Events {
		fin, ok := ev.Data.(domain.ProjectFinished)
		if !ok {
			continue
		}
		p, err := s.engine.Project(fin.ProjectID)
		if err != nil {
			continue
		}
		winner := fmt.Sprintf("option %d", fin.WinningOption)
		if fin.WinningOption < uint64(len(p.Options)) {
			winner = p.Options[fin.WinningOption]
		}
		symbol, decimals := s.unit(p.UseToken)
		title, msg := notify.ProjectFinished(p.ID, p.Name, winner, p.TotalPool, symbol, decimals)
		s.notify(ctx, notify.EventProjectFinished, title, msg)
	}

	claim, ok := rcpt.Result.(domain.ClaimResult)
	if !ok || s.cfg.LargeClaim == nil || claim.Payout == nil || claim.Payout.Lt(s.cfg.LargeClaim) {
		return
	}
	var params domain.ClaimPrizeParams
	if err := json.Unmarshal(rcpt.Call.Params, &params); err != nil {
		return
	}
	p, err := s.engine.Project(params.ProjectID)
	if err != nil {
		return
	}
	symbol, decimals := s.unit(p.UseToken)
	title, msg := notify.LargeClaim(p.ID, rcpt.Call.Caller.Hex(), claim.Payout, len(claim.TicketIDs), symbol, decimals)
	s.notify(ctx, notify.EventLargeClaim, title, msg)
}

func (s *SettlementService) unit(useToken bool) (string, uint8) {
	if useToken {
		info := s.engine.TokenInfo()
		return info.Symbol, info.Decimals
	}
	return s.cfg.NativeSymbol, 18
}

func (s *SettlementService) onJournalFailure(ctx context.Context, method domain.Method, err error) {
	s.metrics.JournalFailures.Add(1)
	s.logger.ErrorContext(ctx, "settlement_service: journal append failed",
		slog.String("method", string(method)),
		slog.String("error", err.Error()),
	)
	title, msg := notify.JournalFailure(string(method), err)
	s.notify(ctx, notify.EventJournalFailure, title, msg)
}

func (s *SettlementService) notify(ctx context.Context, event, title, msg string) {
	if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// outcome labels a failed call by its settlement kind.
func outcome(err error) string {
	if se, ok := domain.AsSettlementError(err); ok {
		return string(se.Kind)
	}
	if errors.Is(err, domain.ErrJournalWrite) {
		return "journal"
	}
	return "error"
}
