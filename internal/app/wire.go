package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/easybet/internal/blob/s3"
	"github.com/alanyoungcy/easybet/internal/cache/memory"
	"github.com/alanyoungcy/easybet/internal/cache/redis"
	"github.com/alanyoungcy/easybet/internal/config"
	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/engine"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/notify"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/service"
	"github.com/alanyoungcy/easybet/internal/store/postgres"
	"github.com/alanyoungcy/easybet/internal/store/sqlite"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Journal    domain.Journal
	EventStore domain.EventStore
	AuditStore domain.AuditStore

	// Caches and coordination
	RateLimiter domain.RateLimiter
	ReplayGuard domain.ReplayGuard
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Snapshots  domain.SnapshotStore
	Archiver   domain.Archiver

	// Pingers feeds the readiness check, keyed by backend name.
	Pingers map[string]handler.Pinger

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	Engine  *engine.Engine
	Service *service.SettlementService
}

// needsPostgres returns true for modes that keep the journal in PostgreSQL.
func needsPostgres(mode string) bool {
	switch mode {
	case "full", "verify", "archive":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "full", "verify", "archive":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that share the bus, limiter and writer
// lock with other instances.
func needsRedis(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- Journal, event index and audit log ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		journal := postgres.NewJournalStore(pool)
		deps.Journal = journal
		deps.EventStore = journal
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient
	} else {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Journal = store
		deps.EventStore = store
		deps.AuditStore = store
		deps.Pingers["sqlite"] = store
	}

	// --- Bus, limiter and lock ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.ReplayGuard = redis.NewReplayGuard(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
		deps.ReplayGuard = memory.NewReplayGuard()
		deps.SignalBus = memory.NewBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- S3 snapshots and archive ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Snapshots = s3blob.NewSnapshotStore(deps.BlobWriter, deps.BlobReader)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.BlobReader,
			deps.Journal,
			deps.EventStore,
			deps.AuditStore,
		)
		deps.Pingers["s3"] = s3Pinger{s3Client}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	if cfg.Mode == "verify" {
		deps.Metrics = metrics.NopMetrics()
	} else {
		deps.Metrics = metrics.PrometheusMetrics("easybet")
	}

	// --- Engine and settlement service ---
	eng, err := buildEngine(cfg, deps.Journal, logger)
	if err != nil {
		return fail("wire: engine: %w", err)
	}
	deps.Engine = eng

	largeClaim, err := config.Amount(cfg.Notify.LargeClaim)
	if err != nil {
		return fail("wire: notify: %w", err)
	}
	svcCfg := service.Config{
		CallRateLimit: cfg.Server.CallRateLimit,
		RateWindow:    cfg.Server.RateWindow.Duration,
		LargeClaim:    largeClaim,
	}
	if deps.Snapshots != nil && cfg.Snapshot.EveryCalls > 0 {
		svcCfg.SnapshotEvery = uint64(cfg.Snapshot.EveryCalls)
	}
	deps.Service = service.NewSettlementService(
		eng,
		deps.SignalBus,
		deps.RateLimiter,
		deps.Snapshots,
		deps.AuditStore,
		deps.Notifier,
		deps.Metrics,
		svcCfg,
		logger,
	)
	closers = append(closers, deps.Service.Wait)

	return deps, cleanup, nil
}

// buildEngine translates the token, genesis and operator sections into an
// engine.Config and attaches the journal.
func buildEngine(cfg *config.Config, journal domain.Journal, logger *slog.Logger) (*engine.Engine, error) {
	faucet, err := config.Amount(cfg.Token.Faucet)
	if err != nil {
		return nil, err
	}
	owner, err := config.Address(cfg.Token.Owner)
	if err != nil {
		return nil, err
	}
	native, err := config.Balances(cfg.Genesis.Native)
	if err != nil {
		return nil, err
	}
	token, err := config.Balances(cfg.Genesis.Token)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithJournal(journal),
		engine.WithLogger(logger),
	}
	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	}
	if keyCfg.Configured() {
		sealer, err := crypto.LoadSigner(keyCfg)
		if err != nil {
			return nil, fmt.Errorf("operator key: %w", err)
		}
		logger.Info("app: journal entries will be sealed", slog.String("operator", sealer.Address().Hex()))
		opts = append(opts, engine.WithSealer(sealer))
	}

	return engine.New(engine.Config{
		ChainID:       cfg.Chain.ChainID,
		TokenName:     cfg.Token.Name,
		TokenSymbol:   cfg.Token.Symbol,
		TokenDecimals: cfg.Token.Decimals,
		FaucetAmount:  faucet,
		TokenOwner:    owner,
		NativeGenesis: native,
		TokenGenesis:  token,
	}, opts...)
}

// s3Pinger adapts the S3 bucket health check to handler.Pinger.
type s3Pinger struct{ c *s3blob.Client }

func (p s3Pinger) Ping(ctx context.Context) error { return p.c.Health(ctx) }
