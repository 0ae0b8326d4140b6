// Package engine composes the ledgers, the ticket registry, the market
// manager and the exchange book into one serialized state machine. Every
// mutating call runs under a single lock, is applied all-or-nothing, and is
// appended to the journal before it becomes visible.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/exchange"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/market"
	"github.com/alanyoungcy/easybet/internal/registry"
	"github.com/alanyoungcy/easybet/internal/txn"
)

// AccountAddress derives a well-known system account from a name.
func AccountAddress(name string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("easybet:" + name))[12:])
}

// Config describes the engine's fixed parameters. Changing any of it changes
// the state a journal replays into.
type Config struct {
	ChainID uint64

	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	// FaucetAmount is the one-shot token claim. Nil disables the faucet.
	FaucetAmount *uint256.Int
	// TokenOwner may mint tokens. Zero disables minting.
	TokenOwner common.Address

	TicketName string

	// System accounts. Zero values are derived with AccountAddress.
	ManagerAddress common.Address
	BookAddress    common.Address
	TokenAddress   common.Address
	TicketAddress  common.Address

	// Genesis balances, applied once at construction.
	NativeGenesis map[common.Address]*uint256.Int
	TokenGenesis  map[common.Address]*uint256.Int
}

func (c *Config) fill() {
	if c.TokenName == "" {
		c.TokenName = "Lottery Token"
	}
	if c.TokenSymbol == "" {
		c.TokenSymbol = "LTK"
	}
	if c.TicketName == "" {
		c.TicketName = "EasyBet Ticket"
	}
	for _, a := range []struct {
		addr *common.Address
		name string
	}{
		{&c.ManagerAddress, "manager"},
		{&c.BookAddress, "book"},
		{&c.TokenAddress, "token"},
		{&c.TicketAddress, "ticket"},
	} {
		if *a.addr == (common.Address{}) {
			*a.addr = AccountAddress(a.name)
		}
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal makes every committed call durable in j.
func WithJournal(j domain.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithSealer signs the hash of every committed entry.
func WithSealer(s *crypto.Signer) Option {
	return func(e *Engine) { e.sealer = s }
}

// WithClock replaces the wall clock used to stamp calls.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is the settlement and order-matching state machine.
type Engine struct {
	mu sync.RWMutex

	cfg      Config
	token    *ledger.Ledger
	native   *ledger.Ledger
	registry *registry.Registry
	market   *market.Manager
	book     *exchange.Book

	journal domain.Journal
	sealer  *crypto.Signer
	now     func() time.Time
	logger  *slog.Logger

	seq  uint64
	head common.Hash
}

// New builds an engine and applies the genesis balances.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.fill()
	e := &Engine{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slog.String("component", "engine"))

	// The manager pools stakes and the book escrows listed tickets.
	custody := []common.Address{cfg.ManagerAddress, cfg.BookAddress}
	e.token = ledger.New(ledger.Config{
		Asset:    cfg.TokenSymbol,
		Name:     cfg.TokenName,
		Decimals: cfg.TokenDecimals,
		ChainID:  cfg.ChainID,
		Address:  cfg.TokenAddress,
		Owner:    cfg.TokenOwner,
		Faucet:   cfg.FaucetAmount,
		Custody:  custody,
	})
	e.native = ledger.New(ledger.Config{
		Asset:    "native",
		Name:     "native",
		Decimals: 18,
		ChainID:  cfg.ChainID,
		Custody:  custody,
	})
	e.registry = registry.New(registry.Config{
		Name:    cfg.TicketName,
		ChainID: cfg.ChainID,
		Address: cfg.TicketAddress,
		Manager: cfg.ManagerAddress,
		Custody: custody,
	})
	e.market = market.NewManager(cfg.ManagerAddress, e.token, e.native, e.registry)
	e.book = exchange.NewBook(cfg.BookAddress, e.token, e.native, e.registry)

	if err := e.applyGenesis(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) applyGenesis() error {
	tx := txn.New(time.Time{})
	for _, g := range []struct {
		l     *ledger.Ledger
		alloc map[common.Address]*uint256.Int
	}{{e.native, e.cfg.NativeGenesis}, {e.token, e.cfg.TokenGenesis}} {
		addrs := make([]common.Address, 0, len(g.alloc))
		for a := range g.alloc {
			addrs = append(addrs, a)
		}
		slices.SortFunc(addrs, func(a, b common.Address) int { return a.Cmp(b) })
		for _, a := range addrs {
			if err := g.l.Credit(tx, a, g.alloc[a]); err != nil {
				tx.Rollback()
				return fmt.Errorf("engine: genesis %s for %s: %w", g.l.Asset(), a.Hex(), err)
			}
		}
	}
	tx.Commit()
	return nil
}

// Head returns the sequence and hash of the last committed call.
func (e *Engine) Head() (uint64, common.Hash) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq, e.head
}

// Submit executes one call. The engine assigns Seq and At; any values set by
// the caller are ignored. On error nothing has changed and nothing was
// journalled.
func (e *Engine) Submit(ctx context.Context, call domain.Call) (domain.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	call.Seq = e.seq + 1
	call.At = e.now().UTC().Truncate(time.Microsecond)
	if call.Value == nil {
		call.Value = new(uint256.Int)
	}

	rcpt, err := e.apply(ctx, call, true)
	if err != nil {
		e.logger.DebugContext(ctx, "engine: call rejected",
			slog.String("method", string(call.Method)),
			slog.String("caller", call.Caller.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Receipt{}, err
	}
	return rcpt, nil
}

// apply runs call against a fresh transaction. When persist is set the
// entry is appended to the journal before the transaction commits; a
// journal failure rolls the call back.
func (e *Engine) apply(ctx context.Context, call domain.Call, persist bool) (domain.Receipt, error) {
	h, ok := handlers[call.Method]
	if !ok {
		return domain.Receipt{}, domain.ErrUnknownMethod
	}

	tx := txn.New(call.At)
	result, err := h(e, tx, &call)
	if err != nil {
		tx.Rollback()
		return domain.Receipt{}, err
	}

	entry, err := e.seal(call, tx.Events())
	if err != nil {
		tx.Rollback()
		return domain.Receipt{}, err
	}

	if persist && e.journal != nil {
		if err := e.journal.Append(ctx, entry); err != nil {
			tx.Rollback()
			return domain.Receipt{}, fmt.Errorf("engine: journal append seq %d: %w: %w", call.Seq, domain.ErrJournalWrite, err)
		}
	}

	tx.Commit()
	e.seq = call.Seq
	e.head = entry.Hash
	return domain.Receipt{JournalEntry: entry, Result: result}, nil
}

// seal positions the events and links the entry into the hash chain:
//
//	hash = keccak256(prevHash || json(call) || json(events))
func (e *Engine) seal(call domain.Call, events []domain.Event) (domain.JournalEntry, error) {
	records := make([]domain.EventRecord, len(events))
	for i, ev := range events {
		records[i] = domain.EventRecord{Seq: call.Seq, Index: i, Kind: ev.Kind(), At: call.At, Data: ev}
	}
	hash, err := EntryHash(e.head, call, records)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	entry := domain.JournalEntry{Call: call, Events: records, PrevHash: e.head, Hash: hash}
	if e.sealer != nil {
		sig, err := e.sealer.SignDigest(hash[:])
		if err != nil {
			return domain.JournalEntry{}, fmt.Errorf("engine: seal seq %d: %w", call.Seq, err)
		}
		entry.Signature = sig
	}
	return entry, nil
}

// EntryHash computes the chain hash of a journal entry.
func EntryHash(prev common.Hash, call domain.Call, events []domain.EventRecord) (common.Hash, error) {
	callJSON, err := json.Marshal(call)
	if err != nil {
		return common.Hash{}, fmt.Errorf("engine: encode call: %w", err)
	}
	if events == nil {
		events = []domain.EventRecord{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return common.Hash{}, fmt.Errorf("engine: encode events: %w", err)
	}
	return common.BytesToHash(ethcrypto.Keccak256(prev[:], callJSON, eventsJSON)), nil
}

// Replay re-executes journal entries on top of the current state. Entries
// must continue the sequence and the hash chain exactly; a recomputed hash
// that differs from the recorded one stops the replay with ErrHashMismatch.
func (e *Engine) Replay(ctx context.Context, entries []domain.JournalEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Call.Seq != e.seq+1 {
			return fmt.Errorf("engine: replay: expected seq %d, got %d: %w", e.seq+1, entry.Call.Seq, domain.ErrJournalGap)
		}
		if entry.PrevHash != e.head {
			return fmt.Errorf("engine: replay seq %d: prev hash: %w", entry.Call.Seq, domain.ErrHashMismatch)
		}
		if err := e.verifySeal(entry); err != nil {
			return err
		}

		call := entry.Call
		call.At = call.At.UTC()
		if call.Value == nil {
			call.Value = new(uint256.Int)
		}
		if err := e.replayOne(ctx, call, entry.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) replayOne(ctx context.Context, call domain.Call, want common.Hash) error {
	h, ok := handlers[call.Method]
	if !ok {
		return fmt.Errorf("engine: replay seq %d: %w", call.Seq, domain.ErrUnknownMethod)
	}
	tx := txn.New(call.At)
	if _, err := h(e, tx, &call); err != nil {
		tx.Rollback()
		return fmt.Errorf("engine: replay seq %d (%s): %w", call.Seq, call.Method, err)
	}
	entry, err := e.seal(call, tx.Events())
	if err != nil {
		tx.Rollback()
		return err
	}
	if entry.Hash != want {
		tx.Rollback()
		return fmt.Errorf("engine: replay seq %d: recomputed %s, recorded %s: %w",
			call.Seq, entry.Hash.Hex(), want.Hex(), domain.ErrHashMismatch)
	}
	tx.Commit()
	e.seq = call.Seq
	e.head = entry.Hash
	e.logger.DebugContext(ctx, "engine: replayed", slog.Uint64("seq", call.Seq))
	return nil
}

// verifySeal checks an entry's signature against the configured sealer.
// Unsigned entries are accepted.
func (e *Engine) verifySeal(entry domain.JournalEntry) error {
	if e.sealer == nil || len(entry.Signature) == 0 {
		return nil
	}
	signer, err := crypto.Recover(entry.Hash[:], entry.Signature)
	if err != nil || signer != e.sealer.Address() {
		return fmt.Errorf("engine: replay seq %d: seal: %w", entry.Call.Seq, errors.Join(domain.ErrHashMismatch, err))
	}
	return nil
}
