package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/cache/memory"
	"github.com/alanyoungcy/easybet/internal/config"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/service"
	"github.com/alanyoungcy/easybet/internal/store/sqlite"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func standaloneConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = "standalone"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "easybet.db")
	cfg.Genesis.Native = map[string]string{alice.Hex(): "5000"}
	cfg.Genesis.Token = map[string]string{bob.Hex(): "700"}
	return &cfg
}

func TestBuildEngineAppliesConfig(t *testing.T) {
	cfg := standaloneConfig(t)
	cfg.Token.Faucet = "25"

	eng, err := buildEngine(cfg, nil, quietLogger())
	require.NoError(t, err)

	tok := eng.TokenInfo()
	assert.Equal(t, "Lottery Token", tok.Name)
	assert.Equal(t, "LTK", tok.Symbol)
	assert.Equal(t, uint256.NewInt(25), tok.Faucet)
	assert.Equal(t, uint256.NewInt(700), eng.TokenBalanceOf(bob))
	assert.Equal(t, uint256.NewInt(5000), eng.NativeBalanceOf(alice))

	seq, _ := eng.Head()
	assert.Zero(t, seq, "genesis is not journalled")
}

func TestBuildEngineRejectsBadGenesis(t *testing.T) {
	cfg := standaloneConfig(t)
	cfg.Genesis.Token = map[string]string{"not-an-address": "1"}

	_, err := buildEngine(cfg, nil, quietLogger())
	require.Error(t, err)
}

func TestWireStandalone(t *testing.T) {
	cfg := standaloneConfig(t)

	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &sqlite.Store{}, deps.Journal)
	assert.IsType(t, &memory.Bus{}, deps.SignalBus)
	assert.Nil(t, deps.Snapshots)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.LockManager)
	assert.Contains(t, deps.Pingers, "sqlite")

	_, err = deps.Service.Call(context.Background(), alice, nil, domain.MethodTokenClaim, nil)
	require.NoError(t, err)

	last, err := deps.Journal.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

// verifyDeps builds a fresh engine over an existing store, the way a restart
// would.
func verifyDeps(t *testing.T, cfg *config.Config, st *sqlite.Store) *Dependencies {
	t.Helper()
	eng, err := buildEngine(cfg, st, quietLogger())
	require.NoError(t, err)
	svc := service.NewSettlementService(eng, memory.NewBus(0), nil, nil, st, nil, metrics.NopMetrics(), service.Config{}, quietLogger())
	return &Dependencies{
		Journal:    st,
		EventStore: st,
		AuditStore: st,
		Engine:     eng,
		Service:    svc,
	}
}

func TestVerifyModeReplaysJournal(t *testing.T) {
	ctx := context.Background()
	cfg := standaloneConfig(t)

	st, err := sqlite.Open(cfg.SQLite.Path)
	require.NoError(t, err)
	defer st.Close()

	first := verifyDeps(t, cfg, st)
	for _, who := range []common.Address{alice, bob} {
		_, err := first.Service.Call(ctx, who, nil, domain.MethodTokenClaim, nil)
		require.NoError(t, err)
	}
	_, err = first.Service.Call(ctx, bob, nil, domain.MethodTokenTransfer, domain.TokenTransferParams{
		To: alice, Amount: uint256.NewInt(100),
	})
	require.NoError(t, err)
	wantSeq, wantHash := first.Engine.Head()

	second := verifyDeps(t, cfg, st)
	require.NoError(t, New(cfg, quietLogger()).VerifyMode(ctx, second))

	seq, hash := second.Engine.Head()
	assert.Equal(t, wantSeq, seq)
	assert.Equal(t, wantHash, hash)
	assert.Equal(t, first.Engine.TokenBalanceOf(alice), second.Engine.TokenBalanceOf(alice))
	assert.Equal(t, first.Engine.TokenBalanceOf(bob), second.Engine.TokenBalanceOf(bob))
}

func TestArchiveModeNeedsArchiver(t *testing.T) {
	cfg := standaloneConfig(t)
	err := New(cfg, quietLogger()).ArchiveMode(context.Background(), &Dependencies{})
	require.Error(t, err)
}
