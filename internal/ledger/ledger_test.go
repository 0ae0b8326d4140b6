package ledger_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/txn"
)

var (
	owner = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x000000000000000000000000000000000000ca01")

	t0 = time.Unix(1_700_000_000, 0).UTC()
)

func newLedger() *ledger.Ledger {
	return ledger.New(ledger.Config{
		Asset:    "LTK",
		Name:     "Lottery Token",
		Decimals: 18,
		ChainID:  1337,
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Owner:    owner,
		Faucet:   uint256.NewInt(1000),
	})
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestClaimOncePerAccount(t *testing.T) {
	l := newLedger()

	tx := txn.New(t0)
	require.NoError(t, l.Claim(tx, alice))
	tx.Commit()
	assert.Equal(t, u(1000), l.BalanceOf(alice))
	assert.Equal(t, u(1000), l.TotalSupply())
	assert.True(t, l.HasClaimed(alice))

	kinds := []domain.EventKind{}
	for _, e := range tx.Events() {
		kinds = append(kinds, e.Kind())
	}
	assert.Equal(t, []domain.EventKind{domain.EventTokenTransfer, domain.EventFaucetClaimed}, kinds)

	err := l.Claim(txn.New(t0), alice)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, u(1000), l.BalanceOf(alice))
}

func TestFaucetDisabled(t *testing.T) {
	l := ledger.New(ledger.Config{Asset: "native"})
	assert.ErrorIs(t, l.Claim(txn.New(t0), alice), domain.ErrInvalidAmount)
	assert.True(t, l.FaucetAmount().IsZero())
}

func TestTransfer(t *testing.T) {
	l := newLedger()
	require.NoError(t, l.Credit(txn.New(t0), alice, u(100)))

	require.NoError(t, l.Transfer(txn.New(t0), alice, bob, u(40)))
	assert.Equal(t, u(60), l.BalanceOf(alice))
	assert.Equal(t, u(40), l.BalanceOf(bob))

	assert.ErrorIs(t, l.Transfer(txn.New(t0), alice, bob, u(61)), domain.ErrInsufficientBalance)
	assert.ErrorIs(t, l.Transfer(txn.New(t0), alice, common.Address{}, u(1)), domain.ErrInvalidRecipient)

	// Self transfer keeps the balance.
	require.NoError(t, l.Transfer(txn.New(t0), alice, alice, u(60)))
	assert.Equal(t, u(60), l.BalanceOf(alice))
	assert.Equal(t, u(100), l.TotalSupply())
}

func TestApproveAndTransferFrom(t *testing.T) {
	l := newLedger()
	require.NoError(t, l.Credit(txn.New(t0), alice, u(100)))
	require.NoError(t, l.Approve(txn.New(t0), alice, bob, u(50)))
	assert.Equal(t, u(50), l.Allowance(alice, bob))

	err := l.TransferFrom(txn.New(t0), bob, alice, carol, u(51))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	require.NoError(t, l.TransferFrom(txn.New(t0), bob, alice, carol, u(30)))
	assert.Equal(t, u(20), l.Allowance(alice, bob))
	assert.Equal(t, u(70), l.BalanceOf(alice))
	assert.Equal(t, u(30), l.BalanceOf(carol))

	// Allowance above balance fails on balance.
	require.NoError(t, l.Approve(txn.New(t0), alice, bob, u(500)))
	err = l.TransferFrom(txn.New(t0), bob, alice, carol, u(71))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, u(500), l.Allowance(alice, bob))
}

func TestMintOwnerOnly(t *testing.T) {
	l := newLedger()
	assert.ErrorIs(t, l.Mint(txn.New(t0), alice, alice, u(5)), domain.ErrNotMinter)
	require.NoError(t, l.Mint(txn.New(t0), owner, alice, u(5)))
	assert.Equal(t, u(5), l.BalanceOf(alice))

	noOwner := ledger.New(ledger.Config{Asset: "native"})
	assert.ErrorIs(t, noOwner.Mint(txn.New(t0), common.Address{}, alice, u(5)), domain.ErrNotMinter)
}

func TestCreditOverflow(t *testing.T) {
	l := newLedger()
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, l.Credit(txn.New(t0), alice, max))
	assert.ErrorIs(t, l.Credit(txn.New(t0), bob, u(1)), domain.ErrInvalidAmount)
	assert.True(t, l.BalanceOf(bob).IsZero())
}

func TestRollbackRestoresEverything(t *testing.T) {
	l := newLedger()
	require.NoError(t, l.Credit(txn.New(t0), alice, u(100)))
	require.NoError(t, l.Approve(txn.New(t0), alice, bob, u(10)))
	before := l.Export()

	tx := txn.New(t0)
	require.NoError(t, l.Claim(tx, carol))
	require.NoError(t, l.TransferFrom(tx, bob, alice, carol, u(10)))
	require.NoError(t, l.Transfer(tx, carol, bob, u(500)))
	tx.Rollback()

	assert.Equal(t, before, l.Export())
	assert.False(t, l.HasClaimed(carol))
	assert.Empty(t, tx.Events())
}

func TestPermit(t *testing.T) {
	s, err := crypto.NewSigner("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	l := newLedger()
	deadline := uint64(t0.Unix()) + 60

	p, err := s.SignTokenPermit(l.Domain(), bob, u(25), l.Nonce(s.Address()), deadline)
	require.NoError(t, err)

	require.NoError(t, l.Permit(txn.New(t0), p))
	assert.Equal(t, u(25), l.Allowance(s.Address(), bob))
	assert.Equal(t, uint64(1), l.Nonce(s.Address()))

	// Replaying the same permit fails because the nonce moved.
	assert.ErrorIs(t, l.Permit(txn.New(t0), p), domain.ErrInvalidSignature)
}

func TestPermitRejections(t *testing.T) {
	s, err := crypto.NewSigner("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	l := newLedger()
	deadline := uint64(t0.Unix())

	p, err := s.SignTokenPermit(l.Domain(), bob, u(25), 0, deadline)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Permit(txn.New(t0.Add(time.Second)), p), domain.ErrPermitExpired)

	forged := p
	forged.Owner = alice
	assert.ErrorIs(t, l.Permit(txn.New(t0), forged), domain.ErrInvalidSignature)

	bumped := p
	bumped.Value = u(26)
	assert.ErrorIs(t, l.Permit(txn.New(t0), bumped), domain.ErrInvalidSignature)

	short := p
	short.Signature = short.Signature[:10]
	assert.ErrorIs(t, l.Permit(txn.New(t0), short), domain.ErrInvalidSignature)

	// Deadline equal to the call time is still valid.
	tx := txn.New(t0)
	require.NoError(t, l.Permit(tx, p))
	tx.Rollback()
	assert.Equal(t, uint64(0), l.Nonce(s.Address()))
	assert.True(t, l.Allowance(s.Address(), bob).IsZero())
}

func TestExportImport(t *testing.T) {
	l := newLedger()
	require.NoError(t, l.Claim(txn.New(t0), alice))
	require.NoError(t, l.Approve(txn.New(t0), alice, bob, u(3)))

	restored := newLedger()
	restored.Import(l.Export())
	assert.Equal(t, l.Export(), restored.Export())
	assert.True(t, restored.HasClaimed(alice))
	assert.Equal(t, u(3), restored.Allowance(alice, bob))
}

func TestCustodyAccountsRefuseDirectTransfers(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	l := ledger.New(ledger.Config{Asset: "LTK", Faucet: u(1000), Custody: []common.Address{pool}})
	require.NoError(t, l.Claim(txn.New(t0), alice))

	assert.ErrorIs(t, l.Transfer(txn.New(t0), alice, pool, u(10)), domain.ErrInvalidRecipient)

	require.NoError(t, l.Approve(txn.New(t0), alice, bob, u(50)))
	assert.ErrorIs(t, l.TransferFrom(txn.New(t0), bob, alice, pool, u(10)), domain.ErrInvalidRecipient)

	// The custody account pulls its own funds in.
	require.NoError(t, l.Approve(txn.New(t0), alice, pool, u(50)))
	require.NoError(t, l.TransferFrom(txn.New(t0), pool, alice, pool, u(20)))
	require.NoError(t, l.Deposit(txn.New(t0), pool, alice, u(5)))
	assert.Equal(t, u(25), l.BalanceOf(pool))
	assert.ErrorIs(t, l.Deposit(txn.New(t0), pool, bob, u(1)), domain.ErrInsufficientBalance)

	// Paying out of custody is unrestricted.
	require.NoError(t, l.Transfer(txn.New(t0), pool, carol, u(25)))
	assert.Equal(t, u(25), l.BalanceOf(carol))
	assert.Equal(t, u(975), l.BalanceOf(alice))
}
