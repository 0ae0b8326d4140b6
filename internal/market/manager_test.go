package market_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/market"
	"github.com/alanyoungcy/easybet/internal/registry"
	"github.com/alanyoungcy/easybet/internal/txn"
)

var (
	managerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	custody     = []common.Address{managerAddr}
	creator     = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	alice       = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x000000000000000000000000000000000000ca01")

	t0  = time.Unix(1_700_000_000, 0).UTC()
	end = t0.Add(time.Hour)
)

type fixture struct {
	token  *ledger.Ledger
	native *ledger.Ledger
	reg    *registry.Registry
	m      *market.Manager
}

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Fatal(args ...any)
}

func newFixture(t fataler) *fixture {
	f := &fixture{
		token:  ledger.New(ledger.Config{Asset: "LTK", Name: "Lottery Token", Address: common.HexToAddress("0xaa"), Faucet: uint256.NewInt(1000), Custody: custody}),
		native: ledger.New(ledger.Config{Asset: "native", Custody: custody}),
		reg:    registry.New(registry.Config{Name: "EasyBet Ticket", Address: common.HexToAddress("0xab"), Manager: managerAddr, Custody: custody}),
	}
	f.m = market.NewManager(managerAddr, f.token, f.native, f.reg)
	for _, a := range []common.Address{creator, alice, bob, carol} {
		if err := f.native.Credit(txn.New(t0), a, uint256.NewInt(1_000_000)); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func (f *fixture) create(t *testing.T, useToken bool, seed uint64) uint64 {
	t.Helper()
	id, err := f.m.CreateProject(txn.New(t0), creator, u(seed), market.CreateProjectInput{
		Name: "match", Options: []string{"home", "away", "draw"}, EndTime: end, UseToken: useToken, Seed: u(seed),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) buy(t *testing.T, who common.Address, p, o, amount uint64) uint64 {
	t.Helper()
	id, err := f.m.BuyTicket(txn.New(t0), who, u(amount), p, o, u(amount))
	require.NoError(t, err)
	return id
}

func TestCreateProjectValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreateProject(txn.New(t0), creator, nil, market.CreateProjectInput{Options: []string{"only"}, EndTime: end})
	assert.ErrorIs(t, err, domain.ErrInvalidOptions)

	_, err = f.m.CreateProject(txn.New(t0), creator, nil, market.CreateProjectInput{Options: []string{"a", "b"}, EndTime: t0})
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, err = f.m.CreateProject(txn.New(t0), creator, u(4), market.CreateProjectInput{Options: []string{"a", "b"}, EndTime: end, Seed: u(5)})
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	_, err = f.m.CreateProject(txn.New(t0), creator, nil, market.CreateProjectInput{Options: []string{"a", "b"}, EndTime: end, UseToken: true, Seed: u(5)})
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Equal(t, uint64(0), f.m.ProjectCount())
}

func TestSeedCountsTowardTotalOnly(t *testing.T) {
	f := newFixture(t)
	id, err := f.m.CreateProject(txn.New(t0), creator, u(50), market.CreateProjectInput{
		Name: "seeded", Options: []string{"a", "b"}, EndTime: end, Seed: u(20),
	})
	require.NoError(t, err)

	p, err := f.m.GetProject(id)
	require.NoError(t, err)
	assert.Equal(t, u(20), p.TotalPool)
	assert.Equal(t, u(20), p.Seed)
	assert.True(t, p.OptionPools[0].IsZero())
	assert.True(t, p.OptionPools[1].IsZero())

	// Exactly the seed is debited, not the attached value.
	assert.Equal(t, u(1_000_000-20), f.native.BalanceOf(creator))
	assert.Equal(t, u(20), f.native.BalanceOf(managerAddr))
}

func TestBuyTicketErrorOrder(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)

	cases := []struct {
		name   string
		at     time.Time
		pid    uint64
		option uint64
		value  uint64
		amount uint64
		want   error
	}{
		{"unknown project", t0, 9, 0, 1, 1, domain.ErrProjectNotFound},
		{"expired", end, p, 9, 1, 1, domain.ErrProjectExpired},
		{"bad option", t0, p, 3, 1, 1, domain.ErrInvalidOption},
		{"zero amount", t0, p, 0, 1, 0, domain.ErrInvalidAmount},
		{"underpaid", t0, p, 0, 4, 5, domain.ErrInsufficientPayment},
		{"broke", t0, p, 0, 2_000_000, 2_000_000, domain.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.m.BuyTicket(txn.New(tc.at), alice, u(tc.value), tc.pid, tc.option, u(tc.amount))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	require.NoError(t, f.m.EndProject(txn.New(t0), creator, p, 0))
	_, err := f.m.BuyTicket(txn.New(t0), alice, u(1), p, 0, u(1))
	assert.ErrorIs(t, err, domain.ErrProjectFinished)
}

func TestBuyTicketUpdatesPools(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)

	// Overpayment is not taken.
	id, err := f.m.BuyTicket(txn.New(t0), alice, u(100), p, 1, u(30))
	require.NoError(t, err)
	assert.Equal(t, u(1_000_000-30), f.native.BalanceOf(alice))

	tk, err := f.m.GetTicket(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Ticket{ID: id, ProjectID: p, OptionID: 1, Amount: u(30), Owner: alice}, tk)

	proj, _ := f.m.GetProject(p)
	assert.Equal(t, u(30), proj.TotalPool)
	assert.Equal(t, u(30), proj.OptionPools[1])

	ids, err := f.m.OptionTickets(p, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)
	_, err = f.m.OptionTickets(p, 7)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestTokenPurchaseNeedsAllowance(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, true, 0)
	require.NoError(t, f.token.Claim(txn.New(t0), alice))

	_, err := f.m.BuyTicket(txn.New(t0), alice, nil, p, 0, u(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	require.NoError(t, f.token.Approve(txn.New(t0), alice, managerAddr, u(2000)))
	_, err = f.m.BuyTicket(txn.New(t0), alice, nil, p, 0, u(1500))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.m.BuyTicket(txn.New(t0), alice, nil, p, 0, u(10))
	require.NoError(t, err)
	assert.Equal(t, u(990), f.token.BalanceOf(alice))
	assert.Equal(t, u(10), f.token.BalanceOf(managerAddr))
	assert.Equal(t, u(1990), f.token.Allowance(alice, managerAddr))
}

func TestResolution(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)

	assert.ErrorIs(t, f.m.SetResult(txn.New(end), alice, p, 0), domain.ErrNotCreator)
	assert.ErrorIs(t, f.m.SetResult(txn.New(t0), creator, p, 0), domain.ErrTooEarly)
	assert.ErrorIs(t, f.m.EndProject(txn.New(end), creator, p, 0), domain.ErrTooLate)
	assert.ErrorIs(t, f.m.SetResult(txn.New(end), creator, p, 3), domain.ErrInvalidOption)

	require.NoError(t, f.m.SetResult(txn.New(end), creator, p, 2))
	proj, _ := f.m.GetProject(p)
	assert.True(t, proj.Finished)
	require.NotNil(t, proj.WinningOption)
	assert.Equal(t, uint64(2), *proj.WinningOption)

	// Exactly one resolution ever succeeds.
	assert.ErrorIs(t, f.m.SetResult(txn.New(end), creator, p, 1), domain.ErrAlreadyFinished)
	assert.ErrorIs(t, f.m.EndProject(txn.New(t0), creator, p, 1), domain.ErrAlreadyFinished)
}

func TestProportionalClaims(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)
	a := f.buy(t, alice, p, 0, 10)
	b := f.buy(t, bob, p, 0, 30)
	f.buy(t, carol, p, 1, 60)

	_, _, err := f.m.ClaimPrize(txn.New(t0), alice, p)
	assert.ErrorIs(t, err, domain.ErrProjectNotFinished)

	require.NoError(t, f.m.EndProject(txn.New(t0), creator, p, 0))

	preview, err := f.m.PreviewClaim(p, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{a}, preview.TicketIDs)
	assert.Equal(t, u(25), preview.Payout)

	paid, ids, err := f.m.ClaimPrize(txn.New(t0), alice, p)
	require.NoError(t, err)
	assert.Equal(t, u(25), paid)
	assert.Equal(t, []uint64{a}, ids)

	paid, ids, err = f.m.ClaimPrize(txn.New(t0), bob, p)
	require.NoError(t, err)
	assert.Equal(t, u(75), paid)
	assert.Equal(t, []uint64{b}, ids)

	_, _, err = f.m.ClaimPrize(txn.New(t0), alice, p)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
	_, _, err = f.m.ClaimPrize(txn.New(t0), carol, p)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	assert.True(t, f.native.BalanceOf(managerAddr).IsZero())
	tk, _ := f.m.GetTicket(a)
	assert.True(t, tk.Claimed)
}

func TestClaimFollowsCurrentOwner(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)
	id := f.buy(t, alice, p, 0, 10)
	f.buy(t, bob, p, 1, 10)
	require.NoError(t, f.reg.TransferFrom(txn.New(t0), alice, alice, carol, id))
	require.NoError(t, f.m.EndProject(txn.New(t0), creator, p, 0))

	_, _, err := f.m.ClaimPrize(txn.New(t0), alice, p)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	paid, _, err := f.m.ClaimPrize(txn.New(t0), carol, p)
	require.NoError(t, err)
	assert.Equal(t, u(20), paid)
}

func TestEmptyWinningOption(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)
	f.buy(t, alice, p, 0, 10)
	require.NoError(t, f.m.EndProject(txn.New(t0), creator, p, 2))

	_, _, err := f.m.ClaimPrize(txn.New(t0), alice, p)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestBuyRollback(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 0)
	f.buy(t, alice, p, 0, 10)
	before := f.m.Export()

	tx := txn.New(t0)
	_, err := f.m.BuyTicket(tx, bob, u(5), p, 0, u(5))
	require.NoError(t, err)
	tx.Rollback()

	assert.Equal(t, before, f.m.Export())
	assert.Equal(t, uint64(1), f.reg.NextID())
	ids, _ := f.m.OptionTickets(p, 0)
	assert.Len(t, ids, 1)
	assert.Equal(t, u(1_000_000), f.native.BalanceOf(bob))
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, false, 7)
	f.buy(t, alice, p, 0, 10)
	f.buy(t, bob, p, 1, 20)
	f.buy(t, alice, p, 0, 5)

	g := newFixture(t)
	g.reg.Import(f.reg.Export())
	g.m.Import(f.m.Export())
	assert.Equal(t, f.m.Export(), g.m.Export())

	ids, err := g.m.OptionTickets(p, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, ids)
	assert.Len(t, g.m.UserTickets(alice), 2)
}

// The pool always covers every claim, and once every winner has claimed the
// manager keeps only the truncation remainder.
func TestFundConservation(t *testing.T) {
	users := []common.Address{alice, bob, carol}

	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		options := rapid.IntRange(2, 4).Draw(rt, "options")
		seed := rapid.Uint64Range(0, 1000).Draw(rt, "seed")
		names := make([]string, options)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		p, err := f.m.CreateProject(txn.New(t0), creator, u(seed), market.CreateProjectInput{
			Name: "prop", Options: names, EndTime: end, Seed: u(seed),
		})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		buys := rapid.IntRange(1, 20).Draw(rt, "buys")
		for i := 0; i < buys; i++ {
			who := rapid.SampledFrom(users).Draw(rt, "buyer")
			opt := rapid.Uint64Range(0, uint64(options-1)).Draw(rt, "option")
			amt := rapid.Uint64Range(1, 5000).Draw(rt, "amount")
			if _, err := f.m.BuyTicket(txn.New(t0), who, u(amt), p, opt, u(amt)); err != nil {
				rt.Fatalf("buy: %v", err)
			}
		}

		// Shuffle some ownership on the way.
		moves := rapid.IntRange(0, 10).Draw(rt, "moves")
		for i := 0; i < moves; i++ {
			id := rapid.Uint64Range(0, uint64(buys-1)).Draw(rt, "ticket")
			owner, _ := f.reg.OwnerOf(id)
			to := rapid.SampledFrom(users).Draw(rt, "to")
			if err := f.reg.TransferFrom(txn.New(t0), owner, owner, to, id); err != nil {
				rt.Fatalf("transfer: %v", err)
			}
		}

		win := rapid.Uint64Range(0, uint64(options-1)).Draw(rt, "winner")
		if err := f.m.SetResult(txn.New(end), creator, p, win); err != nil {
			rt.Fatalf("resolve: %v", err)
		}
		proj, _ := f.m.GetProject(p)

		paid := new(uint256.Int)
		winners := uint64(0)
		for _, who := range users {
			amount, ids, err := f.m.ClaimPrize(txn.New(end), who, p)
			if err != nil {
				if !errors.Is(err, domain.ErrNothingToClaim) {
					rt.Fatalf("claim: %v", err)
				}
				continue
			}
			paid.Add(paid, amount)
			winners += uint64(len(ids))

			// A second claim never pays.
			if _, _, err := f.m.ClaimPrize(txn.New(end), who, p); !errors.Is(err, domain.ErrNothingToClaim) {
				rt.Fatalf("second claim: %v", err)
			}
		}

		if paid.Gt(proj.TotalPool) {
			rt.Fatalf("paid %s exceeds pool %s", paid.Dec(), proj.TotalPool.Dec())
		}
		kept := f.native.BalanceOf(managerAddr)
		if !new(uint256.Int).Add(kept, paid).Eq(proj.TotalPool) {
			rt.Fatalf("manager kept %s, paid %s, pool %s", kept.Dec(), paid.Dec(), proj.TotalPool.Dec())
		}
		if !proj.OptionPools[win].IsZero() && !kept.Lt(u(winners)) {
			rt.Fatalf("remainder %s not below winner count %d", kept.Dec(), winners)
		}
	})
}
