package exchange_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/exchange"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/registry"
	"github.com/alanyoungcy/easybet/internal/txn"
)

var (
	managerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	bookAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	custody     = []common.Address{managerAddr, bookAddr}
	seller      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	buyer       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	t0 = time.Unix(1_700_000_000, 0).UTC()
)

type fixture struct {
	token  *ledger.Ledger
	native *ledger.Ledger
	reg    *registry.Registry
	book   *exchange.Book
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		token:  ledger.New(ledger.Config{Asset: "LTK", Address: common.HexToAddress("0xaa"), Faucet: uint256.NewInt(1000), Custody: custody}),
		native: ledger.New(ledger.Config{Asset: "native", Custody: custody}),
		reg:    registry.New(registry.Config{Name: "EasyBet Ticket", Address: common.HexToAddress("0xab"), Manager: managerAddr, Custody: custody}),
	}
	f.book = exchange.NewBook(bookAddr, f.token, f.native, f.reg)
	require.NoError(t, f.native.Credit(txn.New(t0), buyer, u(500)))
	return f
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// ticket mints a ticket on (0, 1) to owner and approves the book for it.
func (f *fixture) ticket(t *testing.T, owner common.Address) uint64 {
	t.Helper()
	id, err := f.reg.Mint(txn.New(t0), managerAddr, owner, registry.Tag{ProjectID: 0, OptionID: 1})
	require.NoError(t, err)
	require.NoError(t, f.reg.Approve(txn.New(t0), owner, bookAddr, id))
	return id
}

func (f *fixture) place(t *testing.T, id uint64, price uint64, useToken bool, at time.Time) {
	t.Helper()
	require.NoError(t, f.book.Place(txn.New(at), seller, exchange.PlaceInput{
		TicketID: id, Price: u(price), ProjectID: 0, OptionID: 1, UseToken: useToken,
	}))
}

func TestPlaceErrorOrder(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	unapproved, err := f.reg.Mint(txn.New(t0), managerAddr, seller, registry.Tag{ProjectID: 0, OptionID: 1})
	require.NoError(t, err)

	in := func(ticket uint64, price uint64, option uint64) exchange.PlaceInput {
		return exchange.PlaceInput{TicketID: ticket, Price: u(price), ProjectID: 0, OptionID: option}
	}
	assert.ErrorIs(t, f.book.Place(txn.New(t0), seller, in(id, 0, 1)), domain.ErrInvalidPrice)
	assert.ErrorIs(t, f.book.Place(txn.New(t0), seller, in(99, 5, 1)), domain.ErrTicketNotFound)
	assert.ErrorIs(t, f.book.Place(txn.New(t0), buyer, in(id, 5, 1)), domain.ErrNotOwner)
	assert.ErrorIs(t, f.book.Place(txn.New(t0), seller, in(id, 5, 0)), domain.ErrTicketMismatch)
	assert.ErrorIs(t, f.book.Place(txn.New(t0), seller, in(unapproved, 5, 1)), domain.ErrNotApproved)

	require.NoError(t, f.book.Place(txn.New(t0), seller, in(id, 5, 1)))
	assert.ErrorIs(t, f.book.Place(txn.New(t0), seller, in(id, 5, 1)), domain.ErrAlreadyListed)

	owner, _ := f.reg.OwnerOf(id)
	assert.Equal(t, bookAddr, owner)
}

func TestCancelRestoresCustody(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	f.place(t, id, 50, false, t0)

	assert.ErrorIs(t, f.book.Cancel(txn.New(t0), seller, 99, 0, 1), domain.ErrOrderNotFound)
	assert.ErrorIs(t, f.book.Cancel(txn.New(t0), buyer, id, 0, 1), domain.ErrNotSeller)
	assert.ErrorIs(t, f.book.Cancel(txn.New(t0), seller, id, 0, 0), domain.ErrTicketMismatch)

	require.NoError(t, f.book.Cancel(txn.New(t0), seller, id, 0, 1))
	owner, _ := f.reg.OwnerOf(id)
	assert.Equal(t, seller, owner)

	o, err := f.book.GetOrder(id)
	require.NoError(t, err)
	assert.False(t, o.Active)
	assert.Empty(t, f.book.OrderBook(0, 1))
	assert.ErrorIs(t, f.book.Cancel(txn.New(t0), seller, id, 0, 1), domain.ErrOrderNotFound)
}

func TestFillNative(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	f.place(t, id, 200, false, t0)

	assert.ErrorIs(t, f.book.Fill(txn.New(t0), buyer, u(199), exchange.FillInput{TicketID: id, ProjectID: 0, OptionID: 1}), domain.ErrPriceMismatch)
	assert.ErrorIs(t, f.book.Fill(txn.New(t0), buyer, u(200), exchange.FillInput{TicketID: id, ProjectID: 1, OptionID: 1}), domain.ErrTicketMismatch)

	require.NoError(t, f.book.Fill(txn.New(t0), buyer, u(200), exchange.FillInput{TicketID: id, ProjectID: 0, OptionID: 1}))
	owner, _ := f.reg.OwnerOf(id)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, u(300), f.native.BalanceOf(buyer))
	assert.Equal(t, u(200), f.native.BalanceOf(seller))

	_, ok := f.book.BestPrice(0, 1)
	assert.False(t, ok)
	assert.ErrorIs(t, f.book.Fill(txn.New(t0), buyer, u(200), exchange.FillInput{TicketID: id, ProjectID: 0, OptionID: 1}), domain.ErrOrderNotFound)

	o, err := f.book.GetOrder(id)
	require.NoError(t, err)
	assert.False(t, o.Active)
	assert.Equal(t, seller, o.Seller)
}

func TestFillWithoutFundsChangesNothing(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	f.place(t, id, 900, false, t0)
	before := f.book.Export()

	tx := txn.New(t0)
	err := f.book.Fill(tx, buyer, u(900), exchange.FillInput{TicketID: id, ProjectID: 0, OptionID: 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	tx.Rollback()

	assert.Equal(t, before, f.book.Export())
	owner, _ := f.reg.OwnerOf(id)
	assert.Equal(t, bookAddr, owner)
	assert.Equal(t, u(500), f.native.BalanceOf(buyer))
}

func TestFillToken(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	f.place(t, id, 40, true, t0)
	require.NoError(t, f.token.Claim(txn.New(t0), buyer))

	fill := exchange.FillInput{TicketID: id, ProjectID: 0, OptionID: 1, Payment: u(40)}
	assert.ErrorIs(t, f.book.Fill(txn.New(t0), buyer, nil, fill), domain.ErrInsufficientPayment)

	require.NoError(t, f.token.Approve(txn.New(t0), buyer, bookAddr, u(40)))
	wrong := fill
	wrong.Payment = u(41)
	assert.ErrorIs(t, f.book.Fill(txn.New(t0), buyer, nil, wrong), domain.ErrPriceMismatch)

	require.NoError(t, f.book.Fill(txn.New(t0), buyer, nil, fill))
	assert.Equal(t, u(960), f.token.BalanceOf(buyer))
	assert.Equal(t, u(40), f.token.BalanceOf(seller))
	assert.True(t, f.token.Allowance(buyer, bookAddr).IsZero())
}

func TestOrderBookSorting(t *testing.T) {
	f := newFixture(t)
	a := f.ticket(t, seller)
	b := f.ticket(t, seller)
	c := f.ticket(t, seller)
	d := f.ticket(t, seller)

	f.place(t, a, 30, false, t0.Add(2*time.Second))
	f.place(t, b, 10, false, t0.Add(3*time.Second))
	f.place(t, c, 30, false, t0.Add(time.Second))
	f.place(t, d, 30, false, t0.Add(time.Second))

	var got []uint64
	for _, o := range f.book.OrderBook(0, 1) {
		got = append(got, o.TicketID)
	}
	assert.Equal(t, []uint64{b, c, d, a}, got)

	best, ok := f.book.BestPrice(0, 1)
	require.True(t, ok)
	assert.Equal(t, u(10), best)

	require.NoError(t, f.book.Cancel(txn.New(t0), seller, b, 0, 1))
	best, _ = f.book.BestPrice(0, 1)
	assert.Equal(t, u(30), best)
	assert.Empty(t, f.book.OrderBook(0, 2))
}

func TestRelistOverwritesInactiveOrder(t *testing.T) {
	f := newFixture(t)
	id := f.ticket(t, seller)
	f.place(t, id, 10, false, t0)
	require.NoError(t, f.book.Cancel(txn.New(t0), seller, id, 0, 1))

	require.NoError(t, f.reg.Approve(txn.New(t0), seller, bookAddr, id))
	f.place(t, id, 20, false, t0.Add(time.Minute))

	o, err := f.book.GetOrder(id)
	require.NoError(t, err)
	assert.True(t, o.Active)
	assert.Equal(t, u(20), o.Price)
	assert.Equal(t, uint64(1), o.Seq)

	_, err = f.book.GetOrder(42)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	a := f.ticket(t, seller)
	b := f.ticket(t, seller)
	f.place(t, a, 30, false, t0)
	f.place(t, b, 20, true, t0)
	require.NoError(t, f.book.Cancel(txn.New(t0), seller, a, 0, 1))

	g := exchange.NewBook(bookAddr, f.token, f.native, f.reg)
	g.Import(f.book.Export())
	assert.Equal(t, f.book.Export(), g.Export())
	assert.Equal(t, f.book.OrderBook(0, 1), g.OrderBook(0, 1))
}
