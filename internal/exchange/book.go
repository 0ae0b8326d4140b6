// Package exchange is the escrowing secondary market for tickets. A listed
// ticket is held by the book's account until it is filled or cancelled.
package exchange

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/registry"
	"github.com/alanyoungcy/easybet/internal/txn"
)

type bookKey struct {
	project uint64
	option  uint64
}

// Book keeps one order slot per ticket and a price-sorted index of the
// active orders of every (project, option). Stored orders are never mutated
// in place; a state change replaces the pointer.
type Book struct {
	addr     common.Address
	token    *ledger.Ledger
	native   *ledger.Ledger
	registry *registry.Registry

	orders map[uint64]*domain.Order
	index  map[bookKey][]*domain.Order
	seq    uint64
}

// NewBook creates a book that escrows tickets at addr.
func NewBook(addr common.Address, token, native *ledger.Ledger, reg *registry.Registry) *Book {
	return &Book{
		addr:     addr,
		token:    token,
		native:   native,
		registry: reg,
		orders:   make(map[uint64]*domain.Order),
		index:    make(map[bookKey][]*domain.Order),
	}
}

// Address is the escrow account.
func (b *Book) Address() common.Address { return b.addr }

// PlaceInput holds the arguments of Place.
type PlaceInput struct {
	TicketID  uint64
	Price     *uint256.Int
	ProjectID uint64
	OptionID  uint64
	UseToken  bool
}

// Place lists a ticket and takes custody of it. The book must already be
// approved to move the ticket.
func (b *Book) Place(tx *txn.Tx, seller common.Address, in PlaceInput) error {
	if in.Price == nil || in.Price.IsZero() {
		return domain.ErrInvalidPrice
	}
	owner, err := b.registry.OwnerOf(in.TicketID)
	if err != nil {
		return err
	}
	if o, ok := b.orders[in.TicketID]; ok && o.Active {
		return domain.ErrAlreadyListed
	}
	if owner != seller {
		return domain.ErrNotOwner
	}
	tag, err := b.registry.TicketInfo(in.TicketID)
	if err != nil {
		return err
	}
	if tag.ProjectID != in.ProjectID || tag.OptionID != in.OptionID {
		return domain.ErrTicketMismatch
	}
	if !b.registry.IsAuthorized(b.addr, in.TicketID) {
		return domain.ErrNotApproved
	}

	if err := b.registry.TransferFrom(tx, b.addr, seller, b.addr, in.TicketID); err != nil {
		return fmt.Errorf("exchange: escrow ticket: %w", err)
	}

	seq := b.seq
	b.seq++
	tx.OnRollback(func() { b.seq = seq })

	o := &domain.Order{
		TicketID:  in.TicketID,
		Seller:    seller,
		Price:     in.Price.Clone(),
		Active:    true,
		Timestamp: tx.Now(),
		Seq:       seq,
		UseToken:  in.UseToken,
		ProjectID: in.ProjectID,
		OptionID:  in.OptionID,
	}
	b.setOrder(tx, o)
	b.addToIndex(tx, o)

	tx.Emit(domain.OrderPlaced{
		TicketID:  o.TicketID,
		Seller:    seller,
		Price:     o.Price.Clone(),
		UseToken:  o.UseToken,
		ProjectID: o.ProjectID,
		OptionID:  o.OptionID,
	})
	return nil
}

// Cancel withdraws an active order and returns the ticket to its seller.
func (b *Book) Cancel(tx *txn.Tx, caller common.Address, ticketID, projectID, optionID uint64) error {
	o, err := b.active(ticketID)
	if err != nil {
		return err
	}
	if caller != o.Seller {
		return domain.ErrNotSeller
	}
	if o.ProjectID != projectID || o.OptionID != optionID {
		return domain.ErrTicketMismatch
	}

	b.deactivate(tx, o)
	if err := b.registry.TransferFrom(tx, b.addr, b.addr, o.Seller, ticketID); err != nil {
		return fmt.Errorf("exchange: release ticket: %w", err)
	}

	tx.Emit(domain.OrderCancelled{TicketID: ticketID, Seller: o.Seller, ProjectID: projectID, OptionID: optionID})
	return nil
}

// FillInput holds the arguments of Fill. For native orders the payment is
// the value attached to the call and Payment is ignored.
type FillInput struct {
	TicketID  uint64
	ProjectID uint64
	OptionID  uint64
	Payment   *uint256.Int
}

// Fill buys a listed ticket: the price moves from buyer to seller and the
// ticket moves from the book to the buyer, in one call.
func (b *Book) Fill(tx *txn.Tx, buyer common.Address, value *uint256.Int, in FillInput) error {
	o, err := b.active(in.TicketID)
	if err != nil {
		return err
	}
	if o.ProjectID != in.ProjectID || o.OptionID != in.OptionID {
		return domain.ErrTicketMismatch
	}
	payment := in.Payment
	if !o.UseToken {
		payment = value
	}
	if payment == nil || !payment.Eq(o.Price) {
		return domain.ErrPriceMismatch
	}

	if o.UseToken {
		if b.token.Allowance(buyer, b.addr).Lt(o.Price) {
			return domain.ErrInsufficientPayment
		}
		if err := b.token.TransferFrom(tx, b.addr, buyer, o.Seller, o.Price); err != nil {
			return err
		}
	} else {
		if err := b.native.Transfer(tx, buyer, o.Seller, o.Price); err != nil {
			return err
		}
	}

	b.deactivate(tx, o)
	if err := b.registry.TransferFrom(tx, b.addr, b.addr, buyer, in.TicketID); err != nil {
		return fmt.Errorf("exchange: deliver ticket: %w", err)
	}

	tx.Emit(domain.OrderFilled{
		TicketID:  in.TicketID,
		Buyer:     buyer,
		Seller:    o.Seller,
		Price:     o.Price.Clone(),
		UseToken:  o.UseToken,
		ProjectID: o.ProjectID,
		OptionID:  o.OptionID,
	})
	return nil
}

func (b *Book) active(ticketID uint64) (*domain.Order, error) {
	o, ok := b.orders[ticketID]
	if !ok || !o.Active {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (b *Book) deactivate(tx *txn.Tx, o *domain.Order) {
	b.removeFromIndex(tx, o)
	closed := *o
	closed.Active = false
	b.setOrder(tx, &closed)
}

func (b *Book) setOrder(tx *txn.Tx, o *domain.Order) {
	old, had := b.orders[o.TicketID]
	tx.OnRollback(func() {
		if had {
			b.orders[o.TicketID] = old
		} else {
			delete(b.orders, o.TicketID)
		}
	})
	b.orders[o.TicketID] = o
}

func (b *Book) addToIndex(tx *txn.Tx, o *domain.Order) {
	key := bookKey{o.ProjectID, o.OptionID}
	b.index[key] = insertOrder(b.index[key], o)
	tx.OnRollback(func() { b.setIndex(key, deleteOrder(b.index[key], o)) })
}

func (b *Book) removeFromIndex(tx *txn.Tx, o *domain.Order) {
	key := bookKey{o.ProjectID, o.OptionID}
	b.setIndex(key, deleteOrder(b.index[key], o))
	tx.OnRollback(func() { b.index[key] = insertOrder(b.index[key], o) })
}

func (b *Book) setIndex(key bookKey, orders []*domain.Order) {
	if len(orders) == 0 {
		delete(b.index, key)
		return
	}
	b.index[key] = orders
}

// compareOrders sorts by price, then placement time, then placement
// sequence. Seq is unique, so the order is total.
func compareOrders(a, b *domain.Order) int {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func insertOrder(s []*domain.Order, o *domain.Order) []*domain.Order {
	i, found := slices.BinarySearchFunc(s, o, compareOrders)
	if found {
		return s
	}
	return slices.Insert(s, i, o)
}

func deleteOrder(s []*domain.Order, o *domain.Order) []*domain.Order {
	i, found := slices.BinarySearchFunc(s, o, compareOrders)
	if !found {
		return s
	}
	return slices.Delete(s, i, i+1)
}
