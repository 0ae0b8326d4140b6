package exchange

import (
	"cmp"
	"slices"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// GetOrder returns the order slot of a ticket, active or not.
func (b *Book) GetOrder(ticketID uint64) (domain.Order, error) {
	o, ok := b.orders[ticketID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

// OrderBook returns the active orders of one option, cheapest first.
func (b *Book) OrderBook(projectID, optionID uint64) []domain.Order {
	idx := b.index[bookKey{projectID, optionID}]
	out := make([]domain.Order, len(idx))
	for i, o := range idx {
		out[i] = copyOrder(o)
	}
	return out
}

// BestPrice returns the lowest active ask of one option. ok is false when
// the option has no active orders.
func (b *Book) BestPrice(projectID, optionID uint64) (price *uint256.Int, ok bool) {
	idx := b.index[bookKey{projectID, optionID}]
	if len(idx) == 0 {
		return nil, false
	}
	return idx[0].Price.Clone(), true
}

// State is the serializable content of a Book. The index is rebuilt from
// the active orders.
type State struct {
	Orders []domain.Order `json:"orders"`
	Seq    uint64         `json:"seq"`
}

// Export copies the book content, orders sorted by ticket id.
func (b *Book) Export() State {
	s := State{Orders: make([]domain.Order, 0, len(b.orders)), Seq: b.seq}
	for _, o := range b.orders {
		s.Orders = append(s.Orders, copyOrder(o))
	}
	slices.SortFunc(s.Orders, func(x, y domain.Order) int { return cmp.Compare(x.TicketID, y.TicketID) })
	return s
}

// Import replaces the book content with s.
func (b *Book) Import(s State) {
	b.orders = make(map[uint64]*domain.Order, len(s.Orders))
	b.index = make(map[bookKey][]*domain.Order)
	b.seq = s.Seq
	for i := range s.Orders {
		o := copyOrder(&s.Orders[i])
		b.orders[o.TicketID] = &o
		if o.Active {
			key := bookKey{o.ProjectID, o.OptionID}
			b.index[key] = insertOrder(b.index[key], &o)
		}
	}
}

func copyOrder(o *domain.Order) domain.Order {
	c := *o
	if o.Price != nil {
		c.Price = o.Price.Clone()
	}
	return c
}
