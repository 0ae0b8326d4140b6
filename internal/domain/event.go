package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a lifecycle event. It doubles as the bus channel suffix.
type EventKind string

const (
	EventProjectCreated   EventKind = "project_created"
	EventTicketBought     EventKind = "ticket_bought"
	EventProjectFinished  EventKind = "project_finished"
	EventRewardClaimed    EventKind = "reward_claimed"
	EventOrderPlaced      EventKind = "order_placed"
	EventOrderFilled      EventKind = "order_filled"
	EventOrderCancelled   EventKind = "order_cancelled"
	EventTokenTransfer    EventKind = "token_transfer"
	EventTokenApproval    EventKind = "token_approval"
	EventFaucetClaimed    EventKind = "faucet_claimed"
	EventTicketTransfer   EventKind = "ticket_transfer"
	EventTicketApproval   EventKind = "ticket_approval"
	EventOperatorApproval EventKind = "operator_approval"
)

// EventKinds lists every event kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		EventProjectCreated, EventTicketBought, EventProjectFinished, EventRewardClaimed,
		EventOrderPlaced, EventOrderFilled, EventOrderCancelled,
		EventTokenTransfer, EventTokenApproval, EventFaucetClaimed,
		EventTicketTransfer, EventTicketApproval, EventOperatorApproval,
	}
}

// Event is implemented by every event payload.
type Event interface {
	Kind() EventKind
}

type ProjectCreated struct {
	ProjectID uint64         `json:"project_id"`
	Name      string         `json:"name"`
	Options   []string       `json:"options"`
	EndTime   time.Time      `json:"end_time"`
	TotalPool *uint256.Int   `json:"total_pool"`
	UseToken  bool           `json:"use_token"`
	Creator   common.Address `json:"creator"`
}

type TicketBought struct {
	User      common.Address `json:"user"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
	TicketID  uint64         `json:"ticket_id"`
	Amount    *uint256.Int   `json:"amount"`
	UseToken  bool           `json:"use_token"`
}

type ProjectFinished struct {
	ProjectID     uint64 `json:"project_id"`
	WinningOption uint64 `json:"winning_option"`
	Early         bool   `json:"early"`
}

type RewardClaimed struct {
	User      common.Address `json:"user"`
	ProjectID uint64         `json:"project_id"`
	TicketID  uint64         `json:"ticket_id"`
	Amount    *uint256.Int   `json:"amount"`
	UseToken  bool           `json:"use_token"`
}

type OrderPlaced struct {
	TicketID  uint64         `json:"ticket_id"`
	Seller    common.Address `json:"seller"`
	Price     *uint256.Int   `json:"price"`
	UseToken  bool           `json:"use_token"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
}

type OrderFilled struct {
	TicketID  uint64         `json:"ticket_id"`
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	Price     *uint256.Int   `json:"price"`
	UseToken  bool           `json:"use_token"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
}

type OrderCancelled struct {
	TicketID  uint64         `json:"ticket_id"`
	Seller    common.Address `json:"seller"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
}

// TokenTransfer moves fungible value. Asset is the ledger symbol, or
// "native" for the native value ledger.
type TokenTransfer struct {
	Asset  string         `json:"asset"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type TokenApproval struct {
	Asset   string         `json:"asset"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

type FaucetClaimed struct {
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
}

type TicketTransfer struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	TicketID uint64         `json:"ticket_id"`
}

type TicketApproval struct {
	Owner    common.Address `json:"owner"`
	Approved common.Address `json:"approved"`
	TicketID uint64         `json:"ticket_id"`
}

type OperatorApproval struct {
	Owner    common.Address `json:"owner"`
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

func (ProjectCreated) Kind() EventKind   { return EventProjectCreated }
func (TicketBought) Kind() EventKind     { return EventTicketBought }
func (ProjectFinished) Kind() EventKind  { return EventProjectFinished }
func (RewardClaimed) Kind() EventKind    { return EventRewardClaimed }
func (OrderPlaced) Kind() EventKind      { return EventOrderPlaced }
func (OrderFilled) Kind() EventKind      { return EventOrderFilled }
func (OrderCancelled) Kind() EventKind   { return EventOrderCancelled }
func (TokenTransfer) Kind() EventKind    { return EventTokenTransfer }
func (TokenApproval) Kind() EventKind    { return EventTokenApproval }
func (FaucetClaimed) Kind() EventKind    { return EventFaucetClaimed }
func (TicketTransfer) Kind() EventKind   { return EventTicketTransfer }
func (TicketApproval) Kind() EventKind   { return EventTicketApproval }
func (OperatorApproval) Kind() EventKind { return EventOperatorApproval }

// EventRecord is an event positioned in the global call order.
type EventRecord struct {
	Seq   uint64    `json:"seq"`
	Index int       `json:"index"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
	Data  Event     `json:"data"`
}

// UnmarshalJSON decodes Data into the concrete payload named by Kind.
func (r *EventRecord) UnmarshalJSON(b []byte) error {
	var raw struct {
		Seq   uint64          `json:"seq"`
		Index int             `json:"index"`
		Kind  EventKind       `json:"kind"`
		At    time.Time       `json:"at"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeEvent(raw.Kind, raw.Data)
	if err != nil {
		return err
	}
	*r = EventRecord{Seq: raw.Seq, Index: raw.Index, Kind: raw.Kind, At: raw.At, Data: data}
	return nil
}

// DecodeEvent decodes a JSON payload of the given kind.
func DecodeEvent(kind EventKind, data []byte) (Event, error) {
	var (
		e   Event
		err error
	)
	switch kind {
	case EventProjectCreated:
		e, err = decodeAs[ProjectCreated](data)
	case EventTicketBought:
		e, err = decodeAs[TicketBought](data)
	case EventProjectFinished:
		e, err = decodeAs[ProjectFinished](data)
	case EventRewardClaimed:
		e, err = decodeAs[RewardClaimed](data)
	case EventOrderPlaced:
		e, err = decodeAs[OrderPlaced](data)
	case EventOrderFilled:
		e, err = decodeAs[OrderFilled](data)
	case EventOrderCancelled:
		e, err = decodeAs[OrderCancelled](data)
	case EventTokenTransfer:
		e, err = decodeAs[TokenTransfer](data)
	case EventTokenApproval:
		e, err = decodeAs[TokenApproval](data)
	case EventFaucetClaimed:
		e, err = decodeAs[FaucetClaimed](data)
	case EventTicketTransfer:
		e, err = decodeAs[TicketTransfer](data)
	case EventTicketApproval:
		e, err = decodeAs[TicketApproval](data)
	case EventOperatorApproval:
		e, err = decodeAs[OperatorApproval](data)
	default:
		return nil, fmt.Errorf("domain: unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("domain: decode %s: %w", kind, err)
	}
	return e, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// StoredEvent is an event as read back from an event index. Data is kept
// as raw JSON; readers decode only the kinds they care about.
type StoredEvent struct {
	Seq       uint64          `json:"seq"`
	Index     int             `json:"index"`
	Kind      EventKind       `json:"kind"`
	ProjectID *uint64         `json:"project_id,omitempty"`
	TicketID  *uint64         `json:"ticket_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	At        time.Time       `json:"at"`
}

// EventRefs returns the project and ticket an event refers to, when it has
// them. Stores index events by these columns.
func EventRefs(e Event) (projectID, ticketID *uint64) {
	p := func(v uint64) *uint64 { return &v }
	switch ev := e.(type) {
	case ProjectCreated:
		return p(ev.ProjectID), nil
	case TicketBought:
		return p(ev.ProjectID), p(ev.TicketID)
	case ProjectFinished:
		return p(ev.ProjectID), nil
	case RewardClaimed:
		return p(ev.ProjectID), p(ev.TicketID)
	case OrderPlaced:
		return p(ev.ProjectID), p(ev.TicketID)
	case OrderFilled:
		return p(ev.ProjectID), p(ev.TicketID)
	case OrderCancelled:
		return p(ev.ProjectID), p(ev.TicketID)
	case TicketTransfer:
		return nil, p(ev.TicketID)
	case TicketApproval:
		return nil, p(ev.TicketID)
	default:
		return nil, nil
	}
}
