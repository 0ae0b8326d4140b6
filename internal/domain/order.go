package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Order is a standing offer to sell one ticket at a fixed price. Orders are
// keyed by ticket id; at most one is active per ticket.
type Order struct {
	TicketID  uint64         `json:"ticket_id"`
	Seller    common.Address `json:"seller"`
	Price     *uint256.Int   `json:"price"`
	Active    bool           `json:"active"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       uint64         `json:"seq"`
	UseToken  bool           `json:"use_token"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
}
