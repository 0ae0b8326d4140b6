package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Project is a betting pool with mutually exclusive options and a deadline.
type Project struct {
	ID            uint64         `json:"id"`
	Name          string         `json:"name"`
	Options       []string       `json:"options"`
	EndTime       time.Time      `json:"end_time"`
	TotalPool     *uint256.Int   `json:"total_pool"`
	Seed          *uint256.Int   `json:"seed"`
	OptionPools   []*uint256.Int `json:"option_pools"`
	Finished      bool           `json:"finished"`
	WinningOption *uint64        `json:"winning_option"`
	Creator       common.Address `json:"creator"`
	UseToken      bool           `json:"use_token"`
}

// Ticket is a uniquely owned stake on one option of one project. Owner is the
// zero address once the ticket has been burned.
type Ticket struct {
	ID        uint64         `json:"id"`
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
	Amount    *uint256.Int   `json:"amount"`
	Owner     common.Address `json:"owner"`
	Claimed   bool           `json:"claimed"`
}

// ClaimPreview describes what claimPrize would pay an account right now.
type ClaimPreview struct {
	ProjectID uint64         `json:"project_id"`
	Account   common.Address `json:"account"`
	TicketIDs []uint64       `json:"ticket_ids"`
	Payout    *uint256.Int   `json:"payout"`
}
