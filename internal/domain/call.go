package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Method names a mutating engine operation. The names follow the public
// operation surface and are what the journal records.
type Method string

const (
	MethodCreateProject           Method = "createProject"
	MethodCreateProjectWithPermit Method = "createProjectWithPermit"
	MethodBuyTicket               Method = "buyTicket"
	MethodBuyTicketWithPermit     Method = "buyTicketWithPermit"
	MethodSetResult               Method = "setResult"
	MethodEndProject              Method = "endProject"
	MethodClaimPrize              Method = "claimPrize"

	MethodTicketTransferFrom   Method = "ticketTransferFrom"
	MethodTicketApprove        Method = "ticketApprove"
	MethodTicketApprovalForAll Method = "setApprovalForAll"
	MethodTicketBurn           Method = "burn"
	MethodTicketPermit         Method = "ticketPermit"
	MethodTokenClaim           Method = "claim"
	MethodTokenTransfer        Method = "transfer"
	MethodTokenApprove         Method = "approve"
	MethodTokenTransferFrom    Method = "transferFrom"
	MethodTokenMint            Method = "mint"
	MethodTokenPermit          Method = "permit"
	MethodNativeTransfer       Method = "nativeTransfer"
	MethodPlaceOrder           Method = "placeOrder"
	MethodPlaceOrderWithPermit Method = "placeOrderWithPermit"
	MethodCancelOrder          Method = "cancelOrder"
	MethodFillOrder            Method = "fillOrder"
	MethodFillOrderWithPermit  Method = "fillOrderWithPermit"
)

// Call is one externally submitted operation. Value is the native value
// attached to the call; it is only debited by operations that take payment.
type Call struct {
	Seq    uint64          `json:"seq"`
	Method Method          `json:"method"`
	Caller common.Address  `json:"caller"`
	Value  *uint256.Int    `json:"value"`
	Params json.RawMessage `json:"params"`
	At     time.Time       `json:"at"`
}

// JournalEntry is a committed call together with the events it produced and
// its link in the hash chain.
type JournalEntry struct {
	Call      Call          `json:"call"`
	Events    []EventRecord `json:"events"`
	PrevHash  common.Hash   `json:"prev_hash"`
	Hash      common.Hash   `json:"hash"`
	Signature hexutil.Bytes `json:"signature,omitempty"`
}

// Receipt is returned to the submitter of a committed call.
type Receipt struct {
	JournalEntry
	Result any `json:"result,omitempty"`
}

// TokenPermit authorizes Spender to pull Value from Owner. It is signed by
// Owner over EIP-712 typed data and is valid once.
type TokenPermit struct {
	Owner     common.Address `json:"owner"`
	Spender   common.Address `json:"spender"`
	Value     *uint256.Int   `json:"value"`
	Deadline  uint64         `json:"deadline"`
	Signature hexutil.Bytes  `json:"signature"`
}

// TicketPermit authorizes Spender to move one ticket. It is signed by the
// ticket owner (or an operator) and is valid once.
type TicketPermit struct {
	Spender   common.Address `json:"spender"`
	TicketID  uint64         `json:"ticket_id"`
	Deadline  uint64         `json:"deadline"`
	Signature hexutil.Bytes  `json:"signature"`
}

type CreateProjectParams struct {
	Name     string       `json:"name"`
	Options  []string     `json:"options"`
	EndTime  time.Time    `json:"end_time"`
	UseToken bool         `json:"use_token"`
	Seed     *uint256.Int `json:"seed"`
	Permit   *TokenPermit `json:"permit,omitempty"`
}

type BuyTicketParams struct {
	ProjectID uint64       `json:"project_id"`
	OptionID  uint64       `json:"option_id"`
	Amount    *uint256.Int `json:"amount"`
	Permit    *TokenPermit `json:"permit,omitempty"`
}

// ResolveParams is shared by setResult and endProject.
type ResolveParams struct {
	ProjectID     uint64 `json:"project_id"`
	WinningOption uint64 `json:"winning_option"`
}

type ClaimPrizeParams struct {
	ProjectID uint64 `json:"project_id"`
}

type TicketTransferParams struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	TicketID uint64         `json:"ticket_id"`
}

type TicketApproveParams struct {
	To       common.Address `json:"to"`
	TicketID uint64         `json:"ticket_id"`
}

type OperatorApprovalParams struct {
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

type TicketBurnParams struct {
	TicketID uint64 `json:"ticket_id"`
}

type TokenTransferParams struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type TokenApproveParams struct {
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

type TokenTransferFromParams struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type TokenMintParams struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type PlaceOrderParams struct {
	TicketID  uint64        `json:"ticket_id"`
	Price     *uint256.Int  `json:"price"`
	ProjectID uint64        `json:"project_id"`
	OptionID  uint64        `json:"option_id"`
	UseToken  bool          `json:"use_token"`
	Permit    *TicketPermit `json:"permit,omitempty"`
}

type CancelOrderParams struct {
	TicketID  uint64 `json:"ticket_id"`
	ProjectID uint64 `json:"project_id"`
	OptionID  uint64 `json:"option_id"`
}

// FillOrderParams carries the buyer's payment. For native orders Payment
// must equal the value attached to the call.
type FillOrderParams struct {
	TicketID  uint64       `json:"ticket_id"`
	ProjectID uint64       `json:"project_id"`
	OptionID  uint64       `json:"option_id"`
	Payment   *uint256.Int `json:"payment"`
	Permit    *TokenPermit `json:"permit,omitempty"`
}

// ProjectResult is returned by createProject.
type ProjectResult struct {
	ProjectID uint64 `json:"project_id"`
}

// TicketResult is returned by buyTicket.
type TicketResult struct {
	TicketID uint64 `json:"ticket_id"`
}

// ClaimResult is returned by claimPrize.
type ClaimResult struct {
	Payout    *uint256.Int `json:"payout"`
	TicketIDs []uint64     `json:"ticket_ids"`
}
