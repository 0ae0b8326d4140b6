package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/exchange"
	"github.com/alanyoungcy/easybet/internal/market"
	"github.com/alanyoungcy/easybet/internal/txn"
)

// handler executes one call inside tx. It may rewrite call.Params into its
// canonical encoding, which is what gets hashed and journalled.
type handler func(e *Engine, tx *txn.Tx, call *domain.Call) (any, error)

// bind decodes the call parameters into P, canonicalizes them and runs fn.
// Unknown fields are rejected so a typo never silently changes meaning.
func bind[P any](fn func(e *Engine, tx *txn.Tx, call *domain.Call, p P) (any, error)) handler {
	return func(e *Engine, tx *txn.Tx, call *domain.Call) (any, error) {
		var p P
		if len(bytes.TrimSpace(call.Params)) > 0 && !bytes.Equal(bytes.TrimSpace(call.Params), []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(call.Params))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrMalformedParams, err)
			}
		}
		canon, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedParams, err)
		}
		call.Params = canon
		return fn(e, tx, call, p)
	}
}

type noParams struct{}

var handlers map[domain.Method]handler

func init() {
	handlers = map[domain.Method]handler{
		domain.MethodCreateProject:           bind(createProject(false)),
		domain.MethodCreateProjectWithPermit: bind(createProject(true)),
		domain.MethodBuyTicket:               bind(buyTicket(false)),
		domain.MethodBuyTicketWithPermit:     bind(buyTicket(true)),
		domain.MethodSetResult:               bind(setResult),
		domain.MethodEndProject:              bind(endProject),
		domain.MethodClaimPrize:              bind(claimPrize),

		domain.MethodTicketTransferFrom:   bind(ticketTransferFrom),
		domain.MethodTicketApprove:        bind(ticketApprove),
		domain.MethodTicketApprovalForAll: bind(ticketApprovalForAll),
		domain.MethodTicketBurn:           bind(ticketBurn),
		domain.MethodTicketPermit:         bind(ticketPermit),

		domain.MethodTokenClaim:        bind(tokenClaim),
		domain.MethodTokenTransfer:     bind(tokenTransfer),
		domain.MethodTokenApprove:      bind(tokenApprove),
		domain.MethodTokenTransferFrom: bind(tokenTransferFrom),
		domain.MethodTokenMint:         bind(tokenMint),
		domain.MethodTokenPermit:       bind(tokenPermit),
		domain.MethodNativeTransfer:    bind(nativeTransfer),

		domain.MethodPlaceOrder:           bind(placeOrder(false)),
		domain.MethodPlaceOrderWithPermit: bind(placeOrder(true)),
		domain.MethodCancelOrder:          bind(cancelOrder),
		domain.MethodFillOrder:            bind(fillOrder(false)),
		domain.MethodFillOrderWithPermit:  bind(fillOrder(true)),
	}
}

// Methods lists every method the engine accepts.
func Methods() []domain.Method {
	out := make([]domain.Method, 0, len(handlers))
	for m := range handlers {
		out = append(out, m)
	}
	return out
}

// usePermit applies a token permit signed by the caller. withPermit says
// whether the method requires one; the plain variants refuse it.
func (e *Engine) usePermit(tx *txn.Tx, call *domain.Call, p *domain.TokenPermit, withPermit bool) error {
	if !withPermit {
		if p != nil {
			return fmt.Errorf("%w: permit not accepted by %s", domain.ErrMalformedParams, call.Method)
		}
		return nil
	}
	if p == nil {
		return fmt.Errorf("%w: %s requires a permit", domain.ErrMalformedParams, call.Method)
	}
	if p.Owner != call.Caller {
		return domain.ErrNotOwner
	}
	return e.token.Permit(tx, *p)
}

// MarketManager.

func createProject(withPermit bool) func(*Engine, *txn.Tx, *domain.Call, domain.CreateProjectParams) (any, error) {
	return func(e *Engine, tx *txn.Tx, call *domain.Call, p domain.CreateProjectParams) (any, error) {
		if err := e.usePermit(tx, call, p.Permit, withPermit); err != nil {
			return nil, err
		}
		id, err := e.market.CreateProject(tx, call.Caller, call.Value, market.CreateProjectInput{
			Name:     p.Name,
			Options:  p.Options,
			EndTime:  p.EndTime,
			UseToken: p.UseToken,
			Seed:     p.Seed,
		})
		if err != nil {
			return nil, err
		}
		return domain.ProjectResult{ProjectID: id}, nil
	}
}

func buyTicket(withPermit bool) func(*Engine, *txn.Tx, *domain.Call, domain.BuyTicketParams) (any, error) {
	return func(e *Engine, tx *txn.Tx, call *domain.Call, p domain.BuyTicketParams) (any, error) {
		if err := e.usePermit(tx, call, p.Permit, withPermit); err != nil {
			return nil, err
		}
		id, err := e.market.BuyTicket(tx, call.Caller, call.Value, p.ProjectID, p.OptionID, p.Amount)
		if err != nil {
			return nil, err
		}
		return domain.TicketResult{TicketID: id}, nil
	}
}

func setResult(e *Engine, tx *txn.Tx, call *domain.Call, p domain.ResolveParams) (any, error) {
	return nil, e.market.SetResult(tx, call.Caller, p.ProjectID, p.WinningOption)
}

func endProject(e *Engine, tx *txn.Tx, call *domain.Call, p domain.ResolveParams) (any, error) {
	return nil, e.market.EndProject(tx, call.Caller, p.ProjectID, p.WinningOption)
}

func claimPrize(e *Engine, tx *txn.Tx, call *domain.Call, p domain.ClaimPrizeParams) (any, error) {
	payout, ids, err := e.market.ClaimPrize(tx, call.Caller, p.ProjectID)
	if err != nil {
		return nil, err
	}
	return domain.ClaimResult{Payout: payout, TicketIDs: ids}, nil
}

// AssetRegistry.

func ticketTransferFrom(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TicketTransferParams) (any, error) {
	return nil, e.registry.TransferFrom(tx, call.Caller, p.From, p.To, p.TicketID)
}

func ticketApprove(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TicketApproveParams) (any, error) {
	return nil, e.registry.Approve(tx, call.Caller, p.To, p.TicketID)
}

func ticketApprovalForAll(e *Engine, tx *txn.Tx, call *domain.Call, p domain.OperatorApprovalParams) (any, error) {
	return nil, e.registry.SetApprovalForAll(tx, call.Caller, p.Operator, p.Approved)
}

func ticketBurn(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TicketBurnParams) (any, error) {
	return nil, e.registry.Burn(tx, call.Caller, p.TicketID)
}

func ticketPermit(e *Engine, tx *txn.Tx, _ *domain.Call, p domain.TicketPermit) (any, error) {
	return nil, e.registry.Permit(tx, p)
}

// FungibleLedger.

func tokenClaim(e *Engine, tx *txn.Tx, call *domain.Call, _ noParams) (any, error) {
	return nil, e.token.Claim(tx, call.Caller)
}

func tokenTransfer(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TokenTransferParams) (any, error) {
	return nil, e.token.Transfer(tx, call.Caller, p.To, p.Amount)
}

func tokenApprove(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TokenApproveParams) (any, error) {
	return nil, e.token.Approve(tx, call.Caller, p.Spender, p.Amount)
}

func tokenTransferFrom(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TokenTransferFromParams) (any, error) {
	return nil, e.token.TransferFrom(tx, call.Caller, p.From, p.To, p.Amount)
}

func tokenMint(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TokenMintParams) (any, error) {
	return nil, e.token.Mint(tx, call.Caller, p.To, p.Amount)
}

func tokenPermit(e *Engine, tx *txn.Tx, _ *domain.Call, p domain.TokenPermit) (any, error) {
	return nil, e.token.Permit(tx, p)
}

func nativeTransfer(e *Engine, tx *txn.Tx, call *domain.Call, p domain.TokenTransferParams) (any, error) {
	return nil, e.native.Transfer(tx, call.Caller, p.To, p.Amount)
}

// ExchangeBook.

func placeOrder(withPermit bool) func(*Engine, *txn.Tx, *domain.Call, domain.PlaceOrderParams) (any, error) {
	return func(e *Engine, tx *txn.Tx, call *domain.Call, p domain.PlaceOrderParams) (any, error) {
		switch {
		case !withPermit && p.Permit != nil:
			return nil, fmt.Errorf("%w: permit not accepted by %s", domain.ErrMalformedParams, call.Method)
		case withPermit && p.Permit == nil:
			return nil, fmt.Errorf("%w: %s requires a permit", domain.ErrMalformedParams, call.Method)
		case withPermit:
			if p.Permit.TicketID != p.TicketID {
				return nil, domain.ErrTicketMismatch
			}
			if err := e.registry.Permit(tx, *p.Permit); err != nil {
				return nil, err
			}
		}
		return nil, e.book.Place(tx, call.Caller, exchange.PlaceInput{
			TicketID:  p.TicketID,
			Price:     p.Price,
			ProjectID: p.ProjectID,
			OptionID:  p.OptionID,
			UseToken:  p.UseToken,
		})
	}
}

func cancelOrder(e *Engine, tx *txn.Tx, call *domain.Call, p domain.CancelOrderParams) (any, error) {
	return nil, e.book.Cancel(tx, call.Caller, p.TicketID, p.ProjectID, p.OptionID)
}

func fillOrder(withPermit bool) func(*Engine, *txn.Tx, *domain.Call, domain.FillOrderParams) (any, error) {
	return func(e *Engine, tx *txn.Tx, call *domain.Call, p domain.FillOrderParams) (any, error) {
		if err := e.usePermit(tx, call, p.Permit, withPermit); err != nil {
			return nil, err
		}
		return nil, e.book.Fill(tx, call.Caller, call.Value, exchange.FillInput{
			TicketID:  p.TicketID,
			ProjectID: p.ProjectID,
			OptionID:  p.OptionID,
			Payment:   p.Payment,
		})
	}
}
