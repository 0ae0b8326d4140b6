package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Call encodes params and submits them as method on behalf of caller.
func (e *Engine) Call(ctx context.Context, caller common.Address, value *uint256.Int, method domain.Method, params any) (domain.Receipt, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("engine: encode %s params: %w", method, err)
	}
	return e.Submit(ctx, domain.Call{Method: method, Caller: caller, Value: value, Params: raw})
}

// CreateProject opens a project and returns its id.
func (e *Engine) CreateProject(ctx context.Context, caller common.Address, value *uint256.Int, p domain.CreateProjectParams) (uint64, error) {
	method := domain.MethodCreateProject
	if p.Permit != nil {
		method = domain.MethodCreateProjectWithPermit
	}
	rcpt, err := e.Call(ctx, caller, value, method, p)
	if err != nil {
		return 0, err
	}
	return rcpt.Result.(domain.ProjectResult).ProjectID, nil
}

// BuyTicket stakes on an option and returns the new ticket id.
func (e *Engine) BuyTicket(ctx context.Context, caller common.Address, value *uint256.Int, p domain.BuyTicketParams) (uint64, error) {
	method := domain.MethodBuyTicket
	if p.Permit != nil {
		method = domain.MethodBuyTicketWithPermit
	}
	rcpt, err := e.Call(ctx, caller, value, method, p)
	if err != nil {
		return 0, err
	}
	return rcpt.Result.(domain.TicketResult).TicketID, nil
}

// SetResult resolves a project after its deadline. Only the creator may call it.
func (e *Engine) SetResult(ctx context.Context, caller common.Address, projectID, winningOption uint64) error {
	_, err := e.Call(ctx, caller, nil, domain.MethodSetResult, domain.ResolveParams{ProjectID: projectID, WinningOption: winningOption})
	return err
}

// EndProject lets the creator resolve a project before its deadline.
func (e *Engine) EndProject(ctx context.Context, caller common.Address, projectID, winningOption uint64) error {
	_, err := e.Call(ctx, caller, nil, domain.MethodEndProject, domain.ResolveParams{ProjectID: projectID, WinningOption: winningOption})
	return err
}

// ClaimPrize collects the caller's winnings in a finished project.
func (e *Engine) ClaimPrize(ctx context.Context, caller common.Address, projectID uint64) (domain.ClaimResult, error) {
	rcpt, err := e.Call(ctx, caller, nil, domain.MethodClaimPrize, domain.ClaimPrizeParams{ProjectID: projectID})
	if err != nil {
		return domain.ClaimResult{}, err
	}
	return rcpt.Result.(domain.ClaimResult), nil
}

// PlaceOrder lists a ticket and moves it into the book's escrow.
func (e *Engine) PlaceOrder(ctx context.Context, caller common.Address, p domain.PlaceOrderParams) error {
	method := domain.MethodPlaceOrder
	if p.Permit != nil {
		method = domain.MethodPlaceOrderWithPermit
	}
	_, err := e.Call(ctx, caller, nil, method, p)
	return err
}

// CancelOrder withdraws the seller's order and returns the ticket.
func (e *Engine) CancelOrder(ctx context.Context, caller common.Address, p domain.CancelOrderParams) error {
	_, err := e.Call(ctx, caller, nil, domain.MethodCancelOrder, p)
	return err
}

// FillOrder buys a listed ticket. value is the attached native payment.
func (e *Engine) FillOrder(ctx context.Context, caller common.Address, value *uint256.Int, p domain.FillOrderParams) error {
	method := domain.MethodFillOrder
	if p.Permit != nil {
		method = domain.MethodFillOrderWithPermit
	}
	_, err := e.Call(ctx, caller, value, method, p)
	return err
}
