package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/registry"
)

// Accounts lists the system accounts.
type Accounts struct {
	Manager common.Address `json:"manager"`
	Book    common.Address `json:"book"`
	Token   common.Address `json:"token"`
	Ticket  common.Address `json:"ticket"`
}

// TokenInfo describes the fungible token.
type TokenInfo struct {
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	Address     common.Address `json:"address"`
	TotalSupply *uint256.Int   `json:"total_supply"`
	Faucet      *uint256.Int   `json:"faucet"`
}

// Accounts returns the fixed system account addresses.
func (e *Engine) Accounts() Accounts {
	return Accounts{
		Manager: e.cfg.ManagerAddress,
		Book:    e.cfg.BookAddress,
		Token:   e.cfg.TokenAddress,
		Ticket:  e.cfg.TicketAddress,
	}
}

// TokenDomain is the EIP-712 domain token permits are signed under.
func (e *Engine) TokenDomain() crypto.Domain { return e.token.Domain() }

// TicketDomain is the EIP-712 domain ticket permits are signed under.
func (e *Engine) TicketDomain() crypto.Domain { return e.registry.Domain() }

// MarketManager reads.

func (e *Engine) Project(id uint64) (domain.Project, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.GetProject(id)
}

func (e *Engine) ProjectCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.ProjectCount()
}

func (e *Engine) Projects(offset, limit int) []domain.Project {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.ListProjects(offset, limit)
}

func (e *Engine) Ticket(id uint64) (domain.Ticket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.GetTicket(id)
}

// UserTickets returns the tickets account currently owns. Escrowed tickets
// belong to the book until filled or cancelled.
func (e *Engine) UserTickets(account common.Address) []domain.Ticket {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.UserTickets(account)
}

func (e *Engine) OptionTickets(projectID, optionID uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.OptionTickets(projectID, optionID)
}

func (e *Engine) PreviewClaim(projectID uint64, account common.Address) (domain.ClaimPreview, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market.PreviewClaim(projectID, account)
}

// AssetRegistry reads.

func (e *Engine) OwnerOf(id uint64) (common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.OwnerOf(id)
}

func (e *Engine) TicketBalanceOf(owner common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.BalanceOf(owner)
}

func (e *Engine) TokenOfOwnerByIndex(owner common.Address, i uint64) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.TokenOfOwnerByIndex(owner, i)
}

func (e *Engine) TokenByIndex(i uint64) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.TokenByIndex(i)
}

func (e *Engine) TicketSupply() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.TotalSupply()
}

func (e *Engine) TicketInfo(id uint64) (registry.Tag, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.TicketInfo(id)
}

func (e *Engine) GetApproved(id uint64) (common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.GetApproved(id)
}

func (e *Engine) IsApprovedForAll(owner, operator common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.IsApprovedForAll(owner, operator)
}

// TicketNonce is the next permit nonce of a ticket.
func (e *Engine) TicketNonce(id uint64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Nonce(id)
}

// FungibleLedger reads.

func (e *Engine) TokenInfo() TokenInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return TokenInfo{
		Name:        e.token.Name(),
		Symbol:      e.token.Asset(),
		Decimals:    e.token.Decimals(),
		Address:     e.token.Address(),
		TotalSupply: e.token.TotalSupply(),
		Faucet:      e.token.FaucetAmount(),
	}
}

func (e *Engine) TokenBalanceOf(a common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.BalanceOf(a)
}

func (e *Engine) Allowance(owner, spender common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.Allowance(owner, spender)
}

func (e *Engine) HasClaimed(a common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.HasClaimed(a)
}

// TokenNonce is the next token permit nonce of owner.
func (e *Engine) TokenNonce(owner common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.Nonce(owner)
}

func (e *Engine) NativeBalanceOf(a common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.native.BalanceOf(a)
}

func (e *Engine) NativeSupply() *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.native.TotalSupply()
}

// ExchangeBook reads.

func (e *Engine) Order(ticketID uint64) (domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.GetOrder(ticketID)
}

func (e *Engine) OrderBook(projectID, optionID uint64) []domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.OrderBook(projectID, optionID)
}

func (e *Engine) BestPrice(projectID, optionID uint64) (*uint256.Int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.BestPrice(projectID, optionID)
}
