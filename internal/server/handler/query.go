package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/engine"
)

// QueryHandler serves read-only engine state.
type QueryHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewQueryHandler creates a QueryHandler over eng.
func NewQueryHandler(eng *engine.Engine, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{engine: eng, logger: logger.With(slog.String("handler", "query"))}
}

// ListProjects pages through projects in creation order.
// GET /api/projects
func (h *QueryHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": h.engine.Projects(opts.Offset, opts.Limit),
		"total":    h.engine.ProjectCount(),
	})
}

// GetProject returns one project.
// GET /api/projects/{id}
func (h *QueryHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.engine.Project(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OptionTickets lists the tickets staked on one option.
// GET /api/projects/{id}/options/{option}/tickets
func (h *QueryHandler) OptionTickets(w http.ResponseWriter, r *http.Request) {
	id, option, ok := projectOption(w, r)
	if !ok {
		return
	}
	ids, err := h.engine.OptionTickets(id, option)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_ids": ids})
}

// OrderBook lists active orders for one option, best first.
// GET /api/projects/{id}/options/{option}/orders
func (h *QueryHandler) OrderBook(w http.ResponseWriter, r *http.Request) {
	id, option, ok := projectOption(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"orders": h.engine.OrderBook(id, option)}
	if best, ok := h.engine.BestPrice(id, option); ok {
		resp["best_price"] = best
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreviewClaim shows what claimPrize would pay the account right now.
// GET /api/projects/{id}/preview?account=0x...
func (h *QueryHandler) PreviewClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := r.URL.Query().Get("account")
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	preview, err := h.engine.PreviewClaim(id, common.HexToAddress(account))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type ticketView struct {
	domain.Ticket
	Approved common.Address `json:"approved"`
	Nonce    uint64         `json:"nonce"`
}

// GetTicket returns a ticket with its approval and permit nonce.
// GET /api/tickets/{id}
func (h *QueryHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.engine.Ticket(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	view := ticketView{Ticket: t, Nonce: h.engine.TicketNonce(id)}
	if approved, err := h.engine.GetApproved(id); err == nil {
		view.Approved = approved
	}
	writeJSON(w, http.StatusOK, view)
}

// TicketByIndex resolves a global ticket index.
// GET /api/tickets/index/{index}
func (h *QueryHandler) TicketByIndex(w http.ResponseWriter, r *http.Request) {
	i, err := pathUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.engine.TokenByIndex(i)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_id": id, "total_supply": h.engine.TicketSupply()})
}

// GetOrder returns the active order for a ticket.
// GET /api/orders/{ticket}
func (h *QueryHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "ticket")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.engine.Order(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Token describes the fungible token.
// GET /api/token
func (h *QueryHandler) Token(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.TokenInfo())
}

// GetAccount summarizes an account's holdings.
// GET /api/accounts/{address}
func (h *QueryHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":        addr,
		"native":         h.engine.NativeBalanceOf(addr),
		"token":          h.engine.TokenBalanceOf(addr),
		"tickets":        h.engine.TicketBalanceOf(addr),
		"faucet_claimed": h.engine.HasClaimed(addr),
		"token_nonce":    h.engine.TokenNonce(addr),
	})
}

// AccountTickets lists the tickets an account owns.
// GET /api/accounts/{address}/tickets
func (h *QueryHandler) AccountTickets(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": h.engine.UserTickets(addr)})
}

// AccountTicketByIndex resolves the i-th ticket an account owns.
// GET /api/accounts/{address}/tickets/{index}
func (h *QueryHandler) AccountTicketByIndex(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	i, err := pathUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.engine.TokenOfOwnerByIndex(addr, i)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_id": id})
}

// Allowance returns a token allowance.
// GET /api/accounts/{address}/allowances/{spender}
func (h *QueryHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowance": h.engine.Allowance(owner, spender)})
}

// Operator reports whether operator may move all of the account's tickets.
// GET /api/accounts/{address}/operators/{operator}
func (h *QueryHandler) Operator(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	operator, err := pathAddress(r, "operator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approved": h.engine.IsApprovedForAll(owner, operator)})
}

func projectOption(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	option, err := pathUint(r, "option")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return id, option, true
}
