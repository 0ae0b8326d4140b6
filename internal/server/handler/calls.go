package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/engine"
)

// Submitter commits calls.
type Submitter interface {
	Submit(ctx context.Context, call domain.Call) (domain.Receipt, error)
}

// CallHandler turns HTTP requests into engine calls. The acting account
// comes from the caller middleware and the attached native value from the
// X-Value header.
type CallHandler struct {
	submitter Submitter
	engine    *engine.Engine
	logger    *slog.Logger
}

// NewCallHandler creates a CallHandler that submits through s.
func NewCallHandler(s Submitter, eng *engine.Engine, logger *slog.Logger) *CallHandler {
	return &CallHandler{submitter: s, engine: eng, logger: logger.With(slog.String("handler", "calls"))}
}

// Call submits any engine method with the request body as its params.
// POST /api/calls/{method}
func (h *CallHandler) Call(w http.ResponseWriter, r *http.Request) {
	method := domain.Method(pathParam(r, "method"))
	if !slices.Contains(engine.Methods(), method) {
		writeFailure(w, domain.ErrUnknownMethod)
		return
	}
	params, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.submit(w, r, method, params)
}

// CreateProject opens a project.
// POST /api/projects
func (h *CallHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var p domain.CreateProjectParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	method := domain.MethodCreateProject
	if p.Permit != nil {
		method = domain.MethodCreateProjectWithPermit
	}
	h.submitParams(w, r, method, p)
}

// BuyTicket stakes on an option.
// POST /api/projects/{id}/tickets
func (h *CallHandler) BuyTicket(w http.ResponseWriter, r *http.Request) {
	var p domain.BuyTicketParams
	if !h.decodeForProject(w, r, &p, &p.ProjectID) {
		return
	}
	method := domain.MethodBuyTicket
	if p.Permit != nil {
		method = domain.MethodBuyTicketWithPermit
	}
	h.submitParams(w, r, method, p)
}

// SetResult resolves a project after its deadline.
// POST /api/projects/{id}/result
func (h *CallHandler) SetResult(w http.ResponseWriter, r *http.Request) {
	var p domain.ResolveParams
	if h.decodeForProject(w, r, &p, &p.ProjectID) {
		h.submitParams(w, r, domain.MethodSetResult, p)
	}
}

// EndProject resolves a project before its deadline.
// POST /api/projects/{id}/end
func (h *CallHandler) EndProject(w http.ResponseWriter, r *http.Request) {
	var p domain.ResolveParams
	if h.decodeForProject(w, r, &p, &p.ProjectID) {
		h.submitParams(w, r, domain.MethodEndProject, p)
	}
}

// ClaimPrize pays out the caller's winning tickets.
// POST /api/projects/{id}/claim
func (h *CallHandler) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	var p domain.ClaimPrizeParams
	if h.decodeForProject(w, r, &p, &p.ProjectID) {
		h.submitParams(w, r, domain.MethodClaimPrize, p)
	}
}

// PlaceOrder lists a ticket for sale.
// POST /api/orders
func (h *CallHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var p domain.PlaceOrderParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	method := domain.MethodPlaceOrder
	if p.Permit != nil {
		method = domain.MethodPlaceOrderWithPermit
	}
	h.submitParams(w, r, method, p)
}

// CancelOrder withdraws a listing. The project and option are taken from
// the active order.
// DELETE /api/orders/{ticket}
func (h *CallHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.activeOrder(w, r)
	if !ok {
		return
	}
	h.submitParams(w, r, domain.MethodCancelOrder, domain.CancelOrderParams{
		TicketID:  order.TicketID,
		ProjectID: order.ProjectID,
		OptionID:  order.OptionID,
	})
}

type fillBody struct {
	Payment *uint256.Int        `json:"payment"`
	Permit  *domain.TokenPermit `json:"permit,omitempty"`
}

// FillOrder buys a listed ticket.
// POST /api/orders/{ticket}/fill
func (h *CallHandler) FillOrder(w http.ResponseWriter, r *http.Request) {
	var body fillBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, ok := h.activeOrder(w, r)
	if !ok {
		return
	}
	method := domain.MethodFillOrder
	if body.Permit != nil {
		method = domain.MethodFillOrderWithPermit
	}
	h.submitParams(w, r, method, domain.FillOrderParams{
		TicketID:  order.TicketID,
		ProjectID: order.ProjectID,
		OptionID:  order.OptionID,
		Payment:   body.Payment,
		Permit:    body.Permit,
	})
}

func (h *CallHandler) activeOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	ticketID, err := pathUint(r, "ticket")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Order{}, false
	}
	order, err := h.engine.Order(ticketID)
	if err != nil {
		writeFailure(w, err)
		return domain.Order{}, false
	}
	return order, true
}

// decodeForProject decodes the body into v and sets the project id from the
// path, which wins over any id in the body.
func (h *CallHandler) decodeForProject(w http.ResponseWriter, r *http.Request, v any, projectID *uint64) bool {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := decodeBody(r, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	*projectID = id
	return true
}

func (h *CallHandler) submitParams(w http.ResponseWriter, r *http.Request, method domain.Method, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.submit(w, r, method, raw)
}

func (h *CallHandler) submit(w http.ResponseWriter, r *http.Request, method domain.Method, params json.RawMessage) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	value, err := callValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt, err := h.submitter.Submit(r.Context(), domain.Call{
		Method: method,
		Caller: from,
		Value:  value,
		Params: params,
	})
	if err != nil {
		if StatusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: call failed",
				slog.String("method", string(method)),
				slog.String("error", err.Error()),
			)
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}
