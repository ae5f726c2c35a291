package ledger_api

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/auth"
	"ms-seatledger/internal/inventory"
	"ms-seatledger/internal/logger"
	"ms-seatledger/internal/ops"
	"ms-seatledger/internal/summary"
	"ms-seatledger/internal/txlog"
	"ms-seatledger/internal/utils"
)

// Handler exposes the ledger over HTTP. All mutations go through the
// operations facade; reads go through the inventory, the summary aggregator
// and the transaction log.
type Handler struct {
	Facade    *ops.Facade
	Inventory *inventory.Service
	Summary   *summary.Service
	TxLog     *txlog.Service
	Logger    *logger.Logger
}

func NewHandler(facade *ops.Facade, inventorySvc *inventory.Service, summarySvc *summary.Service, txlogSvc *txlog.Service, log *logger.Logger) *Handler {
	return &Handler{Facade: facade, Inventory: inventorySvc, Summary: summarySvc, TxLog: txlogSvc, Logger: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	kind := apperr.KindOf(err)
	if h.Logger != nil && kind == apperr.Internal {
		h.Logger.Error("API", message+": "+err.Error())
	}
	h.writeJSON(w, kind.HTTPStatus(), utils.ErrorResponse(message, kind.String(), err.Error()))
}

// requireMutator rejects callers whose role may not mutate the ledger.
// Fine-grained store/tournament entitlements are enforced by the external
// auth collaborator; its denials surface here as the same permission kind.
func (h *Handler) requireMutator(w http.ResponseWriter, r *http.Request) bool {
	if role := auth.ActorRole(r.Context()); !role.CanMutateLedger() {
		h.writeError(w, "operation not permitted",
			apperr.Newf(apperr.Permission, "role %s may not mutate the ledger", role))
		return false
	}
	return true
}

// GrantTickets handles POST /api/v1/tickets/grant.
func (h *Handler) GrantTickets(w http.ResponseWriter, r *http.Request) {
	if !h.requireMutator(w, r) {
		return
	}

	var req struct {
		TournamentID string  `json:"tournament_id"`
		StoreID      string  `json:"store_id"`
		UserID       string  `json:"user_id"`
		Quantity     int     `json:"quantity"`
		Source       string  `json:"source"`
		Amount       float64 `json:"amount"`
		Memo         string  `json:"memo"`
		ExpiresAt    string  `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", apperr.Wrap(apperr.Validation, "malformed JSON", err))
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			h.writeError(w, "invalid expires_at", apperr.Wrap(apperr.Validation, "expires_at must be RFC3339", err))
			return
		}
		expiresAt = &parsed
	}

	result, err := h.Facade.GrantTickets(r.Context(), ops.GrantCommand{
		TournamentID: req.TournamentID,
		StoreID:      req.StoreID,
		UserID:       req.UserID,
		Quantity:     req.Quantity,
		Source:       req.Source,
		Amount:       req.Amount,
		Memo:         req.Memo,
		ExpiresAt:    expiresAt,
		ActorID:      auth.ActorID(r.Context()),
	})
	if err != nil {
		h.writeError(w, "failed to grant tickets", err)
		return
	}

	ids := make([]string, 0, len(result.Tickets))
	for _, t := range result.Tickets {
		ids = append(ids, t.TicketID)
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("tickets granted", map[string]interface{}{
		"created_ticket_ids": ids,
		"transaction_id":     result.Transaction.TransactionID,
	}))
}

// UseTicket handles POST /api/v1/tickets/use.
func (h *Handler) UseTicket(w http.ResponseWriter, r *http.Request) {
	if !h.requireMutator(w, r) {
		return
	}

	var req struct {
		TicketID string `json:"ticket_id"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", apperr.Wrap(apperr.Validation, "malformed JSON", err))
		return
	}

	ticket, err := h.Facade.UseTicket(r.Context(), ops.UseCommand{
		TicketID: req.TicketID,
		Reason:   req.Reason,
		ActorID:  auth.ActorID(r.Context()),
	})
	if err != nil {
		h.writeError(w, "failed to use ticket", err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket used", map[string]interface{}{
		"ticket_id": ticket.TicketID,
		"status":    ticket.Status,
		"used_at":   ticket.UsedAt,
	}))
}

// BulkOperation handles POST /api/v1/tickets/bulk.
func (h *Handler) BulkOperation(w http.ResponseWriter, r *http.Request) {
	if !h.requireMutator(w, r) {
		return
	}

	var req struct {
		Operation    string   `json:"operation"`
		TournamentID string   `json:"tournament_id"`
		UserIDs      []string `json:"user_ids"`
		Quantity     int      `json:"quantity"`
		TicketIDs    []string `json:"ticket_ids"`
		Reason       string   `json:"reason"`
		BestEffort   bool     `json:"best_effort"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", apperr.Wrap(apperr.Validation, "malformed JSON", err))
		return
	}

	result, err := h.Facade.BulkOperation(r.Context(), ops.BulkCommand{
		Operation:    req.Operation,
		TournamentID: req.TournamentID,
		UserIDs:      req.UserIDs,
		Quantity:     req.Quantity,
		TicketIDs:    req.TicketIDs,
		Reason:       req.Reason,
		BestEffort:   req.BestEffort,
		ActorID:      auth.ActorID(r.Context()),
	})
	if err != nil {
		h.writeError(w, "bulk operation failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("bulk operation complete", map[string]interface{}{
		"affected_ticket_ids": result.AffectedTicketIDs,
		"skipped":             result.Skipped,
	}))
}

// TransferTicket handles POST /api/v1/tickets/transfer.
func (h *Handler) TransferTicket(w http.ResponseWriter, r *http.Request) {
	if !h.requireMutator(w, r) {
		return
	}

	var req struct {
		TicketID   string `json:"ticket_id"`
		FromUserID string `json:"from_user_id"`
		ToUserID   string `json:"to_user_id"`
		Memo       string `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", apperr.Wrap(apperr.Validation, "malformed JSON", err))
		return
	}

	ticket, err := h.Facade.Transfer(r.Context(), ops.TransferCommand{
		TicketID:   req.TicketID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Memo:       req.Memo,
		ActorID:    auth.ActorID(r.Context()),
	})
	if err != nil {
		h.writeError(w, "failed to transfer ticket", err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket transferred", map[string]interface{}{
		"ticket_id": ticket.TicketID,
		"user_id":   ticket.UserID,
	}))
}
