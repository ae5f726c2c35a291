package ledger_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/auth"
	"ms-seatledger/internal/ops"
	"ms-seatledger/internal/utils"
)

// Distribute handles POST /api/v1/distributions: headquarters setting or
// raising store quotas for a tournament.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	if role := auth.ActorRole(r.Context()); !role.CanDistribute() {
		h.writeError(w, "operation not permitted",
			apperr.Newf(apperr.Permission, "role %s may not allocate tournament quotas", role))
		return
	}

	var req struct {
		TournamentID string `json:"tournament_id"`
		Allocations  []struct {
			StoreID           string `json:"store_id"`
			AllocatedQuantity int    `json:"allocated_quantity"`
			Memo              string `json:"memo"`
		} `json:"allocations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", apperr.Wrap(apperr.Validation, "malformed JSON", err))
		return
	}

	cmd := ops.DistributeCommand{
		TournamentID: req.TournamentID,
		ActorID:      auth.ActorID(r.Context()),
	}
	for _, a := range req.Allocations {
		cmd.Allocations = append(cmd.Allocations, ops.AllocationSpec{
			StoreID:           a.StoreID,
			AllocatedQuantity: a.AllocatedQuantity,
			Memo:              a.Memo,
		})
	}

	updated, err := h.Facade.Distribute(r.Context(), cmd)
	if err != nil {
		h.writeError(w, "failed to update distributions", err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("distributions updated", updated))
}

// TournamentSummary handles GET /api/v1/distributions/summary/tournament/{tournamentID}.
func (h *Handler) TournamentSummary(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	result, err := h.Summary.TournamentSummary(r.Context(), tournamentID)
	if err != nil {
		h.writeError(w, "failed to load tournament summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("tournament summary", result))
}

// StoreSummary handles GET /api/v1/distributions/summary/store/{storeID}.
func (h *Handler) StoreSummary(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	quotaSummary, allocs, err := h.Summary.StoreSummary(r.Context(), storeID)
	if err != nil {
		h.writeError(w, "failed to load store summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("store summary", map[string]interface{}{
		"summary":     quotaSummary,
		"allocations": allocs,
	}))
}

// OverallSummary handles GET /api/v1/distributions/summary/overall.
func (h *Handler) OverallSummary(w http.ResponseWriter, r *http.Request) {
	result, err := h.Summary.OverallSummary(r.Context())
	if err != nil {
		h.writeError(w, "failed to load overall summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("overall summary", result))
}

// UserStats handles GET /api/v1/tickets/user/{userID}?tournament_id=...
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tournamentID := r.URL.Query().Get("tournament_id")
	stats, err := h.Summary.UserStats(r.Context(), userID, tournamentID)
	if err != nil {
		h.writeError(w, "failed to load user ticket stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("user ticket stats", stats))
}

// ListUserTickets handles GET /api/v1/tickets/user/{userID}/tickets.
func (h *Handler) ListUserTickets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tournamentID := r.URL.Query().Get("tournament_id")
	tickets, err := h.Inventory.ListByUser(r.Context(), userID, tournamentID)
	if err != nil {
		h.writeError(w, "failed to list user tickets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("user tickets", map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	}))
}
