package ledger_api

import (
	"net/http"
	"strconv"
	"time"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/txlog"
	"ms-seatledger/internal/utils"
)

// ListTransactions handles GET /api/v1/transactions with the recent-activity
// filters: tournament, store, user, type and since.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := txlog.Filter{
		TournamentID: q.Get("tournament_id"),
		StoreID:      q.Get("store_id"),
		UserID:       q.Get("user_id"),
		Type:         q.Get("type"),
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, "invalid since", apperr.Wrap(apperr.Validation, "since must be RFC3339", err))
			return
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, "invalid limit", apperr.New(apperr.Validation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.writeError(w, "invalid offset", apperr.New(apperr.Validation, "offset must be a non-negative integer"))
			return
		}
		filter.Offset = offset
	}

	txs, err := h.TxLog.Query(r.Context(), filter)
	if err != nil {
		h.writeError(w, "failed to query transactions", err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("transactions", map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	}))
}
