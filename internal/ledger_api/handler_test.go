package ledger_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-seatledger/internal/auth"
	"ms-seatledger/internal/inventory"
	"ms-seatledger/internal/ledger_api"
	"ms-seatledger/internal/models"
	"ms-seatledger/internal/ops"
	"ms-seatledger/internal/quota"
	"ms-seatledger/internal/summary"
	"ms-seatledger/internal/txlog"
	"ms-seatledger/internal/utils"
)

func setupRouter(t *testing.T) (*chi.Mux, *ops.Facade, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Tournament)(nil),
		(*models.Store)(nil),
		(*models.User)(nil),
		(*models.StoreAllocation)(nil),
		(*models.SeatTicket)(nil),
		(*models.TicketTransaction)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	tournament := models.Tournament{ID: "t1", Name: "Spring Open", TicketQuantity: 100}
	if _, err := bunDB.NewInsert().Model(&tournament).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed tournament: %v", err)
	}
	store := models.Store{ID: "s1", Name: "Store s1"}
	if _, err := bunDB.NewInsert().Model(&store).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
	user := models.User{ID: "u1", Phone: "010-0000-0001"}
	if _, err := bunDB.NewInsert().Model(&user).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	facade := ops.NewFacade(bunDB, nil, nil, nil, nil)
	quotaService := quota.NewService(&quota.DB{Bun: bunDB})
	inventoryService := inventory.NewService(&inventory.DB{Bun: bunDB}, nil)
	summaryService := summary.NewService(summary.NewDB(bunDB), quotaService, nil)
	txlogService := txlog.NewService(&txlog.DB{Bun: bunDB})
	handler := ledger_api.NewHandler(facade, inventoryService, summaryService, txlogService, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/grant", handler.GrantTickets)
			r.Post("/use", handler.UseTicket)
			r.Post("/bulk", handler.BulkOperation)
			r.Post("/transfer", handler.TransferTicket)
			r.Get("/user/{userID}", handler.UserStats)
			r.Get("/user/{userID}/tickets", handler.ListUserTickets)
		})
		r.Route("/distributions", func(r chi.Router) {
			r.Post("/", handler.Distribute)
			r.Get("/summary/tournament/{tournamentID}", handler.TournamentSummary)
			r.Get("/summary/store/{storeID}", handler.StoreSummary)
			r.Get("/summary/overall", handler.OverallSummary)
		})
		r.Get("/transactions", handler.ListTransactions)
	})

	return r, facade, bunDB
}

func doJSON(t *testing.T, router http.Handler, role auth.Role, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithActor(req.Context(), "actor-1", role))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var parsed utils.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("Failed to parse response %q: %v", rec.Body.String(), err)
	}
	return rec, parsed
}

func TestPlayerMayNotMutate(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	rec, resp := doJSON(t, router, auth.RolePlayer, http.MethodPost, "/api/v1/tickets/grant", map[string]interface{}{
		"tournament_id": "t1", "store_id": "s1", "user_id": "u1", "quantity": 1, "source": "PURCHASE",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "PERMISSION_DENIED", resp.ErrorKind)
}

func TestStoreManagerMayNotDistribute(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	rec, resp := doJSON(t, router, auth.RoleStoreManager, http.MethodPost, "/api/v1/distributions/", map[string]interface{}{
		"tournament_id": "t1",
		"allocations":   []map[string]interface{}{{"store_id": "s1", "allocated_quantity": 10}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "PERMISSION_DENIED", resp.ErrorKind)
}

func TestDistributeAndGrantFlow(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	rec, resp := doJSON(t, router, auth.RoleAdmin, http.MethodPost, "/api/v1/distributions/", map[string]interface{}{
		"tournament_id": "t1",
		"allocations":   []map[string]interface{}{{"store_id": "s1", "allocated_quantity": 10}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doJSON(t, router, auth.RoleStoreManager, http.MethodPost, "/api/v1/tickets/grant", map[string]interface{}{
		"tournament_id": "t1", "store_id": "s1", "user_id": "u1", "quantity": 2, "source": "PURCHASE",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	createdIDs := data["created_ticket_ids"].([]interface{})
	assert.Equal(t, 2, len(createdIDs))

	// The user summary reflects the grant.
	rec, resp = doJSON(t, router, auth.RolePlayer, http.MethodGet, "/api/v1/tickets/user/u1?tournament_id=t1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	stats := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), stats["active_tickets"])

	// And the ticket listing.
	rec, resp = doJSON(t, router, auth.RolePlayer, http.MethodGet, "/api/v1/tickets/user/u1/tickets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	listing := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), listing["count"])

	// So does the transaction log.
	rec, resp = doJSON(t, router, auth.RolePlayer, http.MethodGet, "/api/v1/transactions?tournament_id=t1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	logData := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), logData["count"]) // ALLOCATE + GRANT
}

func TestGrantBeyondQuotaMapsToConflict(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	_, _ = doJSON(t, router, auth.RoleAdmin, http.MethodPost, "/api/v1/distributions/", map[string]interface{}{
		"tournament_id": "t1",
		"allocations":   []map[string]interface{}{{"store_id": "s1", "allocated_quantity": 1}},
	})

	rec, resp := doJSON(t, router, auth.RoleStoreManager, http.MethodPost, "/api/v1/tickets/grant", map[string]interface{}{
		"tournament_id": "t1", "store_id": "s1", "user_id": "u1", "quantity": 5, "source": "PURCHASE",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.ErrorKind)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/use", bytes.NewBufferString("{not json"))
	req = req.WithContext(auth.WithActor(req.Context(), "actor-1", auth.RoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp utils.APIResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorKind)
}

func TestUseUnknownTicketIsNotFound(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	rec, resp := doJSON(t, router, auth.RoleAdmin, http.MethodPost, "/api/v1/tickets/use", map[string]interface{}{
		"ticket_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.ErrorKind)
}

func TestSummaryEndpoints(t *testing.T) {
	router, _, bunDB := setupRouter(t)
	defer bunDB.Close()

	_, _ = doJSON(t, router, auth.RoleAdmin, http.MethodPost, "/api/v1/distributions/", map[string]interface{}{
		"tournament_id": "t1",
		"allocations":   []map[string]interface{}{{"store_id": "s1", "allocated_quantity": 25}},
	})

	rec, resp := doJSON(t, router, auth.RolePlayer, http.MethodGet, "/api/v1/distributions/summary/tournament/t1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	quotaData := data["quota"].(map[string]interface{})
	assert.Equal(t, float64(25), quotaData["allocated_quantity"])

	rec, resp = doJSON(t, router, auth.RolePlayer, http.MethodGet, "/api/v1/distributions/summary/overall", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	overall := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(25), overall["allocated_quantity"])
}
