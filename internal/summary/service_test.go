package summary_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/models"
	"ms-seatledger/internal/quota"
	"ms-seatledger/internal/summary"
)

func setupSummaryService(t *testing.T) (*summary.Service, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Tournament)(nil),
		(*models.StoreAllocation)(nil),
		(*models.SeatTicket)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	tournament := models.Tournament{ID: "t1", Name: "Spring Open", TicketQuantity: 100}
	if _, err := bunDB.NewInsert().Model(&tournament).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed tournament: %v", err)
	}

	quotaService := quota.NewService(&quota.DB{Bun: bunDB})
	// Redis stays out of these tests; a nil cache is a permanent miss.
	return summary.NewService(summary.NewDB(bunDB), quotaService, nil), bunDB
}

func seedTicket(t *testing.T, bunDB *bun.DB, userID, status string) {
	now := time.Now()
	ticket := models.SeatTicket{
		TicketID:     uuid.New().String(),
		TournamentID: "t1",
		StoreID:      "s1",
		UserID:       userID,
		Status:       status,
		Source:       models.SourcePurchase,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := bunDB.NewInsert().Model(&ticket).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed ticket: %v", err)
	}
}

func seedAllocation(t *testing.T, bunDB *bun.DB, storeID string, allocated, distributed int) {
	now := time.Now()
	alloc := models.StoreAllocation{
		TournamentID:        "t1",
		StoreID:             storeID,
		AllocatedQuantity:   allocated,
		DistributedQuantity: distributed,
		RemainingQuantity:   allocated - distributed,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := bunDB.NewInsert().Model(&alloc).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed allocation: %v", err)
	}
}

func TestUserStats(t *testing.T) {
	service, bunDB := setupSummaryService(t)
	defer bunDB.Close()
	ctx := context.Background()

	seedTicket(t, bunDB, "u1", models.TicketActive)
	seedTicket(t, bunDB, "u1", models.TicketActive)
	seedTicket(t, bunDB, "u1", models.TicketUsed)
	seedTicket(t, bunDB, "u1", models.TicketCancelled)
	seedTicket(t, bunDB, "u2", models.TicketActive)

	stats, err := service.UserStats(ctx, "u1", "t1")
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Used)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 0, stats.Expired)
	assert.Equal(t, 4, stats.Total)

	// A user with no tickets gets zeros, not an error.
	stats, err = service.UserStats(ctx, "u3", "t1")
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	_, err = service.UserStats(ctx, "", "t1")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestTournamentSummary(t *testing.T) {
	service, bunDB := setupSummaryService(t)
	defer bunDB.Close()
	ctx := context.Background()

	seedAllocation(t, bunDB, "s1", 60, 3)
	seedAllocation(t, bunDB, "s2", 40, 0)
	seedTicket(t, bunDB, "u1", models.TicketActive)
	seedTicket(t, bunDB, "u1", models.TicketActive)
	seedTicket(t, bunDB, "u2", models.TicketUsed)

	result, err := service.TournamentSummary(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, 100, result.TicketQuantity)
	assert.Equal(t, 100, result.Quota.AllocatedQuantity)
	assert.Equal(t, 3, result.Quota.DistributedQuantity)
	assert.Equal(t, 2, len(result.Stores))
	assert.Equal(t, 2, result.ActiveTickets)
	assert.Equal(t, 1, result.UsedTickets)

	_, err = service.TournamentSummary(ctx, "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestStoreAndOverallSummary(t *testing.T) {
	service, bunDB := setupSummaryService(t)
	defer bunDB.Close()
	ctx := context.Background()

	seedAllocation(t, bunDB, "s1", 60, 30)
	seedAllocation(t, bunDB, "s2", 40, 10)

	storeSummary, allocs, err := service.StoreSummary(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(allocs))
	assert.Equal(t, 60, storeSummary.AllocatedQuantity)
	assert.InDelta(t, 0.5, storeSummary.DistributionRate, 0.0001)

	overall, err := service.OverallSummary(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 100, overall.AllocatedQuantity)
	assert.Equal(t, 40, overall.DistributedQuantity)
	assert.Equal(t, 2, overall.StoreCount)
}
