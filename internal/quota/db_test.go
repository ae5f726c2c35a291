package quota_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-seatledger/internal/models"
	"ms-seatledger/internal/quota"
)

func setupTestDB(t *testing.T) (*quota.DB, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Tournament)(nil),
		(*models.Store)(nil),
		(*models.StoreAllocation)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	return &quota.DB{Bun: bunDB}, bunDB
}

func seedTournamentAndStores(t *testing.T, bunDB *bun.DB) {
	ctx := context.Background()
	tournament := models.Tournament{ID: "t1", Name: "Spring Open", TicketQuantity: 100}
	if _, err := bunDB.NewInsert().Model(&tournament).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed tournament: %v", err)
	}
	for _, id := range []string{"s1", "s2"} {
		store := models.Store{ID: id, Name: "Store " + id}
		if _, err := bunDB.NewInsert().Model(&store).Exec(ctx); err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
	}
}

func TestInsertAndGetAllocation(t *testing.T) {
	quotaDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedTournamentAndStores(t, bunDB)

	ctx := context.Background()
	alloc := &models.StoreAllocation{
		TournamentID:      "t1",
		StoreID:           "s1",
		AllocatedQuantity: 40,
		RemainingQuantity: 40,
	}
	err := quotaDB.InsertAllocation(ctx, alloc)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), alloc.Version)

	got, err := quotaDB.GetAllocation(ctx, "t1", "s1")
	assert.NoError(t, err)
	assert.Equal(t, 40, got.AllocatedQuantity)
	assert.Equal(t, 0, got.DistributedQuantity)
	assert.Equal(t, 40, got.RemainingQuantity)

	_, err = quotaDB.GetAllocation(ctx, "t1", "missing")
	assert.Error(t, err)
	assert.True(t, quota.IsNoRows(err))
}

func TestUpdateAllocationVersioned(t *testing.T) {
	quotaDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedTournamentAndStores(t, bunDB)

	ctx := context.Background()
	alloc := &models.StoreAllocation{
		TournamentID:      "t1",
		StoreID:           "s1",
		AllocatedQuantity: 40,
		RemainingQuantity: 40,
	}
	assert.NoError(t, quotaDB.InsertAllocation(ctx, alloc))

	// Update against the current version succeeds and bumps it.
	alloc.RemainingQuantity = 35
	alloc.DistributedQuantity = 5
	ok, err := quotaDB.UpdateAllocationVersioned(ctx, alloc, 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), alloc.Version)

	// A writer still holding the old version loses.
	stale := *alloc
	stale.RemainingQuantity = 30
	ok, err = quotaDB.UpdateAllocationVersioned(ctx, &stale, 1)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, err := quotaDB.GetAllocation(ctx, "t1", "s1")
	assert.NoError(t, err)
	assert.Equal(t, 35, got.RemainingQuantity)
	assert.Equal(t, 5, got.DistributedQuantity)
	assert.Equal(t, int64(2), got.Version)
}

func TestSumAllocatedForTournament(t *testing.T) {
	quotaDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedTournamentAndStores(t, bunDB)

	ctx := context.Background()
	for _, alloc := range []models.StoreAllocation{
		{TournamentID: "t1", StoreID: "s1", AllocatedQuantity: 40, RemainingQuantity: 40},
		{TournamentID: "t1", StoreID: "s2", AllocatedQuantity: 30, RemainingQuantity: 30},
	} {
		a := alloc
		assert.NoError(t, quotaDB.InsertAllocation(ctx, &a))
	}

	total, err := quotaDB.SumAllocatedForTournament(ctx, "t1", "s1")
	assert.NoError(t, err)
	assert.Equal(t, 30, total)

	total, err = quotaDB.SumAllocatedForTournament(ctx, "t1", "")
	assert.NoError(t, err)
	assert.Equal(t, 70, total)

	// No rows means zero, not an error.
	total, err = quotaDB.SumAllocatedForTournament(ctx, "empty", "")
	assert.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestGetAllocationsByTournamentAndStore(t *testing.T) {
	quotaDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedTournamentAndStores(t, bunDB)

	ctx := context.Background()
	for _, alloc := range []models.StoreAllocation{
		{TournamentID: "t1", StoreID: "s2", AllocatedQuantity: 30, RemainingQuantity: 30},
		{TournamentID: "t1", StoreID: "s1", AllocatedQuantity: 40, RemainingQuantity: 40},
	} {
		a := alloc
		assert.NoError(t, quotaDB.InsertAllocation(ctx, &a))
	}

	allocs, err := quotaDB.GetAllocationsByTournament(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(allocs))
	assert.Equal(t, "s1", allocs[0].StoreID)
	assert.Equal(t, "s2", allocs[1].StoreID)

	allocs, err = quotaDB.GetAllocationsByStore(ctx, "s2")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(allocs))
	assert.Equal(t, 30, allocs[0].AllocatedQuantity)
}
