package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-seatledger/internal/models"
)

// DB is the persistence layer for store allocations. Bun is bun.IDB so the
// operations facade can hand in a transaction instead of the root handle.
type DB struct {
	Bun bun.IDB
}

func (d *DB) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var tournament models.Tournament
	err := d.Bun.NewSelect().
		Model(&tournament).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (d *DB) StoreExists(ctx context.Context, storeID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Store)(nil)).
		Where("id = ?", storeID).
		Exists(ctx)
}

func (d *DB) GetAllocation(ctx context.Context, tournamentID, storeID string) (*models.StoreAllocation, error) {
	var alloc models.StoreAllocation
	err := d.Bun.NewSelect().
		Model(&alloc).
		Where("tournament_id = ?", tournamentID).
		Where("store_id = ?", storeID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// IsNoRows reports whether err is the driver's empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (d *DB) GetAllocationsByTournament(ctx context.Context, tournamentID string) ([]models.StoreAllocation, error) {
	var allocs []models.StoreAllocation
	err := d.Bun.NewSelect().
		Model(&allocs).
		Where("tournament_id = ?", tournamentID).
		Order("store_id").
		Scan(ctx)
	return allocs, err
}

func (d *DB) GetAllocationsByStore(ctx context.Context, storeID string) ([]models.StoreAllocation, error) {
	var allocs []models.StoreAllocation
	err := d.Bun.NewSelect().
		Model(&allocs).
		Where("store_id = ?", storeID).
		Order("tournament_id").
		Scan(ctx)
	return allocs, err
}

func (d *DB) GetAllAllocations(ctx context.Context) ([]models.StoreAllocation, error) {
	var allocs []models.StoreAllocation
	err := d.Bun.NewSelect().
		Model(&allocs).
		Order("tournament_id", "store_id").
		Scan(ctx)
	return allocs, err
}

// SumAllocatedForTournament totals allocated_quantity across every store of
// a tournament, excluding one store so Allocate can compute the would-be sum.
func (d *DB) SumAllocatedForTournament(ctx context.Context, tournamentID, excludeStoreID string) (int, error) {
	var total sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.StoreAllocation)(nil)).
		ColumnExpr("SUM(allocated_quantity)").
		Where("tournament_id = ?", tournamentID).
		Where("store_id != ?", excludeStoreID).
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

func (d *DB) InsertAllocation(ctx context.Context, alloc *models.StoreAllocation) error {
	now := time.Now()
	alloc.CreatedAt = now
	alloc.UpdatedAt = now
	alloc.Version = 1
	_, err := d.Bun.NewInsert().Model(alloc).Exec(ctx)
	return err
}

// UpdateAllocationVersioned writes the allocation counters conditionally on
// the version read earlier. It returns false without error when another
// writer got there first; the caller turns that into a conflict retry.
func (d *DB) UpdateAllocationVersioned(ctx context.Context, alloc *models.StoreAllocation, expectedVersion int64) (bool, error) {
	alloc.UpdatedAt = time.Now()
	alloc.Version = expectedVersion + 1
	res, err := d.Bun.NewUpdate().
		Model(alloc).
		Column("allocated_quantity", "distributed_quantity", "remaining_quantity", "version", "memo", "updated_at").
		Where("tournament_id = ?", alloc.TournamentID).
		Where("store_id = ?", alloc.StoreID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
