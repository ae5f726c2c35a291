package summary

import (
	"context"

	"github.com/uptrace/bun"

	"ms-seatledger/internal/models"
)

// DB runs the read-side joins for the aggregator. It only ever selects;
// the quota ledger and ticket inventory stay the sources of truth.
type DB struct {
	Bun bun.IDB
}

func NewDB(db bun.IDB) *DB {
	return &DB{Bun: db}
}

// StatusCount is one row of a GROUP BY status rollup.
type StatusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// GetUserStatusCounts groups a user's tickets for a tournament by status.
func (d *DB) GetUserStatusCounts(ctx context.Context, userID, tournamentID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.SeatTicket)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("user_id = ?", userID).
		Where("tournament_id = ?", tournamentID).
		GroupExpr("status").
		Scan(ctx, &counts)
	return counts, err
}

// GetTournamentStatusCounts groups every ticket of a tournament by status.
func (d *DB) GetTournamentStatusCounts(ctx context.Context, tournamentID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.SeatTicket)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("tournament_id = ?", tournamentID).
		GroupExpr("status").
		Scan(ctx, &counts)
	return counts, err
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
