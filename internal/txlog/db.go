package txlog

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-seatledger/internal/models"
)

// DB is the persistence layer for the audit trail. Rows are inserted and
// read, never updated or deleted.
type DB struct {
	Bun bun.IDB
}

func (d *DB) InsertTransaction(ctx context.Context, tx *models.TicketTransaction) error {
	_, err := d.Bun.NewInsert().Model(tx).Exec(ctx)
	return err
}

// Filter narrows a transaction query. Zero values mean "no constraint".
type Filter struct {
	TournamentID string
	StoreID      string
	UserID       string
	Type         string
	Since        time.Time
	Limit        int
	Offset       int
}

func (d *DB) QueryTransactions(ctx context.Context, filter Filter) ([]models.TicketTransaction, error) {
	var txs []models.TicketTransaction
	q := d.Bun.NewSelect().Model(&txs)

	if filter.TournamentID != "" {
		q = q.Where("tournament_id = ?", filter.TournamentID)
	}
	if filter.StoreID != "" {
		q = q.Where("store_id = ?", filter.StoreID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q = q.Order("created_at DESC").Limit(limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	err := q.Scan(ctx)
	return txs, err
}

// AllInOrder returns the complete log oldest-first, the order Replay needs.
func (d *DB) AllInOrder(ctx context.Context) ([]models.TicketTransaction, error) {
	var txs []models.TicketTransaction
	err := d.Bun.NewSelect().
		Model(&txs).
		Order("created_at ASC", "transaction_id ASC").
		Scan(ctx)
	return txs, err
}
