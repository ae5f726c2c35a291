package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-seatledger/internal/models"
)

// DB is the persistence layer for seat tickets. Bun is bun.IDB so the
// operations facade can hand in a transaction instead of the root handle.
type DB struct {
	Bun bun.IDB
}

func (d *DB) CreateTickets(ctx context.Context, tickets []models.SeatTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.SeatTicket, error) {
	var ticket models.SeatTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByIDs(ctx context.Context, ticketIDs []string) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	if len(ticketIDs) == 0 {
		return tickets, nil
	}
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("ticket_id IN (?)", bun.In(ticketIDs)).
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID, tournamentID string) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	q := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID)
	if tournamentID != "" {
		q = q.Where("tournament_id = ?", tournamentID)
	}
	err := q.Order("created_at DESC").Scan(ctx)
	return tickets, err
}

// SelectActiveFIFO returns up to limit ACTIVE tickets a user holds for a
// tournament, oldest first. Ticket ID breaks created_at ties so the
// selection is deterministic within a grant batch.
func (d *DB) SelectActiveFIFO(ctx context.Context, userID, tournamentID string, limit int) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Where("tournament_id = ?", tournamentID).
		Where("status = ?", models.TicketActive).
		Order("created_at ASC", "ticket_id ASC").
		Limit(limit).
		Scan(ctx)
	return tickets, err
}

// GetOverdueActive returns ACTIVE tickets whose expiry has passed.
func (d *DB) GetOverdueActive(ctx context.Context, now time.Time) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.TicketActive).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		Order("created_at ASC").
		Scan(ctx)
	return tickets, err
}

// TransitionTicket moves a ticket out of ACTIVE with a status guard in the
// WHERE clause, so a ticket can only ever be transitioned once. It reports
// false when the guard did not match.
func (d *DB) TransitionTicket(ctx context.Context, ticketID, toStatus string, usedAt *time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.SeatTicket)(nil)).
		Set("status = ?", toStatus).
		Set("used_at = ?", usedAt).
		Set("updated_at = ?", time.Now()).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketActive).
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

// TransferTicket reassigns an ACTIVE ticket between users, guarded on the
// current owner so concurrent transfers cannot both win.
func (d *DB) TransferTicket(ctx context.Context, ticketID, fromUserID, toUserID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.SeatTicket)(nil)).
		Set("user_id = ?", toUserID).
		Set("updated_at = ?", time.Now()).
		Where("ticket_id = ?", ticketID).
		Where("user_id = ?", fromUserID).
		Where("status = ?", models.TicketActive).
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

func (d *DB) UserExists(ctx context.Context, userID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", userID).
		Exists(ctx)
}

func (d *DB) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("phone = ?", phone).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CountByStatus counts a user's tickets for a tournament in a given status.
func (d *DB) CountByStatus(ctx context.Context, userID, tournamentID, status string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.SeatTicket)(nil)).
		Where("user_id = ?", userID).
		Where("tournament_id = ?", tournamentID).
		Where("status = ?", status).
		Count(ctx)
}

// CountActiveByStore counts ACTIVE tickets issued by a store for a
// tournament; the quota invariant ties this to distributed_quantity.
func (d *DB) CountActiveByStore(ctx context.Context, tournamentID, storeID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.SeatTicket)(nil)).
		Where("tournament_id = ?", tournamentID).
		Where("store_id = ?", storeID).
		Where("status = ?", models.TicketActive).
		Count(ctx)
}

// IsNoRows reports whether err is the driver's empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
