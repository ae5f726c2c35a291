package ops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/inventory"
	"ms-seatledger/internal/inventory/qr"
	"ms-seatledger/internal/logger"
	"ms-seatledger/internal/models"
	"ms-seatledger/internal/quota"
	"ms-seatledger/internal/txlog"
)

// maxConflictRetries bounds how often a version race is retried before the
// conflict surfaces to the caller. QuotaExceeded is never retried: without
// new information the outcome would be identical.
const maxConflictRetries = 3

// EventPublisher streams ledger mutations; nil disables publishing.
type EventPublisher interface {
	PublishTicketEvent(tx models.TicketTransaction) error
}

// CachePurger drops cached summaries touched by a write.
type CachePurger interface {
	Invalidate(ctx context.Context, tournamentID string, storeIDs []string, userIDs []string)
}

// Facade is the only entry point that mutates ledger state. Every call is
// one database transaction: validate, mutate quota and inventory, append
// the audit entry, commit. A failure anywhere rolls the whole call back.
type Facade struct {
	DB     *bun.DB
	QR     *qr.QRGenerator
	Events EventPublisher
	Cache  CachePurger
	Logger *logger.Logger
}

func NewFacade(db *bun.DB, qrGen *qr.QRGenerator, events EventPublisher, cache CachePurger, log *logger.Logger) *Facade {
	return &Facade{DB: db, QR: qrGen, Events: events, Cache: cache, Logger: log}
}

// txServices bundles the transaction-scoped service instances one facade
// call operates on.
type txServices struct {
	quota     *quota.Service
	inventory *inventory.Service
	txlog     *txlog.Service
}

func (f *Facade) services(idb bun.IDB) txServices {
	return txServices{
		quota:     quota.NewService(&quota.DB{Bun: idb}),
		inventory: inventory.NewService(&inventory.DB{Bun: idb}, f.QR),
		txlog:     txlog.NewService(&txlog.DB{Bun: idb}),
	}
}

// runInTx executes fn in one transaction, retrying the whole call when an
// allocation version race lost. Any other error aborts immediately.
func (f *Facade) runInTx(ctx context.Context, fn func(ctx context.Context, svc txServices) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = f.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, f.services(tx))
		})
		if err == nil || !errors.Is(err, quota.ErrVersionConflict) {
			return err
		}
		if f.Logger != nil {
			f.Logger.Warn("QUOTA", fmt.Sprintf("allocation version race, retrying (%d/%d)", attempt+1, maxConflictRetries))
		}
	}
	return err
}

// afterCommit invalidates summaries and publishes the audit entry. Both are
// best-effort once the transaction is durable.
func (f *Facade) afterCommit(ctx context.Context, entry *models.TicketTransaction, storeIDs, userIDs []string) {
	if entry == nil {
		return
	}
	if f.Cache != nil {
		f.Cache.Invalidate(ctx, entry.TournamentID, storeIDs, userIDs)
	}
	if f.Events != nil {
		if err := f.Events.PublishTicketEvent(*entry); err != nil && f.Logger != nil {
			f.Logger.Error("KAFKA", fmt.Sprintf("failed to publish %s event: %v", entry.Type, err))
		}
	}
}

// GrantCommand issues tickets from a store's remaining quota to a user.
type GrantCommand struct {
	TournamentID string
	StoreID      string
	UserID       string
	Quantity     int
	Source       string
	Amount       float64
	Memo         string
	ExpiresAt    *time.Time
	ActorID      string
}

// GrantResult reports the minted tickets and the audit entry.
type GrantResult struct {
	Tickets     []models.SeatTicket
	Transaction *models.TicketTransaction
}

// GrantTickets reserves quota and mints tickets as one atomic unit: if the
// reserve fails, no tickets are created.
func (f *Facade) GrantTickets(ctx context.Context, cmd GrantCommand) (*GrantResult, error) {
	if cmd.TournamentID == "" || cmd.StoreID == "" || cmd.UserID == "" {
		return nil, apperr.New(apperr.Validation, "tournament_id, store_id and user_id are required")
	}
	if cmd.Quantity <= 0 {
		return nil, apperr.New(apperr.Validation, "quantity must be positive")
	}
	if !models.ValidSource(cmd.Source) {
		return nil, apperr.Newf(apperr.Validation, "unknown ticket source %q", cmd.Source)
	}

	var result GrantResult
	err := f.runInTx(ctx, func(ctx context.Context, svc txServices) error {
		exists, err := svc.inventory.DB.UserExists(ctx, cmd.UserID)
		if err != nil {
			return fmt.Errorf("failed to check user %s: %w", cmd.UserID, err)
		}
		if !exists {
			return apperr.Newf(apperr.NotFound, "user %s not found", cmd.UserID)
		}

		if err := svc.quota.Reserve(ctx, cmd.TournamentID, cmd.StoreID, cmd.Quantity); err != nil {
			return err
		}

		tickets, err := svc.inventory.CreateTickets(ctx, inventory.GrantSpec{
			TournamentID: cmd.TournamentID,
			StoreID:      cmd.StoreID,
			UserID:       cmd.UserID,
			Quantity:     cmd.Quantity,
			Source:       cmd.Source,
			Amount:       cmd.Amount,
			Memo:         cmd.Memo,
			ExpiresAt:    cmd.ExpiresAt,
		})
		if err != nil {
			return err
		}

		entry, err := svc.txlog.Record(ctx, models.TicketTransaction{
			Type:         models.TxGrant,
			TournamentID: cmd.TournamentID,
			StoreID:      cmd.StoreID,
			UserID:       cmd.UserID,
			TicketIDs:    ticketIDs(tickets),
			Quantity:     len(tickets),
			Amount:       cmd.Amount,
			Source:       cmd.Source,
			ActorID:      cmd.ActorID,
			Memo:         cmd.Memo,
		})
		if err != nil {
			return err
		}

		result.Tickets = tickets
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Logger != nil {
		f.Logger.LogTicket("GRANT", cmd.UserID, fmt.Sprintf("%d tickets for tournament %s from store %s", cmd.Quantity, cmd.TournamentID, cmd.StoreID))
	}
	f.afterCommit(ctx, result.Transaction, []string{cmd.StoreID}, []string{cmd.UserID})
	return &result, nil
}

// UseCommand marks one ticket as used.
type UseCommand struct {
	TicketID string
	Reason   string
	ActorID  string
}

// UseTicket transitions one ACTIVE ticket to USED.
func (f *Facade) UseTicket(ctx context.Context, cmd UseCommand) (*models.SeatTicket, error) {
	if cmd.TicketID == "" {
		return nil, apperr.New(apperr.Validation, "ticket_id is required")
	}

	var used *models.SeatTicket
	var entry *models.TicketTransaction
	err := f.runInTx(ctx, func(ctx context.Context, svc txServices) error {
		ticket, err := svc.inventory.Use(ctx, cmd.TicketID)
		if err != nil {
			return err
		}

		memo := cmd.Reason
		if memo == "" {
			memo = "tournament entry"
		}
		entry, err = svc.txlog.Record(ctx, models.TicketTransaction{
			Type:         models.TxUse,
			TournamentID: ticket.TournamentID,
			StoreID:      ticket.StoreID,
			UserID:       ticket.UserID,
			TicketIDs:    []string{ticket.TicketID},
			Quantity:     1,
			ActorID:      cmd.ActorID,
			Memo:         memo,
		})
		if err != nil {
			return err
		}

		used = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Logger != nil {
		f.Logger.LogTicket("USE", used.UserID, fmt.Sprintf("ticket %s used", used.TicketID))
	}
	f.afterCommit(ctx, entry, []string{used.StoreID}, []string{used.UserID})
	return used, nil
}

// BulkCommand cancels or expires tickets, selected either explicitly by ID
// or by quantity per user (oldest first).
type BulkCommand struct {
	Operation    string // "cancel" or "expire"
	TournamentID string
	UserIDs      []string
	Quantity     int
	TicketIDs    []string
	Reason       string
	BestEffort   bool
	ActorID      string
}

// BulkResult reports the transitioned tickets and any best-effort skips.
type BulkResult struct {
	AffectedTicketIDs []string
	Skipped           []inventory.SkippedTicket
	Transaction       *models.TicketTransaction
}

// BulkOperation cancels or expires a batch of tickets and releases the
// matching quota, grouped per (tournament, store). By default the whole
// batch fails if any requested ticket is not eligible.
func (f *Facade) BulkOperation(ctx context.Context, cmd BulkCommand) (*BulkResult, error) {
	var toStatus, txType string
	switch cmd.Operation {
	case "cancel":
		toStatus, txType = models.TicketCancelled, models.TxCancel
	case "expire":
		toStatus, txType = models.TicketExpired, models.TxExpire
	default:
		return nil, apperr.Newf(apperr.Validation, "unknown bulk operation %q", cmd.Operation)
	}
	if cmd.TournamentID == "" {
		return nil, apperr.New(apperr.Validation, "tournament_id is required")
	}
	if len(cmd.TicketIDs) == 0 && (len(cmd.UserIDs) == 0 || cmd.Quantity <= 0) {
		return nil, apperr.New(apperr.Validation, "either ticket_ids or user_ids with a positive quantity is required")
	}

	var result BulkResult
	var touchedStores, touchedUsers []string
	err := f.runInTx(ctx, func(ctx context.Context, svc txServices) error {
		// Reset shared state in case a version race forces a retry.
		result = BulkResult{}
		touchedStores, touchedUsers = nil, nil
		ids := cmd.TicketIDs
		if len(ids) == 0 {
			// Quantity mode: pick each user's oldest ACTIVE tickets.
			for _, userID := range cmd.UserIDs {
				selected, err := svc.inventory.SelectActiveFIFO(ctx, userID, cmd.TournamentID, cmd.Quantity)
				if err != nil {
					return err
				}
				if len(selected) < cmd.Quantity && !cmd.BestEffort {
					return apperr.Newf(apperr.Conflict,
						"user %s holds only %d active tickets for tournament %s, %d requested",
						userID, len(selected), cmd.TournamentID, cmd.Quantity)
				}
				ids = append(ids, ticketIDs(selected)...)
			}
			if len(ids) == 0 {
				return apperr.Newf(apperr.NotFound, "no active tickets matched the request")
			}
		} else {
			// Explicit mode: every ticket must belong to the tournament.
			tickets, err := svc.inventory.DB.GetTicketsByIDs(ctx, ids)
			if err != nil {
				return fmt.Errorf("failed to load tickets: %w", err)
			}
			for _, t := range tickets {
				if t.TournamentID != cmd.TournamentID {
					return apperr.Newf(apperr.Validation,
						"ticket %s does not belong to tournament %s", t.TicketID, cmd.TournamentID)
				}
			}
		}

		transitioned, skipped, err := svc.inventory.TransitionBatch(ctx, ids, toStatus, cmd.BestEffort)
		if err != nil {
			return err
		}

		// Release quota grouped by (tournament, store).
		released := map[[2]string]int{}
		users := map[string]bool{}
		for _, t := range transitioned {
			released[[2]string{t.TournamentID, t.StoreID}]++
			users[t.UserID] = true
		}
		for key, n := range released {
			if err := svc.quota.Release(ctx, key[0], key[1], n); err != nil {
				return err
			}
			touchedStores = append(touchedStores, key[1])
		}
		for userID := range users {
			touchedUsers = append(touchedUsers, userID)
		}

		if len(transitioned) > 0 {
			entry, err := svc.txlog.Record(ctx, models.TicketTransaction{
				Type:         txType,
				TournamentID: cmd.TournamentID,
				StoreID:      singleValue(touchedStores),
				UserID:       singleValue(touchedUsers),
				TicketIDs:    ticketIDs(transitioned),
				Quantity:     len(transitioned),
				ActorID:      cmd.ActorID,
				Memo:         cmd.Reason,
			})
			if err != nil {
				return err
			}
			result.Transaction = entry
		}

		result.AffectedTicketIDs = ticketIDs(transitioned)
		result.Skipped = skipped
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Logger != nil {
		f.Logger.LogTicket(txType, cmd.TournamentID,
			fmt.Sprintf("%d tickets %s, %d skipped", len(result.AffectedTicketIDs), toStatus, len(result.Skipped)))
	}
	f.afterCommit(ctx, result.Transaction, touchedStores, touchedUsers)
	return &result, nil
}

// TransferCommand moves one ticket between users.
type TransferCommand struct {
	TicketID   string
	FromUserID string
	ToUserID   string
	Memo       string
	ActorID    string
}

// Transfer reassigns an ACTIVE ticket to a new owner. Quota counters stay
// untouched: the ticket remains distributed from its store of origin.
func (f *Facade) Transfer(ctx context.Context, cmd TransferCommand) (*models.SeatTicket, error) {
	if cmd.TicketID == "" || cmd.FromUserID == "" || cmd.ToUserID == "" {
		return nil, apperr.New(apperr.Validation, "ticket_id, from_user_id and to_user_id are required")
	}

	var transferred *models.SeatTicket
	var entry *models.TicketTransaction
	err := f.runInTx(ctx, func(ctx context.Context, svc txServices) error {
		ticket, err := svc.inventory.Transfer(ctx, cmd.TicketID, cmd.FromUserID, cmd.ToUserID)
		if err != nil {
			return err
		}

		entry, err = svc.txlog.Record(ctx, models.TicketTransaction{
			Type:         models.TxTransfer,
			TournamentID: ticket.TournamentID,
			StoreID:      ticket.StoreID,
			UserID:       cmd.ToUserID,
			TicketIDs:    []string{ticket.TicketID},
			Quantity:     1,
			ActorID:      cmd.ActorID,
			Memo:         cmd.Memo,
		})
		if err != nil {
			return err
		}

		transferred = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Logger != nil {
		f.Logger.LogTicket("TRANSFER", cmd.ToUserID,
			fmt.Sprintf("ticket %s from %s", cmd.TicketID, cmd.FromUserID))
	}
	f.afterCommit(ctx, entry, []string{transferred.StoreID}, []string{cmd.FromUserID, cmd.ToUserID})
	return transferred, nil
}

// AllocationSpec is one store's quota within a distribution request.
type AllocationSpec struct {
	StoreID           string
	AllocatedQuantity int
	Memo              string
}

// DistributeCommand sets store quotas for a tournament.
type DistributeCommand struct {
	TournamentID string
	Allocations  []AllocationSpec
	ActorID      string
}

// Distribute applies a batch of quota allocations atomically; one ALLOCATE
// audit entry is recorded per store so the log can be replayed.
func (f *Facade) Distribute(ctx context.Context, cmd DistributeCommand) ([]models.StoreAllocation, error) {
	if cmd.TournamentID == "" {
		return nil, apperr.New(apperr.Validation, "tournament_id is required")
	}
	if len(cmd.Allocations) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one allocation is required")
	}

	var updated []models.StoreAllocation
	var entries []*models.TicketTransaction
	var storeIDs []string
	err := f.runInTx(ctx, func(ctx context.Context, svc txServices) error {
		updated = updated[:0]
		entries = entries[:0]
		storeIDs = storeIDs[:0]
		for _, spec := range cmd.Allocations {
			alloc, err := svc.quota.Allocate(ctx, cmd.TournamentID, spec.StoreID, spec.AllocatedQuantity, spec.Memo)
			if err != nil {
				return err
			}
			entry, err := svc.txlog.Record(ctx, models.TicketTransaction{
				Type:         models.TxAllocate,
				TournamentID: cmd.TournamentID,
				StoreID:      spec.StoreID,
				Quantity:     spec.AllocatedQuantity,
				ActorID:      cmd.ActorID,
				Memo:         spec.Memo,
			})
			if err != nil {
				return err
			}
			updated = append(updated, *alloc)
			entries = append(entries, entry)
			storeIDs = append(storeIDs, spec.StoreID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Logger != nil {
		f.Logger.LogQuota("ALLOCATE", cmd.TournamentID, fmt.Sprintf("%d store allocations updated", len(updated)))
	}
	for _, entry := range entries {
		f.afterCommit(ctx, entry, storeIDs, nil)
	}
	return updated, nil
}

// ExpireOverdue sweeps ACTIVE tickets whose expires_at has passed,
// transitioning them to EXPIRED and returning their quota.
func (f *Facade) ExpireOverdue(ctx context.Context, actorID string) (*BulkResult, error) {
	overdue, err := f.services(f.DB).inventory.OverdueActive(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	if len(overdue) == 0 {
		return &BulkResult{}, nil
	}

	// Group by tournament: the bulk path validates ticket/tournament pairs.
	byTournament := map[string][]string{}
	for _, t := range overdue {
		byTournament[t.TournamentID] = append(byTournament[t.TournamentID], t.TicketID)
	}

	result := &BulkResult{}
	for tournamentID, ids := range byTournament {
		partial, err := f.BulkOperation(ctx, BulkCommand{
			Operation:    "expire",
			TournamentID: tournamentID,
			TicketIDs:    ids,
			Reason:       "expiry sweep",
			BestEffort:   true,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, err
		}
		result.AffectedTicketIDs = append(result.AffectedTicketIDs, partial.AffectedTicketIDs...)
		result.Skipped = append(result.Skipped, partial.Skipped...)
	}
	return result, nil
}

func ticketIDs(tickets []models.SeatTicket) []string {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.TicketID)
	}
	return ids
}

// singleValue collapses a slice to its element when unambiguous; bulk
// operations spanning several stores or users leave the audit field empty.
func singleValue(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	return ""
}
