package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/inventory/qr"
	"ms-seatledger/internal/models"
)

// TicketDBLayer is the persistence surface the inventory service needs.
type TicketDBLayer interface {
	CreateTickets(ctx context.Context, tickets []models.SeatTicket) error
	GetTicketByID(ctx context.Context, ticketID string) (*models.SeatTicket, error)
	GetTicketsByIDs(ctx context.Context, ticketIDs []string) ([]models.SeatTicket, error)
	GetTicketsByUser(ctx context.Context, userID, tournamentID string) ([]models.SeatTicket, error)
	SelectActiveFIFO(ctx context.Context, userID, tournamentID string, limit int) ([]models.SeatTicket, error)
	GetOverdueActive(ctx context.Context, now time.Time) ([]models.SeatTicket, error)
	TransitionTicket(ctx context.Context, ticketID, toStatus string, usedAt *time.Time) (bool, error)
	TransferTicket(ctx context.Context, ticketID, fromUserID, toUserID string) (bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// GrantSpec describes one batch of tickets to mint.
type GrantSpec struct {
	TournamentID string
	StoreID      string
	UserID       string
	Quantity     int
	Source       string
	Amount       float64
	Memo         string
	ExpiresAt    *time.Time
}

// SkippedTicket reports why a best-effort batch left a ticket untouched.
type SkippedTicket struct {
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason"`
}

// Service owns seat ticket rows and their state machine: ACTIVE is the only
// initial state, USED/CANCELLED/EXPIRED are terminal, and no transition is
// valid out of a terminal state.
type Service struct {
	DB TicketDBLayer
	QR *qr.QRGenerator
}

func NewService(db TicketDBLayer, qrGen *qr.QRGenerator) *Service {
	return &Service{DB: db, QR: qrGen}
}

// CreateTickets mints spec.Quantity new ACTIVE tickets. The quota must
// already be reserved by the caller; this only writes rows.
func (s *Service) CreateTickets(ctx context.Context, spec GrantSpec) ([]models.SeatTicket, error) {
	if spec.Quantity <= 0 {
		return nil, apperr.New(apperr.Validation, "grant quantity must be positive")
	}
	if !models.ValidSource(spec.Source) {
		return nil, apperr.Newf(apperr.Validation, "unknown ticket source %q", spec.Source)
	}

	now := time.Now()
	tickets := make([]models.SeatTicket, 0, spec.Quantity)
	for i := 0; i < spec.Quantity; i++ {
		ticket := models.SeatTicket{
			TicketID:     uuid.New().String(),
			TournamentID: spec.TournamentID,
			StoreID:      spec.StoreID,
			UserID:       spec.UserID,
			Status:       models.TicketActive,
			Source:       spec.Source,
			Amount:       spec.Amount,
			Memo:         spec.Memo,
			ExpiresAt:    spec.ExpiresAt,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if s.QR != nil {
			qrBytes, err := s.QR.GenerateEncryptedQR(qr.Payload{
				TicketID:     ticket.TicketID,
				TournamentID: ticket.TournamentID,
				UserID:       ticket.UserID,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to generate QR for ticket %s: %w", ticket.TicketID, err)
			}
			ticket.QRCode = qrBytes
		}
		tickets = append(tickets, ticket)
	}

	if err := s.DB.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("failed to create tickets: %w", err)
	}
	return tickets, nil
}

// Use transitions one ACTIVE ticket to USED and stamps used_at.
func (s *Service) Use(ctx context.Context, ticketID string) (*models.SeatTicket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if IsNoRows(err) {
			return nil, apperr.Newf(apperr.NotFound, "ticket %s not found", ticketID)
		}
		return nil, fmt.Errorf("failed to load ticket %s: %w", ticketID, err)
	}
	if ticket.IsTerminal() {
		return nil, apperr.Newf(apperr.Conflict, "ticket already %s", strings.ToLower(ticket.Status))
	}
	if ticket.ExpiresAt != nil && ticket.ExpiresAt.Before(time.Now()) {
		// The expiry sweeper will transition the row and release quota.
		return nil, apperr.Newf(apperr.Conflict, "ticket %s has expired", ticketID)
	}

	now := time.Now()
	ok, err := s.DB.TransitionTicket(ctx, ticketID, models.TicketUsed, &now)
	if err != nil {
		return nil, fmt.Errorf("failed to use ticket %s: %w", ticketID, err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.Conflict, "ticket %s is no longer active", ticketID)
	}

	ticket.Status = models.TicketUsed
	ticket.UsedAt = &now
	return ticket, nil
}

// TransitionBatch moves each listed ticket from ACTIVE to toStatus. By
// default the whole batch fails on the first ineligible ticket; in
// best-effort mode those are skipped and reported instead.
func (s *Service) TransitionBatch(ctx context.Context, ticketIDs []string, toStatus string, bestEffort bool) ([]models.SeatTicket, []SkippedTicket, error) {
	if toStatus != models.TicketCancelled && toStatus != models.TicketExpired {
		return nil, nil, apperr.Newf(apperr.Validation, "unsupported batch transition to %s", toStatus)
	}
	if len(ticketIDs) == 0 {
		return nil, nil, apperr.New(apperr.Validation, "no ticket IDs given")
	}

	tickets, err := s.DB.GetTicketsByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tickets: %w", err)
	}

	byID := make(map[string]models.SeatTicket, len(tickets))
	for _, t := range tickets {
		byID[t.TicketID] = t
	}

	var transitioned []models.SeatTicket
	var skipped []SkippedTicket
	for _, id := range ticketIDs {
		ticket, found := byID[id]
		if !found {
			if bestEffort {
				skipped = append(skipped, SkippedTicket{TicketID: id, Reason: "not found"})
				continue
			}
			return nil, nil, apperr.Newf(apperr.NotFound, "ticket %s not found", id)
		}
		if ticket.IsTerminal() {
			if bestEffort {
				skipped = append(skipped, SkippedTicket{
					TicketID: id,
					Reason:   "already " + strings.ToLower(ticket.Status),
				})
				continue
			}
			return nil, nil, apperr.Newf(apperr.Conflict, "ticket %s already %s", id, strings.ToLower(ticket.Status))
		}

		ok, err := s.DB.TransitionTicket(ctx, id, toStatus, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to transition ticket %s: %w", id, err)
		}
		if !ok {
			// Lost a race between the select and the guarded update.
			if bestEffort {
				skipped = append(skipped, SkippedTicket{TicketID: id, Reason: "no longer active"})
				continue
			}
			return nil, nil, apperr.Newf(apperr.Conflict, "ticket %s is no longer active", id)
		}
		ticket.Status = toStatus
		transitioned = append(transitioned, ticket)
	}

	return transitioned, skipped, nil
}

// SelectActiveFIFO picks n of a user's ACTIVE tickets for a tournament,
// oldest first. The UI exposes quantity-based retrieval without per-ticket
// selection, so oldest-first is the documented tie-break.
func (s *Service) SelectActiveFIFO(ctx context.Context, userID, tournamentID string, n int) ([]models.SeatTicket, error) {
	if n <= 0 {
		return nil, apperr.New(apperr.Validation, "quantity must be positive")
	}
	tickets, err := s.DB.SelectActiveFIFO(ctx, userID, tournamentID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to select tickets: %w", err)
	}
	return tickets, nil
}

// Transfer reassigns one ACTIVE ticket from one user to another. Quota
// counters are untouched: the ticket stays distributed from the same store.
func (s *Service) Transfer(ctx context.Context, ticketID, fromUserID, toUserID string) (*models.SeatTicket, error) {
	if fromUserID == toUserID {
		return nil, apperr.New(apperr.Validation, "cannot transfer a ticket to its current owner")
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if IsNoRows(err) {
			return nil, apperr.Newf(apperr.NotFound, "ticket %s not found", ticketID)
		}
		return nil, fmt.Errorf("failed to load ticket %s: %w", ticketID, err)
	}
	if ticket.UserID != fromUserID {
		return nil, apperr.Newf(apperr.Conflict, "ticket %s is not owned by user %s", ticketID, fromUserID)
	}
	if ticket.IsTerminal() {
		return nil, apperr.Newf(apperr.Conflict, "ticket already %s", strings.ToLower(ticket.Status))
	}

	exists, err := s.DB.UserExists(ctx, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user %s: %w", toUserID, err)
	}
	if !exists {
		return nil, apperr.Newf(apperr.NotFound, "user %s not found", toUserID)
	}

	ok, err := s.DB.TransferTicket(ctx, ticketID, fromUserID, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer ticket %s: %w", ticketID, err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.Conflict, "ticket %s is no longer active", ticketID)
	}

	ticket.UserID = toUserID
	return ticket, nil
}

// ListByUser returns a user's tickets, newest first, optionally narrowed to
// one tournament.
func (s *Service) ListByUser(ctx context.Context, userID, tournamentID string) ([]models.SeatTicket, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Validation, "user_id is required")
	}
	tickets, err := s.DB.GetTicketsByUser(ctx, userID, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets for user %s: %w", userID, err)
	}
	return tickets, nil
}

// OverdueActive lists ACTIVE tickets whose expires_at has passed; the
// operations facade expires them and releases the matching quota.
func (s *Service) OverdueActive(ctx context.Context, now time.Time) ([]models.SeatTicket, error) {
	tickets, err := s.DB.GetOverdueActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue tickets: %w", err)
	}
	return tickets, nil
}
