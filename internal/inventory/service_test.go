package inventory_test

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/inventory"
	"ms-seatledger/internal/models"
)

// MockTicketDB is a map-backed implementation of the TicketDBLayer interface.
type MockTicketDB struct {
	tickets map[string]*models.SeatTicket
	users   map[string]bool
}

func NewMockTicketDB() *MockTicketDB {
	return &MockTicketDB{
		tickets: make(map[string]*models.SeatTicket),
		users:   make(map[string]bool),
	}
}

func (m *MockTicketDB) CreateTickets(_ context.Context, tickets []models.SeatTicket) error {
	for i := range tickets {
		copied := tickets[i]
		m.tickets[copied.TicketID] = &copied
	}
	return nil
}

func (m *MockTicketDB) GetTicketByID(_ context.Context, ticketID string) (*models.SeatTicket, error) {
	ticket, exists := m.tickets[ticketID]
	if !exists {
		return nil, sql.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *MockTicketDB) GetTicketsByIDs(_ context.Context, ticketIDs []string) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	for _, id := range ticketIDs {
		if ticket, exists := m.tickets[id]; exists {
			tickets = append(tickets, *ticket)
		}
	}
	return tickets, nil
}

func (m *MockTicketDB) GetTicketsByUser(_ context.Context, userID, tournamentID string) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	for _, t := range m.tickets {
		if t.UserID == userID && (tournamentID == "" || t.TournamentID == tournamentID) {
			tickets = append(tickets, *t)
		}
	}
	return tickets, nil
}

func (m *MockTicketDB) SelectActiveFIFO(_ context.Context, userID, tournamentID string, limit int) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	for _, t := range m.tickets {
		if t.UserID == userID && t.TournamentID == tournamentID && t.Status == models.TicketActive {
			tickets = append(tickets, *t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].TicketID < tickets[j].TicketID
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	if len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (m *MockTicketDB) GetOverdueActive(_ context.Context, now time.Time) ([]models.SeatTicket, error) {
	var tickets []models.SeatTicket
	for _, t := range m.tickets {
		if t.Status == models.TicketActive && t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
			tickets = append(tickets, *t)
		}
	}
	return tickets, nil
}

func (m *MockTicketDB) TransitionTicket(_ context.Context, ticketID, toStatus string, usedAt *time.Time) (bool, error) {
	ticket, exists := m.tickets[ticketID]
	if !exists || ticket.Status != models.TicketActive {
		return false, nil
	}
	ticket.Status = toStatus
	ticket.UsedAt = usedAt
	return true, nil
}

func (m *MockTicketDB) TransferTicket(_ context.Context, ticketID, fromUserID, toUserID string) (bool, error) {
	ticket, exists := m.tickets[ticketID]
	if !exists || ticket.Status != models.TicketActive || ticket.UserID != fromUserID {
		return false, nil
	}
	ticket.UserID = toUserID
	return true, nil
}

func (m *MockTicketDB) UserExists(_ context.Context, userID string) (bool, error) {
	return m.users[userID], nil
}

func setupInventoryService() (*inventory.Service, *MockTicketDB) {
	mockDB := NewMockTicketDB()
	mockDB.users["u1"] = true
	mockDB.users["u2"] = true
	return inventory.NewService(mockDB, nil), mockDB
}

func seedActiveTicket(mockDB *MockTicketDB, ticketID, userID string) {
	mockDB.tickets[ticketID] = &models.SeatTicket{
		TicketID:     ticketID,
		TournamentID: "t1",
		StoreID:      "s1",
		UserID:       userID,
		Status:       models.TicketActive,
		Source:       models.SourcePurchase,
		CreatedAt:    time.Now(),
	}
}

func TestCreateTicketsValidation(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()

	_, err := service.CreateTickets(ctx, inventory.GrantSpec{Quantity: 0, Source: models.SourcePurchase})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = service.CreateTickets(ctx, inventory.GrantSpec{Quantity: 1, Source: "RANDOM"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	tickets, err := service.CreateTickets(ctx, inventory.GrantSpec{
		TournamentID: "t1",
		StoreID:      "s1",
		UserID:       "u1",
		Quantity:     3,
		Source:       models.SourceReward,
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(tickets))
	assert.Equal(t, 3, len(mockDB.tickets))
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketActive, ticket.Status)
		assert.NotEmpty(t, ticket.TicketID)
	}
}

func TestUseTicket(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()
	seedActiveTicket(mockDB, "ticket1", "u1")

	used, err := service.Use(ctx, "ticket1")
	assert.NoError(t, err)
	assert.Equal(t, models.TicketUsed, used.Status)
	assert.NotNil(t, used.UsedAt)

	// Using the same ticket twice is a conflict, not a validation error.
	_, err = service.Use(ctx, "ticket1")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = service.Use(ctx, "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUseExpiredTicket(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()
	seedActiveTicket(mockDB, "ticket1", "u1")

	past := time.Now().Add(-time.Hour)
	mockDB.tickets["ticket1"].ExpiresAt = &past

	_, err := service.Use(ctx, "ticket1")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	// The row itself is left for the expiry sweep.
	assert.Equal(t, models.TicketActive, mockDB.tickets["ticket1"].Status)
}

func TestTransitionBatchAllOrNothing(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()
	seedActiveTicket(mockDB, "ticket1", "u1")
	seedActiveTicket(mockDB, "ticket2", "u1")
	mockDB.tickets["ticket2"].Status = models.TicketUsed

	// Default mode: one ineligible ticket fails the whole batch.
	_, _, err := service.TransitionBatch(ctx, []string{"ticket1", "ticket2"}, models.TicketCancelled, false)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Best effort: the eligible ticket transitions, the other is reported.
	transitioned, skipped, err := service.TransitionBatch(ctx, []string{"ticket1", "ticket2"}, models.TicketCancelled, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(transitioned))
	assert.Equal(t, "ticket1", transitioned[0].TicketID)
	assert.Equal(t, 1, len(skipped))
	assert.Equal(t, "ticket2", skipped[0].TicketID)
	assert.Equal(t, "already used", skipped[0].Reason)
}

func TestTransitionBatchUnknownTicket(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()
	seedActiveTicket(mockDB, "ticket1", "u1")

	_, _, err := service.TransitionBatch(ctx, []string{"ticket1", "ghost"}, models.TicketExpired, false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, _, err = service.TransitionBatch(ctx, []string{"ticket1"}, models.TicketUsed, false)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestTransfer(t *testing.T) {
	service, mockDB := setupInventoryService()
	ctx := context.Background()
	seedActiveTicket(mockDB, "ticket1", "u1")

	ticket, err := service.Transfer(ctx, "ticket1", "u1", "u2")
	assert.NoError(t, err)
	assert.Equal(t, "u2", ticket.UserID)

	// Wrong current owner.
	_, err = service.Transfer(ctx, "ticket1", "u1", "u2")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Self transfer and unknown recipient.
	_, err = service.Transfer(ctx, "ticket1", "u2", "u2")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = service.Transfer(ctx, "ticket1", "u2", "ghost")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	// Terminal tickets do not move.
	mockDB.tickets["ticket1"].Status = models.TicketUsed
	_, err = service.Transfer(ctx, "ticket1", "u2", "u1")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}
