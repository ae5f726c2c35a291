package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Seat ticket statuses. ACTIVE is the only non-terminal state.
const (
	TicketActive    = "ACTIVE"
	TicketUsed      = "USED"
	TicketCancelled = "CANCELLED"
	TicketExpired   = "EXPIRED"
)

// Seat ticket sources, normalized once at the API boundary.
const (
	SourcePurchase  = "PURCHASE"
	SourceReward    = "REWARD"
	SourceGift      = "GIFT"
	SourceAdmin     = "ADMIN"
	SourceEvent     = "EVENT"
	SourcePromotion = "PROMOTION"
)

// ValidSource reports whether s is one of the canonical source values.
func ValidSource(s string) bool {
	switch s {
	case SourcePurchase, SourceReward, SourceGift, SourceAdmin, SourceEvent, SourcePromotion:
		return true
	}
	return false
}

// SeatTicket is a single admission unit. Created ACTIVE by a grant, then
// transitioned at most once into a terminal state; rows are never deleted.
type SeatTicket struct {
	bun.BaseModel `bun:"table:seat_tickets"`

	TicketID     string     `bun:"ticket_id,pk" json:"ticket_id"`
	TournamentID string     `bun:"tournament_id,notnull" json:"tournament_id"`
	StoreID      string     `bun:"store_id,notnull" json:"store_id"`
	UserID       string     `bun:"user_id,notnull" json:"user_id"`
	Status       string     `bun:"status,notnull" json:"status"`
	Source       string     `bun:"source,notnull" json:"source"`
	Amount       float64    `bun:"amount" json:"amount"`
	QRCode       []byte     `bun:"qr_code" json:"-"`
	Memo         string     `bun:"memo" json:"memo,omitempty"`
	UsedAt       *time.Time `bun:"used_at" json:"used_at,omitempty"`
	ExpiresAt    *time.Time `bun:"expires_at" json:"expires_at,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// IsTerminal reports whether the ticket has left the ACTIVE state.
func (t *SeatTicket) IsTerminal() bool {
	return t.Status != TicketActive
}
