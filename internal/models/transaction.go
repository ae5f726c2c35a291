package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Transaction types recorded in the audit trail. ALLOCATE entries capture
// quota changes so that a replayed log reproduces the full ledger state.
const (
	TxAllocate = "ALLOCATE"
	TxGrant    = "GRANT"
	TxUse      = "USE"
	TxCancel   = "CANCEL"
	TxExpire   = "EXPIRE"
	TxTransfer = "TRANSFER"
)

// ValidTxType reports whether t is one of the canonical transaction types.
func ValidTxType(t string) bool {
	switch t {
	case TxAllocate, TxGrant, TxUse, TxCancel, TxExpire, TxTransfer:
		return true
	}
	return false
}

// TicketTransaction is one append-only audit row. It carries enough context
// (tournament, store, user, quantity, source) that replaying a log from an
// empty database reproduces the ledger state.
type TicketTransaction struct {
	bun.BaseModel `bun:"table:ticket_transactions"`

	TransactionID string    `bun:"transaction_id,pk" json:"transaction_id"`
	Type          string    `bun:"type,notnull" json:"type"`
	TournamentID  string    `bun:"tournament_id,notnull" json:"tournament_id"`
	StoreID       string    `bun:"store_id" json:"store_id,omitempty"`
	UserID        string    `bun:"user_id" json:"user_id,omitempty"`
	TicketIDs     []string  `bun:"ticket_ids" json:"ticket_ids"`
	Quantity      int       `bun:"quantity,notnull" json:"quantity"`
	Amount        float64   `bun:"amount" json:"amount"`
	Source        string    `bun:"source" json:"source,omitempty"`
	ActorID       string    `bun:"actor_id" json:"actor_id,omitempty"`
	Memo          string    `bun:"memo" json:"memo,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
