package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Tournament is external reference data for the ledger: only id, status and
// ticket_quantity are consulted, and never written by this service.
type Tournament struct {
	bun.BaseModel `bun:"table:tournaments"`

	ID             string    `bun:"id,pk" json:"id"`
	Name           string    `bun:"name,notnull" json:"name"`
	TicketQuantity int       `bun:"ticket_quantity,notnull" json:"ticket_quantity"`
	Status         string    `bun:"status" json:"status"`
	StartAt        time.Time `bun:"start_at" json:"start_at"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
}
