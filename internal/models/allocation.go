package models

import (
	"time"

	"github.com/uptrace/bun"
)

// StoreAllocation is one row of the quota ledger: how many tickets a store
// may distribute for a tournament, and how many it already has out.
//
// Invariant: DistributedQuantity + RemainingQuantity == AllocatedQuantity.
// The row is never deleted, only zeroed, and Version guards every
// read-modify-write against concurrent updates.
type StoreAllocation struct {
	bun.BaseModel `bun:"table:store_allocations"`

	ID                  int64     `bun:"id,pk,autoincrement" json:"id"`
	TournamentID        string    `bun:"tournament_id,notnull" json:"tournament_id"`
	StoreID             string    `bun:"store_id,notnull" json:"store_id"`
	AllocatedQuantity   int       `bun:"allocated_quantity,notnull" json:"allocated_quantity"`
	DistributedQuantity int       `bun:"distributed_quantity,notnull" json:"distributed_quantity"`
	RemainingQuantity   int       `bun:"remaining_quantity,notnull" json:"remaining_quantity"`
	Version             int64     `bun:"version,notnull" json:"-"`
	Memo                string    `bun:"memo" json:"memo,omitempty"`
	CreatedAt           time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// DistributionRate is distributed/allocated, the per-store rollout metric.
func (a *StoreAllocation) DistributionRate() float64 {
	if a.AllocatedQuantity == 0 {
		return 0
	}
	return float64(a.DistributedQuantity) / float64(a.AllocatedQuantity)
}
