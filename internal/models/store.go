package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Store is external reference data: venues receive ticket quotas but their
// records are owned by the store registry, not by this service.
type Store struct {
	bun.BaseModel `bun:"table:stores"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Status    string    `bun:"status" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
