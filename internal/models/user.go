package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is external reference data from the user directory; the ledger only
// validates existence and reads the phone/nickname for display.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Phone     string    `bun:"phone,unique,notnull" json:"phone"`
	Nickname  string    `bun:"nickname" json:"nickname"`
	Role      string    `bun:"role" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
