package models

// Read-side rollups computed from StoreAllocation and SeatTicket rows.
// These are projections, never a source of truth.

// QuotaSummary aggregates allocation counters for one tournament or store.
type QuotaSummary struct {
	TournamentID        string  `json:"tournament_id,omitempty"`
	StoreID             string  `json:"store_id,omitempty"`
	AllocatedQuantity   int     `json:"allocated_quantity"`
	DistributedQuantity int     `json:"distributed_quantity"`
	RemainingQuantity   int     `json:"remaining_quantity"`
	DistributionRate    float64 `json:"distribution_rate"`
	StoreCount          int     `json:"store_count,omitempty"`
}

// UserTicketStats is the per-user, per-tournament holding summary.
type UserTicketStats struct {
	UserID       string `json:"user_id"`
	TournamentID string `json:"tournament_id"`
	Active       int    `json:"active_tickets"`
	Used         int    `json:"used_tickets"`
	Cancelled    int    `json:"cancelled_tickets"`
	Expired      int    `json:"expired_tickets"`
	Total        int    `json:"total_tickets"`
}

// TournamentTicketSummary joins quota counters with per-store breakdowns.
type TournamentTicketSummary struct {
	TournamentID   string            `json:"tournament_id"`
	TicketQuantity int               `json:"ticket_quantity"`
	Quota          QuotaSummary      `json:"quota"`
	Stores         []StoreAllocation `json:"stores"`
	ActiveTickets  int               `json:"active_tickets"`
	UsedTickets    int               `json:"used_tickets"`
}
