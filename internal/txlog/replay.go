package txlog

import (
	"fmt"

	"ms-seatledger/internal/models"
)

// ReplayAllocation is the quota state rebuilt for one (tournament, store).
type ReplayAllocation struct {
	TournamentID string
	StoreID      string
	Allocated    int
	Distributed  int
	Remaining    int
}

// ReplayTicket is the inventory state rebuilt for one ticket.
type ReplayTicket struct {
	TournamentID string
	StoreID      string
	UserID       string
	Status       string
}

// ReplayState holds the ledger state folded out of an audit log.
type ReplayState struct {
	Allocations map[string]*ReplayAllocation // keyed tournamentID|storeID
	Tickets     map[string]*ReplayTicket
}

func allocKey(tournamentID, storeID string) string {
	return tournamentID + "|" + storeID
}

func (s *ReplayState) Allocation(tournamentID, storeID string) *ReplayAllocation {
	return s.Allocations[allocKey(tournamentID, storeID)]
}

func (s *ReplayState) allocation(tournamentID, storeID string) *ReplayAllocation {
	key := allocKey(tournamentID, storeID)
	alloc, ok := s.Allocations[key]
	if !ok {
		alloc = &ReplayAllocation{TournamentID: tournamentID, StoreID: storeID}
		s.Allocations[key] = alloc
	}
	return alloc
}

// Replay folds a chronological transaction log into ledger state. Applying
// it to the log of a live database must reproduce that database's
// allocation counters and ticket states exactly.
func Replay(entries []models.TicketTransaction) (*ReplayState, error) {
	state := &ReplayState{
		Allocations: make(map[string]*ReplayAllocation),
		Tickets:     make(map[string]*ReplayTicket),
	}

	for _, entry := range entries {
		switch entry.Type {
		case models.TxAllocate:
			alloc := state.allocation(entry.TournamentID, entry.StoreID)
			alloc.Remaining += entry.Quantity - alloc.Allocated
			alloc.Allocated = entry.Quantity

		case models.TxGrant:
			alloc := state.allocation(entry.TournamentID, entry.StoreID)
			alloc.Remaining -= entry.Quantity
			alloc.Distributed += entry.Quantity
			for _, id := range entry.TicketIDs {
				state.Tickets[id] = &ReplayTicket{
					TournamentID: entry.TournamentID,
					StoreID:      entry.StoreID,
					UserID:       entry.UserID,
					Status:       models.TicketActive,
				}
			}

		case models.TxUse:
			for _, id := range entry.TicketIDs {
				ticket, ok := state.Tickets[id]
				if !ok {
					return nil, fmt.Errorf("replay: USE of unknown ticket %s", id)
				}
				ticket.Status = models.TicketUsed
			}

		case models.TxCancel, models.TxExpire:
			toStatus := models.TicketCancelled
			if entry.Type == models.TxExpire {
				toStatus = models.TicketExpired
			}
			for _, id := range entry.TicketIDs {
				ticket, ok := state.Tickets[id]
				if !ok {
					return nil, fmt.Errorf("replay: %s of unknown ticket %s", entry.Type, id)
				}
				ticket.Status = toStatus
				alloc := state.allocation(ticket.TournamentID, ticket.StoreID)
				alloc.Remaining++
				alloc.Distributed--
			}

		case models.TxTransfer:
			for _, id := range entry.TicketIDs {
				ticket, ok := state.Tickets[id]
				if !ok {
					return nil, fmt.Errorf("replay: TRANSFER of unknown ticket %s", id)
				}
				ticket.UserID = entry.UserID
			}

		default:
			return nil, fmt.Errorf("replay: unknown transaction type %q", entry.Type)
		}
	}

	return state, nil
}
