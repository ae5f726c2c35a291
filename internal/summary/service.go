package summary

import (
	"context"
	"fmt"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/models"
	"ms-seatledger/internal/quota"
)

// QuotaReader is the slice of the quota ledger the aggregator reads.
type QuotaReader interface {
	SummaryByTournament(ctx context.Context, tournamentID string) (*models.QuotaSummary, []models.StoreAllocation, error)
	SummaryByStore(ctx context.Context, storeID string) (*models.QuotaSummary, []models.StoreAllocation, error)
	OverallSummary(ctx context.Context) (*models.QuotaSummary, error)
}

// Service computes read-only rollups over the quota ledger and ticket
// inventory. Results may be cached; the cache is invalidated by the
// operations facade on every write touching the same entities.
type Service struct {
	DB    *DB
	Quota QuotaReader
	Cache *Cache
}

func NewService(db *DB, quotaSvc *quota.Service, cache *Cache) *Service {
	return &Service{DB: db, Quota: quotaSvc, Cache: cache}
}

// UserStats returns a user's active/used/total ticket counts for a tournament.
func (s *Service) UserStats(ctx context.Context, userID, tournamentID string) (*models.UserTicketStats, error) {
	if userID == "" || tournamentID == "" {
		return nil, apperr.New(apperr.Validation, "user_id and tournament_id are required")
	}

	key := userKey(userID, tournamentID)
	var cached models.UserTicketStats
	if s.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	counts, err := s.DB.GetUserStatusCounts(ctx, userID, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count user tickets: %w", err)
	}

	stats := &models.UserTicketStats{UserID: userID, TournamentID: tournamentID}
	for _, c := range counts {
		switch c.Status {
		case models.TicketActive:
			stats.Active = c.Count
		case models.TicketUsed:
			stats.Used = c.Count
		case models.TicketCancelled:
			stats.Cancelled = c.Count
		case models.TicketExpired:
			stats.Expired = c.Count
		}
		stats.Total += c.Count
	}

	s.Cache.Set(ctx, key, stats)
	return stats, nil
}

// TournamentSummary joins quota counters with the tournament's ticket counts
// and per-store allocation breakdown.
func (s *Service) TournamentSummary(ctx context.Context, tournamentID string) (*models.TournamentTicketSummary, error) {
	if tournamentID == "" {
		return nil, apperr.New(apperr.Validation, "tournament_id is required")
	}

	key := tournamentKey(tournamentID)
	var cached models.TournamentTicketSummary
	if s.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	tournament, err := s.DB.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, apperr.Newf(apperr.NotFound, "tournament %s not found", tournamentID)
	}

	quotaSummary, allocs, err := s.Quota.SummaryByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	counts, err := s.DB.GetTournamentStatusCounts(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tournament tickets: %w", err)
	}

	result := &models.TournamentTicketSummary{
		TournamentID:   tournamentID,
		TicketQuantity: tournament.TicketQuantity,
		Quota:          *quotaSummary,
		Stores:         allocs,
	}
	for _, c := range counts {
		switch c.Status {
		case models.TicketActive:
			result.ActiveTickets = c.Count
		case models.TicketUsed:
			result.UsedTickets = c.Count
		}
	}

	s.Cache.Set(ctx, key, result)
	return result, nil
}

// StoreSummary returns a store's allocation rollup across tournaments.
func (s *Service) StoreSummary(ctx context.Context, storeID string) (*models.QuotaSummary, []models.StoreAllocation, error) {
	if storeID == "" {
		return nil, nil, apperr.New(apperr.Validation, "store_id is required")
	}

	key := storeKey(storeID)
	var cached struct {
		Summary     *models.QuotaSummary     `json:"summary"`
		Allocations []models.StoreAllocation `json:"allocations"`
	}
	if s.Cache.Get(ctx, key, &cached) {
		return cached.Summary, cached.Allocations, nil
	}

	quotaSummary, allocs, err := s.Quota.SummaryByStore(ctx, storeID)
	if err != nil {
		return nil, nil, err
	}

	cached.Summary = quotaSummary
	cached.Allocations = allocs
	s.Cache.Set(ctx, key, cached)
	return quotaSummary, allocs, nil
}

// OverallSummary returns the ledger-wide allocation rollup.
func (s *Service) OverallSummary(ctx context.Context) (*models.QuotaSummary, error) {
	var cached models.QuotaSummary
	if s.Cache.Get(ctx, overallKey, &cached) {
		return &cached, nil
	}

	quotaSummary, err := s.Quota.OverallSummary(ctx)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, overallKey, quotaSummary)
	return quotaSummary, nil
}
