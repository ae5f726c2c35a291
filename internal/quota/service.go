package quota

import (
	"context"
	"errors"
	"fmt"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/models"
)

// ErrVersionConflict marks conflicts caused by a lost optimistic-concurrency
// race on an allocation row. The operations facade retries these a bounded
// number of times; other conflicts are surfaced immediately.
var ErrVersionConflict = errors.New("allocation version conflict")

func versionConflict(tournamentID, storeID string) error {
	return apperr.Wrap(apperr.Conflict,
		fmt.Sprintf("allocation for tournament %s store %s was updated concurrently", tournamentID, storeID),
		ErrVersionConflict)
}

// QuotaDBLayer is the persistence surface the ledger service needs.
type QuotaDBLayer interface {
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	StoreExists(ctx context.Context, storeID string) (bool, error)
	GetAllocation(ctx context.Context, tournamentID, storeID string) (*models.StoreAllocation, error)
	GetAllocationsByTournament(ctx context.Context, tournamentID string) ([]models.StoreAllocation, error)
	GetAllocationsByStore(ctx context.Context, storeID string) ([]models.StoreAllocation, error)
	GetAllAllocations(ctx context.Context) ([]models.StoreAllocation, error)
	SumAllocatedForTournament(ctx context.Context, tournamentID, excludeStoreID string) (int, error)
	InsertAllocation(ctx context.Context, alloc *models.StoreAllocation) error
	UpdateAllocationVersioned(ctx context.Context, alloc *models.StoreAllocation, expectedVersion int64) (bool, error)
}

// Service owns the tournament→store allocation table. It is the source of
// truth for how many tickets each store may distribute.
type Service struct {
	DB QuotaDBLayer
}

func NewService(db QuotaDBLayer) *Service {
	return &Service{DB: db}
}

// Allocate sets a store's allocated quantity for a tournament, creating the
// allocation row on first use. Raising is always allowed up to the
// tournament's total ticket supply; lowering is allowed only down to what
// the store has already distributed.
func (s *Service) Allocate(ctx context.Context, tournamentID, storeID string, quantity int, memo string) (*models.StoreAllocation, error) {
	if quantity < 0 {
		return nil, apperr.New(apperr.Validation, "allocated quantity must not be negative")
	}

	tournament, err := s.DB.GetTournament(ctx, tournamentID)
	if err != nil {
		if IsNoRows(err) {
			return nil, apperr.Newf(apperr.NotFound, "tournament %s not found", tournamentID)
		}
		return nil, fmt.Errorf("failed to load tournament %s: %w", tournamentID, err)
	}

	exists, err := s.DB.StoreExists(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check store %s: %w", storeID, err)
	}
	if !exists {
		return nil, apperr.Newf(apperr.NotFound, "store %s not found", storeID)
	}

	otherTotal, err := s.DB.SumAllocatedForTournament(ctx, tournamentID, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum allocations for tournament %s: %w", tournamentID, err)
	}
	if otherTotal+quantity > tournament.TicketQuantity {
		return nil, apperr.Newf(apperr.QuotaExceeded,
			"total allocation %d would exceed tournament ticket quantity %d",
			otherTotal+quantity, tournament.TicketQuantity)
	}

	alloc, err := s.DB.GetAllocation(ctx, tournamentID, storeID)
	if err != nil {
		if !IsNoRows(err) {
			return nil, fmt.Errorf("failed to load allocation: %w", err)
		}
		// First allocation for this (tournament, store) pair.
		alloc = &models.StoreAllocation{
			TournamentID:      tournamentID,
			StoreID:           storeID,
			AllocatedQuantity: quantity,
			RemainingQuantity: quantity,
			Memo:              memo,
		}
		if err := s.DB.InsertAllocation(ctx, alloc); err != nil {
			return nil, fmt.Errorf("failed to create allocation: %w", err)
		}
		return alloc, nil
	}

	if quantity < alloc.DistributedQuantity {
		return nil, apperr.Newf(apperr.Validation,
			"allocated quantity %d cannot drop below distributed quantity %d",
			quantity, alloc.DistributedQuantity)
	}

	version := alloc.Version
	alloc.RemainingQuantity += quantity - alloc.AllocatedQuantity
	alloc.AllocatedQuantity = quantity
	if memo != "" {
		alloc.Memo = memo
	}

	ok, err := s.DB.UpdateAllocationVersioned(ctx, alloc, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update allocation: %w", err)
	}
	if !ok {
		return nil, versionConflict(tournamentID, storeID)
	}
	return alloc, nil
}

// Reserve moves quantity tickets from remaining to distributed. It fails
// with QuotaExceeded when the store's remaining quota cannot cover it, and
// with Conflict when a concurrent writer bumped the row version.
func (s *Service) Reserve(ctx context.Context, tournamentID, storeID string, quantity int) error {
	if quantity <= 0 {
		return apperr.New(apperr.Validation, "reserve quantity must be positive")
	}

	alloc, err := s.DB.GetAllocation(ctx, tournamentID, storeID)
	if err != nil {
		if IsNoRows(err) {
			return apperr.Newf(apperr.NotFound,
				"no allocation for tournament %s store %s", tournamentID, storeID)
		}
		return fmt.Errorf("failed to load allocation: %w", err)
	}

	if alloc.RemainingQuantity < quantity {
		return apperr.Newf(apperr.QuotaExceeded,
			"store %s has %d tickets remaining, %d requested",
			storeID, alloc.RemainingQuantity, quantity)
	}

	version := alloc.Version
	alloc.RemainingQuantity -= quantity
	alloc.DistributedQuantity += quantity

	ok, err := s.DB.UpdateAllocationVersioned(ctx, alloc, version)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	if !ok {
		return versionConflict(tournamentID, storeID)
	}
	return nil
}

// Release is the inverse of Reserve, called on cancel and expire. Releasing
// more than is distributed indicates a bug in the caller, not user input, so
// it surfaces as an internal error rather than a validation failure.
func (s *Service) Release(ctx context.Context, tournamentID, storeID string, quantity int) error {
	if quantity <= 0 {
		return apperr.New(apperr.Validation, "release quantity must be positive")
	}

	alloc, err := s.DB.GetAllocation(ctx, tournamentID, storeID)
	if err != nil {
		if IsNoRows(err) {
			return apperr.Newf(apperr.NotFound,
				"no allocation for tournament %s store %s", tournamentID, storeID)
		}
		return fmt.Errorf("failed to load allocation: %w", err)
	}

	if alloc.DistributedQuantity < quantity {
		return apperr.Newf(apperr.Internal,
			"release of %d would drive distributed quantity %d negative for store %s",
			quantity, alloc.DistributedQuantity, storeID)
	}

	version := alloc.Version
	alloc.RemainingQuantity += quantity
	alloc.DistributedQuantity -= quantity

	ok, err := s.DB.UpdateAllocationVersioned(ctx, alloc, version)
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	if !ok {
		return versionConflict(tournamentID, storeID)
	}
	return nil
}

// SummaryByTournament aggregates allocation counters across a tournament's stores.
func (s *Service) SummaryByTournament(ctx context.Context, tournamentID string) (*models.QuotaSummary, []models.StoreAllocation, error) {
	allocs, err := s.DB.GetAllocationsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	summary := sumAllocations(allocs)
	summary.TournamentID = tournamentID
	return summary, allocs, nil
}

// SummaryByStore aggregates allocation counters across a store's tournaments.
func (s *Service) SummaryByStore(ctx context.Context, storeID string) (*models.QuotaSummary, []models.StoreAllocation, error) {
	allocs, err := s.DB.GetAllocationsByStore(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	summary := sumAllocations(allocs)
	summary.StoreID = storeID
	return summary, allocs, nil
}

// OverallSummary aggregates every allocation row in the ledger.
func (s *Service) OverallSummary(ctx context.Context) (*models.QuotaSummary, error) {
	allocs, err := s.DB.GetAllAllocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	summary := sumAllocations(allocs)
	stores := map[string]bool{}
	for _, a := range allocs {
		stores[a.StoreID] = true
	}
	summary.StoreCount = len(stores)
	return summary, nil
}

func sumAllocations(allocs []models.StoreAllocation) *models.QuotaSummary {
	summary := &models.QuotaSummary{}
	for _, a := range allocs {
		summary.AllocatedQuantity += a.AllocatedQuantity
		summary.DistributedQuantity += a.DistributedQuantity
		summary.RemainingQuantity += a.RemainingQuantity
	}
	if summary.AllocatedQuantity > 0 {
		summary.DistributionRate = float64(summary.DistributedQuantity) / float64(summary.AllocatedQuantity)
	}
	return summary
}
