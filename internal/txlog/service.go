package txlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-seatledger/internal/apperr"
	"ms-seatledger/internal/models"
)

// TxLogDBLayer is the persistence surface the audit trail needs.
type TxLogDBLayer interface {
	InsertTransaction(ctx context.Context, tx *models.TicketTransaction) error
	QueryTransactions(ctx context.Context, filter Filter) ([]models.TicketTransaction, error)
	AllInOrder(ctx context.Context) ([]models.TicketTransaction, error)
}

// Service is the append-only transaction log. Every successful mutating
// facade call appends exactly one entry here.
type Service struct {
	DB TxLogDBLayer
}

func NewService(db TxLogDBLayer) *Service {
	return &Service{DB: db}
}

// Record appends one audit entry, assigning its ID and timestamp.
func (s *Service) Record(ctx context.Context, entry models.TicketTransaction) (*models.TicketTransaction, error) {
	if !models.ValidTxType(entry.Type) {
		return nil, apperr.Newf(apperr.Validation, "unknown transaction type %q", entry.Type)
	}
	entry.TransactionID = uuid.New().String()
	entry.CreatedAt = time.Now()
	if err := s.DB.InsertTransaction(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to record %s transaction: %w", entry.Type, err)
	}
	return &entry, nil
}

// Query returns matching audit entries, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]models.TicketTransaction, error) {
	if filter.Type != "" && !models.ValidTxType(filter.Type) {
		return nil, apperr.Newf(apperr.Validation, "unknown transaction type %q", filter.Type)
	}
	txs, err := s.DB.QueryTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return txs, nil
}

// All returns the complete log oldest-first for replay.
func (s *Service) All(ctx context.Context) ([]models.TicketTransaction, error) {
	txs, err := s.DB.AllInOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction log: %w", err)
	}
	return txs, nil
}
