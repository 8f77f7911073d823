package service

import (
	"context"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// HistoryService answers read-only balance and ledger queries.
type HistoryService struct {
	db db.Querier
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(q db.Querier) *HistoryService {
	return &HistoryService{db: q}
}

// GetAccount returns an account without locking it.
func (s *HistoryService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return repository.NewAccountRepository(s.db).GetByID(ctx, id)
}

// ListTransactions returns the newest ledger rows of an account.
func (s *HistoryService) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*model.Transaction, error) {
	return repository.NewTransactionRepository(s.db).ListByAccount(ctx, accountID, limit)
}

// AccountByTelegramID returns the account linked to a Telegram user.
func (s *HistoryService) AccountByTelegramID(ctx context.Context, telegramID int64) (*model.Account, error) {
	return repository.NewAccountRepository(s.db).GetByTelegramID(ctx, telegramID)
}
