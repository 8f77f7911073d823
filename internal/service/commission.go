package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"panel-wallet/internal/metrics"
	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// CommissionService credits referrers for their referees' top-ups.
type CommissionService struct {
	logger *TransactionLogger
}

// NewCommissionService creates a new CommissionService.
func NewCommissionService(logger *TransactionLogger) *CommissionService {
	return &CommissionService{logger: logger}
}

// Award credits amount to the referrer inside the caller's transaction and
// records a successful referrer_commission row performed by the system. It
// returns nil when nothing was paid, and ErrCreditOverflow when the referrer
// cannot hold the amount.
func (s *CommissionService) Award(ctx context.Context, q db.Querier, referrerID, amount int64, meta model.Meta, actor model.Actor) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, nil
	}

	accounts := repository.NewAccountRepository(q)
	referrer, err := accounts.GetForUpdate(ctx, referrerID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		log.Warn().Int64("referrer_id", referrerID).Msg("Commission skipped: referrer no longer exists")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	before := referrer.Credit
	after, ok := addCredit(before, amount)
	if !ok {
		log.Warn().Int64("referrer_id", referrerID).Int64("amount", amount).Msg("Commission would overflow referrer credit")
		return nil, ErrCreditOverflow
	}
	if err := accounts.SetCredit(ctx, referrerID, after); err != nil {
		return nil, err
	}

	meta = meta.Clone()
	userIDs := []int64{referrerID}
	if payer, ok := meta[model.MetaPayerID].(int64); ok {
		userIDs = append(userIDs, payer)
	}

	system := model.Actor{ID: actor.ID, Role: model.RoleSystem}
	txID, err := s.logger.Start(ctx, q, Entry{
		AccountID:     referrerID,
		Type:          model.TxReferrerCommission,
		Direction:     model.DirectionCredit,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Meta:          meta.WithUserIDs(userIDs...),
		Actor:         system,
	})
	if err != nil {
		return nil, err
	}
	if err := s.logger.Finalize(ctx, q, txID, Finalization{}); err != nil {
		return nil, err
	}

	metrics.ObserveCommission(amount)
	log.Info().
		Int64("referrer_id", referrerID).
		Int64("tx_id", txID).
		Int64("amount", amount).
		Int64("balance_after", after).
		Msg("Referrer commission paid")

	return &model.Transaction{
		ID:            txID,
		AccountID:     referrerID,
		Type:          model.TxReferrerCommission,
		Direction:     model.DirectionCredit,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        model.TxSuccess,
	}, nil
}
