package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/model"
	"panel-wallet/internal/notify"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// AdjustService applies manual credit corrections made by staff.
type AdjustService struct {
	db       db.DB
	logger   *TransactionLogger
	receipts *ReceiptService
}

// NewAdjustService creates a new AdjustService.
func NewAdjustService(database db.DB, logger *TransactionLogger, receipts *ReceiptService) *AdjustService {
	return &AdjustService{db: database, logger: logger, receipts: receipts}
}

// Increase credits an account through a manual receipt that is approved
// immediately, so the top-up follows the same path as a card deposit and
// earns the referrer a commission.
func (s *AdjustService) Increase(ctx context.Context, accountID, amount int64, actor model.Actor) (*ReceiptResult, error) {
	if amount <= 0 {
		return &ReceiptResult{Code: model.CodeInvalidAmount}, nil
	}

	if _, err := repository.NewAccountRepository(s.db).GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &ReceiptResult{Code: model.CodeAccountNotFound}, nil
		}
		return nil, err
	}

	rc := &model.Receipt{
		UserID: &accountID,
		Amount: &amount,
		Method: model.MethodManual,
		Disk:   "none",
		Status: model.ReceiptSubmitted,
		Meta:   model.Meta{"by_admin": true},
	}
	if actor.ID != nil {
		rc.Meta["admin_id"] = *actor.ID
	}
	if err := repository.NewReceiptRepository(s.db).Create(ctx, rc); err != nil {
		return nil, err
	}

	return s.receipts.Approve(ctx, rc.ID, actor, amount)
}

// Decrease debits an account as a wallet_adjust and records a verified
// adjust receipt. It never drives credit below zero.
func (s *AdjustService) Decrease(ctx context.Context, accountID, amount int64, actor model.Actor) (*ReceiptResult, error) {
	res := &ReceiptResult{}
	if amount <= 0 {
		res.Code = model.CodeInvalidAmount
		return res, nil
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		accounts := repository.NewAccountRepository(tx)
		receipts := repository.NewReceiptRepository(tx)

		acc, err := accounts.GetForUpdate(ctx, accountID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			res.Code = model.CodeAccountNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if acc.Credit < amount {
			res.Code = model.CodeInsufficientCredit
			res.BalanceAfter = acc.Credit
			return nil
		}

		after := acc.Credit - amount
		if err := accounts.SetCredit(ctx, acc.ID, after); err != nil {
			return err
		}

		rc := &model.Receipt{
			UserID:         &acc.ID,
			Amount:         &amount,
			Method:         model.MethodAdjust,
			Disk:           "none",
			Status:         model.ReceiptVerified,
			CommissionPaid: true,
			Meta:           model.Meta{"by_admin": true, "direction": string(model.DirectionDebit)},
		}
		if err := receipts.Create(ctx, rc); err != nil {
			return err
		}

		txID, err := s.logger.Start(ctx, tx, Entry{
			AccountID:     acc.ID,
			Type:          model.TxWalletAdjust,
			Direction:     model.DirectionDebit,
			Amount:        amount,
			BalanceBefore: acc.Credit,
			BalanceAfter:  after,
			ReferenceType: model.RefReceipt,
			ReferenceID:   rc.ID,
			Meta:          model.Meta{"reason": "admin_decrease"},
			Actor:         actor,
		})
		if err != nil {
			return err
		}
		if err := s.logger.Finalize(ctx, tx, txID, Finalization{UserIDs: []int64{acc.ID}}); err != nil {
			return err
		}

		res.Code = model.CodeOK
		res.ReceiptID = rc.ID
		res.Status = model.ReceiptVerified
		res.Amount = amount
		res.BalanceAfter = after
		res.TransactionID = txID
		res.Notifications = []notify.Notification{
			notify.ToAccount(notify.KindWalletDebited, acc.ID,
				fmt.Sprintf("%d was deducted from your wallet by an administrator. Balance: %d", amount, after),
				map[string]any{"amount": amount, "balance_after": after}),
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Msg("Wallet decrease failed")
		return nil, fmt.Errorf("failed to decrease wallet: %w", err)
	}

	if !res.OK() {
		log.Warn().Int64("account_id", accountID).Int64("amount", amount).Str("code", string(res.Code)).Msg("Wallet decrease rejected")
		return res, nil
	}

	log.Info().
		Int64("account_id", accountID).
		Int64("tx_id", res.TransactionID).
		Int64("amount", amount).
		Int64("balance_after", res.BalanceAfter).
		Msg("Wallet decreased")
	return res, nil
}
