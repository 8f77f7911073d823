package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/metrics"
	"panel-wallet/internal/model"
	"panel-wallet/internal/notify"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// ChargeRequest describes a debit for a provisioning action.
type ChargeRequest struct {
	AccountID      int64
	PlanKey        string
	Quantity       int
	Type           model.TxType
	Actor          model.Actor
	IdempotencyKey string
	Meta           model.Meta
}

// errKeyTaken rolls back a charge whose idempotency key was claimed by a
// concurrent insert.
var errKeyTaken = errors.New("idempotency key already used")

// ProvisionFunc performs the external side effect paid for by a charge and
// returns how the pending transaction should be finalized.
type ProvisionFunc func(ctx context.Context, txID int64) (Finalization, error)

// ChargeService debits account credit and records the matching transaction.
type ChargeService struct {
	db      db.DB
	pricing *PricingService
	logger  *TransactionLogger
}

// NewChargeService creates a new ChargeService.
func NewChargeService(database db.DB, pricing *PricingService, logger *TransactionLogger) *ChargeService {
	return &ChargeService{db: database, pricing: pricing, logger: logger}
}

// EnsureBalanceAndCharge debits the price of quantity units of planKey as an
// account purchase performed by the system.
func (s *ChargeService) EnsureBalanceAndCharge(ctx context.Context, accountID int64, planKey string, quantity int) (*ChargeResult, error) {
	return s.Charge(ctx, ChargeRequest{
		AccountID: accountID,
		PlanKey:   planKey,
		Quantity:  quantity,
		Type:      model.TxAccountPurchase,
		Actor:     model.SystemActor(),
	})
}

// Charge locks the account, checks the price against its credit, debits it
// and opens a pending debit transaction, all in one database transaction.
// Business rejections come back as a result code with nothing written. A
// repeated idempotency key debits nothing and reports ALREADY_PROCESSED with
// the recorded transaction.
func (s *ChargeService) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	txType := req.Type
	if txType == "" {
		txType = model.TxAccountPurchase
	}
	if !txType.IsCharge() {
		return nil, fmt.Errorf("%w: %q is not a charge type", ErrInvalidTxType, txType)
	}

	key := model.NormalizePlanKey(req.PlanKey)
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	res := &ChargeResult{}
	var takenID int64
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		accounts := repository.NewAccountRepository(tx)
		txs := repository.NewTransactionRepository(tx)

		acc, err := accounts.GetForUpdate(ctx, req.AccountID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			res.Code = model.CodeAccountNotFound
			return nil
		}
		if err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			existingID, err := txs.IDByIdempotencyKey(ctx, req.IdempotencyKey)
			switch {
			case err == nil:
				existing, err := txs.GetByID(ctx, existingID)
				if err != nil {
					return err
				}
				res.replay(existing)
				return nil
			case !errors.Is(err, repository.ErrTransactionNotFound):
				return err
			}
		}

		unit, err := s.pricing.ResolveUnitPrice(ctx, acc, key)
		if err != nil {
			return err
		}
		if unit == nil {
			res.Code = model.CodePriceNotConfigured
			return nil
		}

		total, ok := multiplyPrice(*unit, quantity)
		if !ok {
			res.Code = model.CodeInvalidAmount
			return nil
		}
		res.UnitPrice = *unit
		res.TotalPrice = total
		res.BalanceBefore = acc.Credit

		if acc.Credit < total {
			res.Code = model.CodeInsufficientCredit
			res.BalanceAfter = acc.Credit
			return nil
		}

		after := acc.Credit - total
		if err := accounts.SetCredit(ctx, acc.ID, after); err != nil {
			return err
		}

		meta := model.Merge(req.Meta, model.Meta{model.MetaUnitPrice: *unit})
		txID, created, err := s.logger.Open(ctx, tx, Entry{
			AccountID:      acc.ID,
			Type:           txType,
			Direction:      model.DirectionDebit,
			Amount:         total,
			BalanceBefore:  acc.Credit,
			BalanceAfter:   after,
			Quantity:       quantity,
			PlanKeyAfter:   string(key),
			IdempotencyKey: req.IdempotencyKey,
			Meta:           meta,
			Actor:          req.Actor,
		})
		if err != nil {
			return err
		}
		if !created {
			takenID = txID
			return errKeyTaken
		}

		res.Code = model.CodeOK
		res.BalanceAfter = after
		res.TransactionID = txID
		return nil
	})
	if errors.Is(err, errKeyTaken) {
		res = &ChargeResult{Code: model.CodeAlreadyProcessed, TransactionID: takenID}
		err = nil
	}
	if err != nil {
		log.Error().Err(err).Int64("account_id", req.AccountID).Str("plan_key", string(key)).Msg("Charge failed")
		return nil, fmt.Errorf("failed to charge account: %w", err)
	}

	metrics.ObserveCharge(string(txType), string(res.Code), res.TotalPrice)

	if !res.OK() {
		log.Warn().
			Int64("account_id", req.AccountID).
			Str("plan_key", string(key)).
			Int("quantity", quantity).
			Str("code", string(res.Code)).
			Msg("Charge rejected")
		return res, nil
	}

	log.Info().
		Int64("account_id", req.AccountID).
		Int64("tx_id", res.TransactionID).
		Str("type", string(txType)).
		Str("plan_key", string(key)).
		Int("quantity", quantity).
		Int64("amount", res.TotalPrice).
		Int64("balance_after", res.BalanceAfter).
		Msg("Account charged")
	return res, nil
}

// Finalize marks a pending charge transaction successful.
func (s *ChargeService) Finalize(ctx context.Context, txID int64, f Finalization) (*ChargeResult, error) {
	return s.close(ctx, txID, model.TxSuccess, func(tx pgx.Tx) error {
		return s.logger.Finalize(ctx, tx, txID, f)
	})
}

// Fail marks a pending charge transaction failed. The debit stays; see Refund.
func (s *ChargeService) Fail(ctx context.Context, txID int64, f Failure) (*ChargeResult, error) {
	return s.close(ctx, txID, model.TxFailed, func(tx pgx.Tx) error {
		return s.logger.Fail(ctx, tx, txID, f)
	})
}

// close applies a final status to a pending charge. Rows that are not debit
// charges, or that already carry a final status, are reported and left alone.
func (s *ChargeService) close(ctx context.Context, txID int64, target model.TxStatus, apply func(pgx.Tx) error) (*ChargeResult, error) {
	res := &ChargeResult{}
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		row, err := repository.NewTransactionRepository(tx).GetForUpdate(ctx, txID)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			res.Code = model.CodeNotFound
			return nil
		}
		if err != nil {
			return err
		}

		res.fill(row)
		switch {
		case !row.Type.IsCharge() || row.Direction != model.DirectionDebit:
			res.Code = model.CodeInvalidState
			return nil
		case row.Status == target:
			res.Code = model.CodeAlreadyProcessed
			return nil
		case row.Status != model.TxPending:
			res.Code = model.CodeInvalidState
			return nil
		}

		if err := apply(tx); err != nil {
			return err
		}
		res.Code = model.CodeOK
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("tx_id", txID).Str("target", string(target)).Msg("Closing charge failed")
		return nil, fmt.Errorf("failed to close charge: %w", err)
	}

	if !res.OK() {
		log.Warn().Int64("tx_id", txID).Str("target", string(target)).Str("code", string(res.Code)).Msg("Charge not closed")
		return res, nil
	}

	log.Info().Int64("tx_id", txID).Str("status", string(target)).Msg("Charge closed")
	return res, nil
}

// ChargeAndProvision charges, runs provision and closes the transaction
// according to its outcome. A failed provision leaves the debit in place with
// the transaction marked failed and reports PROVISIONING_FAILED.
func (s *ChargeService) ChargeAndProvision(ctx context.Context, req ChargeRequest, provision ProvisionFunc) (*ChargeResult, error) {
	res, err := s.Charge(ctx, req)
	if err != nil || !res.OK() {
		return res, err
	}

	fin, perr := provision(ctx, res.TransactionID)
	if perr != nil {
		log.Error().Err(perr).Int64("tx_id", res.TransactionID).Msg("Provisioning failed after charge")
		if _, err := s.Fail(ctx, res.TransactionID, Failure{Reason: perr.Error(), Actor: &req.Actor}); err != nil {
			return nil, fmt.Errorf("failed to record provisioning failure: %w", err)
		}
		res.Code = model.CodeProvisioningFailed
		return res, nil
	}

	if _, err := s.Finalize(ctx, res.TransactionID, fin); err != nil {
		return nil, fmt.Errorf("failed to finalize charge: %w", err)
	}
	return res, nil
}

// Refund returns the amount of a failed charge to the account as a
// wallet_adjust credit. Each transaction can be refunded once.
func (s *ChargeService) Refund(ctx context.Context, txID int64, actor model.Actor, reason string) (*ChargeResult, error) {
	res := &ChargeResult{}
	var accountID int64

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		txs := repository.NewTransactionRepository(tx)
		accounts := repository.NewAccountRepository(tx)

		orig, err := txs.GetForUpdate(ctx, txID)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			res.Code = model.CodeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		accountID = orig.AccountID

		if !orig.Type.IsCharge() || orig.Direction != model.DirectionDebit || orig.Status != model.TxFailed {
			res.Code = model.CodeInvalidState
			return nil
		}

		key := "refund:" + strconv.FormatInt(orig.ID, 10)
		if _, err := txs.IDByIdempotencyKey(ctx, key); err == nil {
			res.Code = model.CodeAlreadyProcessed
			return nil
		} else if !errors.Is(err, repository.ErrTransactionNotFound) {
			return err
		}

		acc, err := accounts.GetForUpdate(ctx, orig.AccountID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			res.Code = model.CodeAccountNotFound
			return nil
		}
		if err != nil {
			return err
		}

		after, ok := addCredit(acc.Credit, orig.Amount)
		if !ok {
			res.Code = model.CodeInvalidAmount
			return nil
		}
		if err := accounts.SetCredit(ctx, acc.ID, after); err != nil {
			return err
		}

		meta := model.Meta{model.MetaRefundOf: orig.ID}
		if reason != "" {
			meta["reason"] = reason
		}
		refundID, err := s.logger.Start(ctx, tx, Entry{
			AccountID:      acc.ID,
			Type:           model.TxWalletAdjust,
			Direction:      model.DirectionCredit,
			Amount:         orig.Amount,
			BalanceBefore:  acc.Credit,
			BalanceAfter:   after,
			ReferenceType:  model.RefTransaction,
			ReferenceID:    orig.ID,
			IdempotencyKey: key,
			Meta:           meta,
			Actor:          actor,
		})
		if err != nil {
			return err
		}
		if err := s.logger.Finalize(ctx, tx, refundID, Finalization{}); err != nil {
			return err
		}

		res.Code = model.CodeOK
		res.TotalPrice = orig.Amount
		res.BalanceBefore = acc.Credit
		res.BalanceAfter = after
		res.TransactionID = refundID
		res.Notifications = []notify.Notification{
			notify.ToAccount(notify.KindWalletCredited, acc.ID,
				fmt.Sprintf("Refund of %d credited to your wallet. Balance: %d", orig.Amount, after),
				map[string]any{"refund_of": orig.ID, "amount": orig.Amount, "balance_after": after}),
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("tx_id", txID).Msg("Refund failed")
		return nil, fmt.Errorf("failed to refund transaction: %w", err)
	}

	if !res.OK() {
		log.Warn().Int64("tx_id", txID).Str("code", string(res.Code)).Msg("Refund rejected")
		return res, nil
	}

	log.Info().
		Int64("tx_id", txID).
		Int64("refund_tx_id", res.TransactionID).
		Int64("account_id", accountID).
		Int64("amount", res.TotalPrice).
		Msg("Charge refunded")
	return res, nil
}
