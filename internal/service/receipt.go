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

// UploadRequest describes a stored receipt image.
type UploadRequest struct {
	AccountID    int64
	Method       model.ReceiptMethod
	Disk         string
	Path         string
	OriginalName string
	Mime         string
	Size         int64
	Meta         model.Meta
}

// ReceiptService drives wallet top-up receipts through review.
type ReceiptService struct {
	db         db.DB
	logger     *TransactionLogger
	commission *CommissionService
	minDeposit int64
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(database db.DB, logger *TransactionLogger, commission *CommissionService, minDeposit int64) *ReceiptService {
	return &ReceiptService{
		db:         database,
		logger:     logger,
		commission: commission,
		minDeposit: minDeposit,
	}
}

// reviewGuard maps the current status to the code a review must return.
// OK means the receipt is still open.
func reviewGuard(status model.ReceiptStatus) model.Code {
	switch status {
	case model.ReceiptVerified:
		return model.CodeAlreadyVerified
	case model.ReceiptRejected:
		return model.CodeAlreadyRejected
	case model.ReceiptUploaded, model.ReceiptSubmitted:
		return model.CodeOK
	}
	return model.CodeInvalidState
}

// Upload records a new receipt in status uploaded.
func (s *ReceiptService) Upload(ctx context.Context, req UploadRequest) (*model.Receipt, error) {
	method := req.Method
	if method == "" {
		method = model.MethodCard
	}

	rc := &model.Receipt{
		UserID:       optID(req.AccountID),
		Method:       method,
		Disk:         req.Disk,
		Path:         req.Path,
		OriginalName: optString(req.OriginalName),
		Mime:         optString(req.Mime),
		Size:         optID(req.Size),
		Status:       model.ReceiptUploaded,
		Meta:         req.Meta.Clone(),
	}
	if err := repository.NewReceiptRepository(s.db).Create(ctx, rc); err != nil {
		return nil, err
	}

	log.Info().Int64("receipt_id", rc.ID).Int64("account_id", req.AccountID).Msg("Receipt uploaded")
	return rc, nil
}

// Submit attaches the claimed amount to an uploaded receipt and opens the
// pending top-up placeholder. The balance is untouched until approval.
func (s *ReceiptService) Submit(ctx context.Context, receiptID, accountID, amount int64, actor model.Actor) (*ReceiptResult, error) {
	res := &ReceiptResult{ReceiptID: receiptID}
	if amount <= 0 || amount < s.minDeposit {
		res.Code = model.CodeInvalidAmount
		return res, nil
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		receipts := repository.NewReceiptRepository(tx)
		accounts := repository.NewAccountRepository(tx)

		rc, err := receipts.GetForUpdate(ctx, receiptID)
		if errors.Is(err, repository.ErrReceiptNotFound) {
			res.Code = model.CodeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		res.Status = rc.Status

		if rc.UserID != nil && *rc.UserID != accountID {
			res.Code = model.CodeNotFound
			return nil
		}
		if !rc.Status.CanTransition(model.ReceiptSubmitted) {
			res.Code = model.CodeInvalidState
			return nil
		}

		acc, err := accounts.GetForUpdate(ctx, accountID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			res.Code = model.CodeAccountNotFound
			return nil
		}
		if err != nil {
			return err
		}

		rc.UserID = &acc.ID
		rc.Amount = &amount
		rc.Status = model.ReceiptSubmitted
		if err := receipts.Update(ctx, rc); err != nil {
			return err
		}

		txID, err := s.logger.Start(ctx, tx, Entry{
			AccountID:      acc.ID,
			Type:           model.TxWalletTopupCard,
			Direction:      model.DirectionCredit,
			Amount:         amount,
			BalanceBefore:  acc.Credit,
			BalanceAfter:   acc.Credit,
			ReferenceType:  model.RefReceipt,
			ReferenceID:    rc.ID,
			IdempotencyKey: "pending_receipt:" + strconv.FormatInt(rc.ID, 10),
			Meta:           model.Meta{"method": string(rc.Method), "receipt_id": rc.ID},
			Actor:          actor,
		})
		if err != nil {
			return err
		}

		res.Code = model.CodeOK
		res.Status = model.ReceiptSubmitted
		res.Amount = amount
		res.TransactionID = txID
		res.Notifications = []notify.Notification{
			notify.ToAdmins(notify.KindReceiptSubmitted,
				fmt.Sprintf("Card deposit receipt #%d\nAccount: %s (#%d)\nAmount: %d", rc.ID, displayName(acc), acc.ID, amount),
				map[string]any{"receipt_id": rc.ID, "account_id": acc.ID, "amount": amount}),
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("receipt_id", receiptID).Msg("Receipt submission failed")
		return nil, fmt.Errorf("failed to submit receipt: %w", err)
	}

	if res.OK() {
		log.Info().Int64("receipt_id", receiptID).Int64("account_id", accountID).Int64("amount", amount).Msg("Receipt submitted")
	} else {
		log.Warn().Int64("receipt_id", receiptID).Str("code", string(res.Code)).Msg("Receipt submission rejected")
	}
	return res, nil
}

// Approve credits the receipt amount to its owner, settles the pending
// placeholder, pays the referrer commission at most once and marks the
// receipt verified. amount is authoritative over the submitted value.
func (s *ReceiptService) Approve(ctx context.Context, receiptID int64, actor model.Actor, amount int64) (*ReceiptResult, error) {
	res := &ReceiptResult{ReceiptID: receiptID}
	if amount <= 0 {
		res.Code = model.CodeInvalidAmount
		return res, nil
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		receipts := repository.NewReceiptRepository(tx)
		accounts := repository.NewAccountRepository(tx)
		txs := repository.NewTransactionRepository(tx)

		rc, err := receipts.GetForUpdate(ctx, receiptID)
		if errors.Is(err, repository.ErrReceiptNotFound) {
			res.Code = model.CodeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		res.Status = rc.Status

		if code := reviewGuard(rc.Status); code != model.CodeOK {
			res.Code = code
			return nil
		}
		if rc.UserID == nil {
			res.Code = model.CodeInvalidState
			return nil
		}

		payer, err := accounts.GetForUpdate(ctx, *rc.UserID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			res.Code = model.CodeAccountNotFound
			return nil
		}
		if err != nil {
			return err
		}

		pending, err := txs.FindPendingForReference(ctx, payer.ID, model.TxWalletTopupCard, model.RefReceipt, rc.ID)
		if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
			return err
		}

		verifyKey := "verify_receipt:" + strconv.FormatInt(rc.ID, 10)
		if pending == nil {
			if _, err := txs.IDByIdempotencyKey(ctx, verifyKey); err == nil {
				res.Code = model.CodeAlreadyVerified
				return nil
			} else if !errors.Is(err, repository.ErrTransactionNotFound) {
				return err
			}
		}

		before := payer.Credit
		after, ok := addCredit(before, amount)
		if !ok {
			res.Code = model.CodeInvalidAmount
			return nil
		}
		if err := accounts.SetCredit(ctx, payer.ID, after); err != nil {
			return err
		}

		var txID int64
		if pending != nil {
			if err := txs.Settle(ctx, pending.ID, amount, before, after, actor); err != nil {
				return err
			}
			txID = pending.ID
		} else {
			txID, err = s.logger.Start(ctx, tx, Entry{
				AccountID:      payer.ID,
				Type:           model.TxWalletTopupCard,
				Direction:      model.DirectionCredit,
				Amount:         amount,
				BalanceBefore:  before,
				BalanceAfter:   after,
				ReferenceType:  model.RefReceipt,
				ReferenceID:    rc.ID,
				IdempotencyKey: verifyKey,
				Meta:           model.Meta{"method": string(rc.Method), "by_admin": actor.IsStaff()},
				Actor:          actor,
			})
			if err != nil {
				return err
			}
			if err := s.logger.Finalize(ctx, tx, txID, Finalization{}); err != nil {
				return err
			}
		}

		res.Notifications = append(res.Notifications, notify.ToAccount(notify.KindWalletCredited, payer.ID,
			fmt.Sprintf("Receipt #%d approved: %d credited to your wallet. Balance: %d", rc.ID, amount, after),
			map[string]any{"receipt_id": rc.ID, "amount": amount, "balance_after": after}))

		if !rc.CommissionPaid && payer.ReferrerEligible() {
			commission := CommissionFor(amount, payer.CommissionRate.Decimal)
			paid, err := s.commission.Award(ctx, tx, *payer.ReferredByID, commission, model.Meta{
				model.MetaPayerID:        payer.ID,
				model.MetaPayerEmail:     payer.Email,
				model.MetaPayerCode:      payer.Code,
				model.MetaPayerName:      payer.Name,
				model.MetaSourceAmount:   amount,
				model.MetaCommissionRate: payer.CommissionRate.Decimal.InexactFloat64(),
				model.MetaSourceReceipt:  rc.ID,
			}, actor)
			if err != nil {
				return err
			}
			if paid != nil {
				rc.CommissionPaid = true
				rc.CommissionTxID = &paid.ID
				res.CommissionTxID = paid.ID
				res.CommissionAmount = paid.Amount
				res.Notifications = append(res.Notifications, notify.ToAccount(notify.KindCommissionPaid, paid.AccountID,
					fmt.Sprintf("Referral commission of %d from %s credited. Balance: %d", paid.Amount, displayName(payer), paid.BalanceAfter),
					map[string]any{"receipt_id": rc.ID, "amount": paid.Amount, "balance_after": paid.BalanceAfter}))
			}
		}

		rc.Amount = &amount
		rc.Status = model.ReceiptVerified
		rc.NotifiedAt = nil
		if err := receipts.Update(ctx, rc); err != nil {
			return err
		}

		res.Code = model.CodeOK
		res.Status = model.ReceiptVerified
		res.Amount = amount
		res.BalanceAfter = after
		res.TransactionID = txID
		res.Notifications = append(res.Notifications, notify.ToAdmins(notify.KindReceiptDecided,
			fmt.Sprintf("Receipt #%d approved for %s (#%d): %d", rc.ID, displayName(payer), payer.ID, amount),
			map[string]any{"receipt_id": rc.ID, "status": string(model.ReceiptVerified)}))
		return nil
	})
	if errors.Is(err, ErrCreditOverflow) {
		res = &ReceiptResult{ReceiptID: receiptID, Code: model.CodeInvalidAmount}
		err = nil
	}
	if err != nil {
		log.Error().Err(err).Int64("receipt_id", receiptID).Msg("Receipt approval failed")
		return nil, fmt.Errorf("failed to approve receipt: %w", err)
	}

	metrics.ObserveReceipt("approve", string(res.Code), res.Amount)

	if !res.OK() {
		log.Warn().Int64("receipt_id", receiptID).Str("code", string(res.Code)).Msg("Receipt approval rejected")
		return res, nil
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Int64("tx_id", res.TransactionID).
		Int64("amount", amount).
		Int64("balance_after", res.BalanceAfter).
		Int64("commission", res.CommissionAmount).
		Msg("Receipt approved")
	return res, nil
}

// Reject closes an open receipt without touching any balance and fails its
// pending placeholder.
func (s *ReceiptService) Reject(ctx context.Context, receiptID int64, actor model.Actor, reason string) (*ReceiptResult, error) {
	res := &ReceiptResult{ReceiptID: receiptID}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		receipts := repository.NewReceiptRepository(tx)
		txs := repository.NewTransactionRepository(tx)

		rc, err := receipts.GetForUpdate(ctx, receiptID)
		if errors.Is(err, repository.ErrReceiptNotFound) {
			res.Code = model.CodeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		res.Status = rc.Status

		if code := reviewGuard(rc.Status); code != model.CodeOK {
			res.Code = code
			return nil
		}

		if reason != "" {
			rc.Meta = model.Merge(rc.Meta, model.Meta{model.MetaRejectReason: reason})
		}

		if rc.UserID != nil {
			pending, err := txs.FindPendingForReference(ctx, *rc.UserID, model.TxWalletTopupCard, model.RefReceipt, rc.ID)
			switch {
			case err == nil:
				var extra model.Meta
				if reason != "" {
					extra = model.Meta{model.MetaRejectReason: reason}
				}
				if err := s.logger.Fail(ctx, tx, pending.ID, Failure{Reason: reason, ExtraMeta: extra, Actor: &actor}); err != nil {
					return err
				}
				res.TransactionID = pending.ID
			case !errors.Is(err, repository.ErrTransactionNotFound):
				return err
			}
		}

		rc.Status = model.ReceiptRejected
		rc.NotifiedAt = nil
		if err := receipts.Update(ctx, rc); err != nil {
			return err
		}

		res.Code = model.CodeOK
		res.Status = model.ReceiptRejected
		if rc.Amount != nil {
			res.Amount = *rc.Amount
		}

		text := fmt.Sprintf("Receipt #%d was rejected", rc.ID)
		if reason != "" {
			text += ": " + reason
		}
		if rc.UserID != nil {
			res.Notifications = append(res.Notifications, notify.ToAccount(notify.KindReceiptRejected, *rc.UserID, text,
				map[string]any{"receipt_id": rc.ID, "reason": reason}))
		}
		res.Notifications = append(res.Notifications, notify.ToAdmins(notify.KindReceiptDecided, text,
			map[string]any{"receipt_id": rc.ID, "status": string(model.ReceiptRejected)}))
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("receipt_id", receiptID).Msg("Receipt rejection failed")
		return nil, fmt.Errorf("failed to reject receipt: %w", err)
	}

	metrics.ObserveReceipt("reject", string(res.Code), 0)

	if !res.OK() {
		log.Warn().Int64("receipt_id", receiptID).Str("code", string(res.Code)).Msg("Receipt rejection refused")
		return res, nil
	}

	log.Info().Int64("receipt_id", receiptID).Str("reason", reason).Msg("Receipt rejected")
	return res, nil
}

// PendingNotice returns the newest approved receipt the account has not been
// told about, or nil.
func (s *ReceiptService) PendingNotice(ctx context.Context, accountID int64) (*model.Receipt, error) {
	rc, err := repository.NewReceiptRepository(s.db).LatestUnnotifiedVerified(ctx, accountID)
	if errors.Is(err, repository.ErrReceiptNotFound) {
		return nil, nil
	}
	return rc, err
}

// AckNotice records that the owner saw the approval of a receipt.
func (s *ReceiptService) AckNotice(ctx context.Context, accountID, receiptID int64) (bool, error) {
	return repository.NewReceiptRepository(s.db).MarkNotified(ctx, receiptID, accountID)
}

// AckCommissionNotice records that the referrer saw the commission paid for
// a receipt.
func (s *ReceiptService) AckCommissionNotice(ctx context.Context, referrerID, receiptID int64) (bool, error) {
	return repository.NewReceiptRepository(s.db).MarkCommissionNotified(ctx, receiptID, referrerID)
}

// PendingCount returns the number of receipts waiting for review.
func (s *ReceiptService) PendingCount(ctx context.Context) (int64, error) {
	return repository.NewReceiptRepository(s.db).CountByStatus(ctx, model.ReceiptSubmitted)
}

func displayName(acc *model.Account) string {
	switch {
	case acc.Code != "":
		return acc.Code
	case acc.Name != "":
		return acc.Name
	case acc.Email != "":
		return acc.Email
	}
	return "#" + strconv.FormatInt(acc.ID, 10)
}
