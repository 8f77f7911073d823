package service

import (
	"panel-wallet/internal/model"
	"panel-wallet/internal/notify"
)

// ChargeResult is the outcome of a debit. Code is OK on success; the price
// fields are filled whenever the price could be resolved.
type ChargeResult struct {
	Code          model.Code `json:"code"`
	UnitPrice     int64      `json:"unit_price,omitempty"`
	TotalPrice    int64      `json:"total_price,omitempty"`
	BalanceBefore int64      `json:"balance_before,omitempty"`
	BalanceAfter  int64      `json:"balance_after,omitempty"`
	TransactionID int64      `json:"transaction_id,omitempty"`

	Notifications []notify.Notification `json:"-"`
}

// OK reports whether the charge went through.
func (r *ChargeResult) OK() bool {
	return r.Code == model.CodeOK
}

// fill copies the amounts recorded on a charge row.
func (r *ChargeResult) fill(tx *model.Transaction) {
	r.TotalPrice = tx.Amount
	r.BalanceBefore = tx.BalanceBefore
	r.BalanceAfter = tx.BalanceAfter
	r.TransactionID = tx.ID
	if unit, ok := tx.Meta.Int64(model.MetaUnitPrice); ok {
		r.UnitPrice = unit
	}
}

// replay reports a charge that an earlier call with the same idempotency key
// already recorded.
func (r *ChargeResult) replay(tx *model.Transaction) {
	r.fill(tx)
	r.Code = model.CodeAlreadyProcessed
}

// ReceiptResult is the outcome of a receipt lifecycle operation.
type ReceiptResult struct {
	Code             model.Code          `json:"code"`
	ReceiptID        int64               `json:"receipt_id"`
	Status           model.ReceiptStatus `json:"status,omitempty"`
	Amount           int64               `json:"amount,omitempty"`
	BalanceAfter     int64               `json:"balance_after,omitempty"`
	TransactionID    int64               `json:"transaction_id,omitempty"`
	CommissionTxID   int64               `json:"commission_tx_id,omitempty"`
	CommissionAmount int64               `json:"commission_amount,omitempty"`

	// Notifications must be delivered only after the call returns, which
	// is after commit.
	Notifications []notify.Notification `json:"-"`
}

// OK reports whether the operation went through.
func (r *ReceiptResult) OK() bool {
	return r.Code == model.CodeOK
}
