// Package model defines the data models for the panel wallet ledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a reseller/panel user holding a prepaid credit balance.
type Account struct {
	ID                      int64               `db:"id" json:"id"`
	Name                    string              `db:"name" json:"name"`
	Email                   string              `db:"email" json:"email"`
	Code                    string              `db:"code" json:"code"`
	Role                    string              `db:"role" json:"role"`
	TelegramUserID          *int64              `db:"telegram_user_id" json:"telegram_user_id"`
	Credit                  int64               `db:"credit" json:"credit"`
	ReferredByID            *int64              `db:"referred_by_id" json:"referred_by_id"`
	CommissionRate          decimal.NullDecimal `db:"ref_commission_rate" json:"ref_commission_rate"`
	EnablePersonalizedPrice bool                `db:"enable_personalized_price" json:"enable_personalized_price"`
	PersonalizedPriceTest   *int64              `db:"personalized_price_test" json:"personalized_price_test"`
	PersonalizedPrice1      *int64              `db:"personalized_price_1" json:"personalized_price_1"`
	PersonalizedPrice3      *int64              `db:"personalized_price_3" json:"personalized_price_3"`
	PersonalizedPrice6      *int64              `db:"personalized_price_6" json:"personalized_price_6"`
	PersonalizedPrice12     *int64              `db:"personalized_price_12" json:"personalized_price_12"`
	TrafficPrice            *int64              `db:"traffic_price" json:"traffic_price"`
	CreatedAt               time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at" json:"updated_at"`
}

// PersonalizedPrice returns the per-account override for a plan key.
// The second value is false when the key has no personalized column.
func (a *Account) PersonalizedPrice(key PlanKey) (*int64, bool) {
	switch key {
	case PlanTest:
		return a.PersonalizedPriceTest, true
	case Plan1M:
		return a.PersonalizedPrice1, true
	case Plan3M:
		return a.PersonalizedPrice3, true
	case Plan6M:
		return a.PersonalizedPrice6, true
	case Plan12M:
		return a.PersonalizedPrice12, true
	}
	return nil, false
}

// ReferrerEligible reports whether a payment by this account can earn its
// referrer a commission.
func (a *Account) ReferrerEligible() bool {
	if a.ReferredByID == nil || *a.ReferredByID == a.ID {
		return false
	}
	return a.CommissionRate.Valid && a.CommissionRate.Decimal.IsPositive()
}

// Transaction is one row of the wallet ledger.
type Transaction struct {
	ID              int64     `db:"id" json:"id"`
	AccountID       int64     `db:"panel_user_id" json:"account_id"`
	Type            TxType    `db:"type" json:"type"`
	Direction       Direction `db:"direction" json:"direction"`
	Amount          int64     `db:"amount" json:"amount"`
	BalanceBefore   int64     `db:"balance_before" json:"balance_before"`
	BalanceAfter    int64     `db:"balance_after" json:"balance_after"`
	Status          TxStatus  `db:"status" json:"status"`
	Quantity        int       `db:"quantity" json:"quantity"`
	PlanKeyBefore   *string   `db:"plan_key_before" json:"plan_key_before"`
	PlanKeyAfter    *string   `db:"plan_key_after" json:"plan_key_after"`
	ReferenceType   *string   `db:"reference_type" json:"reference_type"`
	ReferenceID     *int64    `db:"reference_id" json:"reference_id"`
	PerformedByID   *int64    `db:"performed_by_id" json:"performed_by_id"`
	PerformedByRole *string   `db:"performed_by_role" json:"performed_by_role"`
	Currency        string    `db:"currency" json:"currency"`
	IdempotencyKey  *string   `db:"idempotency_key" json:"idempotency_key"`
	Meta            Meta      `db:"meta" json:"meta"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Conserves reports whether the recorded snapshots agree with the signed
// amount. Placeholders that did not touch the balance (before == after) are
// accepted.
func (t *Transaction) Conserves() bool {
	if t.BalanceBefore == t.BalanceAfter {
		return true
	}
	return t.BalanceAfter-t.BalanceBefore == t.Direction.Signed(t.Amount)
}

// Receipt is a wallet top-up receipt moving through the review workflow.
type Receipt struct {
	ID                   int64         `db:"id" json:"id"`
	UserID               *int64        `db:"user_id" json:"user_id"`
	Amount               *int64        `db:"amount" json:"amount"`
	Method               ReceiptMethod `db:"method" json:"method"`
	Disk                 string        `db:"disk" json:"disk"`
	Path                 string        `db:"path" json:"path"`
	OriginalName         *string       `db:"original_name" json:"original_name"`
	Mime                 *string       `db:"mime" json:"mime"`
	Size                 *int64        `db:"size" json:"size"`
	Status               ReceiptStatus `db:"status" json:"status"`
	CommissionPaid       bool          `db:"commission_paid" json:"commission_paid"`
	CommissionTxID       *int64        `db:"commission_tx_id" json:"commission_tx_id"`
	NotifiedAt           *time.Time    `db:"notified_at" json:"notified_at"`
	CommissionNotifiedAt *time.Time    `db:"commission_notified_at" json:"commission_notified_at"`
	Meta                 Meta          `db:"meta" json:"meta"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// Plan is a catalog entry holding the default unit price of a plan key.
type Plan struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	PlanKey      PlanKey   `db:"plan_key" json:"plan_key"`
	Enable       bool      `db:"enable" json:"enable"`
	DefaultPrice string    `db:"default_price" json:"default_price"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
