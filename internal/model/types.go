package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TxType is the closed set of ledger transaction types.
type TxType string

// Transaction types.
const (
	TxAccountPurchase    TxType = "account_purchase"
	TxAccountExtend      TxType = "account_extend"
	TxTrafficPurchase    TxType = "traffic_purchase"
	TxWalletTopupCard    TxType = "wallet_topup_card"
	TxWalletAdjust       TxType = "wallet_adjust"
	TxReferrerCommission TxType = "referrer_commission"
)

// TxTypes returns every known transaction type.
func TxTypes() []TxType {
	return []TxType{
		TxAccountPurchase,
		TxAccountExtend,
		TxTrafficPurchase,
		TxWalletTopupCard,
		TxWalletAdjust,
		TxReferrerCommission,
	}
}

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	for _, known := range TxTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsCharge reports whether t debits the wallet for a provisioning action.
func (t TxType) IsCharge() bool {
	return t == TxAccountPurchase || t == TxAccountExtend || t == TxTrafficPurchase
}

// ParseTxType converts an external string into a TxType.
func ParseTxType(s string) (TxType, error) {
	t := TxType(strings.TrimSpace(strings.ToLower(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// Direction is the sign of a ledger movement.
type Direction string

// Directions.
const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Valid reports whether d is credit or debit.
func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Signed applies the direction to an unsigned amount.
func (d Direction) Signed(amount int64) int64 {
	if d == DirectionDebit {
		return -amount
	}
	return amount
}

// TxStatus is the lifecycle status of a transaction.
type TxStatus string

// Transaction statuses.
const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

// ReceiptStatus is the review status of a wallet receipt.
type ReceiptStatus string

// Receipt statuses.
const (
	ReceiptUploaded  ReceiptStatus = "uploaded"
	ReceiptSubmitted ReceiptStatus = "submitted"
	ReceiptVerified  ReceiptStatus = "verified"
	ReceiptRejected  ReceiptStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptVerified || s == ReceiptRejected
}

// CanTransition reports whether a receipt may move from s to next.
func (s ReceiptStatus) CanTransition(next ReceiptStatus) bool {
	switch s {
	case ReceiptUploaded:
		return next == ReceiptSubmitted || next == ReceiptVerified || next == ReceiptRejected
	case ReceiptSubmitted:
		return next == ReceiptSubmitted || next == ReceiptVerified || next == ReceiptRejected
	}
	return false
}

// ReceiptMethod tells how a receipt entered the system.
type ReceiptMethod string

// Receipt methods.
const (
	MethodCard   ReceiptMethod = "card"
	MethodManual ReceiptMethod = "manual"
	MethodAdjust ReceiptMethod = "adjust"
)

// Reference types stored on transactions.
const (
	RefReceipt     = "panel_wallet_receipt"
	RefTransaction = "panel_transaction"
	RefV2User      = "v2_user"
)

// PlanKey identifies a purchasable plan.
type PlanKey string

// Plan keys.
const (
	PlanTest PlanKey = "test"
	Plan1M   PlanKey = "1m"
	Plan3M   PlanKey = "3m"
	Plan6M   PlanKey = "6m"
	Plan12M  PlanKey = "12m"
	PlanGig  PlanKey = "gig"
)

// NormalizePlanKey lowercases and trims a raw plan key, folding the
// no-expiry alias onto its priced plan.
func NormalizePlanKey(raw string) PlanKey {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "1m_noexp" {
		return Plan1M
	}
	return PlanKey(key)
}

// ParsePrice interprets a catalog price string. Empty, non-numeric and
// negative values mean the price is not configured.
func ParsePrice(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil
	}
	v := d.IntPart()
	return &v
}

// Price returns the parsed default price of the plan.
func (p *Plan) Price() *int64 {
	return ParsePrice(p.DefaultPrice)
}

// Role is the role of whoever performed a ledger action.
type Role string

// Actor roles.
const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleSystem Role = "system"
)

// Actor identifies who performed an action. The zero value is the system.
type Actor struct {
	ID   *int64
	Role Role
}

// SystemActor returns the actor used for automated actions.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

// NewActor builds an actor with a known id.
func NewActor(id int64, role Role) Actor {
	return Actor{ID: &id, Role: role}
}

// RoleName returns the stored role, defaulting to system.
func (a Actor) RoleName() string {
	if a.Role == "" {
		return string(RoleSystem)
	}
	return string(a.Role)
}

// IsStaff reports whether the actor may review receipts.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// Code is a business outcome returned by ledger operations.
type Code string

// Outcome codes.
const (
	CodeOK                 Code = "OK"
	CodeAccountNotFound    Code = "ACCOUNT_NOT_FOUND"
	CodePriceNotConfigured Code = "PRICE_NOT_CONFIGURED"
	CodeInsufficientCredit Code = "INSUFFICIENT_CREDIT"
	CodeAlreadyVerified    Code = "ALREADY_VERIFIED"
	CodeAlreadyRejected    Code = "ALREADY_REJECTED"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeProvisioningFailed Code = "PROVISIONING_FAILED"
	CodeAlreadyProcessed   Code = "ALREADY_PROCESSED"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
)

// AlreadyProcessed reports whether the code means the receipt was already
// decided, whichever way.
func (c Code) AlreadyProcessed() bool {
	return c == CodeAlreadyVerified || c == CodeAlreadyRejected || c == CodeAlreadyProcessed
}
