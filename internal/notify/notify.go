// Package notify delivers ledger notifications after a database commit.
// Delivery is best-effort: a failed send never changes ledger state.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindReceiptSubmitted Kind = "receipt_submitted"
	KindWalletCredited   Kind = "wallet_credited"
	KindReceiptRejected  Kind = "receipt_rejected"
	KindReceiptDecided   Kind = "receipt_decided"
	KindCommissionPaid   Kind = "commission_paid"
	KindWalletDebited    Kind = "wallet_debited"
)

// Notification is a message produced by a ledger operation. AccountID zero
// addresses the reviewers instead of a single account.
type Notification struct {
	Kind      Kind           `json:"kind"`
	AccountID int64          `json:"account_id,omitempty"`
	Text      string         `json:"text"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToAccount builds a notification for one account.
func ToAccount(kind Kind, accountID int64, text string, data map[string]any) Notification {
	return Notification{Kind: kind, AccountID: accountID, Text: text, Data: data, CreatedAt: time.Now()}
}

// ToAdmins builds a notification for the reviewers.
func ToAdmins(kind Kind, text string, data map[string]any) Notification {
	return Notification{Kind: kind, Text: text, Data: data, CreatedAt: time.Now()}
}

// ForAdmins reports whether n goes to the reviewers.
func (n Notification) ForAdmins() bool {
	return n.AccountID == 0
}

// Dispatcher sends a single notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every dispatcher.
type Multi []Dispatcher

// Dispatch sends to all dispatchers and joins their errors.
func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Dispatch implements Dispatcher.
func (Nop) Dispatch(context.Context, Notification) error { return nil }

// Deliver sends notifications in order, logging and swallowing failures.
func Deliver(ctx context.Context, d Dispatcher, notifications []Notification) {
	if d == nil {
		return
	}
	for _, n := range notifications {
		if err := d.Dispatch(ctx, n); err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(n.Kind)).
				Int64("account_id", n.AccountID).
				Msg("Failed to deliver notification")
		}
	}
}
