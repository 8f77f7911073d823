package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"
)

// Callback uniques of the review buttons attached to submitted receipts.
const (
	ActionApprove = "rcpt_ok"
	ActionReject  = "rcpt_no"
)

// Sender is the part of *tele.Bot used for delivery.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ChatResolver maps an account to its linked Telegram chat.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, accountID int64) (*int64, error)
}

// Telegram delivers notifications as plain chat messages.
type Telegram struct {
	sender   Sender
	chats    ChatResolver
	adminIDs []int64
}

// NewTelegram creates a Telegram dispatcher.
func NewTelegram(sender Sender, chats ChatResolver, adminIDs []int64) *Telegram {
	return &Telegram{sender: sender, chats: chats, adminIDs: adminIDs}
}

// Dispatch implements Dispatcher. Accounts without a linked chat are skipped.
func (t *Telegram) Dispatch(ctx context.Context, n Notification) error {
	if n.ForAdmins() {
		opts := []interface{}{}
		if markup := ReviewMarkup(n); markup != nil {
			opts = append(opts, markup)
		}
		var errs []error
		for _, id := range t.adminIDs {
			if _, err := t.sender.Send(tele.ChatID(id), n.Text, opts...); err != nil {
				errs = append(errs, fmt.Errorf("failed to notify admin %d: %w", id, err))
			}
		}
		return errors.Join(errs...)
	}

	chatID, err := t.chats.TelegramChatID(ctx, n.AccountID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat for account %d: %w", n.AccountID, err)
	}
	if chatID == nil {
		return nil
	}

	if _, err := t.sender.Send(tele.ChatID(*chatID), n.Text); err != nil {
		return fmt.Errorf("failed to notify account %d: %w", n.AccountID, err)
	}
	return nil
}

// ReviewMarkup returns approve and reject buttons for a submitted receipt, or
// nil for any other notification.
func ReviewMarkup(n Notification) *tele.ReplyMarkup {
	if n.Kind != KindReceiptSubmitted {
		return nil
	}
	receiptID, ok := n.Data["receipt_id"].(int64)
	if !ok {
		return nil
	}
	amount, _ := n.Data["amount"].(int64)

	id := strconv.FormatInt(receiptID, 10)
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Approve", ActionApprove, id, strconv.FormatInt(amount, 10)),
		markup.Data("Reject", ActionReject, id),
	))
	return markup
}
