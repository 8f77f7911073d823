// Package handler provides Telegram bot command handlers for wallet review.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"panel-wallet/internal/model"
	"panel-wallet/internal/notify"
	"panel-wallet/internal/pkg/lock"
	"panel-wallet/internal/repository"
	"panel-wallet/internal/service"
)

// Reviewer decides top-up receipts.
type Reviewer interface {
	Approve(ctx context.Context, receiptID int64, actor model.Actor, amount int64) (*service.ReceiptResult, error)
	Reject(ctx context.Context, receiptID int64, actor model.Actor, reason string) (*service.ReceiptResult, error)
	PendingCount(ctx context.Context) (int64, error)
}

// Adjuster applies manual credit corrections.
type Adjuster interface {
	Increase(ctx context.Context, accountID, amount int64, actor model.Actor) (*service.ReceiptResult, error)
	Decrease(ctx context.Context, accountID, amount int64, actor model.Actor) (*service.ReceiptResult, error)
}

// Accounts looks up accounts for display and actor resolution.
type Accounts interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	AccountByTelegramID(ctx context.Context, telegramID int64) (*model.Account, error)
}

// WalletHandler handles the admin wallet commands.
type WalletHandler struct {
	reviewer   Reviewer
	adjust     Adjuster
	accounts   Accounts
	dispatcher notify.Dispatcher
	reviewLock *lock.KeyLock
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reviewer Reviewer, adjust Adjuster, accounts Accounts, dispatcher notify.Dispatcher, reviewLock *lock.KeyLock) *WalletHandler {
	return &WalletHandler{
		reviewer:   reviewer,
		adjust:     adjust,
		accounts:   accounts,
		dispatcher: dispatcher,
		reviewLock: reviewLock,
	}
}

// actorFor maps a Telegram admin to a ledger actor, using the linked account
// id when there is one.
func (h *WalletHandler) actorFor(ctx context.Context, sender *tele.User) model.Actor {
	acc, err := h.accounts.AccountByTelegramID(ctx, sender.ID)
	if err == nil {
		return model.NewActor(acc.ID, model.RoleAdmin)
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		log.Warn().Err(err).Int64("telegram_id", sender.ID).Msg("Actor lookup failed")
	}
	return model.Actor{Role: model.RoleAdmin}
}

// HandleApprove handles the /approve command.
// Format: /approve <receipt_id> <amount>
func (h *WalletHandler) HandleApprove(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	receiptID, amount, err := parseIDAmount(c.Args(), "/approve <receipt_id> <amount>")
	if err != nil {
		return c.Reply(err.Error())
	}
	return c.Reply(h.approve(sender, receiptID, amount))
}

// HandleReject handles the /reject command.
// Format: /reject <receipt_id> [reason]
func (h *WalletHandler) HandleReject(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /reject <receipt_id> [reason]")
	}
	receiptID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || receiptID <= 0 {
		return c.Reply("❌ Receipt id must be a positive number")
	}
	reason := strings.TrimSpace(strings.Join(args[1:], " "))

	return c.Reply(h.reject(sender, receiptID, reason))
}

// HandleReviewCallback handles the approve and reject buttons attached to
// submitted receipt notices.
func (h *WalletHandler) HandleReviewCallback(c tele.Context) error {
	cb := c.Callback()
	sender := c.Sender()
	if cb == nil || sender == nil {
		return nil
	}

	action, receiptID, amount, err := parseReviewCallback(cb.Data)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown action"})
	}

	var text string
	switch action {
	case notify.ActionApprove:
		text = h.approve(sender, receiptID, amount)
	case notify.ActionReject:
		text = h.reject(sender, receiptID, "")
	}

	_ = c.Respond(&tele.CallbackResponse{Text: firstLine(text)})
	if msg := cb.Message; msg != nil {
		if _, err := c.Bot().Edit(msg, msg.Text+"\n\n"+text); err != nil {
			log.Debug().Err(err).Int64("receipt_id", receiptID).Msg("Failed to edit review message")
		}
	}
	return nil
}

// approve and reject drop a second press on the same receipt while the first
// is still running. The database decides everything else.
func (h *WalletHandler) approve(sender *tele.User, receiptID, amount int64) string {
	if !h.reviewLock.TryLock(receiptID) {
		return "⏳ Receipt is already being processed"
	}
	defer h.reviewLock.Unlock(receiptID)

	ctx := context.Background()
	res, err := h.reviewer.Approve(ctx, receiptID, h.actorFor(ctx, sender), amount)
	if err != nil {
		return "❌ Operation failed, please try again later"
	}
	notify.Deliver(ctx, h.dispatcher, res.Notifications)

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("receipt_id", receiptID).
		Int64("amount", amount).
		Str("code", string(res.Code)).
		Str("operation", "approve").
		Msg("Admin operation executed")

	if !res.OK() {
		return describeCode(res.Code)
	}
	text := fmt.Sprintf("✅ Receipt #%d approved\n💰 Credited: %d\n📊 Balance: %d", receiptID, res.Amount, res.BalanceAfter)
	if res.CommissionAmount > 0 {
		text += fmt.Sprintf("\n🤝 Referrer commission: %d", res.CommissionAmount)
	}
	return text
}

func (h *WalletHandler) reject(sender *tele.User, receiptID int64, reason string) string {
	if !h.reviewLock.TryLock(receiptID) {
		return "⏳ Receipt is already being processed"
	}
	defer h.reviewLock.Unlock(receiptID)

	ctx := context.Background()
	res, err := h.reviewer.Reject(ctx, receiptID, h.actorFor(ctx, sender), reason)
	if err != nil {
		return "❌ Operation failed, please try again later"
	}
	notify.Deliver(ctx, h.dispatcher, res.Notifications)

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("receipt_id", receiptID).
		Str("reason", reason).
		Str("code", string(res.Code)).
		Str("operation", "reject").
		Msg("Admin operation executed")

	if !res.OK() {
		return describeCode(res.Code)
	}
	return fmt.Sprintf("🚫 Receipt #%d rejected", receiptID)
}

// HandlePending handles the /pending command.
func (h *WalletHandler) HandlePending(c tele.Context) error {
	n, err := h.reviewer.PendingCount(context.Background())
	if err != nil {
		return c.Reply("❌ Failed to count receipts")
	}
	return c.Reply(fmt.Sprintf("📥 Receipts waiting for review: %d", n))
}

// HandleBalance handles the /balance command.
// Format: /balance <account_id>
func (h *WalletHandler) HandleBalance(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /balance <account_id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return c.Reply("❌ Account id must be a positive number")
	}

	acc, err := h.accounts.GetAccount(context.Background(), id)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return c.Reply(describeCode(model.CodeAccountNotFound))
	}
	if err != nil {
		return c.Reply("❌ Lookup failed, please try again later")
	}
	return c.Reply(fmt.Sprintf("👤 Account #%d\n💰 Credit: %d", acc.ID, acc.Credit))
}

// HandleCredit handles the /credit command.
// Format: /credit <account_id> <amount>
func (h *WalletHandler) HandleCredit(c tele.Context) error {
	return h.handleAdjust(c, model.DirectionCredit)
}

// HandleDebit handles the /debit command.
// Format: /debit <account_id> <amount>
func (h *WalletHandler) HandleDebit(c tele.Context) error {
	return h.handleAdjust(c, model.DirectionDebit)
}

func (h *WalletHandler) handleAdjust(c tele.Context, dir model.Direction) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	command := "/credit"
	if dir == model.DirectionDebit {
		command = "/debit"
	}
	accountID, amount, err := parseIDAmount(c.Args(), command+" <account_id> <amount>")
	if err != nil {
		return c.Reply(err.Error())
	}

	ctx := context.Background()
	actor := h.actorFor(ctx, sender)
	var res *service.ReceiptResult
	if dir == model.DirectionDebit {
		res, err = h.adjust.Decrease(ctx, accountID, amount, actor)
	} else {
		res, err = h.adjust.Increase(ctx, accountID, amount, actor)
	}
	if err != nil {
		return c.Reply("❌ Operation failed, please try again later")
	}
	notify.Deliver(ctx, h.dispatcher, res.Notifications)

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", accountID).
		Int64("amount", amount).
		Str("direction", string(dir)).
		Str("code", string(res.Code)).
		Msg("Admin operation executed")

	if !res.OK() {
		return c.Reply(describeCode(res.Code))
	}
	return c.Reply(fmt.Sprintf("✅ Account #%d %sed by %d\n📊 Balance: %d", accountID, dir, amount, res.BalanceAfter))
}

// parseIDAmount parses "<id> <amount>" with both values positive.
func parseIDAmount(args []string, usage string) (int64, int64, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("❌ Usage: %s", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("❌ Id must be a positive number")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, fmt.Errorf("❌ Amount must be a positive integer")
	}
	return id, amount, nil
}

// parseReviewCallback parses "\f<action>|<receipt_id>[|<amount>]".
func parseReviewCallback(data string) (string, int64, int64, error) {
	parts := strings.Split(strings.TrimPrefix(data, "\f"), "|")
	if len(parts) < 2 {
		return "", 0, 0, fmt.Errorf("malformed callback %q", data)
	}
	action := parts[0]
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, 0, fmt.Errorf("malformed receipt id in %q", data)
	}

	switch action {
	case notify.ActionApprove:
		if len(parts) < 3 {
			return "", 0, 0, fmt.Errorf("missing amount in %q", data)
		}
		amount, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return "", 0, 0, fmt.Errorf("malformed amount in %q", data)
		}
		return action, id, amount, nil
	case notify.ActionReject:
		return action, id, 0, nil
	}
	return "", 0, 0, fmt.Errorf("unknown action %q", action)
}

// IsReviewCallback reports whether callback data belongs to the review buttons.
func IsReviewCallback(data string) bool {
	data = strings.TrimPrefix(data, "\f")
	return strings.HasPrefix(data, notify.ActionApprove+"|") || strings.HasPrefix(data, notify.ActionReject+"|")
}

func describeCode(code model.Code) string {
	switch code {
	case model.CodeAlreadyVerified:
		return "ℹ️ Receipt was already approved"
	case model.CodeAlreadyRejected:
		return "ℹ️ Receipt was already rejected"
	case model.CodeNotFound:
		return "❌ Receipt not found"
	case model.CodeAccountNotFound:
		return "❌ Account not found"
	case model.CodeInsufficientCredit:
		return "❌ Insufficient credit"
	case model.CodeInvalidAmount:
		return "❌ Invalid amount"
	case model.CodeInvalidState:
		return "❌ Receipt cannot be reviewed in its current state"
	}
	return "❌ " + string(code)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
