// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"panel-wallet/internal/config"
	"panel-wallet/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	wallet *handler.WalletHandler
}

// NewTelebot creates the telebot client. It is built before the handlers so
// the notification dispatcher can send through it.
func NewTelebot(cfg *config.BotConfig) (*tele.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers middleware and handlers on teleBot.
func New(teleBot *tele.Bot, cfg *config.Config, wallet *handler.WalletHandler) *Bot {
	b := &Bot{
		bot:    teleBot,
		cfg:    cfg,
		wallet: wallet,
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/approve", b.wallet.HandleApprove)
	adminGroup.Handle("/reject", b.wallet.HandleReject)
	adminGroup.Handle("/pending", b.wallet.HandlePending)
	adminGroup.Handle("/balance", b.wallet.HandleBalance)
	adminGroup.Handle("/credit", b.wallet.HandleCredit)
	adminGroup.Handle("/debit", b.wallet.HandleDebit)
	adminGroup.Handle(tele.OnCallback, b.handleCallback)
}

const helpText = "Wallet review bot\n\n" +
	"/pending - receipts waiting for review\n" +
	"/approve <receipt_id> <amount>\n" +
	"/reject <receipt_id> [reason]\n" +
	"/balance <account_id>\n" +
	"/credit <account_id> <amount>\n" +
	"/debit <account_id> <amount>"

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || !b.cfg.IsAdmin(sender.ID) {
		return c.Send("This bot is for wallet reviewers only.")
	}
	return c.Send(helpText)
}

// handleCallback routes callbacks to appropriate handlers.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	if handler.IsReviewCallback(callback.Data) {
		return b.wallet.HandleReviewCallback(c)
	}

	log.Debug().Str("data", callback.Data).Msg("Ignoring unknown callback")
	return c.Respond()
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
