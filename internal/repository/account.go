// Package repository provides data access for the wallet ledger.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
)

// Repository errors.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrReceiptNotFound     = errors.New("receipt not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionClosed   = errors.New("transaction not found or already closed")
	ErrPlanNotFound        = errors.New("plan not found")
)

const accountColumns = `
	id, name, email, code, role, telegram_user_id, credit, referred_by_id,
	ref_commission_rate::text, enable_personalized_price,
	personalized_price_test, personalized_price_1, personalized_price_3,
	personalized_price_6, personalized_price_12, traffic_price,
	created_at, updated_at`

// AccountRepository handles panel account persistence.
type AccountRepository struct {
	q db.Querier
}

// NewAccountRepository creates a new AccountRepository on a pool or transaction.
func NewAccountRepository(q db.Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		acc  model.Account
		rate *string
	)
	err := row.Scan(
		&acc.ID,
		&acc.Name,
		&acc.Email,
		&acc.Code,
		&acc.Role,
		&acc.TelegramUserID,
		&acc.Credit,
		&acc.ReferredByID,
		&rate,
		&acc.EnablePersonalizedPrice,
		&acc.PersonalizedPriceTest,
		&acc.PersonalizedPrice1,
		&acc.PersonalizedPrice3,
		&acc.PersonalizedPrice6,
		&acc.PersonalizedPrice12,
		&acc.TrafficPrice,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if rate != nil {
		d, err := decimal.NewFromString(*rate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse commission rate %q: %w", *rate, err)
		}
		acc.CommissionRate = decimal.NewNullDecimal(d)
	}

	return &acc, nil
}

// GetByID retrieves an account without locking it.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM panel_users WHERE id = $1`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

// GetForUpdate retrieves an account and holds its row lock until the
// surrounding transaction ends. Must be called on a pgx.Tx.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM panel_users WHERE id = $1 FOR UPDATE`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

// GetByTelegramID finds the account linked to a Telegram user.
func (r *AccountRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM panel_users WHERE telegram_user_id = $1 ORDER BY id LIMIT 1`
	return scanAccount(r.q.QueryRow(ctx, query, telegramID))
}

// SetCredit overwrites the credit of a locked account.
func (r *AccountRepository) SetCredit(ctx context.Context, id int64, credit int64) error {
	const query = `UPDATE panel_users SET credit = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, credit)
	if err != nil {
		return fmt.Errorf("failed to update credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// TelegramChatID returns the Telegram chat linked to an account, or nil.
func (r *AccountRepository) TelegramChatID(ctx context.Context, id int64) (*int64, error) {
	const query = `SELECT telegram_user_id FROM panel_users WHERE id = $1`

	var chatID *int64
	if err := r.q.QueryRow(ctx, query, id).Scan(&chatID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get telegram chat: %w", err)
	}
	return chatID, nil
}

// Create inserts an account and fills in its generated fields.
func (r *AccountRepository) Create(ctx context.Context, acc *model.Account) error {
	const query = `
		INSERT INTO panel_users (
			name, email, code, role, telegram_user_id, credit, referred_by_id,
			ref_commission_rate, enable_personalized_price,
			personalized_price_test, personalized_price_1, personalized_price_3,
			personalized_price_6, personalized_price_12, traffic_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`

	var rate *string
	if acc.CommissionRate.Valid {
		s := acc.CommissionRate.Decimal.String()
		rate = &s
	}
	role := acc.Role
	if role == "" {
		role = string(model.RoleUser)
	}

	err := r.q.QueryRow(ctx, query,
		acc.Name,
		acc.Email,
		acc.Code,
		role,
		acc.TelegramUserID,
		acc.Credit,
		acc.ReferredByID,
		rate,
		acc.EnablePersonalizedPrice,
		acc.PersonalizedPriceTest,
		acc.PersonalizedPrice1,
		acc.PersonalizedPrice3,
		acc.PersonalizedPrice6,
		acc.PersonalizedPrice12,
		acc.TrafficPrice,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	acc.Role = role
	return nil
}
