package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
)

const receiptColumns = `
	id, user_id, amount, method, disk, path, original_name, mime, size, status,
	commission_paid, commission_tx_id, notified_at, commission_notified_at,
	COALESCE(meta, '{}'::jsonb), created_at, updated_at`

// ReceiptRepository handles wallet top-up receipts.
type ReceiptRepository struct {
	q db.Querier
}

// NewReceiptRepository creates a new ReceiptRepository on a pool or transaction.
func NewReceiptRepository(q db.Querier) *ReceiptRepository {
	return &ReceiptRepository{q: q}
}

func scanReceipt(row pgx.Row) (*model.Receipt, error) {
	var rc model.Receipt
	err := row.Scan(
		&rc.ID,
		&rc.UserID,
		&rc.Amount,
		&rc.Method,
		&rc.Disk,
		&rc.Path,
		&rc.OriginalName,
		&rc.Mime,
		&rc.Size,
		&rc.Status,
		&rc.CommissionPaid,
		&rc.CommissionTxID,
		&rc.NotifiedAt,
		&rc.CommissionNotifiedAt,
		&rc.Meta,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}
	if rc.Meta == nil {
		rc.Meta = model.Meta{}
	}
	return &rc, nil
}

// Create inserts a receipt and fills in its generated fields.
func (r *ReceiptRepository) Create(ctx context.Context, rc *model.Receipt) error {
	const query = `
		INSERT INTO panel_wallet_receipts (
			user_id, amount, method, disk, path, original_name, mime, size,
			status, commission_paid, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	if rc.Meta == nil {
		rc.Meta = model.Meta{}
	}
	if rc.Disk == "" {
		rc.Disk = "public"
	}

	err := r.q.QueryRow(ctx, query,
		rc.UserID,
		rc.Amount,
		string(rc.Method),
		rc.Disk,
		rc.Path,
		rc.OriginalName,
		rc.Mime,
		rc.Size,
		string(rc.Status),
		rc.CommissionPaid,
		rc.Meta,
	).Scan(&rc.ID, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt without locking it.
func (r *ReceiptRepository) GetByID(ctx context.Context, id int64) (*model.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM panel_wallet_receipts WHERE id = $1`
	return scanReceipt(r.q.QueryRow(ctx, query, id))
}

// GetForUpdate retrieves a receipt and locks it.
func (r *ReceiptRepository) GetForUpdate(ctx context.Context, id int64) (*model.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM panel_wallet_receipts WHERE id = $1 FOR UPDATE`
	return scanReceipt(r.q.QueryRow(ctx, query, id))
}

// Update writes the mutable review fields of a locked receipt.
func (r *ReceiptRepository) Update(ctx context.Context, rc *model.Receipt) error {
	const query = `
		UPDATE panel_wallet_receipts SET
			user_id = $2,
			amount = $3,
			status = $4,
			commission_paid = $5,
			commission_tx_id = $6,
			notified_at = $7,
			commission_notified_at = $8,
			meta = $9,
			updated_at = NOW()
		WHERE id = $1
	`

	meta := rc.Meta
	if meta == nil {
		meta = model.Meta{}
	}

	tag, err := r.q.Exec(ctx, query,
		rc.ID,
		rc.UserID,
		rc.Amount,
		string(rc.Status),
		rc.CommissionPaid,
		rc.CommissionTxID,
		rc.NotifiedAt,
		rc.CommissionNotifiedAt,
		meta,
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// LatestUnnotifiedVerified returns the newest verified receipt of a user whose
// approval has not been shown yet.
func (r *ReceiptRepository) LatestUnnotifiedVerified(ctx context.Context, userID int64) (*model.Receipt, error) {
	query := `SELECT ` + receiptColumns + `
		FROM panel_wallet_receipts
		WHERE user_id = $1 AND status = 'verified' AND notified_at IS NULL
		ORDER BY id DESC
		LIMIT 1`
	return scanReceipt(r.q.QueryRow(ctx, query, userID))
}

// MarkNotified stamps notified_at on a receipt owned by userID.
func (r *ReceiptRepository) MarkNotified(ctx context.Context, id, userID int64) (bool, error) {
	const query = `
		UPDATE panel_wallet_receipts SET notified_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND notified_at IS NULL
	`

	tag, err := r.q.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark receipt notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCommissionNotified stamps commission_notified_at on a paid receipt whose
// commission went to referrerID.
func (r *ReceiptRepository) MarkCommissionNotified(ctx context.Context, id, referrerID int64) (bool, error) {
	const query = `
		UPDATE panel_wallet_receipts rc SET commission_notified_at = NOW(), updated_at = NOW()
		FROM panel_transactions t
		WHERE rc.id = $1
		  AND rc.commission_paid
		  AND rc.commission_notified_at IS NULL
		  AND t.id = rc.commission_tx_id
		  AND t.panel_user_id = $2
	`

	tag, err := r.q.Exec(ctx, query, id, referrerID)
	if err != nil {
		return false, fmt.Errorf("failed to mark commission notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus counts receipts in a status.
func (r *ReceiptRepository) CountByStatus(ctx context.Context, status model.ReceiptStatus) (int64, error) {
	const query = `SELECT COUNT(*) FROM panel_wallet_receipts WHERE status = $1`

	var n int64
	if err := r.q.QueryRow(ctx, query, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count receipts: %w", err)
	}
	return n, nil
}
