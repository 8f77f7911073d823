package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
)

const transactionColumns = `
	id, panel_user_id, type, direction, amount, balance_before, balance_after,
	status, quantity, plan_key_before, plan_key_after, reference_type,
	reference_id, performed_by_id, performed_by_role, currency,
	idempotency_key, COALESCE(meta, '{}'::jsonb), created_at, updated_at`

// TransactionRepository handles ledger rows.
type TransactionRepository struct {
	q db.Querier
}

// NewTransactionRepository creates a new TransactionRepository on a pool or transaction.
func NewTransactionRepository(q db.Querier) *TransactionRepository {
	return &TransactionRepository{q: q}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Type,
		&tx.Direction,
		&tx.Amount,
		&tx.BalanceBefore,
		&tx.BalanceAfter,
		&tx.Status,
		&tx.Quantity,
		&tx.PlanKeyBefore,
		&tx.PlanKeyAfter,
		&tx.ReferenceType,
		&tx.ReferenceID,
		&tx.PerformedByID,
		&tx.PerformedByRole,
		&tx.Currency,
		&tx.IdempotencyKey,
		&tx.Meta,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if tx.Meta == nil {
		tx.Meta = model.Meta{}
	}
	return &tx, nil
}

// Insert stores a new row and returns its id. When the idempotency key is
// already taken nothing is written and the existing id is returned with
// created == false.
func (r *TransactionRepository) Insert(ctx context.Context, tx *model.Transaction) (id int64, created bool, err error) {
	const query = `
		INSERT INTO panel_transactions (
			panel_user_id, type, direction, amount, balance_before, balance_after,
			status, quantity, plan_key_before, plan_key_after, reference_type,
			reference_id, performed_by_id, performed_by_role, currency,
			idempotency_key, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`

	meta := tx.Meta
	if meta == nil {
		meta = model.Meta{}
	}

	err = r.q.QueryRow(ctx, query,
		tx.AccountID,
		string(tx.Type),
		string(tx.Direction),
		tx.Amount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		string(tx.Status),
		tx.Quantity,
		tx.PlanKeyBefore,
		tx.PlanKeyAfter,
		tx.ReferenceType,
		tx.ReferenceID,
		tx.PerformedByID,
		tx.PerformedByRole,
		tx.Currency,
		tx.IdempotencyKey,
		meta,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || tx.IdempotencyKey == nil {
		return 0, false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	existing, err := r.IDByIdempotencyKey(ctx, *tx.IdempotencyKey)
	if err != nil {
		return 0, false, err
	}
	return existing, false, nil
}

// IDByIdempotencyKey returns the id of the row holding key.
func (r *TransactionRepository) IDByIdempotencyKey(ctx context.Context, key string) (int64, error) {
	const query = `SELECT id FROM panel_transactions WHERE idempotency_key = $1`

	var id int64
	if err := r.q.QueryRow(ctx, query, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTransactionNotFound
		}
		return 0, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return id, nil
}

// GetByID retrieves a transaction.
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM panel_transactions WHERE id = $1`
	return scanTransaction(r.q.QueryRow(ctx, query, id))
}

// GetForUpdate retrieves a transaction and locks it.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM panel_transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.q.QueryRow(ctx, query, id))
}

// FindPendingForReference locks the newest pending row of the given type
// that points at a reference.
func (r *TransactionRepository) FindPendingForReference(ctx context.Context, accountID int64, txType model.TxType, refType string, refID int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM panel_transactions
		WHERE panel_user_id = $1 AND type = $2 AND status = 'pending'
		  AND reference_type = $3 AND reference_id = $4
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE`
	return scanTransaction(r.q.QueryRow(ctx, query, accountID, string(txType), refType, refID))
}

// Outcome describes the final state written to a transaction.
type Outcome struct {
	Status        model.TxStatus
	Meta          model.Meta
	ReferenceType *string
	ReferenceID   *int64
	Actor         *model.Actor
}

// UpdateOutcome writes status and meta, and optionally reference and actor.
// Absent optional fields keep their stored values. Only pending rows and rows
// already in o.Status are updated; anything else is ErrTransactionClosed.
func (r *TransactionRepository) UpdateOutcome(ctx context.Context, id int64, o Outcome) error {
	const query = `
		UPDATE panel_transactions SET
			status = $2,
			meta = $3,
			reference_type = COALESCE($4, reference_type),
			reference_id = COALESCE($5, reference_id),
			performed_by_id = CASE WHEN $6 THEN $7 ELSE performed_by_id END,
			performed_by_role = CASE WHEN $6 THEN $8 ELSE performed_by_role END,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', $2)
	`

	meta := o.Meta
	if meta == nil {
		meta = model.Meta{}
	}
	var (
		setActor bool
		actorID  *int64
		role     *string
	)
	if o.Actor != nil {
		setActor = true
		actorID = o.Actor.ID
		name := o.Actor.RoleName()
		role = &name
	}

	tag, err := r.q.Exec(ctx, query, id, string(o.Status), meta, o.ReferenceType, o.ReferenceID, setActor, actorID, role)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionClosed
	}
	return nil
}

// Settle turns a pending placeholder into a completed movement with real
// balance snapshots. Closed rows are ErrTransactionClosed.
func (r *TransactionRepository) Settle(ctx context.Context, id int64, amount, before, after int64, actor model.Actor) error {
	const query = `
		UPDATE panel_transactions SET
			status = 'success',
			amount = $2,
			balance_before = $3,
			balance_after = $4,
			performed_by_id = $5,
			performed_by_role = $6,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, id, amount, before, after, actor.ID, actor.RoleName())
	if err != nil {
		return fmt.Errorf("failed to settle transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionClosed
	}
	return nil
}

// ListByAccount returns the newest transactions of an account.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM panel_transactions
		WHERE panel_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
