package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// Transaction logger errors.
var (
	ErrInvalidTxType    = errors.New("invalid transaction type")
	ErrInvalidDirection = errors.New("invalid transaction direction")
	ErrNegativeAmount   = errors.New("transaction amount must not be negative")
	ErrUnbalancedEntry  = errors.New("balance snapshots do not match amount")
)

// Entry describes a ledger row to open.
type Entry struct {
	AccountID      int64
	Type           model.TxType
	Direction      model.Direction
	Amount         int64
	BalanceBefore  int64
	BalanceAfter   int64
	Quantity       int
	PlanKeyBefore  string
	PlanKeyAfter   string
	ReferenceType  string
	ReferenceID    int64
	IdempotencyKey string
	Meta           model.Meta
	Actor          model.Actor
}

func (e Entry) validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTxType, e.Type)
	}
	if !e.Direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, e.Direction)
	}
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if e.BalanceBefore != e.BalanceAfter && e.BalanceAfter-e.BalanceBefore != e.Direction.Signed(e.Amount) {
		return fmt.Errorf("%w: %d -> %d for %s %d", ErrUnbalancedEntry, e.BalanceBefore, e.BalanceAfter, e.Direction, e.Amount)
	}
	return nil
}

// Finalization is applied when a pending row succeeds.
type Finalization struct {
	ReferenceType string
	ReferenceID   int64
	UserIDs       []int64
	ExtraMeta     model.Meta
	Actor         *model.Actor
}

// Failure is applied when a pending row fails.
type Failure struct {
	Reason    string
	ExtraMeta model.Meta
	Actor     *model.Actor
}

// TransactionLogger opens and closes ledger rows. Every method runs on the
// caller's querier, normally the pgx.Tx that also mutates the balance.
type TransactionLogger struct {
	currency string
}

// NewTransactionLogger creates a logger stamping rows with currency.
func NewTransactionLogger(currency string) *TransactionLogger {
	if currency == "" {
		currency = "IRT"
	}
	return &TransactionLogger{currency: currency}
}

// Start inserts a pending row and returns its id. A repeated idempotency key
// returns the id of the existing row without writing anything.
func (l *TransactionLogger) Start(ctx context.Context, q db.Querier, e Entry) (int64, error) {
	id, _, err := l.Open(ctx, q, e)
	return id, err
}

// Open is Start that also reports whether this call created the row.
func (l *TransactionLogger) Open(ctx context.Context, q db.Querier, e Entry) (id int64, created bool, err error) {
	if err := e.validate(); err != nil {
		return 0, false, err
	}

	quantity := e.Quantity
	if quantity < 1 {
		quantity = 1
	}
	meta := e.Meta.Clone()

	row := &model.Transaction{
		AccountID:       e.AccountID,
		Type:            e.Type,
		Direction:       e.Direction,
		Amount:          e.Amount,
		BalanceBefore:   e.BalanceBefore,
		BalanceAfter:    e.BalanceAfter,
		Status:          model.TxPending,
		Quantity:        quantity,
		PlanKeyBefore:   optString(e.PlanKeyBefore),
		PlanKeyAfter:    optString(e.PlanKeyAfter),
		ReferenceType:   optString(e.ReferenceType),
		ReferenceID:     optID(e.ReferenceID),
		PerformedByID:   e.Actor.ID,
		PerformedByRole: optString(e.Actor.RoleName()),
		Currency:        l.currency,
		IdempotencyKey:  optString(e.IdempotencyKey),
		Meta:            meta,
	}

	id, created, err = repository.NewTransactionRepository(q).Insert(ctx, row)
	if err != nil {
		return 0, false, err
	}

	if !created {
		log.Info().
			Int64("tx_id", id).
			Str("idempotency_key", e.IdempotencyKey).
			Msg("Transaction already recorded")
	}
	return id, created, nil
}

// Finalize marks a pending row successful, merging user ids and extra meta.
// A row that is already successful only takes the merge. Failed and missing
// rows are left alone.
func (l *TransactionLogger) Finalize(ctx context.Context, q db.Querier, id int64, f Finalization) error {
	txs := repository.NewTransactionRepository(q)

	row, err := lockOpen(ctx, txs, id, model.TxSuccess)
	if row == nil || err != nil {
		return err
	}

	meta := model.Merge(row.Meta, f.ExtraMeta).WithUserIDs(f.UserIDs...)

	return txs.UpdateOutcome(ctx, id, repository.Outcome{
		Status:        model.TxSuccess,
		Meta:          meta,
		ReferenceType: optString(f.ReferenceType),
		ReferenceID:   optID(f.ReferenceID),
		Actor:         f.Actor,
	})
}

// Fail marks a pending row failed, recording the reason in meta. Successful
// and missing rows are left alone.
func (l *TransactionLogger) Fail(ctx context.Context, q db.Querier, id int64, f Failure) error {
	txs := repository.NewTransactionRepository(q)

	row, err := lockOpen(ctx, txs, id, model.TxFailed)
	if row == nil || err != nil {
		return err
	}

	meta := model.Merge(row.Meta, f.ExtraMeta)
	if f.Reason != "" {
		meta[model.MetaFailReason] = f.Reason
	}

	return txs.UpdateOutcome(ctx, id, repository.Outcome{
		Status: model.TxFailed,
		Meta:   meta,
		Actor:  f.Actor,
	})
}

// lockOpen locks row id for an outcome of status target. It returns nil when
// the row is missing or already closed with a different status.
func lockOpen(ctx context.Context, txs *repository.TransactionRepository, id int64, target model.TxStatus) (*model.Transaction, error) {
	row, err := txs.GetForUpdate(ctx, id)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		log.Warn().Int64("tx_id", id).Str("target", string(target)).Msg("Outcome on missing transaction ignored")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if row.Status != model.TxPending && row.Status != target {
		log.Warn().
			Int64("tx_id", id).
			Str("status", string(row.Status)).
			Str("target", string(target)).
			Msg("Transaction already closed, outcome ignored")
		return nil, nil
	}
	return row, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
