package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"panel-wallet/internal/model"
)

func TestEntryValidate(t *testing.T) {
	base := Entry{
		AccountID:     1,
		Type:          model.TxAccountPurchase,
		Direction:     model.DirectionDebit,
		Amount:        3000,
		BalanceBefore: 10000,
		BalanceAfter:  7000,
	}

	tests := []struct {
		name    string
		mutate  func(e *Entry)
		wantErr error
	}{
		{"valid debit", func(e *Entry) {}, nil},
		{"placeholder without balance change", func(e *Entry) { e.BalanceAfter = e.BalanceBefore }, nil},
		{"valid credit", func(e *Entry) {
			e.Type = model.TxWalletTopupCard
			e.Direction = model.DirectionCredit
			e.BalanceAfter = 13000
		}, nil},
		{"unknown type", func(e *Entry) { e.Type = "gift" }, ErrInvalidTxType},
		{"unknown direction", func(e *Entry) { e.Direction = "sideways" }, ErrInvalidDirection},
		{"negative amount", func(e *Entry) { e.Amount = -1 }, ErrNegativeAmount},
		{"wrong sign", func(e *Entry) { e.BalanceAfter = 13000 }, ErrUnbalancedEntry},
		{"wrong delta", func(e *Entry) { e.BalanceAfter = 6999 }, ErrUnbalancedEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			err := e.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestEntryValidateConservationProperty checks that every entry accepted by
// validate produces a conserving transaction row.
func TestEntryValidateConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir := rapid.SampledFrom([]model.Direction{model.DirectionCredit, model.DirectionDebit}).Draw(t, "dir")
		amount := rapid.Int64Range(0, 1_000_000).Draw(t, "amount")
		before := rapid.Int64Range(0, 1_000_000).Draw(t, "before")
		after := rapid.Int64Range(0, 2_000_000).Draw(t, "after")

		e := Entry{
			Type:          rapid.SampledFrom(model.TxTypes()).Draw(t, "type"),
			Direction:     dir,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
		}
		if e.validate() != nil {
			return
		}

		row := model.Transaction{Direction: dir, Amount: amount, BalanceBefore: before, BalanceAfter: after}
		if !row.Conserves() {
			t.Fatalf("accepted entry does not conserve: %+v", e)
		}
	})
}

func TestReviewGuard(t *testing.T) {
	assert.Equal(t, model.CodeOK, reviewGuard(model.ReceiptUploaded))
	assert.Equal(t, model.CodeOK, reviewGuard(model.ReceiptSubmitted))
	assert.Equal(t, model.CodeAlreadyVerified, reviewGuard(model.ReceiptVerified))
	assert.Equal(t, model.CodeAlreadyRejected, reviewGuard(model.ReceiptRejected))
	assert.Equal(t, model.CodeInvalidState, reviewGuard("pending"))
	assert.Equal(t, model.CodeInvalidState, reviewGuard(""))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "R-1", displayName(&model.Account{ID: 1, Code: "R-1", Name: "n"}))
	assert.Equal(t, "n", displayName(&model.Account{ID: 1, Name: "n", Email: "e"}))
	assert.Equal(t, "e", displayName(&model.Account{ID: 1, Email: "e"}))
	assert.Equal(t, "#7", displayName(&model.Account{ID: 7}))
}
