package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizePlanKey(t *testing.T) {
	tests := []struct {
		raw  string
		want PlanKey
	}{
		{"1m", Plan1M},
		{" 1M ", Plan1M},
		{"1m_noexp", Plan1M},
		{"1M_NOEXP", Plan1M},
		{"12m", Plan12M},
		{"Test", PlanTest},
		{"gig", PlanGig},
		{"24m", PlanKey("24m")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePlanKey(tt.raw))
		})
	}
}

func TestParseTxType(t *testing.T) {
	for _, known := range TxTypes() {
		got, err := ParseTxType(string(known))
		require.NoError(t, err)
		assert.Equal(t, known, got)
	}

	_, err := ParseTxType("wallet_bonus")
	assert.Error(t, err)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want *int64
	}{
		{"", nil},
		{"   ", nil},
		{"abc", nil},
		{"-5", nil},
		{"0", ptr(0)},
		{"3000", ptr(3000)},
		{" 3000.0 ", ptr(3000)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.raw))
		})
	}
}

// TestReceiptTransitionsForwardOnly checks that terminal states never move.
func TestReceiptTransitionsForwardOnly(t *testing.T) {
	statuses := []ReceiptStatus{ReceiptUploaded, ReceiptSubmitted, ReceiptVerified, ReceiptRejected}

	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(statuses).Draw(t, "from")
		to := rapid.SampledFrom(statuses).Draw(t, "to")

		if from.Terminal() && from.CanTransition(to) {
			t.Fatalf("terminal status %s moved to %s", from, to)
		}
		if to == ReceiptUploaded && from.CanTransition(to) {
			t.Fatalf("%s moved back to uploaded", from)
		}
	})
}

func TestDirectionSigned(t *testing.T) {
	assert.Equal(t, int64(500), DirectionCredit.Signed(500))
	assert.Equal(t, int64(-500), DirectionDebit.Signed(500))
}

// TestTransactionConservesProperty checks the snapshot rule on generated rows.
func TestTransactionConservesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		before := rapid.Int64Range(0, 1_000_000).Draw(t, "before")
		amount := rapid.Int64Range(1, 100_000).Draw(t, "amount")
		dir := rapid.SampledFrom([]Direction{DirectionCredit, DirectionDebit}).Draw(t, "direction")

		tx := Transaction{
			Direction:     dir,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  before + dir.Signed(amount),
		}
		if !tx.Conserves() {
			t.Fatalf("consistent row rejected: %+v", tx)
		}

		tx.BalanceAfter = before - dir.Signed(amount)
		if tx.Conserves() {
			t.Fatalf("inverted row accepted: %+v", tx)
		}
	})
}

func TestReferrerEligible(t *testing.T) {
	referrer := int64(2)
	self := int64(1)

	tests := []struct {
		name string
		acc  Account
		want bool
	}{
		{"no referrer", Account{ID: 1, CommissionRate: rate("10")}, false},
		{"self referral", Account{ID: 1, ReferredByID: &self, CommissionRate: rate("10")}, false},
		{"no rate", Account{ID: 1, ReferredByID: &referrer}, false},
		{"zero rate", Account{ID: 1, ReferredByID: &referrer, CommissionRate: rate("0")}, false},
		{"eligible", Account{ID: 1, ReferredByID: &referrer, CommissionRate: rate("7.5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.acc.ReferrerEligible())
		})
	}
}

func TestPersonalizedPrice(t *testing.T) {
	acc := Account{PersonalizedPrice1: ptr(2500), PersonalizedPrice12: ptr(20000)}

	p, ok := acc.PersonalizedPrice(Plan1M)
	assert.True(t, ok)
	assert.Equal(t, ptr(2500), p)

	p, ok = acc.PersonalizedPrice(Plan3M)
	assert.True(t, ok)
	assert.Nil(t, p)

	_, ok = acc.PersonalizedPrice(PlanGig)
	assert.False(t, ok)
}

func ptr(v int64) *int64 { return &v }

func rate(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
