package service

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestCommissionForIntegerRateProperty checks that whole percentage rates
// match the integer formula amount*rate/100 rounded down.
func TestCommissionForIntegerRateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 1_000_000_000).Draw(t, "amount")
		rate := rapid.Int64Range(1, 100).Draw(t, "rate")

		got := CommissionFor(amount, decimal.NewFromInt(rate))
		want := amount * rate / 100
		if got != want {
			t.Fatalf("CommissionFor(%d, %d) = %d, want %d", amount, rate, got, want)
		}
	})
}

// TestCommissionForBoundsProperty checks that commission never exceeds the
// source amount for rates up to 100 and is never negative.
func TestCommissionForBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(-1000, 1_000_000_000).Draw(t, "amount")
		cents := rapid.Int64Range(-500, 10000).Draw(t, "rate_cents")
		rate := decimal.New(cents, -2)

		got := CommissionFor(amount, rate)
		if got < 0 {
			t.Fatalf("negative commission %d", got)
		}
		if amount <= 0 || cents <= 0 {
			if got != 0 {
				t.Fatalf("expected zero commission for amount=%d rate=%s, got %d", amount, rate, got)
			}
			return
		}
		if got > amount {
			t.Fatalf("commission %d exceeds amount %d at rate %s", got, amount, rate)
		}
	})
}

func TestCommissionFor(t *testing.T) {
	tests := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{50000, "10", 5000},
		{999, "10", 99},
		{1000, "7.5", 75},
		{1001, "7.5", 75},
		{1, "99.99", 0},
		{100, "0", 0},
		{0, "10", 0},
	}

	for _, tt := range tests {
		got := CommissionFor(tt.amount, decimal.RequireFromString(tt.rate))
		assert.Equal(t, tt.want, got, "amount=%d rate=%s", tt.amount, tt.rate)
	}
}

// TestMultiplyPriceProperty checks that totals in range are exact and that
// overflowing products are refused instead of wrapping.
func TestMultiplyPriceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unit := rapid.Int64Range(0, math.MaxInt64).Draw(t, "unit")
		qty := rapid.IntRange(1, 1000).Draw(t, "qty")

		total, ok := multiplyPrice(unit, qty)
		fits := unit == 0 || unit <= math.MaxInt64/int64(qty)
		if ok != fits {
			t.Fatalf("multiplyPrice(%d, %d) ok=%v, want %v", unit, qty, ok, fits)
		}
		if ok && total != unit*int64(qty) {
			t.Fatalf("multiplyPrice(%d, %d) = %d", unit, qty, total)
		}
	})
}

// TestAddCreditProperty checks that sums in range are exact and that sums past
// the int64 range are refused instead of wrapping negative.
func TestAddCreditProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, math.MaxInt64).Draw(t, "balance")
		amount := rapid.Int64Range(0, math.MaxInt64).Draw(t, "amount")

		sum, ok := addCredit(balance, amount)
		fits := balance <= math.MaxInt64-amount
		if ok != fits {
			t.Fatalf("addCredit(%d, %d) ok=%v, want %v", balance, amount, ok, fits)
		}
		if ok && sum != balance+amount {
			t.Fatalf("addCredit(%d, %d) = %d", balance, amount, sum)
		}
	})
}
