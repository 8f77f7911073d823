package service

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrCreditOverflow is returned when a credit would exceed the int64 range.
var ErrCreditOverflow = errors.New("credit overflow")

var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
	hundred  = decimal.NewFromInt(100)
)

// multiplyPrice returns unit*quantity, or false when the total does not fit
// in int64.
func multiplyPrice(unit int64, quantity int) (int64, bool) {
	total := decimal.NewFromInt(unit).Mul(decimal.NewFromInt(int64(quantity)))
	if total.IsNegative() || total.GreaterThan(maxMoney) {
		return 0, false
	}
	return total.IntPart(), true
}

// addCredit returns balance+amount, or false when the sum does not fit in
// int64.
func addCredit(balance, amount int64) (int64, bool) {
	sum := decimal.NewFromInt(balance).Add(decimal.NewFromInt(amount))
	if sum.GreaterThan(maxMoney) {
		return 0, false
	}
	return sum.IntPart(), true
}

// CommissionFor returns floor(amount * rate / 100) for a percentage rate.
// Non-positive inputs earn nothing.
func CommissionFor(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Div(hundred).Floor().IntPart()
}
