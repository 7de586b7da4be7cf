package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// DefaultRate is applied when a supplier has no usable commission rate.
	DefaultRate = decimal.NewFromInt(10)

	hundred = decimal.NewFromInt(100)
)

// Split is the commission breakdown for one cart line. All amounts are minor units.
type Split struct {
	LineTotalCents  int64
	CommissionCents int64
	NetCents        int64
	Rate            decimal.Decimal
}

// Calculator computes platform commission on cart lines.
type Calculator struct {
	defaultRate decimal.Decimal
}

// NewCalculator returns a calculator that falls back to defaultRate for unset or
// out-of-range supplier rates. A non-positive defaultRate falls back to DefaultRate.
func NewCalculator(defaultRate decimal.Decimal) Calculator {
	if !validRate(defaultRate) {
		defaultRate = DefaultRate
	}
	return Calculator{defaultRate: defaultRate}
}

// EffectiveRate returns rate when it is within (0, 100], otherwise the default.
// Stored supplier rates are constrained to the same range, so only an unset rate
// takes the default in practice.
func (c Calculator) EffectiveRate(rate decimal.Decimal) decimal.Decimal {
	if validRate(rate) {
		return rate
	}
	if validRate(c.defaultRate) {
		return c.defaultRate
	}
	return DefaultRate
}

// Split computes lineTotal, commission and net for unitPriceCents x quantity.
// Commission is rounded half-up to the minor unit.
func (c Calculator) Split(unitPriceCents int64, quantity int, rate decimal.Decimal) (Split, error) {
	if unitPriceCents < 0 {
		return Split{}, fmt.Errorf("unit price must not be negative")
	}
	if quantity <= 0 {
		return Split{}, fmt.Errorf("quantity must be positive")
	}

	effective := c.EffectiveRate(rate)
	lineTotal := decimal.NewFromInt(unitPriceCents).Mul(decimal.NewFromInt(int64(quantity)))
	commission := lineTotal.Mul(effective).Div(hundred).Round(0)

	split := Split{
		LineTotalCents:  lineTotal.IntPart(),
		CommissionCents: commission.IntPart(),
		Rate:            effective,
	}
	split.NetCents = split.LineTotalCents - split.CommissionCents
	return split, nil
}

func validRate(rate decimal.Decimal) bool {
	return rate.IsPositive() && rate.LessThanOrEqual(hundred)
}
