// Package policy evaluates transfer bounds and the per-day outgoing cap.
// Everything here is pure; callers supply current state.
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
)

// MaxScale is the number of fractional digits an amount may carry.
const MaxScale = 2

type Limits struct {
	Min      decimal.Decimal
	Max      decimal.Decimal
	Daily    decimal.Decimal
	Location *time.Location
}

// ParseAmount parses a decimal amount from its textual form.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, models.Errorf(models.ErrValidation, "amount must be a number")
	}
	return d, nil
}

func (l Limits) CheckBounds(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.Errorf(models.ErrValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Truncate(MaxScale)) {
		return models.Errorf(models.ErrValidation, "amount must have at most %d decimal places", MaxScale)
	}
	if amount.LessThan(l.Min) || amount.GreaterThan(l.Max) {
		return models.Errorf(models.ErrLimitExceeded, "transfer must be between %s and %s", l.Min.String(), l.Max.String())
	}
	return nil
}

// CheckDailyCap rejects a transfer that would take the day's outgoing total
// above the cap. Reaching the cap exactly is allowed.
func (l Limits) CheckDailyCap(spentToday, amount decimal.Decimal) error {
	if spentToday.Add(amount).GreaterThan(l.Daily) {
		return models.Errorf(models.ErrLimitExceeded, "daily transfer limit of %s exceeded", l.Daily.String())
	}
	return nil
}

// DayWindow returns [midnight, next midnight) around asOf in the policy's
// location.
func (l Limits) DayWindow(asOf time.Time) (time.Time, time.Time) {
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}
	t := asOf.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
