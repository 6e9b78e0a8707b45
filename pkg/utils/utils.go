package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateMonthlyPayment returns the display-only monthly amount round(total / months).
// Ledger amounts are authoritative and may differ from this by the remainder.
func CalculateMonthlyPayment(total int64, months int) int64 {
	if months <= 0 {
		return 0
	}
	monthly := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(months)))
	return monthly.Round(0).IntPart()
}

// AddMonths advances start by the given number of calendar months.
// The day is clamped to the last day of the target month, so Jan 31 + 1 month
// is Feb 28 (or 29) instead of rolling over into March.
func AddMonths(start time.Time, months int) time.Time {
	year, month, day := start.Date()
	hour, min, sec := start.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, hour, min, sec, start.Nanosecond(), start.Location())
	if last := DaysIn(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, start.Nanosecond(), start.Location())
}

// CalculateDueDate calculates the due date for a specific installment.
// Installment 1 is due one month after the start date, never on the start date itself.
func CalculateDueDate(startDate time.Time, installmentNumber int) time.Time {
	return AddMonths(startDate, installmentNumber)
}

// DaysIn returns the number of days in the given month
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsDateOverdue checks if a due date lies strictly before now
func IsDateOverdue(dueDate, now time.Time) bool {
	return dueDate.Before(now)
}

// FormatAmount renders an amount in the smallest currency unit with two decimals,
// the way payment providers expect gross amounts.
func FormatAmount(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

// ParseWholeAmount parses a provider amount such as "150000.00" and reports
// whether it was a whole number of the smallest currency unit.
func ParseWholeAmount(s string) (int64, bool, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false, err
	}
	whole := d.Truncate(0)
	return whole.IntPart(), whole.Equal(d), nil
}
