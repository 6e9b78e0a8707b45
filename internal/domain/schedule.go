package domain

import (
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/utils"
)

// ScheduleEntry is one row produced by the schedule builder
type ScheduleEntry struct {
	Number  int       `json:"number"`
	DueDate time.Time `json:"due_date"`
	Amount  int64     `json:"amount"`
	Status  string    `json:"status"`
}

// BuildSchedule splits total into months installments.
// Every installment gets floor(total/months); the last one also absorbs the remainder,
// so the amounts always sum to total. Installment k is due k calendar months after startDate.
func BuildSchedule(total int64, months int, startDate time.Time) ([]ScheduleEntry, error) {
	if total < 0 {
		return nil, customError.WrapInvalidSchedule("total must not be negative")
	}
	if months < 1 {
		return nil, customError.WrapInvalidSchedule("installment months must be at least 1")
	}

	base := total / int64(months)
	remainder := total - base*int64(months)

	entries := make([]ScheduleEntry, 0, months)
	for k := 1; k <= months; k++ {
		amount := base
		if k == months {
			amount += remainder
		}

		entries = append(entries, ScheduleEntry{
			Number:  k,
			DueDate: utils.CalculateDueDate(startDate, k),
			Amount:  amount,
			Status:  InstallmentStatusPending,
		})
	}

	return entries, nil
}

// newInstallments materialises a schedule into ledger rows owned by orderID
func newInstallments(orderID uuid.UUID, entries []ScheduleEntry, createdAt time.Time) []*Installment {
	installments := make([]*Installment, 0, len(entries))
	for _, entry := range entries {
		installments = append(installments, &Installment{
			ID:        uuid.New(),
			OrderID:   orderID,
			Number:    entry.Number,
			Amount:    entry.Amount,
			DueDate:   entry.DueDate,
			Status:    entry.Status,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		})
	}
	return installments
}
