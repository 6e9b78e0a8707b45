package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/utils"
)

func TestBuildSchedule(t *testing.T) {
	start := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		total           int64
		months          int
		expectedAmounts []int64
	}{
		{name: "remainder goes to the last installment", total: 100, months: 3, expectedAmounts: []int64{33, 33, 34}},
		{name: "even split", total: 1000, months: 4, expectedAmounts: []int64{250, 250, 250, 250}},
		{name: "single installment", total: 999, months: 1, expectedAmounts: []int64{999}},
		{name: "zero total", total: 0, months: 3, expectedAmounts: []int64{0, 0, 0}},
		{name: "total smaller than months", total: 2, months: 5, expectedAmounts: []int64{0, 0, 0, 0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := BuildSchedule(tt.total, tt.months, start)
			require.NoError(t, err)
			require.Len(t, entries, tt.months)

			for i, entry := range entries {
				assert.Equal(t, tt.expectedAmounts[i], entry.Amount)
				assert.Equal(t, i+1, entry.Number)
				assert.Equal(t, InstallmentStatusPending, entry.Status)
				assert.Equal(t, utils.AddMonths(start, i+1), entry.DueDate)
			}
		})
	}
}

func TestBuildSchedule_Invariants(t *testing.T) {
	starts := []time.Time{
		time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC),
	}
	totals := []int64{0, 1, 7, 100, 999, 1000, 123457, 5000000, 9999999}

	for _, start := range starts {
		for _, total := range totals {
			for months := 1; months <= 36; months++ {
				entries, err := BuildSchedule(total, months, start)
				require.NoError(t, err)
				require.Len(t, entries, months)

				var sum int64
				previous := start
				for _, entry := range entries {
					sum += entry.Amount
					assert.True(t, entry.DueDate.After(previous), "due dates must be strictly increasing")
					previous = entry.DueDate
				}
				assert.Equal(t, total, sum, "total=%d months=%d", total, months)
				assert.Equal(t, utils.AddMonths(start, 1), entries[0].DueDate, "first due date is one month after start")
			}
		}
	}
}

func TestBuildSchedule_Deterministic(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := BuildSchedule(12345, 7, start)
	require.NoError(t, err)
	second, err := BuildSchedule(12345, 7, start)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildSchedule_InvalidInput(t *testing.T) {
	start := time.Now()

	_, err := BuildSchedule(-1, 3, start)
	assert.True(t, errors.Is(err, customError.ErrInvalidSchedule))

	_, err = BuildSchedule(100, 0, start)
	assert.True(t, errors.Is(err, customError.ErrInvalidSchedule))
}
