package replenisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markverse/replenish/app/models"
)

func TestToMilliseconds(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		unit     models.ReplenishmentUnit
		expected int64
	}{
		{"One day", 1, models.UnitDay, 86_400_000},
		{"Three days", 3, models.UnitDay, 259_200_000},
		{"One week", 1, models.UnitWeek, 604_800_000},
		{"Two weeks", 2, models.UnitWeek, 1_209_600_000},
		{"One month", 1, models.UnitMonth, 2_592_000_000},
		{"One year", 1, models.UnitYear, 31_536_000_000},
		{"Thirty custom units", 30, models.UnitCustom, 30_000},
		{"Unknown unit", 1, models.ReplenishmentUnit("fortnight"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToMilliseconds(tt.interval, tt.unit))
		})
	}
}

func TestNextDueInstant_NoPriorPayment(t *testing.T) {
	assert.Nil(t, NextDueInstant(nil, DayMS))
}

func TestNextDueInstant_FuturePeriod(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	last := fixed.Add(-time.Hour)
	next := NextDueInstant(&last, DayMS)

	require.NotNil(t, next)
	assert.Equal(t, last.Add(24*time.Hour), *next)
}

func TestNextDueInstant_SnapsForwardPastDue(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	// Last payment five periods ago; the missed periods are skipped, not
	// replayed as a burst.
	last := fixed.Add(-5 * 24 * time.Hour)
	next := NextDueInstant(&last, DayMS)

	require.NotNil(t, next)
	assert.Equal(t, fixed.Add(24*time.Hour), *next)
	assert.True(t, next.After(fixed))
}
