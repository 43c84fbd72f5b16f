package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecEvery(t *testing.T) {
	spec := Spec{EveryMS: 604_800_000}
	assert.Equal(t, 7*24*time.Hour, spec.Every())
}

func TestScheduleFirstRunAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	past := now.Add(-48 * time.Hour)

	tests := []struct {
		name     string
		startAt  *time.Time
		expected time.Time
	}{
		{"No anchor", nil, now.Add(24 * time.Hour)},
		{"Future anchor", &future, future},
		{"Past anchor", &past, now.Add(24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &Schedule{Spec: Spec{EveryMS: 86_400_000, StartAt: tt.startAt}}
			assert.Equal(t, tt.expected, sched.FirstRunAt(now))
		})
	}
}

func TestScheduleNextRunAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Advances one period", func(t *testing.T) {
		sched := &Schedule{
			Spec:      Spec{EveryMS: 86_400_000},
			NextRunAt: now,
		}
		assert.Equal(t, now.Add(24*time.Hour), sched.NextRunAfter(now))
	})

	t.Run("Snaps forward after downtime", func(t *testing.T) {
		// Three missed periods; the next run is one period from now, not a
		// catch-up replay.
		sched := &Schedule{
			Spec:      Spec{EveryMS: 86_400_000},
			NextRunAt: now.Add(-3 * 24 * time.Hour),
		}
		next := sched.NextRunAfter(now)
		assert.Equal(t, now.Add(24*time.Hour), next)
		assert.True(t, next.After(now))
	})
}

func TestScheduleExhausted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limit := 3
	end := now.Add(12 * time.Hour)

	tests := []struct {
		name      string
		sched     *Schedule
		next      time.Time
		exhausted bool
	}{
		{"Unbounded", &Schedule{Spec: Spec{EveryMS: 1000}}, now, false},
		{"Under limit", &Schedule{Spec: Spec{EveryMS: 1000, Limit: &limit}, Fires: 2}, now, false},
		{"Limit reached", &Schedule{Spec: Spec{EveryMS: 1000, Limit: &limit}, Fires: 3}, now, true},
		{"Before end date", &Schedule{Spec: Spec{EveryMS: 1000, EndAt: &end}}, now, false},
		{"Past end date", &Schedule{Spec: Spec{EveryMS: 1000, EndAt: &end}}, now.Add(24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exhausted, tt.sched.Exhausted(tt.next))
		})
	}
}

func TestOccurrence_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		occ       *Occurrence
		retryable bool
	}{
		{
			name:      "Failed with attempts remaining",
			occ:       &Occurrence{Status: OccurrenceStatusFailed, Attempts: 1, MaxAttempts: 3},
			retryable: true,
		},
		{
			name:      "Failed with budget spent",
			occ:       &Occurrence{Status: OccurrenceStatusFailed, Attempts: 3, MaxAttempts: 3},
			retryable: false,
		},
		{
			name:      "Completed",
			occ:       &Occurrence{Status: OccurrenceStatusCompleted, Attempts: 1, MaxAttempts: 3},
			retryable: false,
		},
		{
			name:      "Pending",
			occ:       &Occurrence{Status: OccurrenceStatusPending, MaxAttempts: 3},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.occ.IsRetryable())
		})
	}
}

func TestOccurrence_MarkAsFailed(t *testing.T) {
	occ := &Occurrence{Status: OccurrenceStatusProcessing, MaxAttempts: 3}

	occ.MarkAsFailed("gateway timeout")

	assert.Equal(t, OccurrenceStatusFailed, occ.Status)
	assert.Equal(t, "gateway timeout", occ.ErrorMsg)
	assert.Equal(t, 1, occ.Attempts)
	assert.True(t, occ.IsRetryable())
}

func TestOccurrence_MarkAsCompleted(t *testing.T) {
	occ := &Occurrence{Status: OccurrenceStatusProcessing, ErrorMsg: "previous attempt"}

	occ.MarkAsCompleted()

	assert.Equal(t, OccurrenceStatusCompleted, occ.Status)
	assert.Empty(t, occ.ErrorMsg)
	require.NotNil(t, occ.CompletedAt)
}

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		name     string
		policy   RetryPolicy
		attempt  int
		expected time.Duration
	}{
		{"Fixed first", RetryPolicy{Attempts: 3, Strategy: BackoffFixed, BaseDelay: time.Minute}, 1, time.Minute},
		{"Fixed third", RetryPolicy{Attempts: 3, Strategy: BackoffFixed, BaseDelay: time.Minute}, 3, time.Minute},
		{"Exponential first", RetryPolicy{Attempts: 3, Strategy: BackoffExponential, BaseDelay: time.Minute}, 1, time.Minute},
		{"Exponential second", RetryPolicy{Attempts: 3, Strategy: BackoffExponential, BaseDelay: time.Minute}, 2, 2 * time.Minute},
		{"Exponential fourth", RetryPolicy{Attempts: 5, Strategy: BackoffExponential, BaseDelay: time.Minute}, 4, 8 * time.Minute},
		{"Attempt below one", RetryPolicy{Attempts: 3, Strategy: BackoffExponential, BaseDelay: time.Minute}, 0, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestRetryPolicyFromEnv(t *testing.T) {
	t.Setenv("SCHEDULE_RETRY_ATTEMPTS", "5")
	t.Setenv("SCHEDULE_RETRY_STRATEGY", "fixed")
	t.Setenv("SCHEDULE_RETRY_BASE_DELAY", "30s")

	policy := RetryPolicyFromEnv()

	assert.Equal(t, 5, policy.Attempts)
	assert.Equal(t, BackoffFixed, policy.Strategy)
	assert.Equal(t, 30*time.Second, policy.BaseDelay)
}

func TestRetryPolicyFromEnvDefaults(t *testing.T) {
	t.Setenv("SCHEDULE_RETRY_ATTEMPTS", "not-a-number")
	t.Setenv("SCHEDULE_RETRY_STRATEGY", "")
	t.Setenv("SCHEDULE_RETRY_BASE_DELAY", "")

	policy := RetryPolicyFromEnv()

	assert.Equal(t, DefaultRetryPolicy(), policy)
}
