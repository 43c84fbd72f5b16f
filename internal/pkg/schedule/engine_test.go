package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects delivered occurrences and fails on demand.
type recordingHandler struct {
	mu        sync.Mutex
	delivered []*Occurrence
	exhausted []*Occurrence
	failUntil int // fail the first N deliveries
}

func (h *recordingHandler) HandleOccurrence(ctx context.Context, occ *Occurrence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = append(h.delivered, occ)
	if len(h.delivered) <= h.failUntil {
		return errors.New("simulated delivery failure")
	}
	return nil
}

func (h *recordingHandler) HandleExhausted(ctx context.Context, occ *Occurrence, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exhausted = append(h.exhausted, occ)
}

func (h *recordingHandler) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.delivered)
}

func (h *recordingHandler) exhaustedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.exhausted)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEngineStartRequiresHandler(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 1)

	err := engine.Start()
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestUpsertScheduleIssuesFreshJobID(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 1)
	ctx := context.Background()

	jobID1, err := engine.UpsertSchedule(ctx, "sched-1", Spec{EveryMS: 60_000}, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID1)

	jobID2, err := engine.UpsertSchedule(ctx, "sched-1", Spec{EveryMS: 120_000}, map[string]interface{}{"k": "v2"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID2)
	assert.NotEqual(t, jobID1, jobID2)

	sched, err := engine.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, jobID2, sched.JobID)
	assert.Equal(t, int64(120_000), sched.Spec.EveryMS)
	assert.Equal(t, 0, sched.Fires)
}

func TestUpsertScheduleRejectsInvalidPeriod(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 1)

	_, err := engine.UpsertSchedule(context.Background(), "sched-bad", Spec{EveryMS: 0}, nil)
	assert.Error(t, err)
}

func TestRemoveScheduleIsIdempotent(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 1)
	ctx := context.Background()

	_, err := engine.UpsertSchedule(ctx, "sched-2", Spec{EveryMS: 60_000}, nil)
	require.NoError(t, err)

	require.NoError(t, engine.RemoveSchedule(ctx, "sched-2"))
	require.NoError(t, engine.RemoveSchedule(ctx, "sched-2"))

	_, err = engine.GetSchedule(ctx, "sched-2")
	assert.Error(t, err)
}

func TestEngineRestartsAfterStop(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 2)
	handler := &recordingHandler{}
	engine.SetHandler(handler)

	require.NoError(t, engine.Start())
	engine.Stop()

	restarted := make(chan error, 1)
	go func() { restarted <- engine.Start() }()
	select {
	case err := <-restarted:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine restart blocked")
	}
	defer engine.Stop()

	// The restarted engine still delivers
	ctx := context.Background()
	_, err := engine.UpsertSchedule(ctx, "sched-restart", Spec{EveryMS: 500}, nil)
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return handler.deliveredCount() >= 1 })
}

func TestEngineDeliversDueOccurrences(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 2)
	handler := &recordingHandler{}
	engine.SetHandler(handler)

	require.NoError(t, engine.Start())
	defer engine.Stop()

	ctx := context.Background()
	jobID, err := engine.UpsertSchedule(ctx, "sched-fire", Spec{EveryMS: 500}, map[string]interface{}{
		"replenishment_id": float64(1),
	})
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return handler.deliveredCount() >= 2 })

	handler.mu.Lock()
	defer handler.mu.Unlock()
	first := handler.delivered[0]
	assert.Equal(t, jobID, first.JobID)
	assert.Equal(t, "sched-fire", first.ScheduleID)
	assert.Equal(t, 0, first.Sequence)
	assert.Equal(t, 1, handler.delivered[1].Sequence)
}

func TestEngineRetiresScheduleAtLimit(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	engine := NewEngine(client, DefaultRetryPolicy(), 1)
	handler := &recordingHandler{}
	engine.SetHandler(handler)

	require.NoError(t, engine.Start())
	defer engine.Stop()

	ctx := context.Background()
	limit := 2
	_, err := engine.UpsertSchedule(ctx, "sched-limited", Spec{EveryMS: 300, Limit: &limit}, nil)
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return handler.deliveredCount() >= limit })

	// The definition retires itself on its last fire
	waitFor(t, 5*time.Second, func() bool {
		_, gerr := engine.GetSchedule(ctx, "sched-limited")
		return gerr != nil
	})

	// No further fires beyond the limit
	time.Sleep(1 * time.Second)
	assert.Equal(t, limit, handler.deliveredCount())
}

func TestEngineRetriesAndExhausts(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedScheduleTestRedisDB)
	policy := RetryPolicy{Attempts: 2, Strategy: BackoffFixed, BaseDelay: 200 * time.Millisecond}
	engine := NewEngine(client, policy, 1)
	handler := &recordingHandler{failUntil: 10} // fail every delivery
	engine.SetHandler(handler)

	require.NoError(t, engine.Start())
	defer engine.Stop()

	ctx := context.Background()
	limit := 1
	_, err := engine.UpsertSchedule(ctx, "sched-failing", Spec{EveryMS: 300, Limit: &limit}, nil)
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return handler.exhaustedCount() == 1 })

	assert.Equal(t, policy.Attempts, handler.deliveredCount())

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, policy.Attempts, handler.exhausted[0].Attempts)
	assert.Equal(t, "simulated delivery failure", handler.exhausted[0].ErrorMsg)
}
