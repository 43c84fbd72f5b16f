package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoHandler is returned when the engine is started without a handler.
var ErrNoHandler = errors.New("schedule engine has no occurrence handler")

// Engine manages repeating schedules on Redis: a dispatcher promotes due
// schedules into occurrence jobs, a worker pool delivers them to the handler,
// and failed deliveries are retried per the RetryPolicy.
type Engine struct {
	client       *redis.Client
	handler      Handler
	policy       RetryPolicy
	workers      int
	pollInterval time.Duration
	workerPool   chan struct{}
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewEngine creates a new schedule engine
func NewEngine(client *redis.Client, policy RetryPolicy, workers int) *Engine {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	return &Engine{
		client:       client,
		policy:       policy,
		workers:      workers,
		pollInterval: time.Second,
		workerPool:   make(chan struct{}, workers),
		stopCh:       make(chan struct{}),
	}
}

// SetHandler registers the occurrence consumer. Must be called before Start.
func (e *Engine) SetHandler(h Handler) {
	e.handler = h
}

// Start starts the dispatcher and the delivery workers
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	if e.handler == nil {
		return ErrNoHandler
	}

	e.running = true
	e.stopCh = make(chan struct{})
	log.Infof("[Schedule] Starting engine with %d workers", e.workers)

	// Stopped workers leave their slots filled, so a restart rebuilds the pool
	e.workerPool = make(chan struct{}, e.workers)
	for i := 0; i < e.workers; i++ {
		e.workerPool <- struct{}{}
	}

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.wg.Add(1)
	go e.dispatcher()

	// Recovers occurrences stuck in processing after a crash
	e.wg.Add(1)
	go e.stuckSweeper(10*time.Minute, time.Minute)

	return nil
}

// Stop stops the dispatcher and the delivery workers
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	log.Info("[Schedule] Stopping engine...")
	close(e.stopCh)
	e.running = false
	e.wg.Wait()
	log.Info("[Schedule] Engine stopped")
}

// UpsertSchedule creates or replaces the repeating definition stored under
// scheduleID and returns the job id issued for its next occurrence. A
// re-upsert resets the fire counter; the previous definition stops existing.
func (e *Engine) UpsertSchedule(ctx context.Context, scheduleID string, spec Spec, payload map[string]interface{}) (string, error) {
	if spec.EveryMS <= 0 {
		return "", fmt.Errorf("invalid schedule period %dms for %s", spec.EveryMS, scheduleID)
	}

	now := time.Now()
	sched := &Schedule{
		ID:        scheduleID,
		Spec:      spec,
		Payload:   payload,
		JobID:     uuid.New().String(),
		Fires:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sched.NextRunAt = sched.FirstRunAt(now)

	data, err := marshalSchedule(sched)
	if err != nil {
		return "", err
	}

	pipe := e.client.TxPipeline()
	pipe.Set(ctx, ScheduleKeyPrefix+scheduleID, data, 0)
	pipe.ZAdd(ctx, ScheduleDueKey, redis.Z{
		Score:  float64(sched.NextRunAt.UnixMilli()),
		Member: scheduleID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to upsert schedule %s: %w", scheduleID, err)
	}

	log.Infof("[Schedule] Upserted schedule %s (job %s, every %s, next run %s)",
		scheduleID, sched.JobID, sched.Spec.Every(), sched.NextRunAt.Format(time.RFC3339))
	return sched.JobID, nil
}

// RemoveSchedule deletes the definition stored under scheduleID. Removing an
// absent schedule is not an error.
func (e *Engine) RemoveSchedule(ctx context.Context, scheduleID string) error {
	pipe := e.client.TxPipeline()
	pipe.Del(ctx, ScheduleKeyPrefix+scheduleID)
	pipe.ZRem(ctx, ScheduleDueKey, scheduleID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove schedule %s: %w", scheduleID, err)
	}

	log.Infof("[Schedule] Removed schedule %s", scheduleID)
	return nil
}

// GetSchedule retrieves a schedule definition by id
func (e *Engine) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	data, err := e.client.Get(ctx, ScheduleKeyPrefix+scheduleID).Result()
	if err != nil {
		return nil, err
	}

	var sched Schedule
	if err := json.Unmarshal([]byte(data), &sched); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", scheduleID, err)
	}
	return &sched, nil
}

// dispatcher promotes due schedules into occurrence jobs
func (e *Engine) dispatcher() {
	defer e.wg.Done()
	log.Infof("[Schedule] Dispatcher running (poll interval %s)", e.pollInterval)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-e.stopCh:
			log.Info("[Schedule] Dispatcher stopping")
			return
		case <-ticker.C:
			now := time.Now()
			ids, err := e.client.ZRangeByScore(ctx, ScheduleDueKey, &redis.ZRangeBy{
				Min: "-inf",
				Max: fmt.Sprintf("%d", now.UnixMilli()),
			}).Result()
			if err != nil {
				log.Errorf("[Schedule] Dispatcher due scan error: %v", err)
				continue
			}
			for _, id := range ids {
				if err := e.fireSchedule(ctx, id, now); err != nil {
					log.Errorf("[Schedule] Failed to fire schedule %s: %v", id, err)
				}
			}
		}
	}
}

// fireSchedule enqueues one occurrence for a due schedule and advances or
// retires its definition.
func (e *Engine) fireSchedule(ctx context.Context, scheduleID string, now time.Time) error {
	sched, err := e.GetSchedule(ctx, scheduleID)
	if err != nil {
		// Definition gone; drop the stray due-index entry
		if errors.Is(err, redis.Nil) {
			_ = e.client.ZRem(ctx, ScheduleDueKey, scheduleID).Err()
			return nil
		}
		return err
	}

	occ := &Occurrence{
		ID:          fmt.Sprintf("%s:%d", sched.JobID, sched.Fires),
		JobID:       sched.JobID,
		ScheduleID:  sched.ID,
		Sequence:    sched.Fires,
		Payload:     sched.Payload,
		Status:      OccurrenceStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		MaxAttempts: e.policy.Attempts,
	}
	occData, err := marshalOccurrence(occ)
	if err != nil {
		return err
	}

	sched.Fires++
	sched.UpdatedAt = now
	next := sched.NextRunAfter(now)
	sched.NextRunAt = next

	pipe := e.client.TxPipeline()
	pipe.Set(ctx, OccurrenceKeyPrefix+occ.ID, occData, OccurrenceTTL)
	pipe.LPush(ctx, OccurrenceQueueKey, occ.ID)
	if sched.Exhausted(next) {
		// Last fire under this definition; the schedule retires itself
		pipe.Del(ctx, ScheduleKeyPrefix+sched.ID)
		pipe.ZRem(ctx, ScheduleDueKey, sched.ID)
	} else {
		data, merr := marshalSchedule(sched)
		if merr != nil {
			return merr
		}
		pipe.Set(ctx, ScheduleKeyPrefix+sched.ID, data, 0)
		pipe.ZAdd(ctx, ScheduleDueKey, redis.Z{
			Score:  float64(next.UnixMilli()),
			Member: sched.ID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue occurrence %s: %w", occ.ID, err)
	}

	log.Infof("[Schedule] Fired schedule %s (occurrence %s, sequence %d)", sched.ID, occ.ID, occ.Sequence)
	return nil
}

// worker delivers occurrences from the queue
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	log.Infof("[Schedule] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-e.stopCh:
			log.Infof("[Schedule] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-e.workerPool

			occ, err := e.dequeueOccurrence(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[Schedule] Worker %d: Error dequeuing occurrence: %v", id, err)
				}
				// Release worker slot and wait before retry
				e.workerPool <- struct{}{}
				time.Sleep(time.Second)
				continue
			}

			if occ != nil {
				log.Infof("[Schedule] Worker %d delivering occurrence %s (schedule %s)", id, occ.ID, occ.ScheduleID)
				e.deliverOccurrence(ctx, occ)
			}

			// Release worker slot
			e.workerPool <- struct{}{}
		}
	}
}

// dequeueOccurrence gets the next occurrence from the queue
func (e *Engine) dequeueOccurrence(ctx context.Context) (*Occurrence, error) {
	// Move occurrence from pending queue to processing queue atomically
	occID, err := e.client.BRPopLPush(ctx, OccurrenceQueueKey, OccurrenceProcKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	data, err := e.client.Get(ctx, OccurrenceKeyPrefix+occID).Result()
	if err != nil {
		// Occurrence data not found, remove from processing queue
		e.client.LRem(ctx, OccurrenceProcKey, 1, occID)
		return nil, fmt.Errorf("occurrence data not found for ID %s", occID)
	}

	var occ Occurrence
	if err := json.Unmarshal([]byte(data), &occ); err != nil {
		e.client.LRem(ctx, OccurrenceProcKey, 1, occID)
		return nil, fmt.Errorf("failed to unmarshal occurrence %s: %w", occID, err)
	}

	return &occ, nil
}

// deliverOccurrence hands one occurrence to the handler and resolves the outcome
func (e *Engine) deliverOccurrence(ctx context.Context, occ *Occurrence) {
	occ.MarkAsProcessing()
	e.updateOccurrence(ctx, occ)

	err := e.handler.HandleOccurrence(ctx, occ)
	if err != nil {
		log.Errorf("[Schedule] Occurrence %s failed: %v", occ.ID, err)
		occ.MarkAsFailed(err.Error())

		if occ.IsRetryable() {
			delay := e.policy.Delay(occ.Attempts)
			log.Infof("[Schedule] Retrying occurrence %s in %s (attempt %d/%d)", occ.ID, delay, occ.Attempts, occ.MaxAttempts)
			occ.MarkAsRetrying()
			e.updateOccurrence(ctx, occ)

			occID := occ.ID
			time.AfterFunc(delay, func() {
				e.client.LPush(ctx, OccurrenceQueueKey, occID)
			})
		} else {
			log.Errorf("[Schedule] Occurrence %s permanently failed after %d attempts", occ.ID, occ.Attempts)
			e.updateOccurrence(ctx, occ)
			e.handler.HandleExhausted(ctx, occ, err)
			e.removeOccurrence(ctx, occ.ID)
		}
	} else {
		log.Infof("[Schedule] Occurrence %s completed", occ.ID)
		occ.MarkAsCompleted()
		e.removeOccurrence(ctx, occ.ID)
	}

	e.removeFromProcessing(ctx, occ.ID)
}

// updateOccurrence updates occurrence data in Redis
func (e *Engine) updateOccurrence(ctx context.Context, occ *Occurrence) {
	data, err := marshalOccurrence(occ)
	if err != nil {
		log.Errorf("[Schedule] %v", err)
		return
	}
	if err := e.client.Set(ctx, OccurrenceKeyPrefix+occ.ID, data, OccurrenceTTL).Err(); err != nil {
		log.Errorf("[Schedule] Failed to update occurrence %s: %v", occ.ID, err)
	}
}

// removeOccurrence completely removes an occurrence from Redis
func (e *Engine) removeOccurrence(ctx context.Context, occID string) {
	if err := e.client.Del(ctx, OccurrenceKeyPrefix+occID).Err(); err != nil {
		log.Errorf("[Schedule] Failed to remove occurrence %s: %v", occID, err)
	}
}

// removeFromProcessing removes an occurrence from the processing queue
func (e *Engine) removeFromProcessing(ctx context.Context, occID string) {
	if err := e.client.LRem(ctx, OccurrenceProcKey, 1, occID).Err(); err != nil {
		log.Errorf("[Schedule] Failed to remove occurrence %s from processing queue: %v", occID, err)
	}
}

// stuckSweeper periodically requeues occurrences stuck in processing for
// longer than maxAge (crashed worker); redelivery is covered by the handler's
// idempotency guard.
func (e *Engine) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer e.wg.Done()
	log.Infof("[Schedule] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-e.stopCh:
			log.Info("[Schedule] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := e.client.LRange(ctx, OccurrenceProcKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[Schedule] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				data, err := e.client.Get(ctx, OccurrenceKeyPrefix+id).Result()
				if err != nil {
					// Occurrence data missing; remove from processing list
					if err != redis.Nil {
						log.Errorf("[Schedule] Sweeper Get error for %s: %v", id, err)
					}
					_ = e.client.LRem(ctx, OccurrenceProcKey, 1, id).Err()
					continue
				}
				var occ Occurrence
				if uerr := json.Unmarshal([]byte(data), &occ); uerr != nil {
					log.Errorf("[Schedule] Sweeper unmarshal error for %s: %v", id, uerr)
					_ = e.client.LRem(ctx, OccurrenceProcKey, 1, id).Err()
					continue
				}
				if occ.Status != OccurrenceStatusProcessing {
					// Clean up stray entry
					_ = e.client.LRem(ctx, OccurrenceProcKey, 1, id).Err()
					continue
				}
				started := occ.ProcessedAt
				if started == nil || started.IsZero() {
					tmp := occ.UpdatedAt
					if tmp.IsZero() {
						tmp = occ.CreatedAt
					}
					started = &tmp
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[Schedule] Recovering stuck occurrence %s (schedule %s), age=%s", occ.ID, occ.ScheduleID, now.Sub(*started))
					occ.Status = OccurrenceStatusPending
					occ.ErrorMsg = "recovered by sweeper"
					occ.UpdatedAt = now
					e.updateOccurrence(ctx, &occ)
					// Move from processing back to pending
					_ = e.client.LRem(ctx, OccurrenceProcKey, 1, id).Err()
					_ = e.client.RPush(ctx, OccurrenceQueueKey, id).Err()
				}
			}
		}
	}
}

// GetQueueSize returns the number of pending occurrences
func (e *Engine) GetQueueSize(ctx context.Context) (int64, error) {
	return e.client.LLen(ctx, OccurrenceQueueKey).Result()
}

// GetProcessingSize returns the number of occurrences being delivered
func (e *Engine) GetProcessingSize(ctx context.Context) (int64, error) {
	return e.client.LLen(ctx, OccurrenceProcKey).Result()
}
