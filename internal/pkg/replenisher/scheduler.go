package replenisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
	"github.com/markverse/replenish/internal/pkg/schedule"
	"github.com/markverse/replenish/internal/pkg/snapshot"
)

const lockTTL = 15 * time.Second

// ScheduleEngine is the slice of the schedule engine the scheduler drives.
type ScheduleEngine interface {
	UpsertSchedule(ctx context.Context, scheduleID string, spec schedule.Spec, payload map[string]interface{}) (string, error)
	RemoveSchedule(ctx context.Context, scheduleID string) error
}

// SnapshotStore is the slice of the snapshot store the scheduler drives.
type SnapshotStore interface {
	Put(ctx context.Context, jobID string, payload interface{}) error
	Get(ctx context.Context, jobID string, dest interface{}) error
	Delete(ctx context.Context, jobID string) error
}

// RecurrenceParams carries the client-supplied recurrence settings.
type RecurrenceParams struct {
	Interval     int
	Unit         models.ReplenishmentUnit
	StartingDate *time.Time
	Expiry       *time.Time
	Times        *int
}

// Scheduler owns the replenishment lifecycle. It is the sole writer of
// replenishment rows and the sole caller of the schedule engine and the
// snapshot store.
type Scheduler struct {
	repos     *repository.Repositories
	engine    ScheduleEngine
	snapshots SnapshotStore
	locker    *redislock.Client
}

// NewScheduler creates a scheduler. A nil locker disables distributed locking
// (single-process deployments and tests); the version column still rejects
// lost updates.
func NewScheduler(repos *repository.Repositories, engine ScheduleEngine, snapshots SnapshotStore, locker *redislock.Client) *Scheduler {
	return &Scheduler{
		repos:     repos,
		engine:    engine,
		snapshots: snapshots,
		locker:    locker,
	}
}

// Create sets up a new replenishment for the customer: persists the row,
// registers the repeating schedule, and snapshots the order payload under the
// engine-issued job id. A schedule engine failure aborts the whole operation;
// the row is compensated away rather than left without a live schedule.
func (s *Scheduler) Create(ctx context.Context, customerID uint, order SnapshotPayload, rec RecurrenceParams) (*models.Replenishment, error) {
	if _, err := s.repos.Customer.GetByID(customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}

	periodMS, err := recurrencePeriod(rec)
	if err != nil {
		return nil, err
	}

	nowT := now()
	schedulerID := "replenishment-" + uuid.New().String()

	status := models.ReplenishmentActive
	startDate := nowT
	if rec.StartingDate != nil {
		startDate = *rec.StartingDate
		status = models.ReplenishmentScheduled
	}

	firstDue := startDate
	if status == models.ReplenishmentActive {
		firstDue = nowT.Add(time.Duration(periodMS) * time.Millisecond)
	}

	repl := &models.Replenishment{
		SchedulerID:     schedulerID,
		CustomerID:      customerID,
		StartDate:       startDate,
		NextPaymentDate: &firstDue,
		Unit:            rec.Unit,
		Interval:        rec.Interval,
		EndDate:         rec.Expiry,
		Times:           rec.Times,
		Status:          status,
	}
	if err := s.repos.Replenishment.Create(repl); err != nil {
		return nil, fmt.Errorf("failed to persist replenishment: %w", err)
	}

	spec := schedule.Spec{EveryMS: periodMS, EndAt: rec.Expiry, Limit: rec.Times}
	if status == models.ReplenishmentScheduled {
		spec.StartAt = &startDate
	}

	order.CustomerID = customerID
	payload := order.WithRecurrence(repl.ID, periodMS, 0)

	jobID, err := s.engine.UpsertSchedule(ctx, schedulerID, spec, payload.ToMap())
	if err != nil || jobID == "" {
		// No live schedule means the row must not survive
		if derr := s.repos.Replenishment.Delete(repl.ID); derr != nil {
			log.Errorf("[Replenisher] Failed to compensate replenishment %d after scheduling failure: %v", repl.ID, derr)
		}
		return nil, fmt.Errorf("%w: engine returned no job for %s: %v", ErrScheduling, schedulerID, err)
	}

	if err := s.snapshots.Put(ctx, jobID, order); err != nil {
		if rerr := s.engine.RemoveSchedule(ctx, schedulerID); rerr != nil {
			log.Errorf("[Replenisher] Failed to remove schedule %s after snapshot failure: %v", schedulerID, rerr)
		}
		if derr := s.repos.Replenishment.Delete(repl.ID); derr != nil {
			log.Errorf("[Replenisher] Failed to compensate replenishment %d after snapshot failure: %v", repl.ID, derr)
		}
		return nil, err
	}

	if err := s.repos.Replenishment.UpdateWithVersion(repl, map[string]interface{}{
		"next_job_id": jobID,
	}); err != nil {
		return nil, err
	}

	log.Infof("[Replenisher] Created replenishment %d (schedule %s, status %s)", repl.ID, schedulerID, status)
	return s.repos.Replenishment.GetByID(repl.ID)
}

// Update replaces the recurrence parameters and order payload of an existing
// replenishment. The operation is state-gated: terminal and canceled rows are
// immutable here, a scheduled row must be re-anchored explicitly, and an
// active row cannot be re-anchored at all.
func (s *Scheduler) Update(ctx context.Context, customerID, replenishmentID uint, order SnapshotPayload, rec RecurrenceParams) (*models.Replenishment, error) {
	unlock, err := s.lock(ctx, replenishmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	repl, err := s.getOwned(replenishmentID, customerID)
	if err != nil {
		return nil, err
	}

	switch repl.Status {
	case models.ReplenishmentFinished, models.ReplenishmentFailed:
		return nil, transitionError(repl, "cannot be updated")
	case models.ReplenishmentCanceled:
		return nil, transitionError(repl, "must be resumed before updating")
	case models.ReplenishmentScheduled:
		if rec.StartingDate == nil {
			return nil, transitionError(repl, "requires a starting date")
		}
	case models.ReplenishmentActive:
		if rec.StartingDate != nil {
			return nil, transitionError(repl, "cannot be re-anchored to a new starting date")
		}
	}

	periodMS, err := recurrencePeriod(rec)
	if err != nil {
		return nil, err
	}

	nextPayment := NextDueInstant(repl.LastPaymentDate, periodMS)
	remaining := repl.RemainingBudget(rec.Times)

	spec := schedule.Spec{EveryMS: periodMS, EndAt: rec.Expiry, Limit: remaining}
	startDate := repl.StartDate
	if repl.Status == models.ReplenishmentScheduled {
		startDate = *rec.StartingDate
		spec.StartAt = rec.StartingDate
	} else if nextPayment != nil {
		spec.StartAt = nextPayment
	}

	order.CustomerID = customerID
	payload := order.WithRecurrence(repl.ID, periodMS, repl.Executions)

	jobID, err := s.engine.UpsertSchedule(ctx, repl.SchedulerID, spec, payload.ToMap())
	if err != nil || jobID == "" {
		return nil, fmt.Errorf("%w: engine returned no job for %s: %v", ErrScheduling, repl.SchedulerID, err)
	}

	// The superseded snapshot goes first; there is never more than one live
	// entry per pending occurrence slot.
	if repl.NextJobID != nil {
		if err := s.snapshots.Delete(ctx, *repl.NextJobID); err != nil {
			return nil, err
		}
	}
	if err := s.snapshots.Put(ctx, jobID, order); err != nil {
		return nil, err
	}

	if nextPayment == nil {
		nextPayment = s.firstDueFallback(repl.Status, startDate, periodMS)
	}

	if err := s.repos.Replenishment.UpdateWithVersion(repl, map[string]interface{}{
		"next_job_id":       jobID,
		"unit":              rec.Unit,
		"interval":          rec.Interval,
		"start_date":        startDate,
		"end_date":          rec.Expiry,
		"times":             rec.Times,
		"next_payment_date": nextPayment,
	}); err != nil {
		return nil, err
	}

	log.Infof("[Replenisher] Updated replenishment %d (schedule %s)", repl.ID, repl.SchedulerID)
	return s.repos.Replenishment.GetByID(repl.ID)
}

// ToggleCancel flips a live replenishment to canceled or resumes a canceled
// one. Cancellation removes the live schedule but deliberately retains the
// snapshot, which is the only surviving record of the payload needed for the
// later resume.
func (s *Scheduler) ToggleCancel(ctx context.Context, customerID, replenishmentID uint) (*models.Replenishment, error) {
	unlock, err := s.lock(ctx, replenishmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	repl, err := s.getOwned(replenishmentID, customerID)
	if err != nil {
		return nil, err
	}

	switch repl.Status {
	case models.ReplenishmentActive, models.ReplenishmentScheduled:
		if err := s.engine.RemoveSchedule(ctx, repl.SchedulerID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScheduling, err)
		}
		if err := s.repos.Replenishment.UpdateWithVersion(repl, map[string]interface{}{
			"status":            models.ReplenishmentCanceled,
			"next_payment_date": nil,
		}); err != nil {
			return nil, err
		}
		log.Infof("[Replenisher] Canceled replenishment %d (schedule %s)", repl.ID, repl.SchedulerID)

	case models.ReplenishmentCanceled:
		if repl.NextJobID == nil {
			return nil, fmt.Errorf("%w: replenishment %d has no retained job reference", ErrSnapshotMissing, repl.ID)
		}
		var snap SnapshotPayload
		if err := s.snapshots.Get(ctx, *repl.NextJobID, &snap); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				return nil, fmt.Errorf("%w: job %s", ErrSnapshotMissing, *repl.NextJobID)
			}
			return nil, err
		}

		// Recurrence parameters are unchanged by cancellation
		periodMS := ToMilliseconds(repl.Interval, repl.Unit)
		nextPayment := NextDueInstant(repl.LastPaymentDate, periodMS)

		status := models.ReplenishmentActive
		if repl.StartDate.After(now()) {
			status = models.ReplenishmentScheduled
		}

		spec := schedule.Spec{EveryMS: periodMS, EndAt: repl.EndDate, Limit: repl.RemainingBudget(repl.Times)}
		if status == models.ReplenishmentScheduled {
			startDate := repl.StartDate
			spec.StartAt = &startDate
		} else if nextPayment != nil {
			spec.StartAt = nextPayment
		}

		payload := snap.WithRecurrence(repl.ID, periodMS, repl.Executions)
		jobID, err := s.engine.UpsertSchedule(ctx, repl.SchedulerID, spec, payload.ToMap())
		if err != nil || jobID == "" {
			return nil, fmt.Errorf("%w: engine returned no job for %s: %v", ErrScheduling, repl.SchedulerID, err)
		}

		if err := s.snapshots.Delete(ctx, *repl.NextJobID); err != nil {
			return nil, err
		}
		if err := s.snapshots.Put(ctx, jobID, snap); err != nil {
			return nil, err
		}

		if nextPayment == nil {
			nextPayment = s.firstDueFallback(status, repl.StartDate, periodMS)
		}

		if err := s.repos.Replenishment.UpdateWithVersion(repl, map[string]interface{}{
			"next_job_id":       jobID,
			"status":            status,
			"next_payment_date": nextPayment,
		}); err != nil {
			return nil, err
		}
		log.Infof("[Replenisher] Resumed replenishment %d (schedule %s, status %s)", repl.ID, repl.SchedulerID, status)

	default:
		return nil, transitionError(repl, "is not resumable")
	}

	return s.repos.Replenishment.GetByID(repl.ID)
}

// Remove hard deletes a replenishment together with its engine schedule and
// snapshot. Nothing may dangle afterwards.
func (s *Scheduler) Remove(ctx context.Context, customerID, replenishmentID uint) error {
	unlock, err := s.lock(ctx, replenishmentID)
	if err != nil {
		return err
	}
	defer unlock()

	repl, err := s.getOwned(replenishmentID, customerID)
	if err != nil {
		return err
	}

	// Idempotent when the schedule is already gone (canceled row)
	if err := s.engine.RemoveSchedule(ctx, repl.SchedulerID); err != nil {
		return fmt.Errorf("%w: %v", ErrScheduling, err)
	}
	if repl.NextJobID != nil {
		if err := s.snapshots.Delete(ctx, *repl.NextJobID); err != nil {
			return err
		}
	}
	if err := s.repos.Replenishment.Delete(repl.ID); err != nil {
		return err
	}

	log.Infof("[Replenisher] Removed replenishment %d (schedule %s)", repl.ID, repl.SchedulerID)
	return nil
}

// getOwned loads a replenishment scoped to its owning customer.
func (s *Scheduler) getOwned(replenishmentID, customerID uint) (*models.Replenishment, error) {
	repl, err := s.repos.Replenishment.GetByIDForCustomer(replenishmentID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplenishmentNotFound
		}
		return nil, fmt.Errorf("replenishment lookup failed: %w", err)
	}
	return repl, nil
}

// lock serializes write operations against the same replenishment across
// processes. With no locker configured the version column alone guards
// against lost updates.
func (s *Scheduler) lock(ctx context.Context, replenishmentID uint) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	l, err := s.locker.Obtain(ctx, fmt.Sprintf("replenish:lock:%d", replenishmentID), lockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to obtain replenishment lock: %w", err)
	}
	return func() {
		if rerr := l.Release(ctx); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
			log.Warnf("[Replenisher] Failed to release lock for replenishment %d: %v", replenishmentID, rerr)
		}
	}, nil
}

// firstDueFallback yields a non-nil next due instant for rows without a prior
// payment, mirroring what the engine will fire first.
func (s *Scheduler) firstDueFallback(status models.ReplenishmentStatus, startDate time.Time, periodMS int64) *time.Time {
	if status == models.ReplenishmentScheduled {
		return &startDate
	}
	due := now().Add(time.Duration(periodMS) * time.Millisecond)
	return &due
}

// recurrencePeriod validates the recurrence pair and converts it to a period.
func recurrencePeriod(rec RecurrenceParams) (int64, error) {
	if rec.Interval < 1 || !rec.Unit.IsValid() {
		return 0, fmt.Errorf("%w: interval=%d unit=%q", ErrInvalidRecurrence, rec.Interval, rec.Unit)
	}
	return ToMilliseconds(rec.Interval, rec.Unit), nil
}

// transitionError names the offending status in the rejection.
func transitionError(repl *models.Replenishment, reason string) error {
	return fmt.Errorf("%w: replenishment %d in status %q %s", ErrInvalidTransition, repl.ID, repl.Status, reason)
}
