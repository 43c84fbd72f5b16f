package replenisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
	"github.com/markverse/replenish/internal/pkg/mail"
	"github.com/markverse/replenish/internal/pkg/metrics/counter"
	"github.com/markverse/replenish/internal/pkg/payment"
	"github.com/markverse/replenish/internal/pkg/schedule"
)

// staleRetries bounds re-reads after a version conflict during bookkeeping.
const staleRetries = 3

// Worker consumes due occurrences from the schedule engine: it charges the
// customer, advances execution bookkeeping, and resolves the terminal states.
// It is the sole writer of execution progress.
type Worker struct {
	repos     *repository.Repositories
	processor payment.Processor
	engine    ScheduleEngine
}

// NewWorker creates a worker
func NewWorker(repos *repository.Repositories, processor payment.Processor, engine ScheduleEngine) *Worker {
	return &Worker{
		repos:     repos,
		processor: processor,
		engine:    engine,
	}
}

// HandleOccurrence executes one due occurrence. It is safe under the engine's
// at-least-once redelivery: an occurrence whose sequence number was already
// recorded is skipped without charging again.
func (w *Worker) HandleOccurrence(ctx context.Context, occ *schedule.Occurrence) error {
	payload, err := OccurrencePayloadFromMap(occ.Payload)
	if err != nil {
		return fmt.Errorf("invalid occurrence payload for %s: %w", occ.ID, err)
	}

	repl, err := w.repos.Replenishment.GetByID(payload.ReplenishmentID)
	if err != nil {
		// Orphaned occurrence; should not happen under correct teardown
		return fmt.Errorf("replenishment %d not found for occurrence %s: %w", payload.ReplenishmentID, occ.ID, err)
	}

	if !repl.Status.IsLive() {
		// Cancel/teardown raced an in-flight occurrence; drop it
		log.Warnf("[Worker] Skipping occurrence %s: replenishment %d is %s", occ.ID, repl.ID, repl.Status)
		if err := w.engine.RemoveSchedule(ctx, repl.SchedulerID); err != nil {
			log.Errorf("[Worker] Failed to remove stale schedule %s: %v", repl.SchedulerID, err)
		}
		return nil
	}

	// Sequence numbers restart at zero for every schedule definition, so the
	// guard anchors them to the executions recorded at upsert time.
	if occ.Sequence+payload.BaselineExecutions < repl.Executions {
		// Redelivery of an occurrence that was already recorded
		log.Infof("[Worker] Skipping occurrence %s: sequence %d already executed (%d recorded, baseline %d)", occ.ID, occ.Sequence, repl.Executions, payload.BaselineExecutions)
		return nil
	}

	orderRef, err := w.processor.ProcessPaymentAndCreateOrder(ctx, repl.CustomerID, payload.Order())
	if err != nil {
		return fmt.Errorf("payment for replenishment %d failed: %w", repl.ID, err)
	}

	paidAt := now()
	for attempt := 0; attempt < staleRetries; attempt++ {
		executions := repl.Executions + 1
		next := NextDueInstant(&paidAt, payload.PeriodMS)
		finished := repl.Times != nil && executions >= *repl.Times
		if !finished && repl.EndDate != nil && (next == nil || next.After(*repl.EndDate)) {
			// The schedule retires itself on expiry; this was its last fire
			finished = true
		}

		updates := map[string]interface{}{
			"last_payment_date": paidAt,
			"executions":        executions,
			"status":            models.ReplenishmentActive,
		}
		if repl.OrderRef == nil && orderRef != "" {
			updates["order_ref"] = orderRef
		}
		if finished {
			updates["status"] = models.ReplenishmentFinished
			updates["next_payment_date"] = nil
		} else {
			updates["next_payment_date"] = next
		}

		err := w.repos.Replenishment.UpdateWithVersion(repl, updates)
		if err == nil {
			if cerr := counter.AddExecution(repl.ID); cerr != nil {
				log.Warnf("[Worker] Failed to count execution for replenishment %d: %v", repl.ID, cerr)
			}
			if finished {
				log.Infof("[Worker] Replenishment %d finished after %d occurrences", repl.ID, executions)
				if rerr := w.engine.RemoveSchedule(ctx, repl.SchedulerID); rerr != nil {
					log.Errorf("[Worker] Failed to remove finished schedule %s: %v", repl.SchedulerID, rerr)
				}
			} else {
				log.Infof("[Worker] Replenishment %d executed occurrence %d", repl.ID, occ.Sequence)
			}
			return nil
		}
		if !errors.Is(err, repository.ErrStaleReplenishment) {
			return fmt.Errorf("failed to record execution for replenishment %d: %w", repl.ID, err)
		}

		repl, err = w.repos.Replenishment.GetByID(payload.ReplenishmentID)
		if err != nil {
			return fmt.Errorf("replenishment %d vanished during bookkeeping: %w", payload.ReplenishmentID, err)
		}
		if occ.Sequence+payload.BaselineExecutions < repl.Executions {
			// A concurrent delivery recorded this occurrence first
			return nil
		}
	}

	return fmt.Errorf("persistent version conflict recording execution for replenishment %d", payload.ReplenishmentID)
}

// HandleExhausted marks a replenishment failed once the engine's retry budget
// for an occurrence is spent. A failed replenishment never self-resumes.
func (w *Worker) HandleExhausted(ctx context.Context, occ *schedule.Occurrence, cause error) {
	payload, err := OccurrencePayloadFromMap(occ.Payload)
	if err != nil {
		log.Errorf("[Worker] Cannot resolve exhausted occurrence %s: %v", occ.ID, err)
		return
	}

	log.Errorf("[Worker] Replenishment %d failed permanently after %d attempts: %v", payload.ReplenishmentID, occ.Attempts, cause)

	for attempt := 0; attempt < staleRetries; attempt++ {
		repl, err := w.repos.Replenishment.GetByID(payload.ReplenishmentID)
		if err != nil {
			log.Errorf("[Worker] Replenishment %d not found while failing: %v", payload.ReplenishmentID, err)
			return
		}

		if !repl.Status.IsLive() {
			// Cancel/teardown raced the exhausted occurrence; a canceled row
			// keeps its snapshot and stays resumable
			log.Warnf("[Worker] Skipping exhausted occurrence %s: replenishment %d is %s", occ.ID, repl.ID, repl.Status)
			return
		}

		if err := w.engine.RemoveSchedule(ctx, repl.SchedulerID); err != nil {
			log.Errorf("[Worker] Failed to remove schedule %s for failed replenishment: %v", repl.SchedulerID, err)
		}

		err = w.repos.Replenishment.UpdateWithVersion(repl, map[string]interface{}{
			"status":            models.ReplenishmentFailed,
			"next_payment_date": nil,
		})
		if err == nil {
			if cerr := counter.AddFailure(repl.ID); cerr != nil {
				log.Warnf("[Worker] Failed to count failure for replenishment %d: %v", repl.ID, cerr)
			}
			w.notifyFailure(repl)
			return
		}
		if !errors.Is(err, repository.ErrStaleReplenishment) {
			log.Errorf("[Worker] Failed to mark replenishment %d as failed: %v", repl.ID, err)
			return
		}
	}
	log.Errorf("[Worker] Persistent version conflict marking replenishment %d failed", payload.ReplenishmentID)
}

// notifyFailure mails the owning customer that their recurring order stopped.
func (w *Worker) notifyFailure(repl *models.Replenishment) {
	customer, err := w.repos.Customer.GetByID(repl.CustomerID)
	if err != nil {
		log.Errorf("[Worker] Cannot notify customer %d about failed replenishment %d: %v", repl.CustomerID, repl.ID, err)
		return
	}
	if err := mail.SendReplenishmentFailedMail(customer.Email, customer.Name, repl.ID); err != nil {
		log.Errorf("[Worker] Failed to send failure mail for replenishment %d: %v", repl.ID, err)
	}
}

// compile-time handler check
var _ schedule.Handler = (*Worker)(nil)
