package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markverse/replenish/internal/pkg/env"
)

const (
	// Redis key prefixes
	ScheduleKeyPrefix   = "replenish:schedule:"
	ScheduleDueKey      = "replenish:schedule_due"
	OccurrenceKeyPrefix = "replenish:occurrence:"
	OccurrenceQueueKey  = "replenish:occurrence_queue"
	OccurrenceProcKey   = "replenish:occurrence_processing"

	// Occurrence settings
	DefaultMaxAttempts = 3
	OccurrenceTTL      = 24 * time.Hour // delivered occurrences expire after 24 hours
)

// Spec describes one repeating schedule: fire every EveryMS milliseconds,
// optionally anchored at StartAt, bounded by EndAt, capped at Limit fires.
type Spec struct {
	EveryMS int64      `json:"every_ms"`
	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`
	Limit   *int       `json:"limit,omitempty"`
}

// Every returns the period as a duration
func (s Spec) Every() time.Duration {
	return time.Duration(s.EveryMS) * time.Millisecond
}

// Schedule is the engine-side definition of a repeating job. JobID is issued
// fresh on every upsert and stays stable across the fires of one definition.
type Schedule struct {
	ID        string                 `json:"id"`
	Spec      Spec                   `json:"spec"`
	Payload   map[string]interface{} `json:"payload"`
	JobID     string                 `json:"job_id"`
	NextRunAt time.Time              `json:"next_run_at"`
	Fires     int                    `json:"fires"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// FirstRunAt computes the initial due instant for a fresh definition: the
// anchor when it lies in the future, otherwise one period from now.
func (s *Schedule) FirstRunAt(now time.Time) time.Time {
	if s.Spec.StartAt != nil && s.Spec.StartAt.After(now) {
		return *s.Spec.StartAt
	}
	return now.Add(s.Spec.Every())
}

// NextRunAfter advances the due instant by one period. A due instant that
// already passed (dispatcher downtime) snaps to one period from now instead of
// replaying the backlog.
func (s *Schedule) NextRunAfter(now time.Time) time.Time {
	next := s.NextRunAt.Add(s.Spec.Every())
	if !next.After(now) {
		next = now.Add(s.Spec.Every())
	}
	return next
}

// Exhausted reports whether the schedule may not fire again after the given
// next due instant.
func (s *Schedule) Exhausted(next time.Time) bool {
	if s.Spec.Limit != nil && s.Fires >= *s.Spec.Limit {
		return true
	}
	if s.Spec.EndAt != nil && next.After(*s.Spec.EndAt) {
		return true
	}
	return false
}

// OccurrenceStatus defines the status of a delivered occurrence
type OccurrenceStatus string

const (
	OccurrenceStatusPending    OccurrenceStatus = "pending"
	OccurrenceStatusProcessing OccurrenceStatus = "processing"
	OccurrenceStatusCompleted  OccurrenceStatus = "completed"
	OccurrenceStatusFailed     OccurrenceStatus = "failed"
	OccurrenceStatusRetrying   OccurrenceStatus = "retrying"
)

// Occurrence is one due execution of a schedule, delivered to the handler
// with at-least-once semantics. Sequence counts prior fires of the same
// definition, so handlers can detect redelivery.
type Occurrence struct {
	ID          string                 `json:"id"`
	JobID       string                 `json:"job_id"`
	ScheduleID  string                 `json:"schedule_id"`
	Sequence    int                    `json:"sequence"`
	Payload     map[string]interface{} `json:"payload"`
	Status      OccurrenceStatus       `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
}

// IsRetryable checks if the occurrence can be delivered again
func (o *Occurrence) IsRetryable() bool {
	return o.Status == OccurrenceStatusFailed && o.Attempts < o.MaxAttempts
}

// MarkAsProcessing updates the occurrence status to processing
func (o *Occurrence) MarkAsProcessing() {
	now := time.Now()
	o.Status = OccurrenceStatusProcessing
	o.UpdatedAt = now
	o.ProcessedAt = &now
}

// MarkAsCompleted updates the occurrence status to completed
func (o *Occurrence) MarkAsCompleted() {
	now := time.Now()
	o.Status = OccurrenceStatusCompleted
	o.UpdatedAt = now
	o.CompletedAt = &now
	o.ErrorMsg = ""
}

// MarkAsFailed updates the occurrence status to failed
func (o *Occurrence) MarkAsFailed(errorMsg string) {
	o.Status = OccurrenceStatusFailed
	o.UpdatedAt = time.Now()
	o.ErrorMsg = errorMsg
	o.Attempts++
}

// MarkAsRetrying updates the occurrence status to retrying
func (o *Occurrence) MarkAsRetrying() {
	o.Status = OccurrenceStatusRetrying
	o.UpdatedAt = time.Now()
}

// Handler consumes due occurrences. HandleOccurrence errors are retried per
// the engine's RetryPolicy; once the attempt budget is spent the engine calls
// HandleExhausted exactly once and drops the occurrence.
type Handler interface {
	HandleOccurrence(ctx context.Context, occ *Occurrence) error
	HandleExhausted(ctx context.Context, occ *Occurrence, cause error)
}

// BackoffStrategy selects how retry delays grow between attempts
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy bounds redelivery of failed occurrences.
type RetryPolicy struct {
	Attempts  int
	Strategy  BackoffStrategy
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the built-in fallback policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultMaxAttempts,
		Strategy:  BackoffExponential,
		BaseDelay: time.Minute,
	}
}

// RetryPolicyFromEnv reads the retry policy from the environment, falling back
// to defaults for missing or invalid values.
func RetryPolicyFromEnv() RetryPolicy {
	policy := DefaultRetryPolicy()

	if v, err := strconv.Atoi(env.GetEnv("SCHEDULE_RETRY_ATTEMPTS", "")); err == nil && v > 0 {
		policy.Attempts = v
	}
	switch BackoffStrategy(strings.ToLower(env.GetEnv("SCHEDULE_RETRY_STRATEGY", ""))) {
	case BackoffFixed:
		policy.Strategy = BackoffFixed
	case BackoffExponential:
		policy.Strategy = BackoffExponential
	}
	if v, err := time.ParseDuration(env.GetEnv("SCHEDULE_RETRY_BASE_DELAY", "")); err == nil && v > 0 {
		policy.BaseDelay = v
	}

	return policy
}

// Delay returns the wait before the given delivery attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Strategy == BackoffFixed {
		return p.BaseDelay
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// marshalSchedule encodes a schedule for storage
func marshalSchedule(s *Schedule) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schedule %s: %w", s.ID, err)
	}
	return string(data), nil
}

// marshalOccurrence encodes an occurrence for storage
func marshalOccurrence(o *Occurrence) (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("failed to marshal occurrence %s: %w", o.ID, err)
	}
	return string(data), nil
}
