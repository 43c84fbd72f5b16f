package models

import (
	"time"
)

// ReplenishmentUnit is the calendar unit a recurrence interval multiplies.
type ReplenishmentUnit string

const (
	UnitDay    ReplenishmentUnit = "day"
	UnitWeek   ReplenishmentUnit = "week"
	UnitMonth  ReplenishmentUnit = "month"
	UnitYear   ReplenishmentUnit = "year"
	UnitCustom ReplenishmentUnit = "custom"
)

// IsValid reports whether the unit is one of the supported recurrence units.
func (u ReplenishmentUnit) IsValid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear, UnitCustom:
		return true
	}
	return false
}

// ReplenishmentStatus is the lifecycle state of a recurring order subscription.
type ReplenishmentStatus string

const (
	ReplenishmentScheduled ReplenishmentStatus = "scheduled"
	ReplenishmentActive    ReplenishmentStatus = "active"
	ReplenishmentFinished  ReplenishmentStatus = "finished"
	ReplenishmentCanceled  ReplenishmentStatus = "canceled"
	ReplenishmentFailed    ReplenishmentStatus = "failed"
)

// IsTerminal reports whether the status allows no further transitions.
func (s ReplenishmentStatus) IsTerminal() bool {
	return s == ReplenishmentFinished || s == ReplenishmentFailed
}

// IsLive reports whether a schedule definition must exist in the schedule
// engine for this status.
func (s ReplenishmentStatus) IsLive() bool {
	return s == ReplenishmentScheduled || s == ReplenishmentActive
}

// Replenishment is one recurring-order subscription. SchedulerID addresses the
// schedule engine and never changes; NextJobID points at the snapshot entry for
// the next pending occurrence and is replaced on every update/resume.
type Replenishment struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	SchedulerID     string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"scheduler_id"`
	NextJobID       *string             `gorm:"type:varchar(80);default:null" json:"next_job_id,omitempty"`
	CustomerID      uint                `gorm:"not null;index" json:"customer_id"`
	OrderRef        *string             `gorm:"type:varchar(191);default:null" json:"order_ref,omitempty"`
	StartDate       time.Time           `gorm:"not null" json:"start_date"`
	LastPaymentDate *time.Time          `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	NextPaymentDate *time.Time          `gorm:"type:timestamp;default:null" json:"next_payment_date,omitempty"`
	Unit            ReplenishmentUnit   `gorm:"type:varchar(16);not null" json:"unit" validate:"oneof=day week month year custom"`
	Interval        int                 `gorm:"not null" json:"interval" validate:"min=1"`
	EndDate         *time.Time          `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	Times           *int                `gorm:"default:null" json:"times,omitempty"`
	Executions      int                 `gorm:"not null;default:0" json:"executions"`
	Status          ReplenishmentStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	Version         uint                `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	Customer *Customer              `gorm:"foreignKey:CustomerID" json:"-"`
	Payments []ReplenishmentPayment `gorm:"foreignKey:ReplenishmentID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
}

// RemainingBudget returns the occurrence budget still available under the
// given total cap, or nil when the cap is absent or already consumed.
func (r *Replenishment) RemainingBudget(times *int) *int {
	if times == nil {
		return nil
	}
	remaining := *times - r.Executions
	if remaining <= 0 {
		return nil
	}
	return &remaining
}

// ReplenishmentPayment is an append-only audit row mirroring LastPaymentDate.
// Rows are created by the persistence layer in the same transaction that sets
// the field, never through a separate API call.
type ReplenishmentPayment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ReplenishmentID uint      `gorm:"not null;index" json:"replenishment_id"`
	PaymentDate     time.Time `gorm:"not null" json:"payment_date"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
