package replenisher

import (
	"encoding/json"

	"github.com/markverse/replenish/internal/pkg/payment"
)

// OccurrencePayload is the engine-facing payload attached to a schedule. It is
// what the worker receives on every due occurrence.
type OccurrencePayload struct {
	OrderItems      []payment.Item `json:"order_items"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentMethodID string         `json:"payment_method_id,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	ShippingCountry string         `json:"shipping_country"`
	ShippingMethod  string         `json:"shipping_method"`
	CustomerID      uint           `json:"customer_id"`
	PeriodMS        int64          `json:"period_ms"`
	ReplenishmentID uint           `json:"replenishment_id"`

	// BaselineExecutions is the number of executions already recorded on the
	// replenishment when this schedule definition was registered. The engine
	// numbers occurrences per definition starting at zero, so the worker's
	// redelivery guard compares against sequence plus this baseline.
	BaselineExecutions int `json:"baseline_executions"`
}

// ToMap converts the payload to a map for storage
func (p OccurrencePayload) ToMap() map[string]interface{} {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// OccurrencePayloadFromMap creates a payload from a map
func OccurrencePayloadFromMap(data map[string]interface{}) (*OccurrencePayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload OccurrencePayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// Order builds the gateway order from the payload.
func (p OccurrencePayload) Order() payment.Order {
	return payment.Order{
		Items:           p.OrderItems,
		Currency:        p.Currency,
		PaymentMethod:   p.PaymentMethod,
		PaymentMethodID: p.PaymentMethodID,
		ShippingCountry: p.ShippingCountry,
		ShippingMethod:  p.ShippingMethod,
	}
}

// SnapshotPayload is the part of the occurrence payload persisted in the
// snapshot store: the order itself, stripped of the replenishment-internal
// fields (period, replenishment id) that are recomputed on every upsert.
type SnapshotPayload struct {
	OrderItems      []payment.Item `json:"order_items"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentMethodID string         `json:"payment_method_id,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	ShippingCountry string         `json:"shipping_country"`
	ShippingMethod  string         `json:"shipping_method"`
	CustomerID      uint           `json:"customer_id"`
}

// Snapshot strips the payload down to its persistable part.
func (p OccurrencePayload) Snapshot() SnapshotPayload {
	return SnapshotPayload{
		OrderItems:      p.OrderItems,
		PaymentMethod:   p.PaymentMethod,
		PaymentMethodID: p.PaymentMethodID,
		Currency:        p.Currency,
		ShippingCountry: p.ShippingCountry,
		ShippingMethod:  p.ShippingMethod,
		CustomerID:      p.CustomerID,
	}
}

// WithRecurrence rebuilds the full occurrence payload from a snapshot plus the
// recurrence fields valid for the new schedule definition. baselineExecutions
// anchors the new definition's zero-based sequence numbers to the executions
// already recorded on the replenishment.
func (s SnapshotPayload) WithRecurrence(replenishmentID uint, periodMS int64, baselineExecutions int) OccurrencePayload {
	return OccurrencePayload{
		OrderItems:         s.OrderItems,
		PaymentMethod:      s.PaymentMethod,
		PaymentMethodID:    s.PaymentMethodID,
		Currency:           s.Currency,
		ShippingCountry:    s.ShippingCountry,
		ShippingMethod:     s.ShippingMethod,
		CustomerID:         s.CustomerID,
		PeriodMS:           periodMS,
		ReplenishmentID:    replenishmentID,
		BaselineExecutions: baselineExecutions,
	}
}
