package controllers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
	"github.com/markverse/replenish/internal/pkg/replenisher"
)

func TestReplenishmentRequestConverters(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	times := 5
	req := replenishmentRequest{
		Interval:     2,
		Unit:         "week",
		StartingDate: &start,
		Times:        &times,
		Order: orderRequest{
			PaymentMethod:   "card",
			PaymentMethodID: "pm_123",
			Currency:        "eur",
			ShippingCountry: "DE",
			ShippingMethod:  "standard",
		},
	}

	rec := req.recurrence()
	assert.Equal(t, 2, rec.Interval)
	assert.Equal(t, models.UnitWeek, rec.Unit)
	assert.Equal(t, &start, rec.StartingDate)
	assert.Nil(t, rec.Expiry)
	assert.Equal(t, &times, rec.Times)

	snap := req.snapshot()
	assert.Equal(t, "card", snap.PaymentMethod)
	assert.Equal(t, "pm_123", snap.PaymentMethodID)
	assert.Equal(t, "DE", snap.ShippingCountry)
	assert.Zero(t, snap.CustomerID) // set by the scheduler, never by the client
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name  string
		param string
		id    uint
		ok    bool
	}{
		{"Valid", "42", 42, true},
		{"Zero", "0", 0, false},
		{"Negative", "-1", 0, false},
		{"Garbage", "abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var gotID uint
			var gotOK bool
			app.Get("/:id", func(c *fiber.Ctx) error {
				gotID, gotOK = parseID(c)
				return c.SendStatus(fiber.StatusOK)
			})

			_, err := app.Test(httptest.NewRequest("GET", "/"+tt.param, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.id, gotID)
			assert.Equal(t, tt.ok, gotOK)
		})
	}
}

func TestRespondReplenishmentError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"Customer not found", replenisher.ErrCustomerNotFound, fiber.StatusNotFound},
		{"Replenishment not found", replenisher.ErrReplenishmentNotFound, fiber.StatusNotFound},
		{"Invalid transition", replenisher.ErrInvalidTransition, fiber.StatusBadRequest},
		{"Invalid recurrence", replenisher.ErrInvalidRecurrence, fiber.StatusBadRequest},
		{"Locked", replenisher.ErrLocked, fiber.StatusConflict},
		{"Stale row", repository.ErrStaleReplenishment, fiber.StatusConflict},
		{"Unknown", assert.AnError, fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondReplenishmentError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
