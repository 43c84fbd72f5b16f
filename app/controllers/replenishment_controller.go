package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
	"github.com/markverse/replenish/internal/pkg/payment"
	"github.com/markverse/replenish/internal/pkg/replenisher"
	"github.com/markverse/replenish/internal/pkg/usercontext"
)

var (
	scheduler *replenisher.Scheduler
	query     *replenisher.Query
	validate  = validator.New()
)

// InitializeReplenishmentController wires the controller to its services
func InitializeReplenishmentController(s *replenisher.Scheduler, q *replenisher.Query) {
	scheduler = s
	query = q
}

type orderRequest struct {
	Items           []payment.Item `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string         `json:"payment_method" validate:"required"`
	PaymentMethodID string         `json:"payment_method_id"`
	Currency        string         `json:"currency" validate:"omitempty,len=3"`
	ShippingCountry string         `json:"shipping_country" validate:"required,len=2"`
	ShippingMethod  string         `json:"shipping_method" validate:"required"`
}

type replenishmentRequest struct {
	Interval     int          `json:"interval" validate:"required,min=1"`
	Unit         string       `json:"unit" validate:"required,oneof=day week month year custom"`
	StartingDate *time.Time   `json:"starting_date"`
	Expiry       *time.Time   `json:"expiry"`
	Times        *int         `json:"times" validate:"omitempty,min=1"`
	Order        orderRequest `json:"order" validate:"required"`
}

func (r replenishmentRequest) recurrence() replenisher.RecurrenceParams {
	return replenisher.RecurrenceParams{
		Interval:     r.Interval,
		Unit:         models.ReplenishmentUnit(r.Unit),
		StartingDate: r.StartingDate,
		Expiry:       r.Expiry,
		Times:        r.Times,
	}
}

func (r replenishmentRequest) snapshot() replenisher.SnapshotPayload {
	return replenisher.SnapshotPayload{
		OrderItems:      r.Order.Items,
		PaymentMethod:   r.Order.PaymentMethod,
		PaymentMethodID: r.Order.PaymentMethodID,
		Currency:        r.Order.Currency,
		ShippingCountry: r.Order.ShippingCountry,
		ShippingMethod:  r.Order.ShippingMethod,
	}
}

// HandleCreateReplenishment creates a recurring order for the calling customer.
func HandleCreateReplenishment(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)

	var req replenishmentRequest
	if ok, resp := parseAndValidate(c, &req); !ok {
		return resp
	}

	repl, err := scheduler.Create(c.Context(), ctx.CustomerID, req.snapshot(), req.recurrence())
	if err != nil {
		return respondReplenishmentError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(repl)
}

// HandleUpdateReplenishment replaces recurrence parameters and order payload.
func HandleUpdateReplenishment(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)
	id, ok := parseID(c)
	if !ok {
		return badID(c)
	}

	var req replenishmentRequest
	if ok, resp := parseAndValidate(c, &req); !ok {
		return resp
	}

	repl, err := scheduler.Update(c.Context(), ctx.CustomerID, id, req.snapshot(), req.recurrence())
	if err != nil {
		return respondReplenishmentError(c, err)
	}
	return c.JSON(repl)
}

// HandleToggleReplenishment cancels a live replenishment or resumes a canceled one.
func HandleToggleReplenishment(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)
	id, ok := parseID(c)
	if !ok {
		return badID(c)
	}

	repl, err := scheduler.ToggleCancel(c.Context(), ctx.CustomerID, id)
	if err != nil {
		return respondReplenishmentError(c, err)
	}
	return c.JSON(repl)
}

// HandleRemoveReplenishment hard deletes a replenishment with its schedule and snapshot.
func HandleRemoveReplenishment(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)
	id, ok := parseID(c)
	if !ok {
		return badID(c)
	}

	if err := scheduler.Remove(c.Context(), ctx.CustomerID, id); err != nil {
		return respondReplenishmentError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListReplenishments lists the calling customer's replenishments.
func HandleListReplenishments(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)

	repls, err := query.ListForCustomer(ctx.CustomerID)
	if err != nil {
		log.Errorf("[Replenisher] List failed for customer %d: %v", ctx.CustomerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load replenishments"})
	}
	return c.JSON(fiber.Map{"replenishments": repls})
}

// HandleGetReplenishment returns one replenishment with payment history.
func HandleGetReplenishment(c *fiber.Ctx) error {
	ctx := usercontext.GetCustomerContext(c)
	id, ok := parseID(c)
	if !ok {
		return badID(c)
	}

	repl, err := query.GetForCustomer(id, ctx.CustomerID)
	if err != nil {
		return respondReplenishmentError(c, err)
	}
	return c.JSON(repl)
}

// HandleAdminListReplenishments lists replenishments platform-wide with filters.
func HandleAdminListReplenishments(c *fiber.Ctx) error {
	filter := repository.ReplenishmentFilter{
		Unit:   models.ReplenishmentUnit(c.Query("unit")),
		Status: models.ReplenishmentStatus(c.Query("status")),
	}
	if v, err := strconv.ParseUint(c.Query("customer_id"), 10, 32); err == nil {
		filter.CustomerID = uint(v)
	}
	if v, err := strconv.Atoi(c.Query("interval")); err == nil {
		filter.Interval = v
	}

	repls, err := query.ListAll(filter)
	if err != nil {
		log.Errorf("[Replenisher] Admin list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load replenishments"})
	}
	return c.JSON(fiber.Map{"replenishments": repls})
}

// parseAndValidate decodes the JSON body and runs struct validation. On
// failure it has already written the error response.
func parseAndValidate(c *fiber.Ctx, req *replenishmentRequest) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validate.Struct(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	return true, nil
}

func parseID(c *fiber.Ctx) (uint, bool) {
	v, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func badID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid replenishment id"})
}

// respondReplenishmentError maps domain errors onto HTTP statuses. Write
// operations either fully succeeded or fully failed; there is no partial
// success to report.
func respondReplenishmentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, replenisher.ErrCustomerNotFound),
		errors.Is(err, replenisher.ErrReplenishmentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, replenisher.ErrInvalidTransition),
		errors.Is(err, replenisher.ErrInvalidRecurrence):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, replenisher.ErrLocked),
		errors.Is(err, repository.ErrStaleReplenishment):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	default:
		log.Errorf("[Replenisher] Operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Operation failed"})
	}
}
