package usercontext

import (
	"github.com/gofiber/fiber/v2"
)

// ContextKey is the fiber locals key the auth middleware writes.
const ContextKey = "CUSTOMER_CONTEXT"

// CustomerContext carries the resolved caller identity through a request.
type CustomerContext struct {
	CustomerID uint
	Name       string
	IsLoggedIn bool
	IsAdmin    bool
}

// GetCustomerContext returns the caller identity set by the auth middleware.
// Requests that never passed the middleware resolve to an anonymous context.
func GetCustomerContext(c *fiber.Ctx) CustomerContext {
	if ctx, ok := c.Locals(ContextKey).(CustomerContext); ok {
		return ctx
	}
	return CustomerContext{}
}
