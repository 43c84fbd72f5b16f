package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/markverse/replenish/internal/pkg/statistics"
)

// HandleAdminStatistics returns the platform summary for the admin surface.
func HandleAdminStatistics(c *fiber.Ctx) error {
	return c.JSON(statistics.GetStatistics())
}
