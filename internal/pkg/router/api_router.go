package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/markverse/replenish/app/controllers"
	"github.com/markverse/replenish/internal/pkg/constants"
	"github.com/markverse/replenish/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.V1Route)

	// Public
	v1.Post(constants.CustomersRoute, controllers.HandleRegisterCustomer)

	// Customer-scoped, API key protected
	authed := v1.Group(constants.ReplenishmentsRoute, middleware.APIKeyAuthMiddleware())
	authed.Post("/", controllers.HandleCreateReplenishment)
	authed.Get("/", controllers.HandleListReplenishments)
	authed.Get("/:id", controllers.HandleGetReplenishment)
	authed.Put("/:id", controllers.HandleUpdateReplenishment)
	authed.Patch("/:id/toggle", controllers.HandleToggleReplenishment)
	authed.Delete("/:id", controllers.HandleRemoveReplenishment)

	// Admin
	admin := v1.Group(constants.AdminRoute, middleware.APIKeyAuthMiddleware(), middleware.RequireAdminMiddleware())
	admin.Get(constants.ReplenishmentsRoute, controllers.HandleAdminListReplenishments)
	admin.Get(constants.StatisticsRoute, controllers.HandleAdminStatistics)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
