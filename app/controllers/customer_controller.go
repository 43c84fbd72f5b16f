package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
)

type registerCustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegisterCustomer creates a customer account and returns the API key
// exactly once; only its hash is stored.
func HandleRegisterCustomer(c *fiber.Ctx) error {
	var req registerCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	customer, apiKey, err := models.CreateCustomer(req.Name, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repo := repository.GetGlobalFactory().GetCustomerRepository()
	if err := repo.Create(customer); err != nil {
		log.Errorf("[Customer] Registration failed for %s: %v", req.Email, err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Email already registered"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"customer": customer,
		"api_key":  apiKey,
	})
}
