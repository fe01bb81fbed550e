package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

// DishHandler exposes menu management for the restaurant dashboard
type DishHandler struct {
	store storage.Store
}

// NewDishHandler creates a new dish handler
func NewDishHandler(store storage.Store) *DishHandler {
	return &DishHandler{store: store}
}

// CreateDish adds a dish to the menu
func (h *DishHandler) CreateDish(c *fiber.Ctx) error {
	var input models.DishInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.Name == "" || input.Price <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and a positive price are required",
		})
	}

	dish := &models.Dish{
		Name:        input.Name,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
		Description: input.Description,
		Available:   true,
	}
	if input.Available != nil {
		dish.Available = *input.Available
	}

	created, err := h.store.CreateDish(dish)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create dish",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetAllDishes lists the full menu, including unavailable dishes
func (h *DishHandler) GetAllDishes(c *fiber.Ctx) error {
	dishes, err := h.store.GetAllDishes()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch dishes",
		})
	}
	return c.JSON(dishes)
}

// GetAvailableDishes lists only dishes a customer can order right now
func (h *DishHandler) GetAvailableDishes(c *fiber.Ctx) error {
	dishes, err := h.store.GetAvailableDishes()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch dishes",
		})
	}
	return c.JSON(dishes)
}

// GetDish returns one dish by id
func (h *DishHandler) GetDish(c *fiber.Ctx) error {
	id, err := parseDishID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dish id",
		})
	}
	dish, err := h.store.GetDish(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dish not found",
		})
	}
	return c.JSON(dish)
}

// UpdateDish applies partial updates to a dish
func (h *DishHandler) UpdateDish(c *fiber.Ctx) error {
	id, err := parseDishID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dish id",
		})
	}
	dish, err := h.store.GetDish(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dish not found",
		})
	}

	var input models.DishInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if input.Name != "" {
		dish.Name = input.Name
	}
	if input.Price > 0 {
		dish.Price = input.Price
	}
	if input.ImageURL != "" {
		dish.ImageURL = input.ImageURL
	}
	if input.Description != "" {
		dish.Description = input.Description
	}
	if input.Available != nil {
		dish.Available = *input.Available
	}

	if err := h.store.UpdateDish(dish); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update dish",
		})
	}
	return c.JSON(dish)
}

// DeleteDish removes a dish from the menu
func (h *DishHandler) DeleteDish(c *fiber.Ctx) error {
	id, err := parseDishID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dish id",
		})
	}
	if err := h.store.DeleteDish(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dish not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func parseDishID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	return uint(id), err
}
