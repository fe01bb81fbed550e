package handlers

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

// OrderHandler exposes order intake and kitchen workflow endpoints
type OrderHandler struct {
	store storage.Store
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(store storage.Store) *OrderHandler {
	return &OrderHandler{store: store}
}

// WebsiteOrderInput is an order placed through the restaurant website
type WebsiteOrderInput struct {
	Items    []models.OrderItem `json:"items"`
	Customer models.Customer    `json:"customer"`
}

// CreateOrder places a website order directly into the kitchen queue
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var input WebsiteOrderInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(input.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Order must contain at least one item",
		})
	}
	if input.Customer.Name == "" || input.Customer.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Customer name and phone are required",
		})
	}

	// always price from the catalog, never trust client-side prices
	items, err := h.repriceItems(input.Items)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	order := &models.Order{
		Items:         items,
		Customer:      input.Customer,
		Status:        models.OrderStatusQueued,
		Source:        models.OrderSourceWebsite,
		PaymentStatus: models.PaymentStatusPending,
	}
	created, err := h.store.CreateOrder(order)
	if err != nil {
		log.Printf("❌ Failed to create website order: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create order",
		})
	}

	log.Printf("🧾 Website order %s created for %s", created.DisplayOrderID, created.Customer.Phone)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetAllOrders lists orders, optionally filtered by ?status=
func (h *OrderHandler) GetAllOrders(c *fiber.Ctx) error {
	status := c.Query("status")

	var (
		orders []*models.Order
		err    error
	)
	if status != "" {
		orders, err = h.store.GetOrdersByStatus(status)
	} else {
		orders, err = h.store.GetAllOrders()
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch orders",
		})
	}
	return c.JSON(orders)
}

// TrackOrder returns one order by its customer-facing display id
func (h *OrderHandler) TrackOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrderByDisplayID(c.Params("displayId"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Order not found",
		})
	}
	return c.JSON(order)
}

// UpdateOrder advances an order through the kitchen workflow
func (h *OrderHandler) UpdateOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Order not found",
		})
	}

	var update models.OrderUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if update.Status != "" {
		if !validOrderStatus(update.Status) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid status",
			})
		}
		// the prep clock starts once, on the first move into preparing
		if update.Status == models.OrderStatusPreparing && order.PreparationStartedAt == nil {
			now := time.Now()
			order.PreparationStartedAt = &now
		}
		order.Status = update.Status
	}
	if update.TimeRequired != nil {
		order.TimeRequired = *update.TimeRequired
	}

	if err := h.store.UpdateOrder(order); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update order",
		})
	}
	return c.JSON(order)
}

// DeleteOrder removes an order, used by the dashboard for mistakes
func (h *OrderHandler) DeleteOrder(c *fiber.Ctx) error {
	if err := h.store.DeleteOrder(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Order not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *OrderHandler) repriceItems(items []models.OrderItem) ([]models.OrderItem, error) {
	dishes, err := h.store.GetAvailableDishes()
	if err != nil {
		return nil, fmt.Errorf("failed to load menu")
	}
	byName := make(map[string]*models.Dish, len(dishes))
	for _, dish := range dishes {
		byName[normalizeName(dish.Name)] = dish
	}

	priced := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		dish, ok := byName[normalizeName(item.Name)]
		if !ok {
			return nil, fmt.Errorf("unknown or unavailable dish: %s", item.Name)
		}
		if item.Quantity <= 0 {
			continue
		}
		priced = append(priced, models.OrderItem{
			Name:     dish.Name,
			Quantity: item.Quantity,
			Price:    dish.Price,
		})
	}
	if len(priced) == 0 {
		return nil, fmt.Errorf("no valid items in order")
	}
	return priced, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validOrderStatus(status string) bool {
	switch status {
	case models.OrderStatusQueued, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusPicked:
		return true
	}
	return false
}
