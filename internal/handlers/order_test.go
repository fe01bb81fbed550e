package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

func newOrderApp(t *testing.T) (*fiber.App, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	_, err := store.CreateDish(&models.Dish{Name: "Pizza", Price: 250, Available: true})
	require.NoError(t, err)
	_, err = store.CreateDish(&models.Dish{Name: "Coke", Price: 50, Available: true})
	require.NoError(t, err)

	h := NewOrderHandler(store)
	app := fiber.New()
	app.Post("/api/orders", h.CreateOrder)
	app.Get("/api/orders", h.GetAllOrders)
	app.Get("/api/orders/track/:displayId", h.TrackOrder)
	app.Patch("/api/orders/:id", h.UpdateOrder)
	return app, store
}

func TestOrderHandler_WebsiteOrderRepricesFromCatalog(t *testing.T) {
	app, _ := newOrderApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/orders", fiber.Map{
		"items": []fiber.Map{
			{"name": "pizza", "quantity": 2, "price": 1}, // client price ignored
		},
		"customer": fiber.Map{"name": "John", "phone": "9876543210"},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var order models.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	assert.Equal(t, models.OrderSourceWebsite, order.Source)
	assert.Equal(t, 250.0, order.Items[0].Price)
	assert.Regexp(t, `^\d{8}-\d{3}$`, order.DisplayOrderID)
}

func TestOrderHandler_RejectsUnknownDish(t *testing.T) {
	app, _ := newOrderApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/orders", fiber.Map{
		"items":    []fiber.Map{{"name": "Sushi", "quantity": 1}},
		"customer": fiber.Map{"name": "John", "phone": "9876543210"},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOrderHandler_KitchenWorkflow(t *testing.T) {
	app, store := newOrderApp(t)

	created, err := store.CreateOrder(&models.Order{
		Items:  []models.OrderItem{{Name: "Pizza", Quantity: 1, Price: 250}},
		Status: models.OrderStatusQueued,
	})
	require.NoError(t, err)
	require.Nil(t, created.PreparationStartedAt)

	resp, err := app.Test(jsonRequest(t, http.MethodPatch, "/api/orders/"+created.ID, fiber.Map{
		"status":        models.OrderStatusPreparing,
		"time_required": 20,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err := store.GetOrder(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, got.Status)
	assert.Equal(t, 20, got.TimeRequired)
	require.NotNil(t, got.PreparationStartedAt)
	startedAt := *got.PreparationStartedAt

	// moving through later statuses keeps the original prep start time
	resp, err = app.Test(jsonRequest(t, http.MethodPatch, "/api/orders/"+created.ID, fiber.Map{
		"status": models.OrderStatusReady,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err = store.GetOrder(created.ID)
	require.NoError(t, err)
	assert.Equal(t, startedAt, *got.PreparationStartedAt)

	resp, err = app.Test(jsonRequest(t, http.MethodPatch, "/api/orders/"+created.ID, fiber.Map{
		"status": "burnt",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOrderHandler_TrackByDisplayID(t *testing.T) {
	app, store := newOrderApp(t)

	created, err := store.CreateOrder(&models.Order{
		Items:  []models.OrderItem{{Name: "Coke", Quantity: 1, Price: 50}},
		Status: models.OrderStatusReady,
	})
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/orders/track/"+created.DisplayOrderID, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/orders/track/20200101-001", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
