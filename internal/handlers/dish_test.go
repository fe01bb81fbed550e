package handlers

import (
	"bytes"
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

func newDishApp(t *testing.T) (*fiber.App, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	h := NewDishHandler(store)

	app := fiber.New()
	app.Post("/api/dishes", h.CreateDish)
	app.Get("/api/dishes", h.GetAllDishes)
	app.Get("/api/dishes/available", h.GetAvailableDishes)
	app.Get("/api/dishes/:id", h.GetDish)
	app.Patch("/api/dishes/:id", h.UpdateDish)
	app.Delete("/api/dishes/:id", h.DeleteDish)
	return app, store
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDishHandler_CreateAndFetch(t *testing.T) {
	app, _ := newDishApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/dishes", fiber.Map{
		"name":        "Pizza",
		"price":       250,
		"description": "Wood-fired margherita",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created models.Dish
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, created.Available)
	assert.NotZero(t, created.ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dishes", nil))
	require.NoError(t, err)
	var dishes []models.Dish
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dishes))
	assert.Len(t, dishes, 1)
}

func TestDishHandler_ValidatesInput(t *testing.T) {
	app, _ := newDishApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/dishes", fiber.Map{
		"name": "Freebie",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDishHandler_AvailabilityToggle(t *testing.T) {
	app, store := newDishApp(t)

	dish, err := store.CreateDish(&models.Dish{Name: "Pizza", Price: 250, Available: true})
	require.NoError(t, err)

	resp, err := app.Test(jsonRequest(t, http.MethodPatch, "/api/dishes/1", fiber.Map{
		"available": false,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err := store.GetDish(dish.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dishes/available", nil))
	require.NoError(t, err)
	var available []models.Dish
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&available))
	assert.Empty(t, available)
}

func TestDishHandler_NotFound(t *testing.T) {
	app, _ := newDishApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dishes/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dishes/not-a-number", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
