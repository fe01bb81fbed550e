package storage

import (
	"fmt"
	"time"

	"github.com/orderease/backend/internal/models"
)

// Store defines the interface for storage operations
type Store interface {
	// Dish operations
	CreateDish(dish *models.Dish) (*models.Dish, error)
	GetDish(id uint) (*models.Dish, error)
	GetAllDishes() ([]*models.Dish, error)
	GetAvailableDishes() ([]*models.Dish, error)
	UpdateDish(dish *models.Dish) error
	DeleteDish(id uint) error

	// Order operations. CreateOrder assigns the ID and the day-scoped
	// DisplayOrderID atomically; it is the only writer path for the
	// day-prefix lookup+insert.
	CreateOrder(order *models.Order) (*models.Order, error)
	GetOrder(id string) (*models.Order, error)
	GetOrderByDisplayID(displayID string) (*models.Order, error)
	GetAllOrders() ([]*models.Order, error)
	GetOrdersByStatus(status string) ([]*models.Order, error)
	UpdateOrder(order *models.Order) error
	DeleteOrder(id string) error

	// WhatsApp draft order operations. CreateWhatsAppOrder cancels any
	// existing non-terminal draft for the same phone number so at most
	// one is ever in flight.
	CreateWhatsAppOrder(draft *models.WhatsAppOrder) (*models.WhatsAppOrder, error)
	GetWhatsAppOrder(id string) (*models.WhatsAppOrder, error)
	GetWhatsAppOrderByPaymentID(paymentID string) (*models.WhatsAppOrder, error)
	GetWhatsAppOrderByPaymentLinkID(linkID string) (*models.WhatsAppOrder, error)
	GetPendingWhatsAppOrder(phone string) (*models.WhatsAppOrder, error)
	// GetLatestPendingPayment returns the most recent draft in
	// pending_payment status. An empty phone matches any number; this
	// best-effort fallback can misattribute under concurrent drafts, so
	// callers should prefer correlation-id resolution whenever available.
	GetLatestPendingPayment(phone string) (*models.WhatsAppOrder, error)
	GetWhatsAppOrdersByStatus(status string) ([]*models.WhatsAppOrder, error)
	UpdateWhatsAppOrder(draft *models.WhatsAppOrder) error
}

// IST is the restaurant's local timezone; display order ids and customer-
// facing timestamps are scoped to its calendar day.
var IST = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}()

// DisplayIDPrefix returns today's YYYYMMDD prefix in restaurant-local time
func DisplayIDPrefix(now time.Time) string {
	return now.In(IST).Format("20060102")
}

// FormatDisplayID builds "<YYYYMMDD>-<NNN>" from a prefix and sequence number
func FormatDisplayID(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}
