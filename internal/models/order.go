package models

import "time"

// Order represents a confirmed, paid-for (or walk-in) order shown on the
// kitchen dashboard. Created exactly once per successful payment for
// WhatsApp orders, or directly by the website checkout.
type Order struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	DisplayOrderID string      `json:"display_order_id" gorm:"uniqueIndex;not null"`
	Items          []OrderItem `json:"items" gorm:"serializer:json"`
	Customer       Customer    `json:"customer" gorm:"embedded;embeddedPrefix:customer_"`

	// Status tracking
	Status string `json:"status" gorm:"index;default:queued"` // "queued", "preparing", "ready", "picked"
	Source string `json:"source" gorm:"default:website"`      // "website", "whatsapp"

	// Kitchen timing
	TimeRequired         int        `json:"time_required"` // in minutes
	PreparationStartedAt *time.Time `json:"preparation_started_at"`

	// Payment details
	PaymentID     string `json:"payment_id" gorm:"index"` // Razorpay payment ID
	PaymentStatus string `json:"payment_status"`          // "pending", "completed", "failed"

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem is one line of an order; price is the unit price taken from
// the catalog at parse time
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Customer holds the delivery contact collected during checkout
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Order status constants
const (
	OrderStatusQueued    = "queued"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusPicked    = "picked"

	OrderSourceWebsite  = "website"
	OrderSourceWhatsApp = "whatsapp"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// TotalAmount sums unit price times quantity over all items
func (o *Order) TotalAmount() float64 {
	total := 0.0
	for _, item := range o.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// IsPaid reports whether payment completed for this order
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusCompleted
}

// OrderUpdate is the payload accepted by the dashboard order update endpoint
type OrderUpdate struct {
	Status       string `json:"status"`
	TimeRequired *int   `json:"time_required"`
}
