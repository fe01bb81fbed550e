package models

import "time"

// WhatsAppOrder is a draft order being built in a WhatsApp conversation.
// Its ID doubles as the payment correlation id: it is embedded in the
// payment link's notes so a later webhook or redirect can find the draft.
type WhatsAppOrder struct {
	ID          string      `json:"id" gorm:"primaryKey"` // uuid, set once at creation
	PhoneNumber string      `json:"phone_number" gorm:"index"`
	Items       []OrderItem `json:"items" gorm:"serializer:json"`
	Customer    Customer    `json:"customer" gorm:"embedded;embeddedPrefix:customer_"`
	TotalAmount float64     `json:"total_amount"`

	// "collecting_items", "pending_details", "pending_payment",
	// "paid", "payment_failed", "cancelled"
	Status string `json:"status" gorm:"index;default:collecting_items"`

	PaymentID     string `json:"payment_id" gorm:"index"` // Razorpay payment ID once known
	PaymentLinkID string `json:"payment_link_id" gorm:"index"`
	MainOrderID   string `json:"main_order_id"` // set when the final Order is created

	ReminderSentAt *time.Time `json:"reminder_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft order status constants
const (
	DraftStatusCollectingItems = "collecting_items"
	DraftStatusPendingDetails  = "pending_details"
	DraftStatusPendingPayment  = "pending_payment"
	DraftStatusPaid            = "paid"
	DraftStatusPaymentFailed   = "payment_failed"
	DraftStatusCancelled       = "cancelled"
)

// IsTerminal reports whether the draft can no longer change
func (w *WhatsAppOrder) IsTerminal() bool {
	return w.Status == DraftStatusPaid || w.Status == DraftStatusCancelled
}

// Recalculate recomputes TotalAmount from the line items
func (w *WhatsAppOrder) Recalculate() {
	total := 0.0
	for _, item := range w.Items {
		total += item.Price * float64(item.Quantity)
	}
	w.TotalAmount = total
}
