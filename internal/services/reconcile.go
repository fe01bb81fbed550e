package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

// Payment event kinds after normalization of provider payloads
const (
	PaymentEventLinkPaid = "link_paid"
	PaymentEventCaptured = "captured"
	PaymentEventFailed   = "failed"
	PaymentEventUnknown  = "unknown"
)

// PaymentEvent is the provider-neutral form of a payment signal. Webhooks,
// redirect callbacks and status polls all normalize into this before
// reconciliation, so the confirm/fail logic runs once regardless of which
// signal arrived first.
type PaymentEvent struct {
	Kind             string
	PaymentID        string
	PaymentLinkID    string
	CorrelationID    string // draft order id carried in link notes
	Amount           float64
	ErrorCode        string
	ErrorDescription string
}

type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity struct {
				ID     string            `json:"id"`
				Amount int64             `json:"amount"`
				Notes  map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID               string            `json:"id"`
				Amount           int64             `json:"amount"`
				LinkID           string            `json:"link_id"`
				Notes            map[string]string `json:"notes"`
				ErrorCode        string            `json:"error_code"`
				ErrorDescription string            `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseRazorpayWebhook normalizes a raw webhook body into a PaymentEvent.
// Unrecognized event types come back as PaymentEventUnknown, not an error:
// the webhook endpoint acks those so the provider stops retrying.
func ParseRazorpayWebhook(body []byte) (*PaymentEvent, error) {
	var payload razorpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %v", err)
	}

	event := &PaymentEvent{Kind: PaymentEventUnknown}
	payment := payload.Payload.Payment.Entity
	link := payload.Payload.PaymentLink.Entity

	switch payload.Event {
	case "payment_link.paid":
		event.Kind = PaymentEventLinkPaid
		event.PaymentLinkID = link.ID
		event.PaymentID = payment.ID
		event.Amount = float64(link.Amount) / 100
		event.CorrelationID = link.Notes["whatsapp_order_id"]
		if event.CorrelationID == "" {
			event.CorrelationID = payment.Notes["whatsapp_order_id"]
		}
	case "payment.captured":
		event.Kind = PaymentEventCaptured
		event.PaymentID = payment.ID
		event.PaymentLinkID = payment.LinkID
		event.Amount = float64(payment.Amount) / 100
		event.CorrelationID = payment.Notes["whatsapp_order_id"]
	case "payment.failed":
		event.Kind = PaymentEventFailed
		event.PaymentID = payment.ID
		event.PaymentLinkID = payment.LinkID
		event.CorrelationID = payment.Notes["whatsapp_order_id"]
		event.ErrorCode = payment.ErrorCode
		event.ErrorDescription = payment.ErrorDescription
	}

	return event, nil
}

// keyedMutex serializes work per key so concurrent signals for the same
// draft cannot interleave
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// ReconciliationService turns payment signals into confirmed orders.
// Webhook, redirect and poll paths all funnel through ProcessEvent, which
// is idempotent: replays of an already-settled draft are acked without
// creating a second order or a second notification.
type ReconciliationService struct {
	store         storage.Store
	sessions      *SessionManager
	messenger     Messenger
	webhookSecret string
	draftLocks    *keyedMutex
}

func NewReconciliationService(store storage.Store, sessions *SessionManager, messenger Messenger) *ReconciliationService {
	return &ReconciliationService{
		store:         store,
		sessions:      sessions,
		messenger:     messenger,
		webhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		draftLocks:    newKeyedMutex(),
	}
}

// VerifySignature checks the provider's HMAC-SHA256 hex signature over the
// raw body. A missing secret logs a warning and allows the request, which
// keeps local development working before credentials are configured.
func (r *ReconciliationService) VerifySignature(body []byte, signature string) error {
	if r.webhookSecret == "" {
		log.Printf("⚠️ RAZORPAY_WEBHOOK_SECRET not set, skipping signature verification")
		return nil
	}
	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ProcessEvent resolves the draft an event belongs to and settles it
func (r *ReconciliationService) ProcessEvent(event *PaymentEvent) error {
	switch event.Kind {
	case PaymentEventLinkPaid, PaymentEventCaptured:
		return r.confirmPayment(event)
	case PaymentEventFailed:
		return r.failPayment(event)
	default:
		log.Printf("ℹ️ Ignoring unhandled payment event kind: %s", event.Kind)
		return nil
	}
}

// CheckPayment is the poll-side entry point: the caller already knows the
// draft and has confirmed with the provider that it was paid
func (r *ReconciliationService) CheckPayment(draftID, paymentID string) error {
	return r.confirmPayment(&PaymentEvent{
		Kind:          PaymentEventCaptured,
		CorrelationID: draftID,
		PaymentID:     paymentID,
	})
}

// resolveDraft finds the draft an event refers to. Correlation id wins,
// then payment id, then link id, then the most recent pending-payment
// draft as a last resort for payloads with no notes at all.
func (r *ReconciliationService) resolveDraft(event *PaymentEvent) (*models.WhatsAppOrder, error) {
	if event.CorrelationID != "" {
		if draft, err := r.store.GetWhatsAppOrder(event.CorrelationID); err == nil {
			return draft, nil
		}
	}
	if event.PaymentID != "" {
		if draft, err := r.store.GetWhatsAppOrderByPaymentID(event.PaymentID); err == nil {
			return draft, nil
		}
	}
	if event.PaymentLinkID != "" {
		if draft, err := r.store.GetWhatsAppOrderByPaymentLinkID(event.PaymentLinkID); err == nil {
			return draft, nil
		}
	}
	if draft, err := r.store.GetLatestPendingPayment(""); err == nil {
		log.Printf("⚠️ Payment event matched by recency fallback: payment=%s draft=%s", event.PaymentID, draft.ID)
		return draft, nil
	}
	return nil, ErrDraftNotFound
}

func (r *ReconciliationService) confirmPayment(event *PaymentEvent) error {
	draft, err := r.resolveDraft(event)
	if err != nil {
		return err
	}

	lock := r.draftLocks.lock(draft.ID)
	defer lock.Unlock()

	// the settle mutates the draft and the conversation session, so it
	// runs inside the same per-phone critical section the bot uses
	return r.withPhoneLock(draft.PhoneNumber, func() error {
		// refetch inside the lock, a concurrent signal may have settled it
		draft, err := r.store.GetWhatsAppOrder(draft.ID)
		if err != nil {
			return ErrDraftNotFound
		}
		if draft.Status == models.DraftStatusPaid {
			log.Printf("ℹ️ Payment for draft %s already processed, ignoring duplicate", draft.ID)
			return nil
		}
		if draft.Status == models.DraftStatusCancelled {
			log.Printf("⚠️ Payment received for cancelled draft %s", draft.ID)
			return nil
		}

		order := &models.Order{
			Items:         draft.Items,
			Customer:      draft.Customer,
			Status:        models.OrderStatusQueued,
			Source:        models.OrderSourceWhatsApp,
			PaymentID:     event.PaymentID,
			PaymentStatus: models.PaymentStatusCompleted,
		}
		if _, err := r.store.CreateOrder(order); err != nil {
			return fmt.Errorf("failed to create order from draft %s: %v", draft.ID, err)
		}

		draft.Status = models.DraftStatusPaid
		draft.PaymentID = event.PaymentID
		if event.PaymentLinkID != "" {
			draft.PaymentLinkID = event.PaymentLinkID
		}
		draft.MainOrderID = order.ID
		if err := r.store.UpdateWhatsAppOrder(draft); err != nil {
			// undo so the next signal can retry cleanly
			if delErr := r.store.DeleteOrder(order.ID); delErr != nil {
				log.Printf("❌ Failed to roll back order %s: %v", order.ID, delErr)
			}
			return fmt.Errorf("failed to mark draft %s paid: %v", draft.ID, err)
		}

		log.Printf("✅ Payment confirmed for draft %s, order %s created", draft.ID, order.DisplayOrderID)
		r.advanceSession(draft.PhoneNumber, order.DisplayOrderID)
		r.notify(draft.PhoneNumber, confirmationMessage(order))
		return nil
	})
}

func (r *ReconciliationService) failPayment(event *PaymentEvent) error {
	draft, err := r.resolveDraft(event)
	if err != nil {
		return err
	}

	lock := r.draftLocks.lock(draft.ID)
	defer lock.Unlock()

	return r.withPhoneLock(draft.PhoneNumber, func() error {
		draft, err := r.store.GetWhatsAppOrder(draft.ID)
		if err != nil {
			return ErrDraftNotFound
		}
		if draft.IsTerminal() {
			log.Printf("ℹ️ Failure event for settled draft %s, ignoring", draft.ID)
			return nil
		}
		if draft.Status == models.DraftStatusPaymentFailed {
			return nil
		}

		draft.Status = models.DraftStatusPaymentFailed
		if event.PaymentID != "" {
			draft.PaymentID = event.PaymentID
		}
		if err := r.store.UpdateWhatsAppOrder(draft); err != nil {
			return fmt.Errorf("failed to mark draft %s payment_failed: %v", draft.ID, err)
		}

		log.Printf("❌ Payment failed for draft %s: %s", draft.ID, event.ErrorDescription)
		r.notify(draft.PhoneNumber, failureMessage(event))
		return nil
	})
}

// withPhoneLock runs fn inside the per-phone session lock, the same lock
// the conversation loop holds while handling an inbound message
func (r *ReconciliationService) withPhoneLock(phone string, fn func() error) error {
	if r.sessions == nil || phone == "" {
		return fn()
	}
	return r.sessions.WithLock(phone, fn)
}

func (r *ReconciliationService) advanceSession(phone, displayOrderID string) {
	if r.sessions == nil {
		return
	}
	session, err := r.sessions.GetSession(phone)
	if err != nil || session == nil {
		return
	}
	session.CompletedOrderID = displayOrderID
	session.PendingOrder = PendingOrder{}
	session.DraftOrderID = ""
	session.UpdateStage(StageOrderPlaced)
	if err := r.sessions.SaveSession(session); err != nil {
		log.Printf("⚠️ Failed to advance session for %s: %v", phone, err)
	}
}

func (r *ReconciliationService) notify(phone, message string) {
	if r.messenger == nil || phone == "" {
		return
	}
	if err := r.messenger.SendWhatsAppMessage(phone, message); err != nil {
		log.Printf("❌ Failed to send payment notification to %s: %v", phone, err)
	}
}

func confirmationMessage(order *models.Order) string {
	msg := "🎉 *Payment Received!*\n\n"
	msg += fmt.Sprintf("Your order *%s* is confirmed and sent to the kitchen! 👨‍🍳\n\n", order.DisplayOrderID)
	msg += "📋 *Order Summary:*\n"
	for _, item := range order.Items {
		msg += fmt.Sprintf("• %s x%d - ₹%.2f\n", item.Name, item.Quantity, item.Price*float64(item.Quantity))
	}
	msg += fmt.Sprintf("\n💰 *Total Paid: ₹%.2f*\n\n", order.TotalAmount())
	msg += fmt.Sprintf("Track your order anytime by sending: *%s*", order.DisplayOrderID)
	return msg
}

func failureMessage(event *PaymentEvent) string {
	msg := "❌ *Payment Failed*\n\n"
	if event.ErrorDescription != "" {
		msg += fmt.Sprintf("Reason: %s\n\n", event.ErrorDescription)
	}
	msg += "Don't worry, your order is saved! Reply *pay* to try again, or *quit* to cancel."
	return msg
}
