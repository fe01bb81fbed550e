package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

func newTestReconciler(t *testing.T) (*ReconciliationService, *storage.MemoryStore, *SessionManager, *fakeMessenger) {
	t.Helper()
	store := storage.NewMemoryStore()
	sessions := NewSessionManager(NewMemorySessionStore())
	messenger := &fakeMessenger{}
	return NewReconciliationService(store, sessions, messenger), store, sessions, messenger
}

func seedPendingDraft(t *testing.T, store *storage.MemoryStore) *models.WhatsAppOrder {
	t.Helper()
	draft, err := store.CreateWhatsAppOrder(&models.WhatsAppOrder{
		PhoneNumber: testPhone,
		Items: []models.OrderItem{
			{Name: "Pizza", Quantity: 2, Price: 250},
		},
		Customer:      models.Customer{Name: "John", Phone: "9876543210", Address: "MG Road"},
		Status:        models.DraftStatusPendingPayment,
		PaymentLinkID: "plink_test",
	})
	require.NoError(t, err)
	draft.Recalculate()
	require.NoError(t, store.UpdateWhatsAppOrder(draft))
	return draft
}

func TestReconciler_ConfirmPaymentCreatesOrderOnce(t *testing.T) {
	reconciler, store, sessions, messenger := newTestReconciler(t)
	draft := seedPendingDraft(t, store)

	session, err := sessions.FindOrCreateSession(testPhone)
	require.NoError(t, err)
	session.Stage = StagePaymentPending
	session.DraftOrderID = draft.ID
	require.NoError(t, sessions.SaveSession(session))

	event := &PaymentEvent{
		Kind:          PaymentEventCaptured,
		PaymentID:     "pay_123",
		PaymentLinkID: "plink_test",
		CorrelationID: draft.ID,
		Amount:        500,
	}
	require.NoError(t, reconciler.ProcessEvent(event))

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, models.OrderStatusQueued, order.Status)
	assert.Equal(t, models.OrderSourceWhatsApp, order.Source)
	assert.Equal(t, "pay_123", order.PaymentID)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Regexp(t, `^\d{8}-\d{3}$`, order.DisplayOrderID)

	settled, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaid, settled.Status)
	assert.Equal(t, order.ID, settled.MainOrderID)

	session, err = sessions.GetSession(testPhone)
	require.NoError(t, err)
	assert.Equal(t, StageOrderPlaced, session.Stage)
	assert.Equal(t, order.DisplayOrderID, session.CompletedOrderID)

	require.Equal(t, 1, messenger.count())
	assert.Contains(t, messenger.last(), order.DisplayOrderID)

	// webhook replays are acked without a second order or notification
	require.NoError(t, reconciler.ProcessEvent(event))
	orders, err = store.GetAllOrders()
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, 1, messenger.count())
}

func TestReconciler_ResolvesByPaymentLinkID(t *testing.T) {
	reconciler, store, _, _ := newTestReconciler(t)
	draft := seedPendingDraft(t, store)

	// redirect callbacks carry no notes, only the link id
	event := &PaymentEvent{
		Kind:          PaymentEventCaptured,
		PaymentID:     "pay_456",
		PaymentLinkID: "plink_test",
	}
	require.NoError(t, reconciler.ProcessEvent(event))

	settled, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaid, settled.Status)
}

func TestReconciler_UnknownDraft(t *testing.T) {
	reconciler, store, _, messenger := newTestReconciler(t)

	event := &PaymentEvent{
		Kind:          PaymentEventCaptured,
		PaymentID:     "pay_789",
		CorrelationID: "no-such-draft",
	}
	err := reconciler.ProcessEvent(event)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	orders, listErr := store.GetAllOrders()
	require.NoError(t, listErr)
	assert.Empty(t, orders)
	assert.Zero(t, messenger.count())
}

func TestReconciler_FailedPayment(t *testing.T) {
	reconciler, store, _, messenger := newTestReconciler(t)
	draft := seedPendingDraft(t, store)

	event := &PaymentEvent{
		Kind:             PaymentEventFailed,
		PaymentID:        "pay_bad",
		CorrelationID:    draft.ID,
		ErrorDescription: "Card declined",
	}
	require.NoError(t, reconciler.ProcessEvent(event))

	failed, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaymentFailed, failed.Status)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.Equal(t, 1, messenger.count())
	assert.Contains(t, messenger.last(), "Card declined")

	// duplicate failure events stay silent
	require.NoError(t, reconciler.ProcessEvent(event))
	assert.Equal(t, 1, messenger.count())
}

func TestReconciler_FailureThenSuccess(t *testing.T) {
	reconciler, store, _, messenger := newTestReconciler(t)
	draft := seedPendingDraft(t, store)

	require.NoError(t, reconciler.ProcessEvent(&PaymentEvent{
		Kind:          PaymentEventFailed,
		PaymentID:     "pay_bad",
		CorrelationID: draft.ID,
	}))
	require.NoError(t, reconciler.ProcessEvent(&PaymentEvent{
		Kind:          PaymentEventCaptured,
		PaymentID:     "pay_good",
		CorrelationID: draft.ID,
	}))

	settled, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaid, settled.Status)
	assert.Equal(t, 2, messenger.count())
}

func TestParseRazorpayWebhook(t *testing.T) {
	t.Run("payment_link.paid", func(t *testing.T) {
		body := []byte(`{
			"event": "payment_link.paid",
			"payload": {
				"payment_link": {
					"entity": {
						"id": "plink_abc",
						"amount": 55000,
						"notes": {"whatsapp_order_id": "draft-1"}
					}
				},
				"payment": {"entity": {"id": "pay_abc"}}
			}
		}`)
		event, err := ParseRazorpayWebhook(body)
		require.NoError(t, err)
		assert.Equal(t, PaymentEventLinkPaid, event.Kind)
		assert.Equal(t, "plink_abc", event.PaymentLinkID)
		assert.Equal(t, "pay_abc", event.PaymentID)
		assert.Equal(t, "draft-1", event.CorrelationID)
		assert.Equal(t, 550.0, event.Amount)
	})

	t.Run("payment.failed", func(t *testing.T) {
		body := []byte(`{
			"event": "payment.failed",
			"payload": {
				"payment": {
					"entity": {
						"id": "pay_xyz",
						"link_id": "plink_xyz",
						"notes": {"whatsapp_order_id": "draft-2"},
						"error_code": "BAD_REQUEST_ERROR",
						"error_description": "Card declined"
					}
				}
			}
		}`)
		event, err := ParseRazorpayWebhook(body)
		require.NoError(t, err)
		assert.Equal(t, PaymentEventFailed, event.Kind)
		assert.Equal(t, "draft-2", event.CorrelationID)
		assert.Equal(t, "Card declined", event.ErrorDescription)
	})

	t.Run("unknown event", func(t *testing.T) {
		event, err := ParseRazorpayWebhook([]byte(`{"event": "refund.created"}`))
		require.NoError(t, err)
		assert.Equal(t, PaymentEventUnknown, event.Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := ParseRazorpayWebhook([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestVerifySignature(t *testing.T) {
	reconciler, _, _, _ := newTestReconciler(t)
	reconciler.webhookSecret = "test-secret"

	body := []byte(`{"event":"payment.captured"}`)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, reconciler.VerifySignature(body, valid))
	assert.ErrorIs(t, reconciler.VerifySignature(body, "deadbeef"), ErrSignatureInvalid)
}

func TestReconciler_SettlementSerializesWithConversation(t *testing.T) {
	reconciler, store, sessions, messenger := newTestReconciler(t)
	draft := seedPendingDraft(t, store)

	session, err := sessions.FindOrCreateSession(testPhone)
	require.NoError(t, err)
	session.Stage = StagePaymentPending
	session.DraftOrderID = draft.ID
	require.NoError(t, sessions.SaveSession(session))

	bot := NewOrderBot(store, sessions, NewOrderParsingPipeline(nil), messenger, &fakeIssuer{})

	event := &PaymentEvent{
		Kind:          PaymentEventCaptured,
		PaymentID:     "pay_race",
		CorrelationID: draft.ID,
	}

	// a customer asking about their payment must not interleave with the
	// settlement mutating the same session and draft
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bot.ProcessMessage(testPhone, "paid?"))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, reconciler.ProcessEvent(event))
	}()
	wg.Wait()

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)

	settled, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaid, settled.Status)
}
