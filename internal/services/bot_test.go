package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) SendWhatsAppMessage(to, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeMessenger) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeIssuer struct {
	fail  bool
	calls int
}

func (f *fakeIssuer) IssuePaymentLink(amount float64, correlationID string, phone string) (*PaymentLink, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: provider down", ErrPaymentProvider)
	}
	return &PaymentLink{
		ID:       fmt.Sprintf("plink_%d", f.calls),
		ShortURL: "https://rzp.io/i/test",
	}, nil
}

func newTestBot(t *testing.T) (*OrderBot, *storage.MemoryStore, *fakeMessenger, *fakeIssuer) {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, dish := range []*models.Dish{
		{Name: "Pizza", Price: 250, Available: true},
		{Name: "Burger", Price: 120, Available: true},
		{Name: "Coke", Price: 50, Available: true},
	} {
		_, err := store.CreateDish(dish)
		require.NoError(t, err)
	}

	messenger := &fakeMessenger{}
	issuer := &fakeIssuer{}
	sessions := NewSessionManager(NewMemorySessionStore())
	pipeline := NewOrderParsingPipeline(nil)
	bot := NewOrderBot(store, sessions, pipeline, messenger, issuer)
	return bot, store, messenger, issuer
}

const testPhone = "+919876543210"

func TestOrderBot_FullOrderingFlow(t *testing.T) {
	bot, store, messenger, issuer := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	assert.Contains(t, messenger.last(), "Welcome")
	assert.Contains(t, messenger.last(), "Pizza")

	require.NoError(t, bot.ProcessMessage(testPhone, "2 pizza and 1 coke"))
	assert.Contains(t, messenger.last(), "Pizza x2")
	assert.Contains(t, messenger.last(), "₹550.00")
	assert.Contains(t, messenger.last(), "confirm")

	// draft follows the cart
	draft, err := store.GetPendingWhatsAppOrder(testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCollectingItems, draft.Status)
	assert.Equal(t, 550.0, draft.TotalAmount)

	// an extra item during confirmation folds into the cart
	require.NoError(t, bot.ProcessMessage(testPhone, "1 burger"))
	assert.Contains(t, messenger.last(), "Burger x1")
	assert.Contains(t, messenger.last(), "₹670.00")

	require.NoError(t, bot.ProcessMessage(testPhone, "yes"))
	assert.Contains(t, messenger.last(), "name, phone number and address")

	require.NoError(t, bot.ProcessMessage(testPhone, "John Doe, 9876543210, 42 MG Road"))
	assert.Contains(t, messenger.last(), "https://rzp.io/i/test")
	assert.Equal(t, 1, issuer.calls)

	draft, err = store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPendingPayment, draft.Status)
	assert.Equal(t, "John Doe", draft.Customer.Name)
	assert.Equal(t, "9876543210", draft.Customer.Phone)
	assert.Equal(t, "42 MG Road", draft.Customer.Address)
	assert.Equal(t, "plink_1", draft.PaymentLinkID)
}

func TestOrderBot_LastSecondAdditionDuringConfirmation(t *testing.T) {
	bot, _, messenger, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	require.NoError(t, bot.ProcessMessage(testPhone, "1 pizza"))

	require.NoError(t, bot.ProcessMessage(testPhone, "add 1 coke"))
	assert.Contains(t, messenger.last(), "Coke x1")
	assert.Contains(t, messenger.last(), "₹300.00")

	// confirmation still works after the addition
	require.NoError(t, bot.ProcessMessage(testPhone, "yes"))
	assert.Contains(t, messenger.last(), "name, phone number and address")
}

func TestOrderBot_RetryCeilingSimplifiesPrompt(t *testing.T) {
	bot, _, messenger, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	for i := 0; i < 2; i++ {
		require.NoError(t, bot.ProcessMessage(testPhone, "qwerty asdf"))
		assert.Contains(t, messenger.last(), "didn't catch")
	}
	require.NoError(t, bot.ProcessMessage(testPhone, "qwerty asdf"))
	assert.Contains(t, messenger.last(), "keep it simple")
}

func TestOrderBot_RejectsInvalidCustomerDetails(t *testing.T) {
	bot, _, messenger, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	require.NoError(t, bot.ProcessMessage(testPhone, "1 pizza"))
	require.NoError(t, bot.ProcessMessage(testPhone, "yes"))

	// phone only, no name
	require.NoError(t, bot.ProcessMessage(testPhone, "9876543210"))
	assert.Contains(t, messenger.last(), "couldn't read")

	// phone and name swapped
	require.NoError(t, bot.ProcessMessage(testPhone, "9876543210, John"))
	assert.Contains(t, messenger.last(), "couldn't read")

	// valid details still accepted afterwards
	require.NoError(t, bot.ProcessMessage(testPhone, "John, 9876543210, MG Road"))
	assert.Contains(t, messenger.last(), "rzp.io")
}

func TestOrderBot_QuitClearsConversation(t *testing.T) {
	bot, _, messenger, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	require.NoError(t, bot.ProcessMessage(testPhone, "1 pizza"))
	require.NoError(t, bot.ProcessMessage(testPhone, "quit"))
	assert.Contains(t, messenger.last(), "cleared")

	// next message starts from the top
	require.NoError(t, bot.ProcessMessage(testPhone, "hello"))
	assert.Contains(t, messenger.last(), "Welcome")
}

func TestOrderBot_QuitCancelsPendingDraft(t *testing.T) {
	bot, store, _, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	require.NoError(t, bot.ProcessMessage(testPhone, "1 pizza"))
	require.NoError(t, bot.ProcessMessage(testPhone, "yes"))
	require.NoError(t, bot.ProcessMessage(testPhone, "John, 9876543210, MG Road"))

	draft, err := store.GetPendingWhatsAppOrder(testPhone)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusPendingPayment, draft.Status)

	require.NoError(t, bot.ProcessMessage(testPhone, "quit"))

	// no pending draft remains to collect payment reminders
	_, err = store.GetPendingWhatsAppOrder(testPhone)
	assert.Error(t, err)

	cancelled, err := store.GetWhatsAppOrder(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCancelled, cancelled.Status)
}

func TestOrderBot_PaymentLinkFailureKeepsDraftAlive(t *testing.T) {
	bot, store, messenger, issuer := newTestBot(t)
	issuer.fail = true

	require.NoError(t, bot.ProcessMessage(testPhone, "hi"))
	require.NoError(t, bot.ProcessMessage(testPhone, "1 pizza"))
	require.NoError(t, bot.ProcessMessage(testPhone, "yes"))
	require.NoError(t, bot.ProcessMessage(testPhone, "John, 9876543210, MG Road"))
	assert.Contains(t, messenger.last(), "temporarily unavailable")

	draft, err := store.GetPendingWhatsAppOrder(testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPendingPayment, draft.Status)

	// provider recovers, customer retries
	issuer.fail = false
	require.NoError(t, bot.ProcessMessage(testPhone, "pay"))
	assert.Contains(t, messenger.last(), "rzp.io")
}

func TestOrderBot_TrackOrderByDisplayID(t *testing.T) {
	bot, store, messenger, _ := newTestBot(t)

	order := &models.Order{
		Items:    []models.OrderItem{{Name: "Pizza", Quantity: 1, Price: 250}},
		Customer: models.Customer{Name: "John", Phone: "9876543210"},
		Status:   models.OrderStatusPreparing,
		Source:   models.OrderSourceWhatsApp,
	}
	created, err := store.CreateOrder(order)
	require.NoError(t, err)

	require.NoError(t, bot.ProcessMessage(testPhone, created.DisplayOrderID))
	assert.Contains(t, messenger.last(), created.DisplayOrderID)
	assert.Contains(t, messenger.last(), "prepared")
}

func TestOrderBot_TrackUnknownOrder(t *testing.T) {
	bot, _, messenger, _ := newTestBot(t)

	require.NoError(t, bot.ProcessMessage(testPhone, "20200101-001"))
	assert.Contains(t, messenger.last(), "couldn't find")
}

func TestParseCustomerDetails(t *testing.T) {
	t.Run("comma separated", func(t *testing.T) {
		customer, err := parseCustomerDetails("John Doe, 98765 43210, 42 MG Road, Bangalore")
		require.NoError(t, err)
		assert.Equal(t, "John Doe", customer.Name)
		assert.Equal(t, "9876543210", customer.Phone)
		assert.Equal(t, "42 MG Road, Bangalore", customer.Address)
	})

	t.Run("labelled lines", func(t *testing.T) {
		customer, err := parseCustomerDetails("Name: Priya\nPhone: +91-98765-43210\nAddress: 7 Park Street")
		require.NoError(t, err)
		assert.Equal(t, "Priya", customer.Name)
		assert.Equal(t, "919876543210", customer.Phone)
		assert.Equal(t, "7 Park Street", customer.Address)
	})

	t.Run("missing phone", func(t *testing.T) {
		_, err := parseCustomerDetails("John Doe, somewhere")
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("numeric name", func(t *testing.T) {
		_, err := parseCustomerDetails("12345, 9876543210")
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("phone before name", func(t *testing.T) {
		_, err := parseCustomerDetails("9876543210, John")
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}
