package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/storage"
)

const maxRetries = 3

var displayIDPattern = regexp.MustCompile(`^\d{8}-\d{3}$`)

// OrderBot drives the WhatsApp conversation. Every inbound message runs
// under the sender's session lock, so a customer's messages are applied
// strictly in order even when Twilio delivers them concurrently.
type OrderBot struct {
	store     storage.Store
	sessions  *SessionManager
	pipeline  *OrderParsingPipeline
	messenger Messenger
	payments  PaymentLinkIssuer
}

// NewOrderBot creates the conversation engine
func NewOrderBot(store storage.Store, sessions *SessionManager, pipeline *OrderParsingPipeline, messenger Messenger, payments PaymentLinkIssuer) *OrderBot {
	return &OrderBot{
		store:     store,
		sessions:  sessions,
		pipeline:  pipeline,
		messenger: messenger,
		payments:  payments,
	}
}

// ProcessMessage handles one inbound WhatsApp message from a customer
func (b *OrderBot) ProcessMessage(from, body string) error {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if normalized == "" {
		return nil
	}

	// universal commands work from any stage
	if normalized == "quit" || normalized == "reset" || normalized == "start over" || normalized == "cancel" {
		return b.handleQuit(from)
	}
	if displayIDPattern.MatchString(normalized) {
		// tracking never disturbs an in-progress conversation
		return b.handleTracking(from, normalized)
	}

	return b.sessions.WithLock(from, func() error {
		session, err := b.sessions.FindOrCreateSession(from)
		if err != nil {
			return fmt.Errorf("failed to load session for %s: %v", from, err)
		}
		session.AddMessage(body, "inbound")

		var reply string
		switch session.Stage {
		case StageBrowsing:
			reply = b.handleBrowsing(session, body, normalized)
		case StageOrdering:
			reply = b.handleOrdering(session, body, normalized)
		case StageConfirmingOrder:
			reply = b.handleConfirming(session, normalized)
		case StageCollectingDetails:
			reply = b.handleCollectingDetails(session, body)
		case StagePaymentPending:
			reply = b.handlePaymentPending(session, normalized)
		default:
			// welcome, order_placed and anything unexpected restart the flow
			reply = b.handleWelcome(session, body, normalized)
		}

		session.AddMessage(reply, "outbound")
		if err := b.sessions.SaveSession(session); err != nil {
			log.Printf("⚠️ Failed to save session for %s: %v", from, err)
		}
		return b.messenger.SendWhatsAppMessage(from, reply)
	})
}

func (b *OrderBot) handleQuit(from string) error {
	err := b.sessions.WithLock(from, func() error {
		// quitting abandons the order, so the draft must not keep
		// collecting payment reminders
		if draft, err := b.store.GetPendingWhatsAppOrder(from); err == nil {
			draft.Status = models.DraftStatusCancelled
			if err := b.store.UpdateWhatsAppOrder(draft); err != nil {
				log.Printf("⚠️ Failed to cancel draft %s on quit: %v", draft.ID, err)
			}
		}
		return b.sessions.ClearSession(from)
	})
	if err != nil {
		log.Printf("⚠️ Failed to clear session for %s: %v", from, err)
	}
	msg := "👋 No problem, I've cleared everything.\n\nSend *hi* whenever you're hungry again!"
	return b.messenger.SendWhatsAppMessage(from, msg)
}

func (b *OrderBot) handleWelcome(session *Session, body, normalized string) string {
	// customers who open with an order skip the pleasantries
	if dishes, err := b.store.GetAvailableDishes(); err == nil && isOrderMessage(normalized, dishes) {
		return b.captureItems(session, body, dishes)
	}
	session.UpdateStage(StageBrowsing)
	msg := "👋 *Welcome to OrderEase!*\n\n"
	msg += "I can take your order right here on WhatsApp.\n\n"
	msg += b.menuText()
	msg += "\n\nJust tell me what you'd like, for example:\n_\"2 pizza and 1 coke\"_\n\n"
	msg += "You can also send an order number (like 20250828-001) to track an order, or *quit* to start over."
	return msg
}

func (b *OrderBot) handleBrowsing(session *Session, body, normalized string) string {
	if normalized == "menu" || normalized == "hi" || normalized == "hello" {
		session.RetryCount = 0
		return b.menuText() + "\n\nTell me what you'd like to order!"
	}

	dishes, err := b.store.GetAvailableDishes()
	if err != nil {
		log.Printf("❌ Failed to load menu: %v", err)
		return "😔 Sorry, I'm having trouble loading the menu right now. Please try again in a moment."
	}

	if !isOrderMessage(normalized, dishes) {
		return b.retryPrompt(session, "🤔 I didn't catch an order there.\n\nTell me what you'd like, for example: _\"2 pizza and 1 coke\"_\nOr send *menu* to see everything we have.")
	}
	return b.captureItems(session, body, dishes)
}

func (b *OrderBot) handleOrdering(session *Session, body, normalized string) string {
	if normalized == "menu" {
		return b.menuText() + "\n\nTell me what you'd like to order!"
	}

	dishes, err := b.store.GetAvailableDishes()
	if err != nil {
		log.Printf("❌ Failed to load menu: %v", err)
		return "😔 Sorry, I'm having trouble right now. Please try again in a moment."
	}
	return b.captureItems(session, body, dishes)
}

// captureItems runs the parsing pipeline on an order message, folds the
// matched lines into the draft and moves the conversation to confirmation.
func (b *OrderBot) captureItems(session *Session, body string, dishes []*models.Dish) string {
	items := b.parse(body, dishes, session)
	if len(items) == 0 {
		// keep the failure count across stages so garbled follow-ups
		// still hit the simplified prompt
		session.Stage = StageOrdering
		return b.retryPrompt(session, "🤔 I couldn't match that to anything on our menu.\n\nTry something like _\"2 pizza and 1 coke\"_, or send *menu* to browse.")
	}

	session.RetryCount = 0
	session.PendingOrder.Items = MergeOrderItems(session.PendingOrder.Items, items)
	session.PendingOrder.TotalAmount = OrderItemsTotal(session.PendingOrder.Items)
	if err := b.saveDraft(session); err != nil {
		log.Printf("⚠️ Failed to save draft for %s: %v", session.PhoneNumber, err)
	}
	session.UpdateStage(StageConfirmingOrder)

	msg := "📋 *Here's your order:*\n\n"
	msg += orderLines(session.PendingOrder.Items)
	msg += fmt.Sprintf("\n💰 *Total: ₹%.2f*\n\n", session.PendingOrder.TotalAmount)
	msg += "Reply *yes* to confirm, *no* to start over, or just tell me more items to add."
	return msg
}

func (b *OrderBot) handleConfirming(session *Session, normalized string) string {
	switch normalized {
	case "yes", "y", "confirm", "ok", "okay":
		session.RetryCount = 0
		session.UpdateStage(StageCollectingDetails)
		if err := b.advanceDraft(session, models.DraftStatusPendingDetails); err != nil {
			log.Printf("⚠️ Failed to advance draft for %s: %v", session.PhoneNumber, err)
		}
		return "Great! 🎉 Now I just need your details.\n\nPlease send your *name, phone number and address*, separated by commas:\n\n_John Doe, 9876543210, 42 MG Road_"
	case "no", "n":
		session.RetryCount = 0
		session.PendingOrder = PendingOrder{}
		session.DraftOrderID = ""
		session.UpdateStage(StageBrowsing)
		return "No worries, let's start fresh! 🔄\n\nTell me what you'd like to order."
	default:
		// a last-second "add 1 coke" folds into the cart instead of failing
		if dishes, err := b.store.GetAvailableDishes(); err == nil && isOrderMessage(normalized, dishes) {
			if items := b.parse(normalized, dishes, session); len(items) > 0 {
				session.RetryCount = 0
				session.PendingOrder.Items = MergeOrderItems(session.PendingOrder.Items, items)
				session.PendingOrder.TotalAmount = OrderItemsTotal(session.PendingOrder.Items)
				if err := b.saveDraft(session); err != nil {
					log.Printf("⚠️ Failed to save draft for %s: %v", session.PhoneNumber, err)
				}
				msg := "✅ *Added! Your updated order:*\n\n"
				msg += orderLines(session.PendingOrder.Items)
				msg += fmt.Sprintf("\n💰 *Total: ₹%.2f*\n\n", session.PendingOrder.TotalAmount)
				msg += "Reply *yes* to confirm, or *no* to change it."
				return msg
			}
		}
		return b.retryPrompt(session, "Please reply *yes* to confirm your order, or *no* to change it.")
	}
}

func (b *OrderBot) handleCollectingDetails(session *Session, body string) string {
	customer, err := parseCustomerDetails(body)
	if err != nil {
		return b.retryPrompt(session, "🤔 I couldn't read those details.\n\nPlease send *name, phone, address* separated by commas:\n\n_John Doe, 9876543210, 42 MG Road_")
	}

	session.RetryCount = 0
	session.CustomerInfo = customer

	draft, err := b.currentDraft(session)
	if err != nil {
		log.Printf("❌ Draft missing for %s at details stage: %v", session.PhoneNumber, err)
		session.UpdateStage(StageBrowsing)
		return "😔 Something went wrong with your order. Let's start again, tell me what you'd like!"
	}
	draft.Customer = customer
	draft.Status = models.DraftStatusPendingPayment
	if err := b.store.UpdateWhatsAppOrder(draft); err != nil {
		log.Printf("❌ Failed to update draft %s: %v", draft.ID, err)
		return "😔 Something went wrong saving your details. Please send them again."
	}

	session.UpdateStage(StagePaymentPending)
	return b.issueLink(session, draft)
}

func (b *OrderBot) handlePaymentPending(session *Session, normalized string) string {
	draft, err := b.currentDraft(session)
	if err != nil {
		session.UpdateStage(StageBrowsing)
		return "I don't have a pending payment for you. Tell me what you'd like to order! 🍽️"
	}

	// the webhook may have settled the draft between messages
	if draft.Status == models.DraftStatusPaid {
		session.CompletedOrderID = firstNonEmpty(session.CompletedOrderID, draft.MainOrderID)
		session.UpdateStage(StageOrderPlaced)
		return "🎉 Your payment already went through and your order is confirmed! Send your order number anytime to track it."
	}

	switch normalized {
	case "pay", "retry", "link":
		return b.issueLink(session, draft)
	case "status", "paid":
		return fmt.Sprintf("⏳ I haven't received your payment yet for ₹%.2f.\n\nReply *pay* if you need the payment link again.", draft.TotalAmount)
	default:
		return fmt.Sprintf("⏳ Your order is waiting for payment (₹%.2f).\n\nReply *pay* to get the payment link again, or *quit* to cancel.", draft.TotalAmount)
	}
}

func (b *OrderBot) handleTracking(from, displayID string) error {
	order, err := b.store.GetOrderByDisplayID(displayID)
	if err != nil {
		msg := fmt.Sprintf("🔍 I couldn't find order *%s*.\n\nPlease double-check the order number and try again.", displayID)
		return b.messenger.SendWhatsAppMessage(from, msg)
	}
	return b.messenger.SendWhatsAppMessage(from, trackingMessage(order))
}

// parse runs the parsing pipeline with recent conversation context so the
// intelligent parser can resolve references like "make that two"
func (b *OrderBot) parse(body string, dishes []*models.Dish, session *Session) []models.OrderItem {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return b.pipeline.Parse(ctx, body, dishes, conversationContext(session))
}

// saveDraft persists the session's pending order as a collecting-items
// draft, creating one on first use
func (b *OrderBot) saveDraft(session *Session) error {
	if session.DraftOrderID != "" {
		draft, err := b.store.GetWhatsAppOrder(session.DraftOrderID)
		if err == nil && !draft.IsTerminal() {
			draft.Items = session.PendingOrder.Items
			draft.Recalculate()
			return b.store.UpdateWhatsAppOrder(draft)
		}
	}
	draft := &models.WhatsAppOrder{
		PhoneNumber: session.PhoneNumber,
		Items:       session.PendingOrder.Items,
		Status:      models.DraftStatusCollectingItems,
	}
	draft.Recalculate()
	created, err := b.store.CreateWhatsAppOrder(draft)
	if err != nil {
		return err
	}
	session.DraftOrderID = created.ID
	return nil
}

func (b *OrderBot) advanceDraft(session *Session, status string) error {
	draft, err := b.currentDraft(session)
	if err != nil {
		return err
	}
	draft.Status = status
	return b.store.UpdateWhatsAppOrder(draft)
}

func (b *OrderBot) currentDraft(session *Session) (*models.WhatsAppOrder, error) {
	if session.DraftOrderID != "" {
		if draft, err := b.store.GetWhatsAppOrder(session.DraftOrderID); err == nil {
			return draft, nil
		}
	}
	return b.store.GetPendingWhatsAppOrder(session.PhoneNumber)
}

// issueLink creates (or re-creates) the payment link for a draft. Provider
// failures keep the draft alive so the customer can retry with *pay*.
func (b *OrderBot) issueLink(session *Session, draft *models.WhatsAppOrder) string {
	link, err := b.payments.IssuePaymentLink(draft.TotalAmount, draft.ID, session.PhoneNumber)
	if err != nil {
		log.Printf("❌ Failed to create payment link for draft %s: %v", draft.ID, err)
		return "😔 Payments are temporarily unavailable.\n\nYour order is saved! Reply *pay* in a little while to get your payment link."
	}

	draft.PaymentLinkID = link.ID
	draft.Status = models.DraftStatusPendingPayment // a retried failure goes back to pending
	if err := b.store.UpdateWhatsAppOrder(draft); err != nil {
		log.Printf("⚠️ Failed to store payment link id for draft %s: %v", draft.ID, err)
	}

	msg := fmt.Sprintf("💳 *Almost there, %s!*\n\n", firstNonEmpty(draft.Customer.Name, "friend"))
	msg += fmt.Sprintf("Pay ₹%.2f to confirm your order:\n\n%s\n\n", draft.TotalAmount, link.ShortURL)
	msg += "I'll confirm here as soon as the payment goes through! ✅"
	return msg
}

// retryPrompt counts consecutive misunderstandings; after the ceiling the
// bot switches to the shortest possible instruction
func (b *OrderBot) retryPrompt(session *Session, prompt string) string {
	session.RetryCount++
	if session.RetryCount >= maxRetries {
		return "Let's keep it simple! 🙂\n\nSend *menu* to see our dishes, or *quit* to start over."
	}
	return prompt
}

func (b *OrderBot) menuText() string {
	dishes, err := b.store.GetAvailableDishes()
	if err != nil || len(dishes) == 0 {
		return "😔 Our menu is being updated right now, please check back soon!"
	}
	msg := "🍽️ *Today's Menu:*\n\n"
	for _, dish := range dishes {
		msg += fmt.Sprintf("• *%s* - ₹%.2f\n", dish.Name, dish.Price)
		if dish.Description != "" {
			msg += fmt.Sprintf("  _%s_\n", dish.Description)
		}
	}
	return strings.TrimRight(msg, "\n")
}

// isOrderMessage is a cheap gate before running the parsing pipeline:
// digits, intent keywords, or any available dish name count as an order
func isOrderMessage(normalized string, dishes []*models.Dish) bool {
	if strings.ContainsFunc(normalized, unicode.IsDigit) {
		return true
	}
	for _, kw := range []string{"want", "order", "get me", "give me", "i'll have", "like to"} {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	for _, dish := range dishes {
		if strings.Contains(normalized, strings.ToLower(dish.Name)) {
			return true
		}
	}
	return false
}

// parseCustomerDetails reads checkout details from free text. It accepts
// comma-separated "name, phone, address" or labelled lines like "Name: x".
func parseCustomerDetails(body string) (models.Customer, error) {
	var customer models.Customer

	if strings.Contains(strings.ToLower(body), "name:") {
		for _, line := range strings.Split(body, "\n") {
			key, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "name":
				customer.Name = value
			case "phone", "mobile", "number":
				customer.Phone = value
			case "address":
				customer.Address = value
			}
		}
	} else {
		// the first segment is always the name; a leading phone number
		// means the customer got the format backwards
		parts := strings.Split(body, ",")
		for i, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if i > 0 && looksLikePhone(part) && customer.Phone == "" {
				customer.Phone = part
			} else if customer.Name == "" {
				customer.Name = part
			} else {
				if customer.Address != "" {
					customer.Address += ", "
				}
				customer.Address += part
			}
		}
	}

	customer.Phone = normalizePhone(customer.Phone)
	if len(strings.TrimSpace(customer.Name)) < 2 || allDigits(customer.Name) {
		return models.Customer{}, fmt.Errorf("%w: missing or invalid name", ErrValidationFailed)
	}
	if customer.Phone == "" {
		return models.Customer{}, fmt.Errorf("%w: missing or invalid phone number", ErrValidationFailed)
	}
	return customer, nil
}

func looksLikePhone(s string) bool {
	return normalizePhone(s) != ""
}

// normalizePhone strips separators and returns the digits, or "" when the
// result is not a plausible phone number
func normalizePhone(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		if r == ' ' || r == '-' || r == '+' || r == '(' || r == ')' {
			return -1
		}
		return 'x' // any other character disqualifies the token
	}, s)
	if strings.ContainsRune(cleaned, 'x') {
		return ""
	}
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return ""
	}
	return cleaned
}

func allDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ' ' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

// conversationContext flattens the recent inbound history for the
// intelligent parser
func conversationContext(session *Session) string {
	if len(session.MessageHistory) == 0 {
		return ""
	}
	var parts []string
	for _, m := range session.MessageHistory {
		if m.Direction == "inbound" {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var orderStatusEmoji = map[string]string{
	models.OrderStatusQueued:    "🕐",
	models.OrderStatusPreparing: "👨‍🍳",
	models.OrderStatusReady:     "✅",
	models.OrderStatusPicked:    "🎉",
}

var orderStatusText = map[string]string{
	models.OrderStatusQueued:    "In queue, we'll start preparing it soon",
	models.OrderStatusPreparing: "Being prepared right now",
	models.OrderStatusReady:     "Ready for pickup!",
	models.OrderStatusPicked:    "Picked up, enjoy your meal!",
}

func trackingMessage(order *models.Order) string {
	emoji := orderStatusEmoji[order.Status]
	if emoji == "" {
		emoji = "📦"
	}
	statusText := orderStatusText[order.Status]
	if statusText == "" {
		statusText = order.Status
	}

	msg := fmt.Sprintf("%s *Order %s*\n\n", emoji, order.DisplayOrderID)
	msg += fmt.Sprintf("Status: *%s*\n", statusText)
	msg += fmt.Sprintf("Placed: %s (%s)\n\n", order.CreatedAt.In(storage.IST).Format("3:04 PM"), timeAgo(order.CreatedAt))
	msg += orderLines(order.Items)
	msg += fmt.Sprintf("\n💰 Total: ₹%.2f", order.TotalAmount())

	if order.Status == models.OrderStatusPreparing && order.PreparationStartedAt != nil && order.TimeRequired > 0 {
		remaining := time.Duration(order.TimeRequired)*time.Minute - time.Since(*order.PreparationStartedAt)
		if remaining > 0 {
			msg += fmt.Sprintf("\n\n⏱️ Ready in about %d minutes", int(remaining.Minutes())+1)
		} else {
			msg += "\n\n⏱️ Should be ready any moment now!"
		}
	}
	return msg
}

func orderLines(items []models.OrderItem) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("• %s x%d - ₹%.2f\n", item.Name, item.Quantity, item.Price*float64(item.Quantity)))
	}
	return sb.String()
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
