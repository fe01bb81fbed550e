package handlers

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/orderease/backend/internal/services"
	"github.com/orderease/backend/internal/storage"
)

// PaymentHandler terminates the three payment signal paths: provider
// webhooks, browser redirect callbacks, and client status polls
type PaymentHandler struct {
	store       storage.Store
	reconciler  *services.ReconciliationService
	frontendURL string
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(store storage.Store, reconciler *services.ReconciliationService) *PaymentHandler {
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	return &PaymentHandler{
		store:       store,
		reconciler:  reconciler,
		frontendURL: frontendURL,
	}
}

// HandleRazorpayWebhook processes payment events pushed by Razorpay
func (h *PaymentHandler) HandleRazorpayWebhook(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get("X-Razorpay-Signature")

	if err := h.reconciler.VerifySignature(body, signature); err != nil {
		log.Printf("❌ Webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	event, err := services.ParseRazorpayWebhook(body)
	if err != nil {
		log.Printf("❌ Webhook parse error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	if err := h.reconciler.ProcessEvent(event); err != nil {
		if errors.Is(err, services.ErrDraftNotFound) {
			// nothing to reconcile; ack so the provider stops retrying
			log.Printf("⚠️ Webhook for unknown draft: payment=%s link=%s", event.PaymentID, event.PaymentLinkID)
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		log.Printf("❌ Webhook processing error: %v", err)
		// 500 makes Razorpay retry, which is what we want for transient failures
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Processing failed",
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// HandlePaymentSuccess is the browser redirect target after a hosted
// payment completes. The webhook usually lands first; this path settles
// the draft itself when it wins the race.
func (h *PaymentHandler) HandlePaymentSuccess(c *fiber.Ctx) error {
	paymentID := c.Query("razorpay_payment_id")
	linkID := c.Query("razorpay_payment_link_id")
	linkStatus := c.Query("razorpay_payment_link_status")

	if paymentID == "" || linkID == "" {
		return c.Redirect(h.trackURL("", "payment_info_missing"))
	}
	// a redirect with a non-paid link status carries no usable payment
	if linkStatus != "" && linkStatus != "paid" {
		return c.Redirect(h.trackURL("", "payment_info_missing"))
	}

	event := &services.PaymentEvent{
		Kind:          services.PaymentEventCaptured,
		PaymentID:     paymentID,
		PaymentLinkID: linkID,
	}
	if err := h.reconciler.ProcessEvent(event); err != nil {
		if errors.Is(err, services.ErrDraftNotFound) {
			return c.Redirect(h.trackURL("", "order_not_found"))
		}
		log.Printf("❌ Redirect callback processing error: %v", err)
		return c.Redirect(h.trackURL("", "processing_error"))
	}

	draft, err := h.store.GetWhatsAppOrderByPaymentLinkID(linkID)
	if err != nil || draft.MainOrderID == "" {
		return c.Redirect(h.trackURL("", "order_not_found"))
	}
	order, err := h.store.GetOrder(draft.MainOrderID)
	if err != nil {
		return c.Redirect(h.trackURL("", "order_not_found"))
	}
	return c.Redirect(h.trackURL(order.DisplayOrderID, ""))
}

// HandleDraftStatus lets clients poll a draft until it settles
func (h *PaymentHandler) HandleDraftStatus(c *fiber.Ctx) error {
	draft, err := h.store.GetWhatsAppOrder(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Draft order not found",
		})
	}

	response := fiber.Map{
		"id":           draft.ID,
		"status":       draft.Status,
		"total_amount": draft.TotalAmount,
	}
	if draft.MainOrderID != "" {
		if order, err := h.store.GetOrder(draft.MainOrderID); err == nil {
			response["display_order_id"] = order.DisplayOrderID
		}
	}
	return c.JSON(response)
}

func (h *PaymentHandler) trackURL(displayOrderID, errorCode string) string {
	if errorCode != "" {
		return fmt.Sprintf("%s/track?error=%s", h.frontendURL, errorCode)
	}
	return fmt.Sprintf("%s/track?order=%s", h.frontendURL, displayOrderID)
}
