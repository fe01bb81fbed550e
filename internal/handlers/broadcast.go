package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/orderease/backend/internal/services"
)

// BroadcastHandler lets the restaurant push announcements to customers
type BroadcastHandler struct {
	messenger services.Messenger
}

// NewBroadcastHandler creates a new broadcast handler
func NewBroadcastHandler(messenger services.Messenger) *BroadcastHandler {
	return &BroadcastHandler{messenger: messenger}
}

// BroadcastInput is a message fanned out to a list of phone numbers
type BroadcastInput struct {
	Phones  []string `json:"phones"`
	Message string   `json:"message"`
}

// SendBroadcast delivers the message to every listed number, reporting
// per-number failures without aborting the rest
func (h *BroadcastHandler) SendBroadcast(c *fiber.Ctx) error {
	var input BroadcastInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(input.Phones) == 0 || input.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phones and message are required",
		})
	}

	sent := 0
	var failed []string
	for _, phone := range input.Phones {
		if err := h.messenger.SendWhatsAppMessage(phone, input.Message); err != nil {
			log.Printf("❌ Broadcast to %s failed: %v", phone, err)
			failed = append(failed, phone)
			continue
		}
		sent++
	}

	log.Printf("📣 Broadcast sent to %d/%d numbers", sent, len(input.Phones))
	return c.JSON(fiber.Map{
		"sent":   sent,
		"failed": failed,
	})
}
