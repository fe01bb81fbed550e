package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"log"
	"os"
	"sort"

	"github.com/gofiber/fiber/v2"
)

// ValidateTwilioSignature verifies that a webhook request really came from
// Twilio, using the X-Twilio-Signature scheme: HMAC-SHA1 over the full URL
// concatenated with the sorted form parameters.
func ValidateTwilioSignature() fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		authToken := os.Getenv("TWILIO_AUTH_TOKEN")
		if authToken == "" {
			log.Println("ERROR: TWILIO_AUTH_TOKEN not set")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		expected := calculateTwilioSignature(authToken, fullRequestURL(c), formParams)
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// fullRequestURL reconstructs the public URL Twilio signed. BACKEND_URL
// wins when set, since the service usually sits behind a proxy that
// rewrites Host.
func fullRequestURL(c *fiber.Ctx) string {
	if base := os.Getenv("BACKEND_URL"); base != "" {
		return base + c.OriginalURL()
	}
	protocol := "https"
	if c.Protocol() == "http" {
		protocol = "http"
	}
	return protocol + "://" + c.Hostname() + c.OriginalURL()
}

func calculateTwilioSignature(authToken, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := url
	for _, k := range keys {
		data += k + params[k]
	}

	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
