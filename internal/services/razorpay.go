package services

import (
	"fmt"
	"log"
	"math"
	"os"

	razorpay "github.com/razorpay/razorpay-go"
)

// PaymentLink is a hosted payment page issued for one draft order
type PaymentLink struct {
	ID       string
	ShortURL string
}

// PaymentLinkIssuer wraps the payment provider's hosted-link capability.
// Every link carries the draft order's id in its notes so webhooks and
// redirects can resolve the draft deterministically.
type PaymentLinkIssuer interface {
	IssuePaymentLink(amount float64, correlationID string, phone string) (*PaymentLink, error)
}

// RazorpayService implements PaymentLinkIssuer against Razorpay
type RazorpayService struct {
	client      *razorpay.Client
	callbackURL string
}

// NewRazorpayService creates the Razorpay client from environment config
func NewRazorpayService() (*RazorpayService, error) {
	keyID := os.Getenv("RAZORPAY_KEY_ID")
	keySecret := os.Getenv("RAZORPAY_KEY_SECRET")
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("missing Razorpay credentials in environment variables")
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8080"
	}

	return &RazorpayService{
		client:      razorpay.NewClient(keyID, keySecret),
		callbackURL: backendURL + "/api/whatsapp/payment-success",
	}, nil
}

// IssuePaymentLink creates a hosted payment link for the given amount,
// tagged with the draft order id
func (r *RazorpayService) IssuePaymentLink(amount float64, correlationID string, phone string) (*PaymentLink, error) {
	data := map[string]interface{}{
		"amount":         int64(math.Round(amount * 100)), // rupees to paise
		"currency":       "INR",
		"accept_partial": false,
		"description":    "OrderEase - Order Payment",
		"customer": map[string]interface{}{
			"contact": phone,
		},
		"notify": map[string]interface{}{
			"sms":   false,
			"email": false,
		},
		"reminder_enable": false,
		"notes": map[string]interface{}{
			"whatsapp_order_id": correlationID,
			"source":            "whatsapp",
		},
		"callback_url":    r.callbackURL,
		"callback_method": "get",
	}

	link, err := r.client.PaymentLink.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	shortURL, ok := link["short_url"].(string)
	if !ok || shortURL == "" {
		return nil, fmt.Errorf("%w: payment link response missing short_url", ErrPaymentProvider)
	}
	linkID, _ := link["id"].(string)

	log.Printf("💳 Payment link created for draft %s: %s", correlationID, linkID)
	return &PaymentLink{ID: linkID, ShortURL: shortURL}, nil
}

// UnavailablePaymentIssuer stands in when Razorpay credentials are absent,
// so the rest of the conversation flow stays usable in development
type UnavailablePaymentIssuer struct{}

func NewUnavailablePaymentIssuer() *UnavailablePaymentIssuer {
	return &UnavailablePaymentIssuer{}
}

func (u *UnavailablePaymentIssuer) IssuePaymentLink(amount float64, correlationID string, phone string) (*PaymentLink, error) {
	return nil, fmt.Errorf("%w: payment provider not configured", ErrPaymentProvider)
}
