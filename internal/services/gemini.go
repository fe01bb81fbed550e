package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/orderease/backend/internal/models"
)

// GeminiParser implements OrderParser on top of Google's Gemini API. It is
// optional: without GEMINI_API_KEY every call reports ErrParsingUnavailable
// and the pipeline degrades to the deterministic parser.
type GeminiParser struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiParser reads configuration from the environment
func NewGeminiParser() *GeminiParser {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiParser{
		apiKey: os.Getenv("GEMINI_API_KEY"),
		model:  model,
	}
}

func (g *GeminiParser) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// ParseOrder asks Gemini to extract dish names and quantities from the
// message, then validates the result against the live catalog
func (g *GeminiParser) ParseOrder(ctx context.Context, message string, dishes []*models.Dish, conversationContext string) ([]models.OrderItem, error) {
	if g.apiKey == "" {
		return nil, ErrParsingUnavailable
	}

	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingUnavailable, err)
	}

	prompt := buildOrderPrompt(message, dishes, conversationContext)

	model := client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingUnavailable, err)
	}

	text := extractResponseText(resp)
	jsonArray := jsonArrayPattern.FindString(text)
	if jsonArray == "" {
		log.Printf("⚠️ No JSON array in Gemini response: %q", text)
		return nil, nil
	}

	var parsed []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(jsonArray), &parsed); err != nil {
		log.Printf("⚠️ Failed to decode Gemini response: %v", err)
		return nil, nil
	}

	var items []models.OrderItem
	for _, item := range parsed {
		for _, dish := range dishes {
			if strings.EqualFold(dish.Name, item.Name) && item.Quantity > 0 {
				items = append(items, models.OrderItem{
					Name:     dish.Name,
					Quantity: item.Quantity,
					Price:    dish.Price,
				})
				break
			}
		}
	}
	return items, nil
}

func buildOrderPrompt(message string, dishes []*models.Dish, conversationContext string) string {
	var dishList strings.Builder
	for _, dish := range dishes {
		fmt.Fprintf(&dishList, "%s - ₹%.0f\n", dish.Name, dish.Price)
	}

	prompt := fmt.Sprintf(`You are an assistant for a restaurant ordering system. Parse the customer's message and extract dish names and quantities.

Available dishes:
%s
Customer message: %q

Rules:
1. Only extract dishes that exist in the available dishes list
2. Match dish names even if the customer uses variations
3. If no quantity is specified, assume 1
4. Ignore words that don't relate to food orders

Return ONLY a JSON array in this exact format:
[{"name": "Pizza", "quantity": 2}]

If no valid dishes are found, return: []`, dishList.String(), message)

	if conversationContext != "" {
		prompt += fmt.Sprintf("\n\nRecent conversation for context:\n%s", conversationContext)
	}
	return prompt
}

func extractResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}
