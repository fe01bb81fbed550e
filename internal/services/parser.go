package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/orderease/backend/internal/models"
)

// OrderParser extracts order line items from free text. Implementations may
// be unavailable (missing credentials, network down); they report that as an
// error and the pipeline degrades to the deterministic parser.
type OrderParser interface {
	ParseOrder(ctx context.Context, message string, dishes []*models.Dish, conversationContext string) ([]models.OrderItem, error)
}

// OrderParsingPipeline tries the intelligent parser first and falls back to
// deterministic token scanning. It never returns an error: an empty result
// means "no items recognized".
type OrderParsingPipeline struct {
	intelligent OrderParser // optional
	timeout     time.Duration
}

// NewOrderParsingPipeline creates a pipeline; intelligent may be nil to run
// fallback-only
func NewOrderParsingPipeline(intelligent OrderParser) *OrderParsingPipeline {
	return &OrderParsingPipeline{
		intelligent: intelligent,
		timeout:     10 * time.Second,
	}
}

// Parse extracts order items from a message against the available menu
func (p *OrderParsingPipeline) Parse(ctx context.Context, message string, dishes []*models.Dish, conversationContext string) []models.OrderItem {
	if len(dishes) == 0 {
		return nil
	}

	if p.intelligent != nil {
		parseCtx, cancel := context.WithTimeout(ctx, p.timeout)
		items, err := p.intelligent.ParseOrder(parseCtx, message, dishes, conversationContext)
		cancel()

		switch {
		case err == nil && len(items) > 0:
			return validateItems(items, dishes)
		case errors.Is(err, ErrParsingUnavailable):
			log.Printf("🔧 Intelligent parser unavailable, falling back to simple parsing")
		case err != nil:
			log.Printf("❌ Intelligent parser error: %v", err)
		}
	}

	return validateItems(simpleParseOrder(message, dishes), dishes)
}

// simpleParseOrder is the deterministic fallback: scan for quantity tokens
// followed by a 1-3 word dish-name window, then try a single bare-name match
// with quantity 1
func simpleParseOrder(message string, dishes []*models.Dish) []models.OrderItem {
	var items []models.OrderItem
	lower := strings.ToLower(message)
	words := strings.Fields(lower)

	for i := 0; i < len(words); i++ {
		quantity, err := strconv.Atoi(words[i])
		if err != nil || quantity <= 0 {
			continue
		}

		// Look for a dish name in the next few words
		end := i + 4
		if end > len(words) {
			end = len(words)
		}
		for j := i + 1; j < end; j++ {
			candidate := strings.Join(words[i+1:j+1], " ")
			if dish := matchDish(candidate, dishes); dish != nil {
				items = mergeItem(items, dish, quantity)
				break
			}
		}
	}

	// No quantities anywhere: try one bare-name match across the whole
	// message. Stop at the first hit to avoid ambiguous multi-item guesses.
	if len(items) == 0 {
		for _, dish := range dishes {
			if dishNameMatches(strings.ToLower(dish.Name), lower) {
				items = mergeItem(items, dish, 1)
				break
			}
		}
	}

	return items
}

// matchDish returns the first catalog entry matching the candidate window.
// First match by catalog order wins; that tie-break is a known ambiguity.
func matchDish(candidate string, dishes []*models.Dish) *models.Dish {
	for _, dish := range dishes {
		if dishNameMatches(strings.ToLower(dish.Name), candidate) {
			return dish
		}
	}
	return nil
}

// dishNameMatches applies substring containment in either direction, a
// trailing-s plural strip, and a light fuzzy heuristic
func dishNameMatches(dishLower, input string) bool {
	if input == "" {
		return false
	}
	if strings.Contains(dishLower, input) || strings.Contains(input, dishLower) {
		return true
	}
	if singular := strings.TrimSuffix(input, "s"); singular != input && strings.Contains(dishLower, singular) {
		return true
	}
	return fuzzyMatch(dishLower, input)
}

// genericWords are stripped before comparing remainders, so "veg burger"
// still matches "veg delight burger" style names
var genericWords = strings.NewReplacer(
	"pizza", "",
	"burger", "",
	"coke", "",
	"drink", "",
)

func fuzzyMatch(dishLower, input string) bool {
	cleanDish := strings.TrimSpace(genericWords.Replace(dishLower))
	cleanInput := strings.TrimSpace(genericWords.Replace(input))
	if cleanDish == "" || cleanInput == "" {
		return false
	}
	return strings.Contains(cleanDish, cleanInput) || strings.Contains(cleanInput, cleanDish)
}

// mergeItem accumulates duplicate dish matches by summing quantity
func mergeItem(items []models.OrderItem, dish *models.Dish, quantity int) []models.OrderItem {
	for i := range items {
		if items[i].Name == dish.Name {
			items[i].Quantity += quantity
			return items
		}
	}
	return append(items, models.OrderItem{
		Name:     dish.Name,
		Quantity: quantity,
		Price:    dish.Price,
	})
}

// validateItems keeps only items naming a currently-available dish, always
// re-prices from the catalog, drops non-positive quantities, and merges
// duplicates
func validateItems(items []models.OrderItem, dishes []*models.Dish) []models.OrderItem {
	var valid []models.OrderItem
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		for _, dish := range dishes {
			if dish.Available && strings.EqualFold(dish.Name, item.Name) {
				valid = mergeItem(valid, dish, item.Quantity)
				break
			}
		}
	}
	return valid
}

// MergeOrderItems folds new items into an existing line-item list, summing
// quantities per dish name
func MergeOrderItems(existing, incoming []models.OrderItem) []models.OrderItem {
	merged := append([]models.OrderItem{}, existing...)
	for _, item := range incoming {
		found := false
		for i := range merged {
			if merged[i].Name == item.Name {
				merged[i].Quantity += item.Quantity
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, item)
		}
	}
	return merged
}

// OrderItemsTotal sums unit price times quantity
func OrderItemsTotal(items []models.OrderItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}
