package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderease/backend/internal/models"
)

func menuFixture() []*models.Dish {
	return []*models.Dish{
		{ID: 1, Name: "Pizza", Price: 250, Available: true},
		{ID: 2, Name: "Burger", Price: 120, Available: true},
		{ID: 3, Name: "Veg Burger", Price: 140, Available: true},
		{ID: 4, Name: "Coke", Price: 50, Available: true},
		{ID: 5, Name: "Lasagna", Price: 320, Available: false},
	}
}

func TestSimpleParseOrder_QuantityAndItem(t *testing.T) {
	items := simpleParseOrder("2 pizza 1 coke", menuFixture())
	require.Len(t, items, 2)
	assert.Equal(t, models.OrderItem{Name: "Pizza", Quantity: 2, Price: 250}, items[0])
	assert.Equal(t, models.OrderItem{Name: "Coke", Quantity: 1, Price: 50}, items[1])
	assert.Equal(t, 550.0, OrderItemsTotal(items))
}

func TestSimpleParseOrder_PluralForms(t *testing.T) {
	items := simpleParseOrder("3 pizzas please", menuFixture())
	require.Len(t, items, 1)
	assert.Equal(t, "Pizza", items[0].Name)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestSimpleParseOrder_BareDishNameDefaultsToOne(t *testing.T) {
	items := simpleParseOrder("coke", menuFixture())
	require.Len(t, items, 1)
	assert.Equal(t, "Coke", items[0].Name)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestSimpleParseOrder_DuplicateMentionsMerge(t *testing.T) {
	items := simpleParseOrder("1 pizza and 2 pizza", menuFixture())
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestSimpleParseOrder_NoMatch(t *testing.T) {
	items := simpleParseOrder("what time do you close", menuFixture())
	assert.Empty(t, items)
}

// stubParser lets pipeline tests script the intelligent parser's behavior
type stubParser struct {
	items []models.OrderItem
	err   error
	calls int
}

func (s *stubParser) ParseOrder(ctx context.Context, message string, dishes []*models.Dish, conversationContext string) ([]models.OrderItem, error) {
	s.calls++
	return s.items, s.err
}

func TestPipeline_PrefersIntelligentParser(t *testing.T) {
	stub := &stubParser{items: []models.OrderItem{{Name: "Pizza", Quantity: 2, Price: 999}}}
	pipeline := NewOrderParsingPipeline(stub)

	items := pipeline.Parse(context.Background(), "two pizzas", menuFixture(), "")
	require.Len(t, items, 1)
	assert.Equal(t, 1, stub.calls)
	// prices always come from the catalog, not the parser
	assert.Equal(t, 250.0, items[0].Price)
}

func TestPipeline_FallsBackWhenUnavailable(t *testing.T) {
	stub := &stubParser{err: ErrParsingUnavailable}
	pipeline := NewOrderParsingPipeline(stub)

	items := pipeline.Parse(context.Background(), "2 pizza", menuFixture(), "")
	require.Len(t, items, 1)
	assert.Equal(t, "Pizza", items[0].Name)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestPipeline_FallsBackOnParserError(t *testing.T) {
	stub := &stubParser{err: errors.New("model exploded")}
	pipeline := NewOrderParsingPipeline(stub)

	items := pipeline.Parse(context.Background(), "1 burger", menuFixture(), "")
	require.Len(t, items, 1)
	assert.Equal(t, "Burger", items[0].Name)
}

func TestPipeline_EmptyMenuParsesNothing(t *testing.T) {
	stub := &stubParser{items: []models.OrderItem{{Name: "Pizza", Quantity: 1}}}
	pipeline := NewOrderParsingPipeline(stub)

	items := pipeline.Parse(context.Background(), "2 pizza", nil, "")
	assert.Empty(t, items)
	assert.Equal(t, 0, stub.calls)
}

func TestValidateItems_DropsUnknownAndUnavailable(t *testing.T) {
	items := validateItems([]models.OrderItem{
		{Name: "Pizza", Quantity: 2, Price: 1},
		{Name: "Sushi", Quantity: 1, Price: 500},
		{Name: "Lasagna", Quantity: 1, Price: 320},
		{Name: "Coke", Quantity: 0, Price: 50},
	}, menuFixture())

	require.Len(t, items, 1)
	assert.Equal(t, models.OrderItem{Name: "Pizza", Quantity: 2, Price: 250}, items[0])
}

func TestMergeOrderItems(t *testing.T) {
	merged := MergeOrderItems(
		[]models.OrderItem{{Name: "Pizza", Quantity: 1, Price: 250}},
		[]models.OrderItem{
			{Name: "Pizza", Quantity: 2, Price: 250},
			{Name: "Coke", Quantity: 1, Price: 50},
		},
	)
	require.Len(t, merged, 2)
	assert.Equal(t, 3, merged[0].Quantity)
	assert.Equal(t, "Coke", merged[1].Name)
}
