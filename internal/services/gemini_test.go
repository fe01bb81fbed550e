package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeminiParser_UnavailableWithoutKey(t *testing.T) {
	parser := &GeminiParser{}

	_, err := parser.ParseOrder(context.Background(), "2 pizza", menuFixture(), "")
	assert.ErrorIs(t, err, ErrParsingUnavailable)
}

func TestExtractJSONArray(t *testing.T) {
	raw := "Sure! Here is the order:\n```json\n[{\"name\": \"Pizza\", \"quantity\": 2}]\n```"
	match := jsonArrayPattern.FindString(raw)
	assert.Equal(t, `[{"name": "Pizza", "quantity": 2}]`, match)
}
