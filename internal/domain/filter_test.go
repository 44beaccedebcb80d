package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func priceMessage(token string, price float64) *Message {
	data, _ := json.Marshal(map[string]any{"price": price, "value": price})
	return &Message{Type: MessagePriceUpdate, Channel: "prices", TokenID: token, Data: data}
}

func TestFilter_TokenIDs(t *testing.T) {
	f := &Filter{TokenIDs: []string{"ethereum"}}

	eth := priceMessage("ethereum", 2650)
	btc := priceMessage("bitcoin", 67500)

	v, ok := eth.NumericValue()
	assert.True(t, f.Matches(eth, v, ok))
	v, ok = btc.NumericValue()
	assert.False(t, f.Matches(btc, v, ok))
}

func TestFilter_Matches(t *testing.T) {
	msg := &Message{ProtocolID: "aave", TokenID: "ethereum", Chain: "arbitrum", UserID: "u1"}

	tests := []struct {
		name     string
		filter   *Filter
		value    float64
		hasValue bool
		want     bool
	}{
		{"nil filter", nil, 0, false, true},
		{"empty filter", &Filter{}, 0, false, true},
		{"protocol match", &Filter{ProtocolIDs: []string{"uniswap", "aave"}}, 0, false, true},
		{"protocol mismatch", &Filter{ProtocolIDs: []string{"uniswap"}}, 0, false, false},
		{"chain mismatch", &Filter{Chains: []string{"ethereum"}}, 0, false, false},
		{"user match", &Filter{UserID: "u1"}, 0, false, true},
		{"user mismatch", &Filter{UserID: "u2"}, 0, false, false},
		{"conjunction fails on one dimension", &Filter{ProtocolIDs: []string{"aave"}, Chains: []string{"base"}}, 0, false, false},
		{"min satisfied", &Filter{MinValue: ptr(10)}, 10, true, true},
		{"min violated", &Filter{MinValue: ptr(10)}, 9.99, true, false},
		{"max violated", &Filter{MaxValue: ptr(100)}, 101, true, false},
		{"zero bounds are real bounds", &Filter{MinValue: ptr(0), MaxValue: ptr(0)}, 1, true, false},
		{"range without numeric payload", &Filter{MinValue: ptr(10)}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(msg, tt.value, tt.hasValue))
		})
	}
}

func TestFilter_MessageWithoutRoutingKeyPasses(t *testing.T) {
	f := &Filter{TokenIDs: []string{"ethereum"}, Chains: []string{"base"}}
	assert.True(t, f.Matches(&Message{Type: MessageTVLUpdate}, 0, false))
}

func TestFilter_Validate(t *testing.T) {
	assert.NoError(t, (*Filter)(nil).Validate())
	assert.NoError(t, (&Filter{TokenIDs: []string{"ethereum"}}).Validate())
	assert.Error(t, (&Filter{MinValue: ptr(5), MaxValue: ptr(1)}).Validate())
	assert.Error(t, (&Filter{Chains: []string{""}}).Validate())

	many := make([]string, maxFilterValues+1)
	for i := range many {
		many[i] = "x"
	}
	assert.Error(t, (&Filter{ProtocolIDs: many}).Validate())
}

func TestFilter_IsEmpty(t *testing.T) {
	assert.True(t, (*Filter)(nil).IsEmpty())
	assert.True(t, (&Filter{}).IsEmpty())
	assert.False(t, (&Filter{MaxValue: ptr(0)}).IsEmpty())
}

func TestMessage_NumericValue(t *testing.T) {
	v, ok := (&Message{Data: json.RawMessage(`{"value": 42.5}`)}).NumericValue()
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)

	_, ok = (&Message{Data: json.RawMessage(`{"value": "high"}`)}).NumericValue()
	assert.False(t, ok)

	_, ok = (&Message{Data: json.RawMessage(`[1,2]`)}).NumericValue()
	assert.False(t, ok)

	_, ok = (&Message{}).NumericValue()
	assert.False(t, ok)
}
