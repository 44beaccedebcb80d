package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChannel(t *testing.T) {
	assert.NoError(t, ValidateChannel("prices"))
	assert.NoError(t, ValidateChannel("chain:ethereum:prices"))
	assert.NoError(t, ValidateChannel("protocol:aave-v3.liquidations_1"))

	assert.ErrorIs(t, ValidateChannel(""), ErrChannelEmpty)
	assert.ErrorIs(t, ValidateChannel(strings.Repeat("a", MaxChannelLength+1)), ErrChannelTooLong)
	assert.ErrorIs(t, ValidateChannel("prices here"), ErrChannelInvalid)
	assert.ErrorIs(t, ValidateChannel("prices/*"), ErrChannelInvalid)
}

func TestDerivedChannels(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			"price update",
			Message{Type: MessagePriceUpdate, TokenID: "ethereum", Chain: "arbitrum"},
			[]string{"prices", "token:ethereum", "chain:arbitrum:prices"},
		},
		{
			"tvl update",
			Message{Type: MessageTVLUpdate, ProtocolID: "aave", Chain: "base"},
			[]string{"tvl", "protocol:aave", "chain:base:tvl"},
		},
		{
			"protocol update",
			Message{Type: MessageProtocolUpdate, ProtocolID: "aave"},
			[]string{"protocols", "protocol:aave"},
		},
		{
			"alert",
			Message{Type: MessageAlert, UserID: "u1"},
			[]string{"alerts", "user:u1:alerts"},
		},
		{
			"liquidation",
			Message{Type: MessageLiquidation, ProtocolID: "compound"},
			[]string{"liquidations", "protocol:compound:liquidations"},
		},
		{
			"governance",
			Message{Type: MessageGovernance, ProtocolID: "uniswap"},
			[]string{"governance", "protocol:uniswap:governance"},
		},
		{
			"emission without protocol",
			Message{Type: MessageEmission},
			[]string{"emissions"},
		},
		{
			"explicit channel appended once",
			Message{Type: MessagePriceUpdate, Channel: "prices", TokenID: "btc"},
			[]string{"prices", "token:btc"},
		},
		{
			"unknown type keeps explicit channel",
			Message{Type: "custom", Channel: "custom:feed"},
			[]string{"custom:feed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivedChannels(&tt.msg))
		})
	}
}

func TestIdentity_RateLimitKey(t *testing.T) {
	assert.Equal(t, "user:alice", Identity{UserID: "alice", APIKey: "k"}.RateLimitKey())

	key := Identity{APIKey: "secret"}.RateLimitKey()
	assert.True(t, strings.HasPrefix(key, "key:"))
	assert.NotContains(t, key, "secret")
	assert.Equal(t, key, Identity{APIKey: "secret"}.RateLimitKey())
}
