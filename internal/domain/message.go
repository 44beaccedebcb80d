package domain

import (
	"encoding/json"
	"time"
)

// MessageType is the domain kind of a published event. The set is open;
// the constants below are the kinds producers derive channels for.
type MessageType string

const (
	MessagePriceUpdate    MessageType = "price_update"
	MessageTVLUpdate      MessageType = "tvl_update"
	MessageProtocolUpdate MessageType = "protocol_update"
	MessageAlert          MessageType = "alert"
	MessageLiquidation    MessageType = "liquidation"
	MessageGovernance     MessageType = "governance"
	MessageEmission       MessageType = "emission"
)

// Message is a domain event routed through the gateway. It is treated as
// immutable once handed to the router.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Type       MessageType     `json:"type"`
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	ProtocolID string          `json:"protocolId,omitempty"`
	TokenID    string          `json:"tokenId,omitempty"`
	Chain      string          `json:"chain,omitempty"`
	UserID     string          `json:"userId,omitempty"`
}

// WithChannel returns a copy of m addressed to channel. The payload bytes
// are shared, which is safe because nothing mutates them.
func (m *Message) WithChannel(channel string) *Message {
	c := *m
	c.Channel = channel
	return &c
}

// NumericValue extracts the numeric "value" field from the payload, the
// field minValue/maxValue filters are evaluated against.
func (m *Message) NumericValue() (float64, bool) {
	if len(m.Data) == 0 {
		return 0, false
	}
	var probe struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(m.Data, &probe); err != nil || probe.Value == nil {
		return 0, false
	}
	return *probe.Value, true
}
