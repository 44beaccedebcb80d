package domain

import (
	"errors"
	"regexp"
)

const MaxChannelLength = 128

var channelPattern = regexp.MustCompile(`^[A-Za-z0-9:_.\-]+$`)

var (
	ErrChannelEmpty   = errors.New("channel is required")
	ErrChannelTooLong = errors.New("channel name too long")
	ErrChannelInvalid = errors.New("channel name contains invalid characters")
)

// ValidateChannel checks that name is usable as a channel name.
func ValidateChannel(name string) error {
	switch {
	case name == "":
		return ErrChannelEmpty
	case len(name) > MaxChannelLength:
		return ErrChannelTooLong
	case !channelPattern.MatchString(name):
		return ErrChannelInvalid
	}
	return nil
}

// DerivedChannels lists every channel a producer publishes m to: the
// type's aggregate channel followed by the per-entity channels for the
// routing keys m carries. The router itself never derives channels; this
// is for producers such as the NATS ingress.
func DerivedChannels(m *Message) []string {
	var channels []string
	add := func(name string) {
		for _, c := range channels {
			if c == name {
				return
			}
		}
		channels = append(channels, name)
	}

	switch m.Type {
	case MessagePriceUpdate:
		add("prices")
		if m.TokenID != "" {
			add("token:" + m.TokenID)
		}
		if m.Chain != "" {
			add("chain:" + m.Chain + ":prices")
		}
	case MessageTVLUpdate:
		add("tvl")
		if m.ProtocolID != "" {
			add("protocol:" + m.ProtocolID)
		}
		if m.Chain != "" {
			add("chain:" + m.Chain + ":tvl")
		}
	case MessageProtocolUpdate:
		add("protocols")
		if m.ProtocolID != "" {
			add("protocol:" + m.ProtocolID)
		}
	case MessageAlert:
		add("alerts")
		if m.UserID != "" {
			add("user:" + m.UserID + ":alerts")
		}
	case MessageLiquidation:
		add("liquidations")
		if m.ProtocolID != "" {
			add("protocol:" + m.ProtocolID + ":liquidations")
		}
	case MessageGovernance:
		add("governance")
		if m.ProtocolID != "" {
			add("protocol:" + m.ProtocolID + ":governance")
		}
	case MessageEmission:
		add("emissions")
		if m.ProtocolID != "" {
			add("protocol:" + m.ProtocolID + ":emissions")
		}
	}

	if m.Channel != "" {
		add(m.Channel)
	}
	return channels
}
