package domain

import (
	"errors"
	"fmt"
	"slices"
)

const maxFilterValues = 100

// Filter restricts which messages on a channel reach a subscriber. Every
// set dimension must match; an unset dimension matches everything. A set
// dimension also matches a message that does not carry that routing key.
type Filter struct {
	ProtocolIDs []string `json:"protocolIds,omitempty"`
	TokenIDs    []string `json:"tokenIds,omitempty"`
	Chains      []string `json:"chains,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	MinValue    *float64 `json:"minValue,omitempty"`
	MaxValue    *float64 `json:"maxValue,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.ProtocolIDs) == 0 && len(f.TokenIDs) == 0 && len(f.Chains) == 0 &&
		f.UserID == "" && f.MinValue == nil && f.MaxValue == nil)
}

// Validate rejects filters that can never be satisfied or are oversized.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for name, values := range map[string][]string{"protocolIds": f.ProtocolIDs, "tokenIds": f.TokenIDs, "chains": f.Chains} {
		if len(values) > maxFilterValues {
			return fmt.Errorf("%s: at most %d values allowed", name, maxFilterValues)
		}
		if slices.Contains(values, "") {
			return fmt.Errorf("%s: empty value", name)
		}
	}
	if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
		return errors.New("minValue must not exceed maxValue")
	}
	return nil
}

// Matches evaluates the filter against m. value/hasValue is the message's
// numeric payload value, extracted once per publish by the caller.
func (f *Filter) Matches(m *Message, value float64, hasValue bool) bool {
	if f == nil {
		return true
	}
	if !matchesSet(f.ProtocolIDs, m.ProtocolID) {
		return false
	}
	if !matchesSet(f.TokenIDs, m.TokenID) {
		return false
	}
	if !matchesSet(f.Chains, m.Chain) {
		return false
	}
	if f.UserID != "" && m.UserID != "" && f.UserID != m.UserID {
		return false
	}
	if hasValue {
		if f.MinValue != nil && value < *f.MinValue {
			return false
		}
		if f.MaxValue != nil && value > *f.MaxValue {
			return false
		}
	}
	return true
}

func matchesSet(allowed []string, field string) bool {
	if len(allowed) == 0 || field == "" {
		return true
	}
	return slices.Contains(allowed, field)
}
