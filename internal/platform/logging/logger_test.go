package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/pscheid92/chainpulse/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
)

func TestNew_JSONWithCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json")

	ctx := correlation.WithConnectionID(correlation.WithID(context.Background(), "abcd1234"), "conn-1")
	logger.DebugContext(ctx, "subscribed", "channel", "prices")

	out := buf.String()
	assert.Contains(t, out, `"correlation_id":"abcd1234"`)
	assert.Contains(t, out, `"connection_id":"conn-1"`)
	assert.Contains(t, out, `"channel":"prices"`)
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "verbose", "text")

	logger.Debug("hidden")
	logger.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
