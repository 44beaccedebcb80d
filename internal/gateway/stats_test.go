package gateway

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRateMeter_AveragesOverTrailingMinute(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	m := newRateMeter(clock)

	for range 30 {
		m.mark(2)
		clock.Advance(time.Second)
	}
	assert.InDelta(t, 1.0, m.rate(), 0.0001)

	clock.Advance(44 * time.Second)
	assert.InDelta(t, 0.5, m.rate(), 0.0001, "only the last 15 marked seconds remain in the window")

	clock.Advance(time.Minute)
	assert.Equal(t, 0.0, m.rate())
}
