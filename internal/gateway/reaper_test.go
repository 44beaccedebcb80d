package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_SweepEvictsIdleConnections(t *testing.T) {
	h, clock, m := newTestHub(t, HubConfig{})
	reaper := NewReaper(h, clock, m, 5*time.Minute, 5*time.Minute)

	idleOut := newFakeOutbox()
	idle := mustConnect(t, h, idleOut)
	_, _ = h.Subscribe(idle, "prices", nil)
	active := mustConnect(t, h, newFakeOutbox())
	_, _ = h.Subscribe(active, "prices", nil)

	clock.Advance(4 * time.Minute)
	active.touch(clock.Now())
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, reaper.Sweep())
	assert.True(t, idleOut.closed)
	assert.Equal(t, ReasonHeartbeatTimeout, idleOut.reason)
	assert.False(t, h.Router().IsSubscribed("prices", idle.ID()))
	assert.True(t, h.Router().IsSubscribed("prices", active.ID()))
	assert.Equal(t, 1, h.Registry().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))
}

func TestReaper_KeepsConnectionAtExactTimeout(t *testing.T) {
	h, clock, m := newTestHub(t, HubConfig{})
	reaper := NewReaper(h, clock, m, time.Minute, 5*time.Minute)
	mustConnect(t, h, newFakeOutbox())

	clock.Advance(5 * time.Minute)

	assert.Equal(t, 0, reaper.Sweep())
	assert.Equal(t, 1, h.Registry().Len())
}

func TestReaper_RunEvictsOnTick(t *testing.T) {
	h, clock, m := newTestHub(t, HubConfig{})
	reaper := NewReaper(h, clock, m, 5*time.Minute, 5*time.Minute)
	out := newFakeOutbox()
	mustConnect(t, h, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(6 * time.Minute)

	assert.Eventually(t, func() bool {
		return h.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonHeartbeatTimeout, func() string {
		out.mu.Lock()
		defer out.mu.Unlock()
		return out.reason
	}())
}
