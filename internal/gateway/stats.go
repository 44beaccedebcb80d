package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const meterWindow = 60

// rateMeter counts events in one-second buckets over the last minute.
type rateMeter struct {
	clock clockwork.Clock

	mu      sync.Mutex
	counts  [meterWindow]int64
	seconds [meterWindow]int64
}

func newRateMeter(clock clockwork.Clock) *rateMeter {
	return &rateMeter{clock: clock}
}

func (m *rateMeter) mark(n int64) {
	sec := m.clock.Now().Unix()
	i := sec % meterWindow

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seconds[i] != sec {
		m.seconds[i] = sec
		m.counts[i] = 0
	}
	m.counts[i] += n
}

// rate is the average events per second over the trailing minute.
func (m *rateMeter) rate() float64 {
	now := m.clock.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for i := range m.counts {
		if now-m.seconds[i] < meterWindow {
			total += m.counts[i]
		}
	}
	return float64(total) / float64(meterWindow)
}

func uptimeSeconds(clock clockwork.Clock, startedAt time.Time) float64 {
	return clock.Since(startedAt).Seconds()
}
