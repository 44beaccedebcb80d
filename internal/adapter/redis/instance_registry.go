package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const instancesKey = "chainpulse:instances"

// staleAfter is how many missed heartbeats make an instance inactive.
const staleAfter = 4

// InstanceInfo is what an instance publishes about itself.
type InstanceInfo struct {
	InstanceID  string    `json:"instanceId"`
	Version     string    `json:"version"`
	Connections int       `json:"connections"`
	LastSeen    time.Time `json:"lastSeen"`
}

// InstanceRegistry heartbeats this instance into a shared Redis hash so
// operators can see every live gateway.
type InstanceRegistry struct {
	rdb         *goredis.Client
	clock       clockwork.Clock
	instanceID  string
	version     string
	heartbeat   time.Duration
	connections func() int
}

func NewInstanceRegistry(rdb *goredis.Client, clock clockwork.Clock, instanceID, version string, heartbeat time.Duration, connections func() int) *InstanceRegistry {
	return &InstanceRegistry{
		rdb:         rdb,
		clock:       clock,
		instanceID:  instanceID,
		version:     version,
		heartbeat:   heartbeat,
		connections: connections,
	}
}

// Run registers immediately and then on every heartbeat. It blocks until
// ctx is cancelled and unregisters on the way out.
func (r *InstanceRegistry) Run(ctx context.Context) {
	r.register(ctx)

	ticker := r.clock.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.register(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

func (r *InstanceRegistry) register(ctx context.Context) {
	data, err := json.Marshal(InstanceInfo{
		InstanceID:  r.instanceID,
		Version:     r.version,
		Connections: r.connections(),
		LastSeen:    r.clock.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := r.rdb.HSet(ctx, instancesKey, r.instanceID, data).Err(); err != nil {
		slog.WarnContext(ctx, "Instance heartbeat failed", "instance_id", r.instanceID, "error", err)
	}
}

func (r *InstanceRegistry) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.HDel(ctx, instancesKey, r.instanceID).Err(); err != nil {
		slog.Warn("Failed to unregister instance", "instance_id", r.instanceID, "error", err)
	}
}

// Instances returns every instance that sent a heartbeat recently, sorted
// by instance ID.
func (r *InstanceRegistry) Instances(ctx context.Context) ([]InstanceInfo, error) {
	entries, err := r.rdb.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	cutoff := r.clock.Now().Add(-staleAfter * r.heartbeat)
	infos := []InstanceInfo{}
	for _, data := range entries {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if info.LastSeen.After(cutoff) {
			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].InstanceID < infos[j].InstanceID })
	return infos, nil
}
