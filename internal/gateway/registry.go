package gateway

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const shardCount = 32

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

type registryShard struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// Registry is the table of live connections, sharded by connection ID.
// Admission is bounded by max: a slot is reserved with a CAS on the live
// count before a connection is inserted.
type Registry struct {
	shards [shardCount]registryShard
	size   atomic.Int64
	max    int64
}

func NewRegistry(maxConnections int) *Registry {
	r := &Registry{max: int64(maxConnections)}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]*Connection)
	}
	return r
}

// reserve claims a capacity slot. Every successful reserve must be
// followed by insert or release.
func (r *Registry) reserve() bool {
	for {
		current := r.size.Load()
		if current >= r.max {
			return false
		}
		if r.size.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (r *Registry) release() {
	r.size.Add(-1)
}

func (r *Registry) insert(c *Connection) {
	s := &r.shards[shardIndex(c.id)]
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

// remove deletes the connection and frees its slot. It reports whether
// the connection was present.
func (r *Registry) remove(id string) bool {
	s := &r.shards[shardIndex(id)]
	s.mu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()

	if ok {
		r.release()
	}
	return ok
}

// Get returns the live connection with the given ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	s := &r.shards[shardIndex(id)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Len is the number of admitted connections, including any whose
// insertion is in flight.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

func (r *Registry) Max() int {
	return int(r.max)
}

// Range calls fn for every connection. Each shard is copied under its read
// lock and iterated without it, so fn may call back into the Hub.
func (r *Registry) Range(fn func(c *Connection) bool) {
	var batch []*Connection
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		batch = batch[:0]
		for _, c := range s.conns {
			batch = append(batch, c)
		}
		s.mu.RUnlock()

		for _, c := range batch {
			if !fn(c) {
				return
			}
		}
	}
}
