package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscheid92/chainpulse/internal/domain"
)

// State is the protocol state of a connection.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbox is a connection's outbound side.
type Outbox interface {
	// Enqueue queues a frame without blocking. It returns false when the
	// queue is full and the frame was dropped.
	Enqueue(frame []byte) bool
	// Close closes the transport, telling the client why. Safe to call
	// more than once.
	Close(reason string)
}

// Connection is one live client session. It is owned by the Registry;
// other components refer to it by ID.
type Connection struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	outbox      Outbox
	ctx         context.Context

	mu            sync.Mutex
	state         State
	identity      *domain.Identity
	subscriptions map[string]*domain.Filter

	closed        atomic.Bool
	lastHeartbeat atomic.Int64
	dropped       atomic.Int64
}

func newConnection(ctx context.Context, id, remoteAddr string, outbox Outbox, now time.Time) *Connection {
	c := &Connection{
		id:            id,
		remoteAddr:    remoteAddr,
		connectedAt:   now,
		outbox:        outbox,
		ctx:           ctx,
		subscriptions: make(map[string]*domain.Filter),
	}
	c.lastHeartbeat.Store(now.UnixNano())
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) RemoteAddr() string { return c.remoteAddr }

func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Context carries the connection's correlation and connection IDs for logging.
func (c *Connection) Context() context.Context { return c.ctx }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns a copy of the verified identity, or nil when anonymous.
func (c *Connection) Identity() *domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// Dropped is the number of frames dropped because the outbound queue was full.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }

// Subscriptions returns a snapshot of the channels the connection holds.
func (c *Connection) Subscriptions() map[string]*domain.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*domain.Filter, len(c.subscriptions))
	for ch, f := range c.subscriptions {
		out[ch] = f
	}
	return out
}

func (c *Connection) touch(now time.Time) {
	c.lastHeartbeat.Store(now.UnixNano())
}

// authenticate sets the identity once. It fails if the connection is
// already authenticated or closed.
func (c *Connection) authenticate(identity domain.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnauthenticated {
		return false
	}
	c.identity = &identity
	c.state = StateAuthenticated
	return true
}

type sendResult int

const (
	sendOK sendResult = iota
	sendDropped
	sendClosed
)

func (c *Connection) send(frame []byte) sendResult {
	if c.closed.Load() {
		return sendClosed
	}
	if !c.outbox.Enqueue(frame) {
		c.dropped.Add(1)
		return sendDropped
	}
	return sendOK
}
