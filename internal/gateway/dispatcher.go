package gateway

import (
	"context"

	"github.com/pscheid92/chainpulse/internal/domain"
)

// Dispatcher is the publish entry point shared by client sessions and
// producers. It fans out locally, then hands the message to the archiver
// and the relay, neither of which may block.
type Dispatcher struct {
	hub      *Hub
	archiver domain.EventArchiver
	relay    domain.Relay
}

// NewDispatcher builds a Dispatcher. archiver and relay may be nil.
func NewDispatcher(hub *Hub, archiver domain.EventArchiver, relay domain.Relay) *Dispatcher {
	return &Dispatcher{hub: hub, archiver: archiver, relay: relay}
}

var _ domain.Publisher = (*Dispatcher)(nil)

// Publish delivers msg to local subscribers and forwards it to peers.
func (d *Dispatcher) Publish(_ context.Context, msg *domain.Message) (int, error) {
	if err := domain.ValidateChannel(msg.Channel); err != nil {
		return 0, &domain.PublishError{Channel: msg.Channel, Reason: err.Error()}
	}

	delivered := d.hub.Publish(msg)
	if d.archiver != nil {
		d.archiver.Archive(msg)
	}
	if d.relay != nil {
		d.relay.Forward(msg)
	}
	return delivered, nil
}

// DeliverRemote fans out a message that a peer instance relayed. It is
// neither archived nor relayed again.
func (d *Dispatcher) DeliverRemote(msg *domain.Message) int {
	return d.hub.Publish(msg)
}
