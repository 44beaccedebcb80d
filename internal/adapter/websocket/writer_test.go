package websocket

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/chainpulse/internal/gateway"
	"github.com/stretchr/testify/assert"
)

func TestCloseCode(t *testing.T) {
	assert.Equal(t, websocket.CloseGoingAway, closeCode(gateway.ReasonShutdown))
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(gateway.ReasonHeartbeatTimeout))
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(gateway.ReasonClientClosed))
	assert.Equal(t, websocket.CloseNormalClosure, closeCode("anything else"))
}
