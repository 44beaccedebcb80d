package gateway

import (
	"encoding/json"
	"time"

	"github.com/pscheid92/chainpulse/internal/domain"
)

// Every frame in either direction is {"type": <kind>, "data": <payload>}.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client to gateway kinds.
const (
	KindAuthenticate = "authenticate"
	KindSubscribe    = "subscribe"
	KindUnsubscribe  = "unsubscribe"
	KindHeartbeat    = "heartbeat"
	KindPublish      = "publish"
	KindGetStats     = "get_stats"
)

// Gateway to client kinds.
const (
	KindAuthenticated     = "authenticated"
	KindAuthError         = "auth_error"
	KindSubscribed        = "subscribed"
	KindSubscriptionError = "subscription_error"
	KindUnsubscribed      = "unsubscribed"
	KindMessage           = "message"
	KindRateLimitExceeded = "rate_limit_exceeded"
	KindPublished         = "published"
	KindPublishError      = "publish_error"
	KindHeartbeatAck      = "heartbeat_ack"
	KindStats             = "stats"
	KindError             = "error"
)

type authenticateRequest struct {
	APIKey string `json:"apiKey"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type subscribeRequest struct {
	Channel string         `json:"channel"`
	Filters *domain.Filter `json:"filters"`
}

type unsubscribeRequest struct {
	Channel string `json:"channel"`
}

type publishRequest struct {
	Channel string      `json:"channel"`
	Message publishBody `json:"message"`
}

type publishBody struct {
	Type       domain.MessageType `json:"type"`
	Data       json.RawMessage    `json:"data"`
	ProtocolID string             `json:"protocolId"`
	TokenID    string             `json:"tokenId"`
	Chain      string             `json:"chain"`
}

type authenticatedReply struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

type errorReply struct {
	Message string `json:"message"`
}

type channelErrorReply struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
}

type subscribedReply struct {
	Channel   string         `json:"channel"`
	Filters   *domain.Filter `json:"filters"`
	Timestamp time.Time      `json:"timestamp"`
}

type unsubscribedReply struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

type rateLimitReply struct {
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

type publishedReply struct {
	Channel   string    `json:"channel"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatAckReply struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stats is the gateway-wide snapshot served to clients and the admin API.
type Stats struct {
	TotalConnections  int     `json:"totalConnections"`
	ActiveChannels    int     `json:"activeChannels"`
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	Uptime            float64 `json:"uptime"`
}

// EncodeFrame renders one outbound frame.
func EncodeFrame(kind string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: kind, Data: payload})
}
