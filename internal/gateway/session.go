package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
)

// SessionHandler runs the client protocol for every connection of the hub.
// Each connection's frames are handled sequentially by its read loop.
type SessionHandler struct {
	hub            *Hub
	auth           domain.Authenticator
	limiter        domain.RateLimiter
	publisher      domain.Publisher
	clock          clockwork.Clock
	metrics        *metrics.GatewayMetrics
	allowAnonymous bool
}

type SessionDeps struct {
	Hub            *Hub
	Authenticator  domain.Authenticator
	RateLimiter    domain.RateLimiter
	Publisher      domain.Publisher
	Clock          clockwork.Clock
	Metrics        *metrics.GatewayMetrics
	AllowAnonymous bool
}

func NewSessionHandler(deps SessionDeps) *SessionHandler {
	return &SessionHandler{
		hub:            deps.Hub,
		auth:           deps.Authenticator,
		limiter:        deps.RateLimiter,
		publisher:      deps.Publisher,
		clock:          deps.Clock,
		metrics:        deps.Metrics,
		allowAnonymous: deps.AllowAnonymous,
	}
}

// Handle processes one inbound frame. Client mistakes become typed reply
// frames; the connection is never closed from here.
func (h *SessionHandler) Handle(ctx context.Context, c *Connection, raw []byte) {
	var in frame
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		h.metrics.InboundMessages.WithLabelValues("invalid").Inc()
		h.fail(c, "malformed", KindError, errorReply{Message: "invalid message format"})
		return
	}

	switch in.Type {
	case KindAuthenticate:
		h.handleAuthenticate(ctx, c, in.Data)
	case KindSubscribe:
		h.handleSubscribe(ctx, c, in.Data)
	case KindUnsubscribe:
		h.handleUnsubscribe(c, in.Data)
	case KindPublish:
		h.handlePublish(ctx, c, in.Data)
	case KindHeartbeat:
		now := h.clock.Now()
		c.touch(now)
		h.reply(c, KindHeartbeatAck, heartbeatAckReply{Timestamp: now})
	case KindGetStats:
		h.reply(c, KindStats, h.hub.Stats())
	default:
		h.metrics.InboundMessages.WithLabelValues("unknown").Inc()
		h.fail(c, "unknown_type", KindError, errorReply{Message: "unknown message type: " + in.Type})
		return
	}
	h.metrics.InboundMessages.WithLabelValues(in.Type).Inc()
}

func (h *SessionHandler) handleAuthenticate(ctx context.Context, c *Connection, data json.RawMessage) {
	if c.State() == StateAuthenticated {
		h.fail(c, "auth", KindAuthError, errorReply{Message: "already authenticated"})
		return
	}

	var req authenticateRequest
	if err := decodeData(data, &req); err != nil {
		h.fail(c, "auth", KindAuthError, errorReply{Message: "invalid authenticate payload"})
		return
	}

	creds := domain.Credentials{APIKey: req.APIKey, UserID: req.UserID, Token: req.Token}
	if creds.IsEmpty() {
		h.fail(c, "auth", KindAuthError, errorReply{Message: domain.ErrMissingCredential.Error()})
		return
	}
	if h.auth == nil {
		h.fail(c, "auth", KindAuthError, errorReply{Message: "authentication unavailable"})
		return
	}

	identity, err := h.auth.Authenticate(ctx, creds)
	if err != nil {
		message := "authentication failed"
		if authErr, ok := errors.AsType[*domain.AuthenticationError](err); ok {
			message = authErr.Reason
		}
		slog.InfoContext(c.ctx, "Authentication rejected", "error", err)
		h.fail(c, "auth", KindAuthError, errorReply{Message: message})
		return
	}

	if !c.authenticate(*identity) {
		h.fail(c, "auth", KindAuthError, errorReply{Message: "already authenticated"})
		return
	}

	slog.InfoContext(c.ctx, "Connection authenticated", "user_id", identity.UserID)
	h.reply(c, KindAuthenticated, authenticatedReply{
		ConnectionID: c.id,
		UserID:       identity.UserID,
		Timestamp:    h.clock.Now(),
	})
}

func (h *SessionHandler) handleSubscribe(ctx context.Context, c *Connection, data json.RawMessage) {
	var req subscribeRequest
	if err := decodeData(data, &req); err != nil {
		h.fail(c, "subscribe", KindSubscriptionError, channelErrorReply{Message: "invalid subscribe payload"})
		return
	}

	if c.State() != StateAuthenticated && !h.allowAnonymous {
		h.fail(c, "subscribe", KindSubscriptionError, channelErrorReply{Message: "authentication required", Channel: req.Channel})
		return
	}

	if !h.allow(ctx, c, domain.EndpointSubscribe) {
		return
	}

	if err := domain.ValidateChannel(req.Channel); err != nil {
		h.fail(c, "subscribe", KindSubscriptionError, channelErrorReply{Message: err.Error(), Channel: req.Channel})
		return
	}
	if err := req.Filters.Validate(); err != nil {
		h.fail(c, "subscribe", KindSubscriptionError, channelErrorReply{Message: err.Error(), Channel: req.Channel})
		return
	}

	replaced, err := h.hub.Subscribe(c, req.Channel, req.Filters)
	if err != nil {
		h.fail(c, "subscribe", KindSubscriptionError, channelErrorReply{Message: err.Error(), Channel: req.Channel})
		return
	}

	slog.DebugContext(c.ctx, "Subscribed", "channel", req.Channel, "replaced", replaced)
	h.reply(c, KindSubscribed, subscribedReply{Channel: req.Channel, Filters: req.Filters, Timestamp: h.clock.Now()})
}

func (h *SessionHandler) handleUnsubscribe(c *Connection, data json.RawMessage) {
	var req unsubscribeRequest
	if err := decodeData(data, &req); err != nil {
		h.fail(c, "unsubscribe", KindSubscriptionError, channelErrorReply{Message: "invalid unsubscribe payload"})
		return
	}

	if err := h.hub.Unsubscribe(c, req.Channel); err != nil {
		h.fail(c, "unsubscribe", KindSubscriptionError, channelErrorReply{Message: err.Error(), Channel: req.Channel})
		return
	}

	h.reply(c, KindUnsubscribed, unsubscribedReply{Channel: req.Channel, Timestamp: h.clock.Now()})
}

func (h *SessionHandler) handlePublish(ctx context.Context, c *Connection, data json.RawMessage) {
	var req publishRequest
	if err := decodeData(data, &req); err != nil {
		h.fail(c, "publish", KindPublishError, channelErrorReply{Message: "invalid publish payload"})
		return
	}

	identity := c.Identity()
	if identity == nil {
		h.fail(c, "publish", KindPublishError, channelErrorReply{Message: "authentication required", Channel: req.Channel})
		return
	}

	if !h.allow(ctx, c, domain.EndpointPublish) {
		return
	}

	if err := domain.ValidateChannel(req.Channel); err != nil {
		h.fail(c, "publish", KindPublishError, channelErrorReply{Message: err.Error(), Channel: req.Channel})
		return
	}
	if req.Message.Type == "" {
		h.fail(c, "publish", KindPublishError, channelErrorReply{Message: "message type is required", Channel: req.Channel})
		return
	}

	now := h.clock.Now()
	msg := &domain.Message{
		ID:         uuid.NewString(),
		Type:       req.Message.Type,
		Channel:    req.Channel,
		Data:       req.Message.Data,
		Timestamp:  now,
		ProtocolID: req.Message.ProtocolID,
		TokenID:    req.Message.TokenID,
		Chain:      req.Message.Chain,
		UserID:     identity.UserID,
	}

	delivered, err := h.publisher.Publish(ctx, msg)
	if err != nil {
		message := "publish failed"
		if pubErr, ok := errors.AsType[*domain.PublishError](err); ok {
			message = pubErr.Reason
		}
		h.fail(c, "publish", KindPublishError, channelErrorReply{Message: message, Channel: req.Channel})
		return
	}

	slog.DebugContext(c.ctx, "Message published", "channel", msg.Channel, "message_id", msg.ID, "delivered", delivered)
	h.reply(c, KindPublished, publishedReply{Channel: msg.Channel, MessageID: msg.ID, Timestamp: now})
}

// allow runs the rate check for endpoint and replies rate_limit_exceeded
// when it denies.
func (h *SessionHandler) allow(ctx context.Context, c *Connection, endpoint string) bool {
	if h.limiter == nil {
		return true
	}

	decision, err := h.limiter.Check(ctx, rateLimitIdentity(c), endpoint)
	if err != nil {
		slog.WarnContext(c.ctx, "Rate limit check failed, allowing request", "endpoint", endpoint, "error", err)
		return true
	}
	if decision.Allowed {
		return true
	}

	h.fail(c, "rate_limited", KindRateLimitExceeded, rateLimitReply{
		Message:           (&domain.RateLimitExceededError{Endpoint: endpoint, RetryAfterSeconds: decision.RetryAfterSeconds}).Error(),
		RetryAfterSeconds: decision.RetryAfterSeconds,
	})
	return false
}

// rateLimitIdentity is the authenticated identity's key, or the client IP
// for anonymous connections.
func rateLimitIdentity(c *Connection) string {
	if identity := c.Identity(); identity != nil {
		return identity.RateLimitKey()
	}
	host, _, err := net.SplitHostPort(c.remoteAddr)
	if err != nil {
		host = c.remoteAddr
	}
	return "anon:" + host
}

func (h *SessionHandler) reply(c *Connection, kind string, payload any) {
	b, err := EncodeFrame(kind, payload)
	if err != nil {
		slog.ErrorContext(c.ctx, "Failed to encode reply", "kind", kind, "error", err)
		return
	}
	if c.send(b) == sendDropped {
		h.metrics.MessagesDropped.Inc()
	}
}

func (h *SessionHandler) fail(c *Connection, errKind, kind string, payload any) {
	h.metrics.ClientErrors.WithLabelValues(errKind).Inc()
	h.reply(c, kind, payload)
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
