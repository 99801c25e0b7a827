package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/auth"
	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Frames a client may send over the socket.
const (
	frameSend = "send"
	framePing = "ping"
)

type inboundFrame struct {
	Type       string     `json:"type"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	ClientID   string     `json:"client_id"`
	OfferID    *uuid.UUID `json:"offer_id,omitempty"`
}

// outboundFrame answers a client frame. Pushed events are written as events.Event.
type outboundFrame struct {
	Type         string   `json:"type"` // ack, queued, error, pong, resync
	ClientID     string   `json:"client_id,omitempty"`
	Data         any      `json:"data,omitempty"`
	Error        string   `json:"error,omitempty"`
	Violations   []string `json:"violations,omitempty"`
	RetryAfterMS int64    `json:"retry_after_ms,omitempty"`
	WarningTTLMS int64    `json:"warning_ttl_ms,omitempty"`
	Pending      int      `json:"pending,omitempty"`
}

// Presence records when a user was last connected.
type Presence interface {
	TouchLastActive(ctx context.Context, userID uuid.UUID) error
}

// MessageSender is the part of the message service the socket needs.
type MessageSender interface {
	Send(ctx context.Context, in services.SendInput) (*models.ChatMessage, error)
	WarningTTL() time.Duration
}

type WSHandler struct {
	cfg      *config.Config
	hub      *messaging.Hub
	messages MessageSender
	presence Presence
	log      *zap.Logger
}

func NewWSHandler(cfg *config.Config, hub *messaging.Hub, messages MessageSender, presence Presence, log *zap.Logger) *WSHandler {
	return &WSHandler{cfg: cfg, hub: hub, messages: messages, presence: presence, log: log}
}

func (h *WSHandler) touch(ctx context.Context, userID uuid.UUID) {
	if err := h.presence.TouchLastActive(ctx, userID); err != nil {
		h.log.Debug("presence update failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

type frameWriter interface {
	write(v any) error
}

// wsConn serializes writes; the pump, the read loop and in-flight sends all write.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WSHandler) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"invalid token"}`))
		conn.Close()
		return
	}

	userID := claims.UserID
	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(context.Background())
	sub := h.hub.Subscribe(userID)
	h.touch(ctx, userID)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.pump(ws, sub)
	}()

	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		cancel()
		h.hub.Unsubscribe(sub)
		<-pumpDone
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = ws.write(outboundFrame{Type: "error", Error: "malformed frame"})
			continue
		}
		if err := h.handleFrame(ctx, ws, userID, f, &inflight); err != nil {
			h.log.Debug("ws write failed", zap.String("user_id", userID.String()), zap.Error(err))
			break
		}
	}
}

// pump forwards hub events until the subscription closes. A dropped subscriber is told to
// reload history before the socket goes away.
func (h *WSHandler) pump(ws *wsConn, sub *messaging.Subscription) {
	for e := range sub.C() {
		if err := ws.write(e); err != nil {
			return
		}
	}
	if errors.Is(sub.Err(), messaging.ErrSlowSubscriber) {
		_ = ws.write(outboundFrame{Type: "resync", Error: sub.Err().Error()})
		ws.mu.Lock()
		_ = ws.conn.Close()
		ws.mu.Unlock()
	}
}

// handleFrame answers one client frame. Each send runs on its own goroutine so a slow store
// call does not hold back later frames; inflight tracks them.
func (h *WSHandler) handleFrame(ctx context.Context, ws frameWriter, userID uuid.UUID, f inboundFrame, inflight *sync.WaitGroup) error {
	switch f.Type {
	case framePing:
		h.touch(ctx, userID)
		return ws.write(outboundFrame{Type: "pong"})
	case frameSend:
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			msg, err := h.messages.Send(ctx, services.SendInput{
				SenderID:   userID,
				ReceiverID: f.ReceiverID,
				Content:    f.Content,
				ClientID:   f.ClientID,
				OfferID:    f.OfferID,
			})
			if err := ws.write(h.sendResult(f.ClientID, msg, err)); err != nil {
				h.log.Debug("ws write failed", zap.String("user_id", userID.String()), zap.Error(err))
			}
		}()
		return nil
	default:
		return ws.write(outboundFrame{Type: "error", Error: "unknown frame type"})
	}
}

func (h *WSHandler) sendResult(clientID string, msg any, err error) outboundFrame {
	if err == nil {
		return outboundFrame{Type: "ack", ClientID: clientID, Data: msg}
	}

	var (
		delayed *apperrors.DeliveryDelayedError
		limited *apperrors.RateLimitExceededError
	)
	switch {
	case errors.As(err, &delayed):
		return outboundFrame{Type: "queued", ClientID: delayed.ClientID, Data: msg, Pending: delayed.Pending}
	case errors.As(err, &limited):
		return outboundFrame{
			Type:         "error",
			ClientID:     clientID,
			Error:        "you are sending messages too fast",
			RetryAfterMS: limited.RetryAfter.Milliseconds(),
			WarningTTLMS: h.messages.WarningTTL().Milliseconds(),
		}
	}

	code, body := errorResponse(err)
	if code >= fiber.StatusInternalServerError {
		h.log.Error("ws send failed", zap.Error(err))
	}
	return outboundFrame{Type: "error", ClientID: clientID, Error: body.Error, Violations: body.Violations}
}
