package handlers

import (
	"errors"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/http/dto"
	"github.com/collab-market/backend/internal/middleware"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxHistoryPage = 200

type MessageHandler struct {
	messageService *services.MessageService
	log            *zap.Logger
}

func NewMessageHandler(messageService *services.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, log: log}
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	msg, err := h.messageService.Send(c.UserContext(), services.SendInput{
		SenderID:   middleware.GetUserID(c),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ClientID:   req.ClientID,
		OfferID:    req.OfferID,
	})

	var delayed *apperrors.DeliveryDelayedError
	if errors.As(err, &delayed) {
		return c.Status(fiber.StatusAccepted).JSON(dto.QueuedResponse{
			OK:      true,
			Queued:  true,
			Pending: delayed.Pending,
			Data:    msg,
			Warning: "connecting: your message will be sent when the connection is restored",
		})
	}

	var limited *apperrors.RateLimitExceededError
	if errors.As(err, &limited) {
		code, body := errorResponse(err)
		body.Error = "you are sending messages too fast"
		body.WarningTTLMS = h.messageService.WarningTTL().Milliseconds()
		body.RequestID = middleware.GetRequestID(c)
		return c.Status(code).JSON(body)
	}

	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: msg})
}

// History returns the conversation with :userId, oldest first. Older pages are fetched with
// before=<RFC3339 timestamp of the oldest loaded message>.
func (h *MessageHandler) History(c *fiber.Ctx) error {
	peer, ok := paramUUID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxHistoryPage {
		limit = 50
	}

	var before *time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return badRequest(c, "before must be an RFC3339 timestamp")
		}
		before = &t
	}

	msgs, err := h.messageService.History(c.UserContext(), middleware.GetUserID(c), peer, limit, before)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: msgs})
}

func (h *MessageHandler) Conversations(c *fiber.Ctx) error {
	convs, err := h.messageService.Conversations(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if convs == nil {
		convs = []models.ConversationSummary{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: convs})
}
