package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/http/dto"
	"github.com/collab-market/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorResponse maps a service error to its status code and body.
func errorResponse(err error) (int, dto.ErrorResponse) {
	var (
		ve *apperrors.ValidationError
		it *apperrors.InvalidTransitionError
		nf *apperrors.NotFoundError
		fb *apperrors.ForbiddenError
		rl *apperrors.RateLimitExceededError
		dd *apperrors.DeliveryDelayedError
		mq *apperrors.MatchQueryFailedError
		su *apperrors.StoreUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, dto.ErrorResponse{Error: "validation failed", Violations: ve.Violations()}
	case errors.As(err, &it):
		return fiber.StatusConflict, dto.ErrorResponse{Error: it.Error()}
	case errors.As(err, &nf):
		return fiber.StatusNotFound, dto.ErrorResponse{Error: nf.Error()}
	case errors.As(err, &fb):
		return fiber.StatusForbidden, dto.ErrorResponse{Error: fb.Rule}
	case errors.As(err, &rl):
		return fiber.StatusTooManyRequests, dto.ErrorResponse{Error: rl.Error(), RetryAfterMS: rl.RetryAfter.Milliseconds()}
	case errors.As(err, &dd):
		return fiber.StatusAccepted, dto.ErrorResponse{Error: dd.Error()}
	case errors.As(err, &mq):
		return fiber.StatusServiceUnavailable, dto.ErrorResponse{Error: "matching is temporarily unavailable"}
	case errors.As(err, &su):
		return fiber.StatusServiceUnavailable, dto.ErrorResponse{Error: "storage is temporarily unavailable"}
	default:
		return fiber.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"}
	}
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	code, body := errorResponse(err)
	body.RequestID = middleware.GetRequestID(c)
	if code >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", body.RequestID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	if code == fiber.StatusTooManyRequests && body.RetryAfterMS > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(int64(time.Duration(body.RetryAfterMS)*time.Millisecond/time.Second)+1, 10))
	}
	return c.Status(code).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// paging reads limit and offset query params.
func paging(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 20)
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
