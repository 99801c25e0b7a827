package handlers

import (
	"context"

	"github.com/collab-market/backend/internal/http/dto"
	"github.com/collab-market/backend/internal/middleware"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/collab-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OfferHandler struct {
	offerService *services.OfferService
	log          *zap.Logger
}

func NewOfferHandler(offerService *services.OfferService, log *zap.Logger) *OfferHandler {
	return &OfferHandler{offerService: offerService, log: log}
}

func (h *OfferHandler) CreateOffer(c *fiber.Ctx) error {
	var req dto.CreateOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	offer, err := h.offerService.Create(c.UserContext(), middleware.GetUserID(c), services.CreateOfferInput{
		InfluencerID: req.InfluencerID,
		AdvertiserID: req.AdvertiserID,
		CampaignID:   req.CampaignID,
		Kind:         req.Kind,
		OfferDetails: req.OfferDetailsRequest.Model(),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: offer})
}

// ListOffers returns the caller's offers, filtered by status, kind and campaign_id.
func (h *OfferHandler) ListOffers(c *fiber.Ctx) error {
	filter := repositories.OfferFilter{}
	filter.Limit, filter.Offset = paging(c)

	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("kind"); v != "" {
		filter.Kind = &v
	}
	if v := c.Query("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return badRequest(c, "invalid campaign_id")
		}
		filter.CampaignID = &id
	}

	offers, err := h.offerService.List(c.UserContext(), middleware.GetUserID(c), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if offers == nil {
		offers = []models.Offer{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: offers})
}

func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	offer, err := h.offerService.Get(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func (h *OfferHandler) Respond(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	var req dto.RespondOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	offer, err := h.offerService.Respond(c.UserContext(), id, middleware.GetUserID(c), req.Status, req.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func (h *OfferHandler) Revise(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	var req dto.ReviseOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	offer, err := h.offerService.Revise(c.UserContext(), id, middleware.GetUserID(c), req.OfferDetailsRequest.Model(), req.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func (h *OfferHandler) Withdraw(c *fiber.Ctx) error {
	return h.noteAction(c, h.offerService.Withdraw)
}

func (h *OfferHandler) Complete(c *fiber.Ctx) error {
	return h.noteAction(c, h.offerService.Complete)
}

type noteActionFunc func(ctx context.Context, offerID, actorID uuid.UUID, note string) (*models.Offer, error)

func (h *OfferHandler) noteAction(c *fiber.Ctx, action noteActionFunc) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	// the body is optional
	var req dto.NoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}

	offer, err := action(c.UserContext(), id, middleware.GetUserID(c), req.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func (h *OfferHandler) RecordView(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	counted, err := h.offerService.RecordView(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ViewResponse{Counted: counted}})
}

func (h *OfferHandler) GetEvents(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}

	entries, err := h.offerService.GetEvents(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
