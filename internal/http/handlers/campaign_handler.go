package handlers

import (
	"strconv"

	"github.com/collab-market/backend/internal/http/dto"
	"github.com/collab-market/backend/internal/middleware"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/collab-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, log: log}
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	campaign := req.Model()
	userID := middleware.GetUserID(c)
	if err := h.campaignService.Create(c.UserContext(), userID, campaign); err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	campaign, err := h.campaignService.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

// ListCampaigns supports status, platform, budget_min, budget_max, search and mine=true.
func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	filter := repositories.CampaignFilter{}
	filter.Limit, filter.Offset = paging(c)

	if c.QueryBool("mine") {
		userID := middleware.GetUserID(c)
		filter.AdvertiserUserID = &userID
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("platform"); v != "" {
		filter.Platform = &v
	}
	if v := c.Query("budget_min"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return badRequest(c, "invalid budget_min")
		}
		filter.BudgetMin = &n
	}
	if v := c.Query("budget_max"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return badRequest(c, "invalid budget_max")
		}
		filter.BudgetMax = &n
	}
	if v := c.Query("search"); v != "" {
		filter.Search = &v
	}

	campaigns, err := h.campaignService.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaigns})
}

func (h *CampaignHandler) UpdateCampaign(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	var req dto.CampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	campaign := req.Model()
	userID := middleware.GetUserID(c)
	if err := h.campaignService.Update(c.UserContext(), id, userID, campaign); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) ChangeStatus(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return badRequest(c, "status is required")
	}

	campaign, err := h.campaignService.ChangeStatus(c.UserContext(), id, middleware.GetUserID(c), req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) DeleteCampaign(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	if err := h.campaignService.Delete(c.UserContext(), id, middleware.GetUserID(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *CampaignHandler) Matches(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	cards, err := h.campaignService.Matches(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: cards})
}

func (h *CampaignHandler) RecordView(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "invalid campaign id")
	}

	counted, err := h.campaignService.RecordView(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ViewResponse{Counted: counted}})
}
