package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	audit "helios.network/testnetapi/internal/modules/audit/service"
	"helios.network/testnetapi/internal/modules/badge/dto"
	badgeService "helios.network/testnetapi/internal/modules/badge/service"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/validator"
)

type BadgeHandler struct {
	service badgeService.BadgeService
}

func NewBadgeHandler(service badgeService.BadgeService) *BadgeHandler {
	return &BadgeHandler{service: service}
}

func actorFrom(c *gin.Context) (audit.Actor, bool) {
	id, wallet, err := response.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return audit.Actor{}, false
	}
	return audit.Actor{ID: id, Wallet: wallet}, true
}

func badgeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid badge id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BadgeHandler) List(c *gin.Context) {
	var query dto.BadgeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *BadgeHandler) Get(c *gin.Context) {
	id, ok := badgeID(c)
	if !ok {
		return
	}

	badge, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, badge)
}

func (h *BadgeHandler) MyBadges(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	badges, err := h.service.UserBadges(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": badges})
}

func (h *BadgeHandler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.CreateBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	badge, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, badge)
}

func (h *BadgeHandler) Update(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := badgeID(c)
	if !ok {
		return
	}

	var req dto.UpdateBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	badge, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, badge)
}

func (h *BadgeHandler) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := badgeID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "badge deleted"})
}

func (h *BadgeHandler) Assign(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := badgeID(c)
	if !ok {
		return
	}

	var req dto.AssignBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.Assign(c.Request.Context(), actor, id, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}
