package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"helios.network/testnetapi/internal/modules/admin/dto"
	adminService "helios.network/testnetapi/internal/modules/admin/service"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	xpDto "helios.network/testnetapi/internal/modules/xp/dto"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/validator"
)

type AdminHandler struct {
	adminService adminService.AdminService
}

func NewAdminHandler(adminService adminService.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

func actorFrom(c *gin.Context) (audit.Actor, bool) {
	id, wallet, err := response.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return audit.Actor{}, false
	}
	return audit.Actor{ID: id, Wallet: wallet}, true
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	var query dto.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.Users(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	res, err := h.adminService.User(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}

	var input dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.UpdateStatus(c.Request.Context(), actor, id, input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}

	if err := h.adminService.DeleteUser(c.Request.Context(), actor, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted successfully"})
}

func (h *AdminHandler) GrantXP(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var input dto.GrantXPRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.GrantXP(c.Request.Context(), actor, input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetActivities(c *gin.Context) {
	var query xpDto.AdminActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.Activities(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetClaims(c *gin.Context) {
	var query dto.ClaimQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.Claims(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.adminService.AuditLogs(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetSystemStats(c *gin.Context) {
	res, err := h.adminService.SystemStats(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) GetBlockchainStats(c *gin.Context) {
	res, err := h.adminService.BlockchainStats(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) Reindex(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	res, err := h.adminService.Reindex(c.Request.Context(), actor)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) SweepClaims(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	res, err := h.adminService.SweepClaims(c.Request.Context(), actor)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
