package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"helios.network/testnetapi/internal/modules/faucet/dto"
	faucetService "helios.network/testnetapi/internal/modules/faucet/service"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/validator"
)

type FaucetHandler struct {
	service faucetService.FaucetService
}

func NewFaucetHandler(service faucetService.FaucetService) *FaucetHandler {
	return &FaucetHandler{service: service}
}

func (h *FaucetHandler) RequestTokens(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	result, err := h.service.RequestTokens(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *FaucetHandler) CheckEligibility(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.EligibilityRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	result, err := h.service.CheckEligibility(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *FaucetHandler) History(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query dto.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	history, err := h.service.History(c.Request.Context(), userID, query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *FaucetHandler) AvailableTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.AvailableTokens()})
}
