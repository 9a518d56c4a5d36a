package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"helios.network/testnetapi/internal/modules/leaderboard/dto"
	leaderboardService "helios.network/testnetapi/internal/modules/leaderboard/service"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/validator"
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// GetLeaderboard serves ?period=alltime|daily|weekly|monthly.
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	var query dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.Global(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *LeaderboardHandler) GetContributors(c *gin.Context) {
	var page commonDto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.Contributors(c.Request.Context(), page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *LeaderboardHandler) GetMyRank(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.service.MyRank(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *LeaderboardHandler) GetStats(c *gin.Context) {
	res, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
