package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	audit "helios.network/testnetapi/internal/modules/audit/service"
	"helios.network/testnetapi/internal/modules/contributor/dto"
	contributorService "helios.network/testnetapi/internal/modules/contributor/service"
	userDto "helios.network/testnetapi/internal/modules/user/dto"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/validator"
)

// MaxResumeSize bounds resume uploads.
const MaxResumeSize = 10 << 20

type ContributorHandler struct {
	service contributorService.ContributorService
}

func NewContributorHandler(service contributorService.ContributorService) *ContributorHandler {
	return &ContributorHandler{service: service}
}

func actorFrom(c *gin.Context) (audit.Actor, bool) {
	id, wallet, err := response.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return audit.Actor{}, false
	}
	return audit.Actor{ID: id, Wallet: wallet}, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// Apply accepts JSON or a multipart form with an optional "resume" file.
func (h *ContributorHandler) Apply(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.ApplyRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	var resume *dto.ResumeFile
	if fileHeader, err := c.FormFile("resume"); err == nil {
		if fileHeader.Size > MaxResumeSize {
			response.ValidationError(c, "resume must be 10MB or smaller")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.ValidationError(c, "failed to read resume")
			return
		}
		defer file.Close()
		resume = &dto.ResumeFile{Reader: file, FileName: fileHeader.Filename}
	}

	app, err := h.service.Apply(c.Request.Context(), userID, req, resume)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

func (h *ContributorHandler) MyApplication(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	app, err := h.service.MyApplication(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *ContributorHandler) List(c *gin.Context) {
	var page commonDto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.List(c.Request.Context(), page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *ContributorHandler) Profile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := h.service.Profile(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *ContributorHandler) UpdateProfile(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req userDto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *ContributorHandler) Stats(c *gin.Context) {
	res, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *ContributorHandler) Applications(c *gin.Context) {
	var query dto.ApplicationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.Applications(c.Request.Context(), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *ContributorHandler) Review(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	app, err := h.service.Review(c.Request.Context(), actor, id, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *ContributorHandler) AssignRole(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, validator.FormatValidationError(err))
		return
	}

	res, err := h.service.AssignRole(c.Request.Context(), actor, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
