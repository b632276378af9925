package controller

import (
	"alpha_edu_backend/internal/service"
	"alpha_edu_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SummarizerController struct {
	Summarizer *service.SummarizerService
}

func NewSummarizerController(summarizer *service.SummarizerService) *SummarizerController {
	return &SummarizerController{Summarizer: summarizer}
}

// SummarizeFile godoc
// @Summary Summarize an uploaded document or image
// @Tags summarizer
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "PDF or image, max 10MB"
// @Param detail_level formData string false "brief, medium or detailed" default(medium)
// @Success 200 {object} util.Response{data=service.SummaryResult}
// @Failure 400 {object} util.Response "Unsupported type, too large, or not educational"
// @Router /api/summarizer/file [post]
func (c *SummarizerController) SummarizeFile(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	detailLevel := ctx.PostForm("detail_level")
	claims := util.GetUserFromContext(ctx)

	result, err := c.Summarizer.Summarize(ctx.Request.Context(), claims.UserID, header, detailLevel)
	if err != nil {
		respondUploadError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// History godoc
// @Summary Past summaries for the current user
// @Tags summarizer
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/summarizer/history [get]
func (c *SummarizerController) History(ctx *gin.Context) {
	page, limit := pagination(ctx)
	claims := util.GetUserFromContext(ctx)
	summaries, total, err := c.Summarizer.History(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: summaries, Total: total, Page: page, Limit: limit})
}

// respondUploadError covers the shared failure modes of the two
// file-driven AI features.
func respondUploadError(ctx *gin.Context, err error) {
	var pipeErr *service.PipelineError
	switch {
	case errors.Is(err, util.ErrUnsupportedFileType),
		errors.Is(err, util.ErrFileTooLarge),
		errors.Is(err, util.ErrNotEducational):
		util.BadRequest(ctx, err.Error())
	case errors.As(err, &pipeErr):
		ctx.JSON(http.StatusBadGateway, util.Response{
			Code:    http.StatusBadGateway,
			Message: "الخدمة مش متاحة دلوقتي، جرب تاني",
			Data: gin.H{
				"retry_available": true,
				"attempts":        pipeErr.TotalAttempts,
			},
		})
	default:
		util.LogInternalError(ctx, err)
	}
}
