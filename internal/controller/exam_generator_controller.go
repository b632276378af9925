package controller

import (
	"alpha_edu_backend/internal/service"
	"alpha_edu_backend/internal/util"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type ExamGeneratorController struct {
	Generator *service.ExamGeneratorService
}

func NewExamGeneratorController(generator *service.ExamGeneratorService) *ExamGeneratorController {
	return &ExamGeneratorController{Generator: generator}
}

// GenerateExam godoc
// @Summary Generate a practice exam from an uploaded file
// @Tags generator
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "PDF or image, max 10MB"
// @Param question_count formData int false "5 to 50" default(10)
// @Param difficulty formData string false "easy, medium, hard or mixed" default(medium)
// @Param question_types formData string false "Comma-separated subset of mcq,true_false,short_answer,essay" default(mcq)
// @Success 201 {object} util.Response{data=service.GeneratedExamResult}
// @Failure 400 {object} util.Response
// @Router /api/generator/exams [post]
func (c *ExamGeneratorController) GenerateExam(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	count, _ := strconv.Atoi(ctx.PostForm("question_count"))
	opts := service.GenerateOptions{
		QuestionCount: count,
		Difficulty:    ctx.PostForm("difficulty"),
	}
	if types := ctx.PostForm("question_types"); types != "" {
		opts.QuestionTypes = strings.Split(types, ",")
	}

	claims := util.GetUserFromContext(ctx)
	result, err := c.Generator.Generate(ctx.Request.Context(), claims.UserID, header, opts)
	if err != nil {
		respondUploadError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// History godoc
// @Summary Past generated exams for the current user
// @Tags generator
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/generator/exams [get]
func (c *ExamGeneratorController) History(ctx *gin.Context) {
	page, limit := pagination(ctx)
	claims := util.GetUserFromContext(ctx)
	exams, total, err := c.Generator.History(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// GetGeneratedExam godoc
// @Summary One generated exam with its questions
// @Tags generator
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Generated exam id"
// @Success 200 {object} util.Response{data=model.GeneratedExam}
// @Failure 404 {object} util.Response
// @Router /api/generator/exams/{id} [get]
func (c *ExamGeneratorController) GetGeneratedExam(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	claims := util.GetUserFromContext(ctx)
	exam, gerr := c.Generator.Get(uint(id), claims.UserID)
	if gerr != nil {
		if errors.Is(gerr, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, gerr)
		}
		return
	}
	util.Success(ctx, exam)
}
