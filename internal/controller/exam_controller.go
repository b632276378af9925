package controller

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/service"
	"alpha_edu_backend/internal/util"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Catalog  *service.ExamCatalogService
	Sessions *service.ExamSessionService
	Analysis *service.ExamAnalysisService
}

func NewExamController(catalog *service.ExamCatalogService, sessions *service.ExamSessionService, analysis *service.ExamAnalysisService) *ExamController {
	return &ExamController{Catalog: catalog, Sessions: sessions, Analysis: analysis}
}

func examID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return 0, false
	}
	return uint(id), true
}

// respondSessionError maps the state machine's sentinel errors onto
// HTTP statuses. The conflict family all signal a transition that
// already happened.
func respondSessionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrExamNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrWrongGrade):
		util.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, util.ErrAttemptNotFound), errors.Is(err, util.ErrNotSubmittedYet):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrAlreadyAttempted),
		errors.Is(err, util.ErrAlreadySubmitted),
		errors.Is(err, util.ErrSubmitConflict):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// ListExams godoc
// @Summary Exams available for the student's grade
// @Tags exams
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.ExamListItem}
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	items, err := c.Catalog.ListForStudent(claims.UserID, claims.Grade)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// GetExam godoc
// @Summary Exam session status, questions and saved answers
// @Tags exams
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Success 200 {object} util.Response{data=service.SessionStatus}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	status, err := c.Sessions.GetStatus(claims.UserID, id, claims.Grade)
	if err != nil {
		respondSessionError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// StartExam godoc
// @Summary Start an exam attempt
// @Tags exams
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Success 201 {object} util.Response{data=service.StartResult}
// @Failure 409 {object} util.Response "Attempt already exists"
// @Router /api/exams/{id}/start [post]
func (c *ExamController) StartExam(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Sessions.Start(claims.UserID, id, claims.Grade)
	if err != nil {
		respondSessionError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// ProgressRequest carries an autosave or a final submission. Answers
// are keyed by question id; actions are the opaque behavioral log.
// swagger:model ProgressRequest
type ProgressRequest struct {
	Answers model.AnswerMap `json:"answers"`
	Actions model.RawJSON   `json:"actions"`
}

// SaveProgress godoc
// @Summary Autosave answers on the open attempt
// @Tags exams
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Param body body ProgressRequest true "Answers and action log"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "Attempt already submitted"
// @Router /api/exams/{id}/progress [put]
func (c *ExamController) SaveProgress(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	var req ProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	if err := c.Sessions.SaveProgress(claims.UserID, id, claims.Grade, req.Answers, req.Actions); err != nil {
		respondSessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"ok": true})
}

// SubmitExam godoc
// @Summary Submit the attempt
// @Tags exams
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Param body body ProgressRequest true "Final answers and action log"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 409 {object} util.Response "Already submitted"
// @Router /api/exams/{id}/submit [post]
func (c *ExamController) SubmitExam(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	var req ProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Sessions.Submit(claims.UserID, id, claims.Grade, req.Answers, req.Actions)
	if err != nil {
		respondSessionError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// AnalyzeExam godoc
// @Summary Structured AI report for a submitted attempt
// @Tags exams
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Param force_refresh query bool false "Recompute even when cached"
// @Success 200 {object} util.Response{data=service.AnalysisResult}
// @Failure 502 {object} util.Response "All models failed; retry available"
// @Router /api/exams/{id}/analysis [get]
func (c *ExamController) AnalyzeExam(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	force := ctx.Query("force_refresh") == "true"
	claims := util.GetUserFromContext(ctx)

	result, err := c.Analysis.Analyze(ctx.Request.Context(), claims.UserID, id, claims.Grade, force)
	if err != nil {
		var pipeErr *service.PipelineError
		if errors.As(err, &pipeErr) {
			ctx.JSON(http.StatusBadGateway, util.Response{
				Code:    http.StatusBadGateway,
				Message: "التحليل فشل مؤقتًا، جرب تاني",
				Data: gin.H{
					"retry_available": true,
					"attempts":        pipeErr.TotalAttempts,
					"attempt_log":     pipeErr.Log,
				},
			})
			return
		}
		respondSessionError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Admin surface.

// CreateExamRequest mirrors the stored exam definition.
// swagger:model CreateExamRequest
type CreateExamRequest struct {
	Title     string             `json:"title" binding:"required"`
	Duration  int                `json:"duration" binding:"required,min=1"`
	Grade     int                `json:"grade" binding:"required,min=1,max=12"`
	Questions model.QuestionList `json:"questions" binding:"required"`
}

// CreateExam godoc
// @Summary Create an exam definition
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateExamRequest true "Exam definition"
// @Success 201 {object} util.Response{data=model.Exam}
// @Router /api/admin/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	var req CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	exam := &model.Exam{
		Title:     req.Title,
		Duration:  req.Duration,
		Grade:     req.Grade,
		Questions: req.Questions,
	}
	if err := c.Catalog.Create(exam); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, exam)
}

// AdminListExams godoc
// @Summary Paginated list of all exam definitions
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/admin/exams [get]
func (c *ExamController) AdminListExams(ctx *gin.Context) {
	page, limit := pagination(ctx)
	exams, total, err := c.Catalog.List(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// DeleteExam godoc
// @Summary Delete an exam definition and its attempts
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Exam id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	id, ok := examID(ctx)
	if !ok {
		return
	}
	if err := c.Catalog.Delete(id); err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"ok": true})
}

func pagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
