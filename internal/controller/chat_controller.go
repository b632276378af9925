package controller

import (
	"alpha_edu_backend/internal/service"
	"alpha_edu_backend/internal/util"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	ChatService *service.ChatService
}

func NewChatController(chatService *service.ChatService) *ChatController {
	return &ChatController{ChatService: chatService}
}

func conversationID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid conversation id")
		return 0, false
	}
	return uint(id), true
}

// CheckLimits godoc
// @Summary Today's chat usage against the daily quota
// @Tags chat
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.ChatLimits}
// @Router /api/chat/limits [get]
func (c *ChatController) CheckLimits(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	limits, err := c.ChatService.CheckLimits(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, limits)
}

// swagger:model CreateConversationRequest
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// CreateConversation godoc
// @Summary Open a new conversation
// @Tags chat
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateConversationRequest false "Optional title"
// @Success 201 {object} util.Response{data=model.Conversation}
// @Router /api/chat/conversations [post]
func (c *ChatController) CreateConversation(ctx *gin.Context) {
	// Body is optional; an empty title falls back to the default.
	var req CreateConversationRequest
	_ = ctx.ShouldBindJSON(&req)
	claims := util.GetUserFromContext(ctx)
	conv, err := c.ChatService.CreateConversation(claims.UserID, req.Title)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, conv)
}

// ListConversations godoc
// @Summary Conversations, pinned first
// @Tags chat
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Conversation}
// @Router /api/chat/conversations [get]
func (c *ChatController) ListConversations(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	convs, err := c.ChatService.ListConversations(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, convs)
}

// TogglePin godoc
// @Summary Pin or unpin a conversation
// @Tags chat
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Conversation id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/chat/conversations/{id}/pin [put]
func (c *ChatController) TogglePin(ctx *gin.Context) {
	id, ok := conversationID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if err := c.ChatService.TogglePin(claims.UserID, id); err != nil {
		respondChatError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"ok": true})
}

// DeleteConversation godoc
// @Summary Delete a conversation and its messages
// @Tags chat
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Conversation id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/chat/conversations/{id} [delete]
func (c *ChatController) DeleteConversation(ctx *gin.Context) {
	id, ok := conversationID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if err := c.ChatService.DeleteConversation(claims.UserID, id); err != nil {
		respondChatError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"ok": true})
}

// GetMessages godoc
// @Summary Full message history of a conversation
// @Tags chat
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Conversation id"
// @Success 200 {object} util.Response{data=[]model.ChatMessage}
// @Failure 404 {object} util.Response
// @Router /api/chat/conversations/{id}/messages [get]
func (c *ChatController) GetMessages(ctx *gin.Context) {
	id, ok := conversationID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	msgs, err := c.ChatService.GetMessages(claims.UserID, id)
	if err != nil {
		respondChatError(ctx, err)
		return
	}
	util.Success(ctx, msgs)
}

// swagger:model SendMessageRequest
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage godoc
// @Summary Send a message and stream the reply over SSE
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Security ApiKeyAuth
// @Param id path int true "Conversation id"
// @Param body body SendMessageRequest true "Message content"
// @Success 200 {string} string "SSE stream of message events"
// @Failure 429 {object} util.Response "Daily limit reached"
// @Router /api/chat/conversations/{id}/messages [post]
func (c *ChatController) SendMessage(ctx *gin.Context) {
	id, ok := conversationID(ctx)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")

	// Fragments are flushed the moment the pipeline hands them over,
	// so perceived latency is bounded by first-token time.
	_, err := c.ChatService.SendMessage(ctx.Request.Context(), claims.UserID, id, req.Content, func(chunk string) {
		ctx.SSEvent("message", chunk)
		ctx.Writer.Flush()
	})
	if err != nil {
		// Quota and ownership failures happen before any byte of the
		// stream, so a JSON error response is still deliverable.
		respondChatError(ctx, err)
		return
	}

	ctx.SSEvent("end", "done")
	ctx.Writer.Flush()
}

func respondChatError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrConversationNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrDailyChatLimit):
		util.Error(ctx, http.StatusTooManyRequests, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
