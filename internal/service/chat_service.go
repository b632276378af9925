package service

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"alpha_edu_backend/pkg/logger"
	"context"

	"go.uber.org/zap"
)

const chatSystemPrompt = `إنت مساعد تعليمي ذكي لطلبة المدارس في مصر. بتشرح بالعربي بأسلوب بسيط وودود، وبتشجع الطالب يفكر بنفسه بدل ما تديله الإجابة على طول. لو السؤال مش تعليمي، وجّه الطالب بلطف إنك مساعد للمذاكرة بس.`

const autoTitleMaxRunes = 50

// ChatService runs the tutoring chat: conversation management, the
// daily message quota and the streaming exchange with the model.
type ChatService struct {
	repo repository.ChatStore
	ai   *AIService
	cfg  config.ChatConfig
}

func NewChatService(repo repository.ChatStore, ai *AIService, cfg config.ChatConfig) *ChatService {
	return &ChatService{repo: repo, ai: ai, cfg: cfg}
}

type ChatLimits struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	CanSend   bool `json:"can_send"`
}

// CheckLimits reports today's usage against the daily quota.
func (s *ChatService) CheckLimits(ctx context.Context, userID uint) (*ChatLimits, error) {
	used, err := s.repo.DailyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining := s.cfg.DailyMessageLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return &ChatLimits{
		Used:      used,
		Limit:     s.cfg.DailyMessageLimit,
		Remaining: remaining,
		CanSend:   remaining > 0,
	}, nil
}

func (s *ChatService) CreateConversation(userID uint, title string) (*model.Conversation, error) {
	if title == "" {
		title = model.DefaultConversationTitle
	}
	conv := &model.Conversation{UserID: userID, Title: title}
	if err := s.repo.CreateConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) ListConversations(userID uint) ([]model.Conversation, error) {
	return s.repo.ListConversations(userID)
}

func (s *ChatService) TogglePin(userID, conversationID uint) error {
	conv, err := s.repo.FindConversation(conversationID, userID)
	if err != nil {
		return err
	}
	if conv == nil {
		return util.ErrConversationNotFound
	}
	return s.repo.TogglePin(conversationID, userID)
}

func (s *ChatService) DeleteConversation(userID, conversationID uint) error {
	conv, err := s.repo.FindConversation(conversationID, userID)
	if err != nil {
		return err
	}
	if conv == nil {
		return util.ErrConversationNotFound
	}
	return s.repo.DeleteConversation(conversationID, userID)
}

func (s *ChatService) GetMessages(userID, conversationID uint) ([]model.ChatMessage, error) {
	conv, err := s.repo.FindConversation(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, util.ErrConversationNotFound
	}
	return s.repo.ListMessages(conversationID)
}

// autoTitle derives a conversation title from its first user message:
// the first 50 runes, with an ellipsis when truncated.
func autoTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= autoTitleMaxRunes {
		return content
	}
	return string(runes[:autoTitleMaxRunes]) + "..."
}

// SendMessage runs one chat turn. The user message is durable before
// the model is called, and whatever the stream produced (fragments or
// the apology fallback) is durable after, so history never loses a
// turn. The usage counter moves exactly once per accepted request.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID uint, content string, emit func(chunk string)) (string, error) {
	limits, err := s.CheckLimits(ctx, userID)
	if err != nil {
		return "", err
	}
	if !limits.CanSend {
		return "", util.ErrDailyChatLimit
	}

	conv, err := s.repo.FindConversation(conversationID, userID)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", util.ErrConversationNotFound
	}

	existing, err := s.repo.CountMessages(conversationID)
	if err != nil {
		return "", err
	}

	userMsg := &model.ChatMessage{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        content,
	}
	if err := s.repo.CreateMessage(userMsg); err != nil {
		return "", err
	}

	if existing == 0 && conv.Title == model.DefaultConversationTitle {
		if err := s.repo.UpdateTitle(conversationID, autoTitle(content)); err != nil {
			logger.Log.Warn("auto-title failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
		}
	}

	if err := s.repo.IncrDailyUsage(ctx, userID); err != nil {
		logger.Log.Warn("usage counter increment failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	window, err := s.repo.RecentMessages(conversationID, s.cfg.HistoryWindow)
	if err != nil {
		return "", err
	}
	history := make([]AIChatMessage, 0, len(window))
	for _, msg := range window {
		history = append(history, AIChatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	reply, err := s.ai.GenerateStream(ctx, history, chatSystemPrompt, emit)
	if err != nil {
		return "", err
	}

	assistantMsg := &model.ChatMessage{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        reply,
	}
	if err := s.repo.CreateMessage(assistantMsg); err != nil {
		logger.Log.Error("failed to persist assistant reply",
			zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
	if err := s.repo.Touch(conversationID); err != nil {
		logger.Log.Warn("conversation touch failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}

	return reply, nil
}
