package repository

import (
	"alpha_edu_backend/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ChatStore is the persistence surface the chat service works
// against: conversations, messages and the daily usage counter.
type ChatStore interface {
	CreateConversation(conv *model.Conversation) error
	FindConversation(id, userID uint) (*model.Conversation, error)
	ListConversations(userID uint) ([]model.Conversation, error)
	UpdateTitle(id uint, title string) error
	TogglePin(id, userID uint) error
	Touch(id uint) error
	DeleteConversation(id, userID uint) error
	CreateMessage(msg *model.ChatMessage) error
	ListMessages(conversationID uint) ([]model.ChatMessage, error)
	RecentMessages(conversationID uint, n int) ([]model.ChatMessage, error)
	CountMessages(conversationID uint) (int64, error)
	DailyUsage(ctx context.Context, userID uint) (int, error)
	IncrDailyUsage(ctx context.Context, userID uint) error
}

// ChatRepository stores conversations and messages in MySQL and keeps
// the per-user daily message counters in Redis, where the expiry does
// the midnight reset for free.
type ChatRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewChatRepository(db *gorm.DB, rdb *redis.Client) *ChatRepository {
	return &ChatRepository{DB: db, RDB: rdb}
}

func (r *ChatRepository) CreateConversation(conv *model.Conversation) error {
	return r.DB.Create(conv).Error
}

func (r *ChatRepository) FindConversation(id, userID uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ChatRepository) ListConversations(userID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.DB.Where("user_id = ?", userID).
		Order("pinned desc, updated_at desc").Find(&convs).Error
	return convs, err
}

func (r *ChatRepository) UpdateTitle(id uint, title string) error {
	return r.DB.Model(&model.Conversation{}).Where("id = ?", id).Update("title", title).Error
}

func (r *ChatRepository) TogglePin(id, userID uint) error {
	return r.DB.Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("pinned", gorm.Expr("NOT pinned")).Error
}

func (r *ChatRepository) Touch(id uint) error {
	return r.DB.Model(&model.Conversation{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

func (r *ChatRepository) DeleteConversation(id, userID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Conversation{}).Error
	})
}

func (r *ChatRepository) CreateMessage(msg *model.ChatMessage) error {
	return r.DB.Create(msg).Error
}

func (r *ChatRepository) ListMessages(conversationID uint) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.DB.Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").Find(&msgs).Error
	return msgs, err
}

// RecentMessages returns the newest n messages in chronological order,
// the context window handed to the model.
func (r *ChatRepository) RecentMessages(conversationID uint, n int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.DB.Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").Limit(n).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *ChatRepository) CountMessages(conversationID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.ChatMessage{}).
		Where("conversation_id = ?", conversationID).Count(&n).Error
	return n, err
}

func dailyUsageKey(userID uint, day time.Time) string {
	return fmt.Sprintf("chat:usage:%d:%s", userID, day.Format("2006-01-02"))
}

// DailyUsage reports how many messages the user sent today.
func (r *ChatRepository) DailyUsage(ctx context.Context, userID uint) (int, error) {
	n, err := r.RDB.Get(ctx, dailyUsageKey(userID, time.Now())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// IncrDailyUsage bumps today's counter, setting its expiry to local
// midnight on first use.
func (r *ChatRepository) IncrDailyUsage(ctx context.Context, userID uint) error {
	now := time.Now()
	key := dailyUsageKey(userID, now)
	n, err := r.RDB.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		r.RDB.ExpireAt(ctx, key, midnight)
	}
	return nil
}
