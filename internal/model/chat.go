package model

const DefaultConversationTitle = "محادثة جديدة"

// swagger:model Conversation
type Conversation struct {
	BaseModel
	UserID uint   `gorm:"not null;index" json:"userId"`
	Title  string `gorm:"size:255;not null" json:"title"`
	Pinned bool   `gorm:"not null;default:false" json:"pinned"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// swagger:model ChatMessage
type ChatMessage struct {
	BaseModel
	ConversationID uint        `gorm:"not null;index" json:"conversationId"`
	Role           MessageRole `gorm:"type:enum('user','assistant');not null" json:"role"`
	Content        string      `gorm:"type:longtext;not null" json:"content"`
}

func (ChatMessage) TableName() string {
	return "messages"
}
