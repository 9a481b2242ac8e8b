package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message represents an individual message within a conversation thread.
// Messages are immutable after creation.
type Message struct {
	ID             string    `gorm:"primarykey;size:36" json:"id"`
	UserID         string    `gorm:"size:36;not null;index" json:"user_id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	Role           Role      `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
