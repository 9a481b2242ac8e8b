package model

import (
	"time"
)

// Conversation represents a conversation thread between a user and the assistant.
type Conversation struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
