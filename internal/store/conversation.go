package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

// CreateConversation saves a new conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by its ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// ListConversationsByUser retrieves all conversations owned by userID,
// most recently updated first.
func (s *Store) ListConversationsByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&convs, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// SaveConversation persists all fields of an existing conversation.
func (s *Store) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	if err := s.db.WithContext(ctx).Save(conv).Error; err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// DeleteConversation hard-deletes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.Transaction(func(tx *Store) error {
		if err := tx.db.Delete(&model.Message{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		result := tx.db.Delete(&model.Conversation{}, "id = ?", id)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// CreateMessage appends a message to a conversation.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages retrieves all messages of a conversation in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&msgs, "conversation_id = ?", conversationID).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// RecentMessages retrieves the newest messages of a conversation,
// newest first, limited to limit rows.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).
		Find(&msgs, "conversation_id = ?", conversationID).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	return msgs, nil
}
