package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

// CreateTask saves a new task.
func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by its ID.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

// ListTasksByUser retrieves all tasks owned by userID.
func (s *Store) ListTasksByUser(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.WithContext(ctx).Find(&tasks, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// SaveTask persists all fields of an existing task.
func (s *Store) SaveTask(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// DeleteTask hard-deletes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Unscoped().Delete(&model.Task{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
