package model

import (
	"time"
)

// User is the owning principal for tasks, conversations and messages.
// Account management (registration, password hashing, token issuance) lives
// outside this service; the row exists here for ownership checks and foreign
// keys.
type User struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for the User model.
func (User) TableName() string {
	return "users"
}
