package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("already exists")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Unread       int64 // messages received since the counter was created
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Text        *string
	File        *string // stored attachment filename
	Unread      bool
	CreatedAt   time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns every user ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// SearchUsers searches for users by username.
	SearchUsers(ctx context.Context, query string) ([]*User, error)

	// IncrementUnread bumps the user's unread counter by one.
	IncrementUnread(ctx context.Context, userID int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg and fills in its ID and CreatedAt.
	// CreatedAt never goes backwards inside one conversation.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListConversation returns messages exchanged between two users in chronological order.
	// If beforeID is provided, only messages older than that ID are considered.
	ListConversation(ctx context.Context, userA, userB int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
