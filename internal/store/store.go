// Package store defines the data-access contract the chat hub consumes,
// with in-memory and badger implementations
package store

import (
	"context"
	"errors"
	"time"

	"github.com/practable/teamchat/internal/scope"
)

// Errors returned by Store implementations
var (
	ErrNotFound   = errors.New("not found")
	ErrNotFriends = errors.New("not friends")
	ErrNotMember  = errors.New("not a member of group")
	ErrEmptyID    = errors.New("empty id")
)

// User represents a durable user record
type User struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Group represents a durable group record
type Group struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Message represents a persisted chat message
type Message struct {
	ID        string     `json:"id"`
	Kind      scope.Kind `json:"kind"`
	Author    string     `json:"author"`
	Recipient string     `json:"recipient,omitempty"`
	Group     string     `json:"group,omitempty"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store is the data-access collaborator. Persist calls return only once the
// message is durable, so a relay that follows never loses data.
type Store interface {
	FindUser(ctx context.Context, id string) (User, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	PersistGlobalMessage(ctx context.Context, author, content string) (Message, error)
	PersistDirectMessage(ctx context.Context, author, recipient, content string) (Message, error)
	PersistGroupMessage(ctx context.Context, author, group, content string) (Message, error)
	ListGroupMembers(ctx context.Context, group string) ([]string, error)
}

// History is implemented by stores that can return recent messages, newest first
type History interface {
	ListGlobalMessages(ctx context.Context, limit int) ([]Message, error)
	ListDirectMessages(ctx context.Context, a, b string, limit int) ([]Message, error)
	ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error)
}

// Seeder is implemented by stores that can be populated from a fixture
type Seeder interface {
	CreateUser(ctx context.Context, user User) error
	AddFriendship(ctx context.Context, a, b string) error
	CreateGroup(ctx context.Context, group Group) error
	AddMember(ctx context.Context, group, identity string) error
}
