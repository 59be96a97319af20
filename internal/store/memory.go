package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/practable/teamchat/internal/scope"
)

// Memory is a Store held in process memory, for tests and development
type Memory struct {
	sync.Mutex

	users map[string]User

	// friends is symmetric: both directions are stored
	friends map[string]map[string]bool

	groups map[string]Group

	members map[string]map[string]bool

	// messages by conversation key, oldest first
	messages map[string][]Message

	// Now is a function for getting the time - useful for mocking in test
	Now func() time.Time `json:"-" yaml:"-"`
}

// NewMemory returns a pointer to an empty Memory store
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]User),
		friends:  make(map[string]map[string]bool),
		groups:   make(map[string]Group),
		members:  make(map[string]map[string]bool),
		messages: make(map[string][]Message),
		Now:      time.Now,
	}
}

var _ Store = (*Memory)(nil)
var _ History = (*Memory)(nil)
var _ Seeder = (*Memory)(nil)

// SetNowFunc sets the clock used to timestamp messages
func (m *Memory) SetNowFunc(now func() time.Time) {
	m.Lock()
	defer m.Unlock()
	m.Now = now
}

// CreateUser adds or replaces a user
func (m *Memory) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return ErrEmptyID
	}
	m.Lock()
	defer m.Unlock()
	m.users[user.ID] = user
	return nil
}

// AddFriendship records a and b as friends of each other
func (m *Memory) AddFriendship(ctx context.Context, a, b string) error {
	if a == "" || b == "" {
		return ErrEmptyID
	}
	m.Lock()
	defer m.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if _, ok := m.friends[pair[0]]; !ok {
			m.friends[pair[0]] = make(map[string]bool)
		}
		m.friends[pair[0]][pair[1]] = true
	}
	return nil
}

// CreateGroup adds or replaces a group
func (m *Memory) CreateGroup(ctx context.Context, group Group) error {
	if group.ID == "" {
		return ErrEmptyID
	}
	m.Lock()
	defer m.Unlock()
	m.groups[group.ID] = group
	if _, ok := m.members[group.ID]; !ok {
		m.members[group.ID] = make(map[string]bool)
	}
	return nil
}

// AddMember adds identity to the durable membership of group
func (m *Memory) AddMember(ctx context.Context, group, identity string) error {
	if identity == "" {
		return ErrEmptyID
	}
	m.Lock()
	defer m.Unlock()
	members, ok := m.members[group]
	if !ok {
		return ErrNotFound
	}
	members[identity] = true
	return nil
}

// FindUser returns the user with id, or ErrNotFound
func (m *Memory) FindUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.Lock()
	defer m.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// AreFriends reports whether a and b are friends
func (m *Memory) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.Lock()
	defer m.Unlock()
	return m.friends[a][b], nil
}

// PersistGlobalMessage stores a message for everyone
func (m *Memory) PersistGlobalMessage(ctx context.Context, author, content string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.Lock()
	defer m.Unlock()
	msg := m.newMessage(scope.KindGlobal, author, content)
	m.append(globalKey(), msg)
	return msg, nil
}

// PersistDirectMessage stores a message between two friends, or returns ErrNotFriends
func (m *Memory) PersistDirectMessage(ctx context.Context, author, recipient, content string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.Lock()
	defer m.Unlock()
	if !m.friends[author][recipient] {
		return Message{}, ErrNotFriends
	}
	msg := m.newMessage(scope.KindDirect, author, content)
	msg.Recipient = recipient
	m.append(directKey(author, recipient), msg)
	return msg, nil
}

// PersistGroupMessage stores a message in a group the author belongs to
func (m *Memory) PersistGroupMessage(ctx context.Context, author, group, content string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.Lock()
	defer m.Unlock()
	members, ok := m.members[group]
	if !ok {
		return Message{}, ErrNotFound
	}
	if !members[author] {
		return Message{}, ErrNotMember
	}
	msg := m.newMessage(scope.KindGroup, author, content)
	msg.Group = group
	m.append(groupKey(group), msg)
	return msg, nil
}

// ListGroupMembers returns the sorted durable membership of group
func (m *Memory) ListGroupMembers(ctx context.Context, group string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()
	members, ok := m.members[group]
	if !ok {
		return nil, ErrNotFound
	}
	ids := []string{}
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListGlobalMessages returns up to limit global messages, newest first
func (m *Memory) ListGlobalMessages(ctx context.Context, limit int) ([]Message, error) {
	return m.list(ctx, globalKey(), limit)
}

// ListDirectMessages returns up to limit messages between a and b, newest first
func (m *Memory) ListDirectMessages(ctx context.Context, a, b string, limit int) ([]Message, error) {
	return m.list(ctx, directKey(a, b), limit)
}

// ListGroupMessages returns up to limit messages in group, newest first
func (m *Memory) ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error) {
	return m.list(ctx, groupKey(group), limit)
}

func (m *Memory) list(ctx context.Context, key string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()
	stored := m.messages[key]
	msgs := []Message{}
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(msgs) == limit {
			break
		}
		msgs = append(msgs, stored[i])
	}
	return msgs, nil
}

// newMessage is for internal use by functions holding the lock already
func (m *Memory) newMessage(kind scope.Kind, author, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Author:    author,
		Content:   content,
		Timestamp: m.Now().UTC(),
	}
}

func (m *Memory) append(key string, msg Message) {
	m.messages[key] = append(m.messages[key], msg)
}
