package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/practable/teamchat/internal/scope"
	log "github.com/sirupsen/logrus"
)

// Badger is a Store persisted in a BadgerDB key-value database
type Badger struct {
	db *badger.DB

	// Now is a function for getting the time - useful for mocking in test
	Now func() time.Time
}

var _ Store = (*Badger)(nil)
var _ History = (*Badger)(nil)
var _ Seeder = (*Badger)(nil)

// OpenBadger opens (creating if needed) a database in dir; an empty dir opens an in-memory database
func OpenBadger(dir string) (*Badger, error) {

	opts := badger.DefaultOptions(dir).
		WithLogger(log.WithField("component", "badger"))

	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	return &Badger{db: db, Now: time.Now}, nil
}

// Close releases the database lock and flushes buffers
func (b *Badger) Close() error {
	return b.db.Close()
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser adds or replaces a user
func (b *Badger) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return ErrEmptyID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(user.ID), user)
	})
}

// AddFriendship records a and b as friends of each other
func (b *Badger) AddFriendship(ctx context.Context, a, c string) error {
	if a == "" || c == "" {
		return ErrEmptyID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(friendKey(a, c), []byte{1}); err != nil {
			return err
		}
		return txn.Set(friendKey(c, a), []byte{1})
	})
}

// CreateGroup adds or replaces a group
func (b *Badger) CreateGroup(ctx context.Context, group Group) error {
	if group.ID == "" {
		return ErrEmptyID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, groupRecordKey(group.ID), group)
	})
}

// AddMember adds identity to the durable membership of group
func (b *Badger) AddMember(ctx context.Context, group, identity string) error {
	if identity == "" {
		return ErrEmptyID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, groupRecordKey(group))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return txn.Set(memberKey(group, identity), []byte{1})
	})
}

// FindUser returns the user with id, or ErrNotFound
func (b *Badger) FindUser(ctx context.Context, id string) (User, error) {
	var user User
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	return user, err
}

// AreFriends reports whether a and c are friends
func (b *Badger) AreFriends(ctx context.Context, a, c string) (bool, error) {
	var ok bool
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, friendKey(a, c))
		return err
	})
	return ok, err
}

// PersistGlobalMessage stores a message for everyone
func (b *Badger) PersistGlobalMessage(ctx context.Context, author, content string) (Message, error) {
	msg := b.newMessage(scope.KindGlobal, author, content)
	err := b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(globalKey(), msg), msg)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// PersistDirectMessage stores a message between two friends, or returns ErrNotFriends.
// The friendship check and the write share one transaction.
func (b *Badger) PersistDirectMessage(ctx context.Context, author, recipient, content string) (Message, error) {
	msg := b.newMessage(scope.KindDirect, author, content)
	msg.Recipient = recipient
	err := b.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, friendKey(author, recipient))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFriends
		}
		return setJSON(txn, messageKey(directKey(author, recipient), msg), msg)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// PersistGroupMessage stores a message in a group the author belongs to
func (b *Badger) PersistGroupMessage(ctx context.Context, author, group, content string) (Message, error) {
	msg := b.newMessage(scope.KindGroup, author, content)
	msg.Group = group
	err := b.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, groupRecordKey(group))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		ok, err = exists(txn, memberKey(group, author))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotMember
		}
		return setJSON(txn, messageKey(groupKey(group), msg), msg)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListGroupMembers returns the sorted durable membership of group
func (b *Badger) ListGroupMembers(ctx context.Context, group string) ([]string, error) {

	ids := []string{}

	err := b.db.View(func(txn *badger.Txn) error {

		ok, err := exists(txn, groupRecordKey(group))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		prefix := memberPrefix(group)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := url.QueryUnescape(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(ids)

	return ids, nil
}

// ListGlobalMessages returns up to limit global messages, newest first
func (b *Badger) ListGlobalMessages(ctx context.Context, limit int) ([]Message, error) {
	return b.list(ctx, globalKey(), limit)
}

// ListDirectMessages returns up to limit messages between a and c, newest first
func (b *Badger) ListDirectMessages(ctx context.Context, a, c string, limit int) ([]Message, error) {
	return b.list(ctx, directKey(a, c), limit)
}

// ListGroupMessages returns up to limit messages in group, newest first
func (b *Badger) ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error) {
	return b.list(ctx, groupKey(group), limit)
}

// list does a reverse prefix scan; the padded timestamp in the key gives time order
func (b *Badger) list(ctx context.Context, conversation string, limit int) ([]Message, error) {

	msgs := []Message{}

	err := b.db.View(func(txn *badger.Txn) error {

		prefix := messagePrefix(conversation)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// in reverse mode, seek past the end of the prefix to land on the newest key
		seek := append(append([]byte{}, prefix...), 0xFF)

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(msgs) == limit {
				break
			}
			var m Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return msgs, nil
}

func (b *Badger) newMessage(kind scope.Kind, author, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Author:    author,
		Content:   content,
		Timestamp: b.Now().UTC(),
	}
}
