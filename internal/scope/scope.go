// Package scope describes the addressing domain of a chat message or typing signal
package scope

import (
	"errors"
	"fmt"
)

// Kind identifies the addressing domain
type Kind string

// Kind constants
const (
	KindGlobal Kind = "global"
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Scope is global (no ID), direct (ID is the peer identity) or group (ID is the group id)
type Scope struct {
	Kind Kind   `json:"kind" validate:"required,oneof=global direct group"`
	ID   string `json:"id,omitempty" validate:"max=128"`
}

var (
	// ErrUnknownKind is returned for a scope kind outside global, direct and group
	ErrUnknownKind  = errors.New("unknown scope kind")
	errMissingID    = errors.New("scope id required")
	errUnexpectedID = errors.New("global scope takes no id")
)

// Global returns the global scope
func Global() Scope {
	return Scope{Kind: KindGlobal}
}

// Direct returns the scope of a direct conversation with peer
func Direct(peer string) Scope {
	return Scope{Kind: KindDirect, ID: peer}
}

// Group returns the scope of a group
func Group(id string) Scope {
	return Scope{Kind: KindGroup, ID: id}
}

// Validate checks the kind is known and the ID is present only when required
func (s Scope) Validate() error {
	switch s.Kind {
	case KindGlobal:
		if s.ID != "" {
			return errUnexpectedID
		}
	case KindDirect, KindGroup:
		if s.ID == "" {
			return errMissingID
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

// IsGlobal is true for the global scope
func (s Scope) IsGlobal() bool {
	return s.Kind == KindGlobal
}

// String returns e.g. global, direct/bob, group/7
func (s Scope) String() string {
	if s.Kind == KindGlobal {
		return string(KindGlobal)
	}
	return fmt.Sprintf("%s/%s", s.Kind, s.ID)
}

// DirectKey returns a key for the conversation between a and b that
// does not depend on who is sending
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
