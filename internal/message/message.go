// Package message defines the socket protocol: a closed set of inbound
// intents from clients and the events pushed back to them
package message

import (
	"time"

	"github.com/practable/teamchat/internal/scope"
)

// Type names the kind of payload carried in an Envelope
type Type string

// Inbound types
const (
	TypeRegister    Type = "register"
	TypeJoinGroup   Type = "join_group"
	TypeLeaveGroup  Type = "leave_group"
	TypeSetTyping   Type = "set_typing"
	TypeSendMessage Type = "send_message"
)

// Outbound types
const (
	TypeRegistered Type = "registered"
	TypePresence   Type = "presence"
	TypeTyping     Type = "typing"
	TypeMessage    Type = "message"
	TypeError      Type = "error"
)

// MaxContentLength is the largest chat message accepted, in bytes
const MaxContentLength = 4096

// Inbound is implemented by every message a client may send.
// The set is closed: only types in this package implement it.
type Inbound interface {
	inbound()
}

// Register attaches an identity to the connection. Token is only checked
// when the server has a secret configured.
type Register struct {
	Identity string `json:"identity" validate:"required,max=128"`
	Token    string `json:"token,omitempty"`
}

// JoinGroup subscribes the connection to live pushes for a group
type JoinGroup struct {
	Group string `json:"group" validate:"required,max=128"`
}

// LeaveGroup ends the connection's subscription to a group
type LeaveGroup struct {
	Group string `json:"group" validate:"required,max=128"`
}

// SetTyping starts or stops the typing indicator in a global or group scope
type SetTyping struct {
	Scope  scope.Scope `json:"scope"`
	Typing bool        `json:"typing"`
}

// SendMessage asks for content to be persisted and relayed within scope
type SendMessage struct {
	Scope   scope.Scope `json:"scope"`
	Content string      `json:"content" validate:"required,max=4096"`
}

func (Register) inbound()    {}
func (JoinGroup) inbound()   {}
func (LeaveGroup) inbound()  {}
func (SetTyping) inbound()   {}
func (SendMessage) inbound() {}

// Outbound is implemented by every event pushed to a client
type Outbound interface {
	OutboundType() Type
}

// Registered acknowledges a register request
type Registered struct {
	Identity string `json:"identity"`
}

// Presence lists the identities online, excluding the receiver
type Presence struct {
	Identities []string `json:"identities"`
}

// Typing lists the identities typing in a scope, excluding the receiver
type Typing struct {
	Scope      scope.Scope `json:"scope"`
	Identities []string    `json:"identities"`
}

// Chat carries a persisted message to a client
type Chat struct {
	Scope     scope.Scope `json:"scope"`
	ID        string      `json:"id"`
	Author    string      `json:"author"`
	Recipient string      `json:"recipient,omitempty"`
	Group     string      `json:"group,omitempty"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Error tells the sender why an action was not carried out
type Error struct {
	Code   Code   `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// Code classifies errors reported to clients
type Code string

// Code constants
const (
	CodeBadRequest         Code = "bad_request"
	CodeUnregistered       Code = "unregistered"
	CodeInvalidToken       Code = "invalid_token"
	CodeUnknownUser        Code = "unknown_user"
	CodeNotFriends         Code = "not_friends"
	CodeNotMember          Code = "not_member"
	CodeNotJoined          Code = "not_joined"
	CodePersistenceFailure Code = "persistence_failure"
)

// OutboundType implements Outbound
func (Registered) OutboundType() Type { return TypeRegistered }

// OutboundType implements Outbound
func (Presence) OutboundType() Type { return TypePresence }

// OutboundType implements Outbound
func (Typing) OutboundType() Type { return TypeTyping }

// OutboundType implements Outbound
func (Chat) OutboundType() Type { return TypeMessage }

// OutboundType implements Outbound
func (Error) OutboundType() Type { return TypeError }
