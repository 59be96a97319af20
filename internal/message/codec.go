package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Envelope is the JSON framing of every message on the wire
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrUnknownType is returned when an envelope names no known inbound type
var ErrUnknownType = errors.New("unknown message type")

var validate = validator.New()

// Decode parses and validates an inbound frame
func Decode(frame []byte) (Inbound, error) {

	var e Envelope

	if err := json.Unmarshal(frame, &e); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var in Inbound

	switch e.Type {
	case TypeRegister:
		in = &Register{}
	case TypeJoinGroup:
		in = &JoinGroup{}
	case TypeLeaveGroup:
		in = &LeaveGroup{}
	case TypeSetTyping:
		in = &SetTyping{}
	case TypeSendMessage:
		in = &SendMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}

	if len(e.Data) == 0 {
		return nil, fmt.Errorf("decoding %s: missing data", e.Type)
	}

	if err := json.Unmarshal(e.Data, in); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", e.Type, err)
	}

	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validating %s: %w", e.Type, err)
	}

	// return values, not pointers, so the hub can switch on them exhaustively
	switch v := in.(type) {
	case *Register:
		return *v, nil
	case *JoinGroup:
		return *v, nil
	case *LeaveGroup:
		return *v, nil
	case *SetTyping:
		if err := v.Scope.Validate(); err != nil {
			return nil, fmt.Errorf("validating %s: %w", e.Type, err)
		}
		return *v, nil
	case *SendMessage:
		if err := v.Scope.Validate(); err != nil {
			return nil, fmt.Errorf("validating %s: %w", e.Type, err)
		}
		return *v, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
}

// Encode frames an outbound event
func Encode(out Outbound) ([]byte, error) {

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: out.OutboundType(), Data: data})
}

// EncodeInbound frames an inbound intent; used by clients
func EncodeInbound(in Inbound) ([]byte, error) {

	var t Type

	switch in.(type) {
	case Register:
		t = TypeRegister
	case JoinGroup:
		t = TypeJoinGroup
	case LeaveGroup:
		t = TypeLeaveGroup
	case SetTyping:
		t = TypeSetTyping
	case SendMessage:
		t = TypeSendMessage
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, in)
	}

	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: t, Data: data})
}

// DecodeOutbound parses an outbound event; used by clients
func DecodeOutbound(frame []byte) (Outbound, error) {

	var e Envelope

	if err := json.Unmarshal(frame, &e); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var err error

	switch e.Type {
	case TypeRegistered:
		var v Registered
		err = json.Unmarshal(e.Data, &v)
		return v, err
	case TypePresence:
		var v Presence
		err = json.Unmarshal(e.Data, &v)
		return v, err
	case TypeTyping:
		var v Typing
		err = json.Unmarshal(e.Data, &v)
		return v, err
	case TypeMessage:
		var v Chat
		err = json.Unmarshal(e.Data, &v)
		return v, err
	case TypeError:
		var v Error
		err = json.Unmarshal(e.Data, &v)
		return v, err
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
}
