package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// HandleFrame decodes one inbound frame from c and handles it.
// Frames that do not decode are answered with a bad_request error.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, frame []byte) {

	in, err := message.Decode(frame)

	if err != nil {
		log.WithFields(log.Fields{"connection": c.ID, "error": err.Error()}).Debug("hub.HandleFrame(): bad frame")
		h.reply(c, message.CodeBadRequest, err.Error())
		return
	}

	h.Handle(ctx, c, in)
}

// Handle carries out one inbound intent from c. Intents from one client
// must be handled in order, so callers use one goroutine per client.
func (h *Hub) Handle(ctx context.Context, c *Client, in message.Inbound) {

	switch m := in.(type) {
	case message.Register:
		h.register(ctx, c, m)
	case message.JoinGroup:
		h.joinGroup(ctx, c, m)
	case message.LeaveGroup:
		h.leaveGroup(c, m)
	case message.SetTyping:
		h.setTyping(c, m)
	case message.SendMessage:
		h.sendMessage(ctx, c, m)
	default:
		log.WithField("connection", c.ID).Errorf("hub.Handle(): unhandled inbound %T", in)
		h.reply(c, message.CodeBadRequest, fmt.Sprintf("unhandled message %T", in))
	}
}

// reply sends an error to c if it is still connected
func (h *Hub) reply(c *Client, code message.Code, reason string) {
	h.mu.Lock()
	defer h.unlock()
	h.fail(c, code, reason)
}

// fail is reply for callers that already hold h.mu
func (h *Hub) fail(c *Client, code message.Code, reason string) {
	if h.live(c) {
		h.push(c, message.Error{Code: code, Reason: reason})
	}
}

// live reports whether c is still connected; callers must hold h.mu
func (h *Hub) live(c *Client) bool {
	known, ok := h.clients[c.ID]
	return ok && known == c
}

// identityOf returns the identity registered on c; callers must hold h.mu
func (h *Hub) identityOf(c *Client) (string, bool) {
	if !h.live(c) {
		return "", false
	}
	return h.registry.IdentityFor(c.ID)
}

// withTimeout bounds a store call
func (h *Hub) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.config.PersistTimeout)
}

func (h *Hub) register(ctx context.Context, c *Client, m message.Register) {

	if h.config.Verifier != nil {
		if err := h.config.Verifier.Verify(m.Token, m.Identity); err != nil {
			log.WithFields(log.Fields{"connection": c.ID, "identity": m.Identity, "error": err.Error()}).Info("hub: register token rejected")
			h.reply(c, message.CodeInvalidToken, err.Error())
			return
		}
	}

	if h.config.RequireKnownUser {
		sctx, cancel := h.withTimeout(ctx)
		_, err := h.config.Store.FindUser(sctx, m.Identity)
		cancel()

		switch {
		case errors.Is(err, store.ErrNotFound):
			h.reply(c, message.CodeUnknownUser, m.Identity)
			return
		case err != nil:
			log.WithFields(log.Fields{"identity": m.Identity, "error": err.Error()}).Error("hub: finding user")
			h.reply(c, message.CodePersistenceFailure, "user lookup failed")
			return
		}
	}

	h.mu.Lock()
	defer h.unlock()

	if !h.live(c) {
		return
	}

	previous, changed := h.registry.Register(c.ID, m.Identity)

	h.push(c, message.Registered{Identity: m.Identity})

	if !changed {
		h.push(c, h.presenceFor(c.ID))
		h.push(c, h.typingFor(c.ID, scope.Global()))
		return
	}

	log.WithFields(log.Fields{"connection": c.ID, "identity": m.Identity, "previous": previous}).Debug("hub: registered")

	if previous != "" {
		// rooms were opened as the previous identity
		left := h.groups.RemoveConnection(c.ID)

		if !h.registry.IsOnline(previous) {
			for _, s := range h.typing.ClearIdentity(previous) {
				h.broadcastTyping(s)
			}
		} else {
			h.clearGroupTyping(previous, left)
		}
	}

	h.broadcastPresence()

	h.push(c, h.typingFor(c.ID, scope.Global()))
}

func (h *Hub) joinGroup(ctx context.Context, c *Client, m message.JoinGroup) {

	h.mu.Lock()
	identity, ok := h.identityOf(c)
	h.mu.Unlock()

	if !ok {
		h.reply(c, message.CodeUnregistered, "register before joining a group")
		return
	}

	sctx, cancel := h.withTimeout(ctx)
	members, err := h.config.Store.ListGroupMembers(sctx, m.Group)
	cancel()

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.reply(c, message.CodeNotMember, m.Group)
		return
	case err != nil:
		log.WithFields(log.Fields{"group": m.Group, "error": err.Error()}).Error("hub: listing group members")
		h.reply(c, message.CodePersistenceFailure, "membership lookup failed")
		return
	}

	if !lo.Contains(members, identity) {
		h.reply(c, message.CodeNotMember, m.Group)
		return
	}

	h.mu.Lock()
	defer h.unlock()

	// the connection may have re-registered while the store was consulted
	if now, ok := h.identityOf(c); !ok || now != identity {
		return
	}

	if h.groups.Join(c.ID, m.Group) {
		log.WithFields(log.Fields{"connection": c.ID, "identity": identity, "group": m.Group}).Debug("hub: joined group")
	}

	h.push(c, h.typingFor(c.ID, scope.Group(m.Group)))
}

func (h *Hub) leaveGroup(c *Client, m message.LeaveGroup) {
	h.mu.Lock()
	defer h.unlock()

	identity, ok := h.identityOf(c)
	if !ok {
		h.fail(c, message.CodeUnregistered, "register before leaving a group")
		return
	}

	if h.groups.Leave(c.ID, m.Group) {
		log.WithFields(log.Fields{"connection": c.ID, "identity": identity, "group": m.Group}).Debug("hub: left group")
		h.clearGroupTyping(identity, []string{m.Group})
	}
}
