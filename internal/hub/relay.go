package hub

import (
	"context"
	"errors"
	"time"

	"github.com/jinzhu/copier"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

func (h *Hub) sendMessage(ctx context.Context, c *Client, m message.SendMessage) {

	h.mu.Lock()

	identity, ok := h.identityOf(c)
	if !ok {
		h.fail(c, message.CodeUnregistered, "register before sending")
		h.unlock()
		return
	}

	// one cadence budget per identity across every scope
	if !h.limit.TryAccept(identity, h.Now()) {
		h.stats.RateLimited++
		h.metrics.Dropped.WithLabelValues("rate_limited").Inc()
		h.mu.Unlock()
		log.WithFields(log.Fields{"identity": identity, "scope": m.Scope.String()}).Debug("hub: send rate limited")
		return
	}

	h.mu.Unlock()

	if m.Scope.Kind == scope.KindDirect {
		sctx, cancel := h.withTimeout(ctx)
		friends, err := h.config.Store.AreFriends(sctx, identity, m.Scope.ID)
		cancel()

		if err != nil {
			h.reject(c, identity, err)
			return
		}

		if !friends {
			h.reject(c, identity, store.ErrNotFriends)
			return
		}
	}

	start := time.Now()

	msg, err := h.persist(ctx, identity, m)

	elapsed := time.Since(start)
	h.metrics.Persist.Observe(elapsed.Seconds())

	if err != nil {
		h.reject(c, identity, err)
		return
	}

	h.relay(msg, elapsed)
}

// persist stores m before anyone sees it
func (h *Hub) persist(ctx context.Context, author string, m message.SendMessage) (store.Message, error) {

	sctx, cancel := h.withTimeout(ctx)
	defer cancel()

	switch m.Scope.Kind {
	case scope.KindGlobal:
		return h.config.Store.PersistGlobalMessage(sctx, author, m.Content)
	case scope.KindDirect:
		return h.config.Store.PersistDirectMessage(sctx, author, m.Scope.ID, m.Content)
	case scope.KindGroup:
		return h.config.Store.PersistGroupMessage(sctx, author, m.Scope.ID, m.Content)
	}

	return store.Message{}, scope.ErrUnknownKind
}

// reject tells the sender why its message was not relayed
func (h *Hub) reject(c *Client, identity string, err error) {

	code := message.CodePersistenceFailure

	switch {
	case errors.Is(err, store.ErrNotFriends):
		code = message.CodeNotFriends
	case errors.Is(err, store.ErrNotMember), errors.Is(err, store.ErrNotFound):
		code = message.CodeNotMember
	default:
		log.WithFields(log.Fields{"identity": identity, "error": err.Error()}).Error("hub: persisting message")
	}

	h.mu.Lock()
	defer h.unlock()

	h.stats.Rejected++
	h.metrics.Dropped.WithLabelValues(string(code)).Inc()

	reason := err.Error()
	if code == message.CodePersistenceFailure {
		reason = "message was not stored, try again"
	}

	h.fail(c, code, reason)
}

// relay pushes a persisted message to every target connection in one batch
func (h *Hub) relay(msg store.Message, persist time.Duration) {

	var out message.Chat

	if err := copier.Copy(&out, &msg); err != nil {
		log.WithFields(log.Fields{"id": msg.ID, "error": err.Error()}).Error("hub: copying message")
		return
	}

	h.mu.Lock()
	defer h.unlock()

	delivered := 0

	switch msg.Kind {
	case scope.KindGlobal:
		out.Scope = scope.Global()
		delivered = h.pushTo(lo.Keys(h.clients), out)

	case scope.KindDirect:
		// each side sees the other as the peer
		toAuthor, toRecipient := out, out
		toAuthor.Scope = scope.Direct(msg.Recipient)
		toRecipient.Scope = scope.Direct(msg.Author)

		delivered = h.pushTo(h.registry.ConnectionsFor(msg.Author), toAuthor)
		if msg.Recipient != msg.Author {
			delivered += h.pushTo(h.registry.ConnectionsFor(msg.Recipient), toRecipient)
		}

	case scope.KindGroup:
		out.Scope = scope.Group(msg.Group)
		delivered = h.pushTo(h.groups.Members(msg.Group), out)
	}

	h.stats.RecordRelay(string(msg.Kind), delivered, persist, h.Now())
	h.metrics.Relayed.WithLabelValues(string(msg.Kind)).Inc()

	log.WithFields(log.Fields{"id": msg.ID, "author": msg.Author, "kind": msg.Kind, "delivered": delivered}).Trace("hub: relayed")
}
