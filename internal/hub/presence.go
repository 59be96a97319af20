package hub

import (
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// push makes a non-blocking send to c. A full buffer drops the event and
// marks c for disconnection when h.mu is released by unlock.
// Callers must hold h.mu so that Send is never closed mid-push.
func (h *Hub) push(c *Client, out message.Outbound) bool {
	select {
	case c.Send <- out:
		h.stats.Pushes++
		return true
	default:
		h.stats.Unreachable++
		h.metrics.Dropped.WithLabelValues("unreachable").Inc()
		log.WithFields(log.Fields{"connection": c.ID, "type": out.OutboundType()}).Debug("hub: send buffer full, event dropped")
		h.full[c.ID] = c
		return false
	}
}

// pushTo pushes out to each of the given connection ids that is still live
func (h *Hub) pushTo(conns []string, out message.Outbound) int {
	n := 0
	for _, id := range conns {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if h.push(c, out) {
			n++
		}
	}
	return n
}

// presenceFor is the online list as seen by the connection conn
func (h *Hub) presenceFor(conn string) message.Presence {
	online := h.registry.Online()
	if identity, ok := h.registry.IdentityFor(conn); ok {
		online = lo.Without(online, identity)
	}
	return message.Presence{Identities: online}
}

// broadcastPresence sends every live connection the online list, less its own identity
func (h *Hub) broadcastPresence() {

	h.metrics.Online.Set(float64(len(h.registry.ConnectionsByIdentity)))

	for id, c := range h.clients {
		h.push(c, h.presenceFor(id))
	}
}

// typingFor is the typing list for s as seen by the connection conn
func (h *Hub) typingFor(conn string, s scope.Scope) message.Typing {
	typing := h.typing.Typing(s, h.Now())
	if identity, ok := h.registry.IdentityFor(conn); ok {
		typing = lo.Without(typing, identity)
	}
	return message.Typing{Scope: s, Identities: typing}
}

// broadcastTyping sends the typing list for s to every connection that can see s
func (h *Hub) broadcastTyping(s scope.Scope) {
	for _, id := range h.audience(s) {
		if c, ok := h.clients[id]; ok {
			h.push(c, h.typingFor(id, s))
		}
	}
}

// audience lists the connections that observe events in s. Global events go
// to every live connection, group events to the group's subscribers.
func (h *Hub) audience(s scope.Scope) []string {
	switch s.Kind {
	case scope.KindGlobal:
		return lo.Keys(h.clients)
	case scope.KindGroup:
		return h.groups.Members(s.ID)
	default:
		return []string{}
	}
}

// clearGroupTyping removes identity's typing entry from each group that
// none of its connections has open any more
func (h *Hub) clearGroupTyping(identity string, groups []string) {
	for _, g := range groups {
		open := lo.ContainsBy(h.registry.ConnectionsFor(identity), func(conn string) bool {
			return h.groups.IsJoined(conn, g)
		})
		if open {
			continue
		}
		s := scope.Group(g)
		if h.typing.Set(s, identity, false, h.Now()) {
			h.broadcastTyping(s)
		}
	}
}
