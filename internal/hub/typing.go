package hub

import (
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	log "github.com/sirupsen/logrus"
)

func (h *Hub) setTyping(c *Client, m message.SetTyping) {
	h.mu.Lock()
	defer h.unlock()

	identity, ok := h.identityOf(c)
	if !ok {
		h.fail(c, message.CodeUnregistered, "register before typing")
		return
	}

	switch m.Scope.Kind {
	case scope.KindDirect:
		h.fail(c, message.CodeBadRequest, "typing is tracked for global and group scopes only")
		return
	case scope.KindGroup:
		// stopping needs no subscription
		if m.Typing && !h.groups.IsJoined(c.ID, m.Scope.ID) {
			h.fail(c, message.CodeNotJoined, m.Scope.ID)
			return
		}
	}

	if !h.typing.Set(m.Scope, identity, m.Typing, h.Now()) {
		return
	}

	log.WithFields(log.Fields{"identity": identity, "scope": m.Scope.String(), "typing": m.Typing}).Trace("hub: typing changed")

	h.broadcastTyping(m.Scope)
}
