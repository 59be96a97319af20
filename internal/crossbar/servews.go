package crossbar

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/practable/teamchat/internal/hub"
	log "github.com/sirupsen/logrus"
)

// Handler returns an http.HandlerFunc that upgrades requests to websockets and
// attaches them to h. Connections are closed when ctx is done.
func Handler(ctx context.Context, h *hub.Hub, config Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveWs(ctx, h, w, r, config)
	}
}

// serveWs handles websocket requests from clients.
func serveWs(ctx context.Context, h *hub.Hub, w http.ResponseWriter, r *http.Request, config Config) {

	upgrader := config.upgrader()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("error", err).Error("serveWs failed to upgrade to websocket")
		return
	}

	log.Trace("upgraded to ws") //Cannot return any http responses from here on

	buffer := config.SendBuffer
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}

	client := hub.NewClient(uuid.New().String(), buffer)
	client.UserAgent = r.UserAgent()
	client.RemoteAddr = r.Header.Get("X-Forwarded-For")
	if client.RemoteAddr == "" {
		client.RemoteAddr = r.RemoteAddr
	}

	c := &Conn{
		hub:    h,
		client: client,
		conn:   conn,
	}

	h.Connect(client)

	log.WithFields(log.Fields{"connection": client.ID, "remoteAddr": client.RemoteAddr, "userAgent": client.UserAgent}).Info("connected")

	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Conn is a middleperson between the websocket connection and the hub.
type Conn struct {
	hub *hub.Hub

	client *hub.Client

	// The websocket connection.
	conn *websocket.Conn
}

func (c *Conn) close() {
	if err := c.conn.Close(); err != nil {
		log.WithFields(log.Fields{"connection": c.client.ID, "error": err.Error()}).Trace("closing websocket")
	}
}

func connectedFor(client *hub.Client) string {
	return time.Since(client.ConnectedAt).Round(time.Millisecond).String()
}
