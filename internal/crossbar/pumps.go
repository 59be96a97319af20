package crossbar

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/practable/teamchat/internal/message"
	log "github.com/sirupsen/logrus"
)

// readPump pumps frames from the websocket connection to the hub.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine, which also keeps each client's intents in order.
func (c *Conn) readPump(ctx context.Context) {

	defer func() {
		c.hub.Disconnect(c.client)
		c.close()
		log.WithFields(log.Fields{"connection": c.client.ID, "duration": connectedFor(c.client)}).Info("disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	err := c.conn.SetReadDeadline(time.Now().Add(pongWait))

	if err != nil {
		log.Errorf("readPump deadline error: %v", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		err := c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return err
	})

	for {

		mt, data, err := c.conn.ReadMessage()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.WithFields(log.Fields{"connection": c.client.ID, "error": err.Error()}).Warn("readPump")
			}
			return
		}

		if mt != websocket.TextMessage {
			log.WithField("connection", c.client.ID).Debug("readPump ignoring non-text frame")
			continue
		}

		c.hub.HandleFrame(ctx, c.client, data)
	}
}

// writePump pumps events from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		log.WithField("connection", c.client.ID).Trace("write pump dead")
	}()
	for {
		select {

		case out, ok := <-c.client.Send:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err != nil {
				log.Errorf("writePump deadline error: %s", err.Error())
				return
			}

			if !ok {
				// The hub closed the channel.
				err := c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				if err != nil {
					log.Tracef("writePump closeMessage error: %s", err.Error())
				}
				return
			}

			data, err := message.Encode(out)
			if err != nil {
				log.WithFields(log.Fields{"connection": c.client.ID, "error": err.Error()}).Error("writePump encoding")
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithFields(log.Fields{"connection": c.client.ID, "error": err.Error()}).Debug("writePump writing")
				return
			}

		case <-ticker.C:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err != nil {
				log.Errorf("writePump ping deadline error: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			if err != nil {
				log.Tracef("writePump close on shutdown: %s", err.Error())
			}
			return
		}
	}
}
