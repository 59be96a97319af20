/*
   reconws is websocket client that automatically reconnects
   Copyright (C) 2019 Timothy Drysdale <timothy.d.drysdale@gmail.com>

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package reconws is a chat client that reconnects when the connection drops,
// registering again and re-opening the groups it had joined.
package reconws

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/practable/teamchat/internal/message"
	log "github.com/sirupsen/logrus"
)

// ReconWs represents a chat client that will reconnect if the connection is closed
type ReconWs struct {

	// Connected receives a value each time a connection is made and registered
	Connected chan struct{}

	// In receives decoded events from the server
	In chan message.Outbound

	// Out takes intents to send to the server
	Out chan message.Inbound

	Retry RetryConfig

	ID string

	Identity string

	Token string

	mu sync.Mutex

	connectedAt time.Time

	// groups are joined again after a reconnect
	groups map[string]struct{}
}

// RetryConfig represents the parameters for when to retry to connect
type RetryConfig struct {
	Factor  float64
	Jitter  bool
	Min     time.Duration
	Max     time.Duration
	Timeout time.Duration
}

// New returns a pointer to a new reconnecting client for identity
func New(identity string) *ReconWs {
	r := &ReconWs{
		Connected: make(chan struct{}, 1),
		In:        make(chan message.Outbound, 64),
		Out:       make(chan message.Inbound, 64),
		Retry: RetryConfig{Factor: 2,
			Min:     1 * time.Second,
			Max:     10 * time.Second,
			Timeout: 1 * time.Second,
			Jitter:  false},
		ID:       uuid.New().String()[0:6],
		Identity: identity,
		groups:   make(map[string]struct{}),
	}
	return r
}

// WithToken sets the identity token presented on register
func (r *ReconWs) WithToken(token string) *ReconWs {
	r.Token = token
	return r
}

// WithRetry sets the reconnection backoff
func (r *ReconWs) WithRetry(retry RetryConfig) *ReconWs {
	r.Retry = retry
	return r
}

// ConnectedAt returns when the current connection was made
func (r *ReconWs) ConnectedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedAt
}

// Groups returns the groups that will be joined on reconnect
func (r *ReconWs) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	groups := []string{}
	for g := range r.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Reconnect dials url, and dials again with backoff whenever the
// connection ends, until ctx is cancelled.
// Run this in a separate goroutine.
func (r *ReconWs) Reconnect(ctx context.Context, url string) {

	id := "reconws.Reconnect(" + r.ID + ")"

	boff := &backoff.Backoff{
		Min:    r.Retry.Min,
		Max:    r.Retry.Max,
		Factor: r.Retry.Factor,
		Jitter: r.Retry.Jitter,
	}

	for {

		select {
		case <-ctx.Done():
			return
		default:
		}

		err := r.Dial(ctx, url)

		if err == nil {
			boff.Reset()
			log.Tracef("%s: dial finished successfully, resetting timeout to zero", id)
			continue
		}

		wait := boff.Duration()
		log.WithFields(log.Fields{"error": err.Error(), "wait": wait.String()}).Debugf("%s: dial finished with error, increasing timeout", id)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Dial the server once and register.
// If dial fails then return immediately
// If dial succeeds then handle message traffic until the
// connection drops or the context is cancelled
func (r *ReconWs) Dial(ctx context.Context, urlStr string) error {

	id := "reconws.Dial(" + r.ID + ")"

	if urlStr == "" {
		return errors.New("can't dial an empty url")
	}

	// parse to check, dial with original string
	u, err := url.Parse(urlStr)

	if err != nil {
		return err
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("url needs to start with ws or wss")
	}

	if u.User != nil {
		return errors.New("url can't contain user name and password")
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout())
	c, _, err := websocket.DefaultDialer.DialContext(dialCtx, urlStr, nil)
	cancel()

	if err != nil {
		log.WithField("error", err).Debugf("%s: dialing error because %s", id, err.Error())
		return err
	}

	defer c.Close()

	log.WithField("To", u).Tracef("%s: connected to %s", id, u)

	if err := r.resume(c); err != nil {
		return err
	}

	r.mu.Lock()
	r.connectedAt = time.Now()
	r.mu.Unlock()

	select {
	case r.Connected <- struct{}{}:
	default:
	}

	readClosed := make(chan struct{})

	go func() {
		defer close(readClosed)
		for {
			// produces an error once the writer closes conn
			_, data, err := c.ReadMessage()

			if err != nil {
				log.WithField("error", err).Debugf("%s: error reading from conn; closing", id)
				return
			}

			out, err := message.DecodeOutbound(data)
			if err != nil {
				log.WithField("error", err).Warnf("%s: ignoring undecodable frame", id)
				continue
			}

			select {
			case r.In <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-readClosed:
			return nil // nil error resets the backoff

		case in := <-r.Out:

			if err := r.write(c, in); err != nil {
				log.WithField("error", err).Infof("%s: error writing to conn; closing", id)
				return nil
			}

			r.track(in)

		case <-ctx.Done():
			// Cleanly close the connection by sending a close message
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.WithField("error", err).Debugf("%s: error sending close message", id)
			}
			return nil
		}
	}
}

// resume registers and re-opens the joined groups on a new connection
func (r *ReconWs) resume(c *websocket.Conn) error {

	if err := r.write(c, message.Register{Identity: r.Identity, Token: r.Token}); err != nil {
		return err
	}

	for _, g := range r.Groups() {
		if err := r.write(c, message.JoinGroup{Group: g}); err != nil {
			return err
		}
	}

	return nil
}

func (r *ReconWs) write(c *websocket.Conn, in message.Inbound) error {
	data, err := message.EncodeInbound(in)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// track remembers groups so they survive a reconnect
func (r *ReconWs) track(in message.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := in.(type) {
	case message.JoinGroup:
		r.groups[m.Group] = struct{}{}
	case message.LeaveGroup:
		delete(r.groups, m.Group)
	case message.Register:
		// rooms belong to the identity they were opened under
		if m.Identity != r.Identity {
			r.groups = make(map[string]struct{})
		}
		r.Identity = m.Identity
		r.Token = m.Token
	}
}

func (r *ReconWs) dialTimeout() time.Duration {
	if r.Retry.Timeout <= 0 {
		return 10 * time.Second
	}
	return r.Retry.Timeout
}
