package crossbar

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; content is capped well below this.
	maxMessageSize = 16 * 1024

	// DefaultSendBuffer is the number of outbound events queued per connection
	DefaultSendBuffer = 256
)

// Config represents configuration options for the websocket transport
type Config struct {

	// SendBuffer is the outbound queue length per connection; a full queue drops events
	SendBuffer int

	// AllowedOrigins restricts browser origins; empty allows any
	AllowedOrigins []string
}

// NewDefaultConfig returns a pointer to a Config struct with default parameters
func NewDefaultConfig() *Config {
	return &Config{
		SendBuffer: DefaultSendBuffer,
	}
}

// WithSendBuffer sets the per connection outbound queue length
func (c *Config) WithSendBuffer(n int) *Config {
	c.SendBuffer = n
	return c
}

// WithAllowedOrigins restricts the origins that may connect
func (c *Config) WithAllowedOrigins(origins []string) *Config {
	c.AllowedOrigins = origins
	return c
}

func (c *Config) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     c.checkOrigin,
	}
}

func (c *Config) checkOrigin(r *http.Request) bool {

	if len(c.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")

	// non-browser clients send no origin
	if origin == "" {
		return true
	}

	for _, allowed := range c.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}
