// Package hub is the presence and message fan-out engine. It owns the
// connection registry, group subscriptions, typing tracker and rate limiter,
// and funnels every mutation through one lock.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/practable/teamchat/internal/chanstats"
	"github.com/practable/teamchat/internal/limit"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/permission"
	"github.com/practable/teamchat/internal/registry"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
	"github.com/practable/teamchat/internal/subscription"
	"github.com/practable/teamchat/internal/typing"
	log "github.com/sirupsen/logrus"
)

// Config represents configuration options for a hub instance
// Use this struct to pass configuration as argument during testing
type Config struct {

	// Store persists messages and answers friendship and membership queries
	Store store.Store

	// Verifier checks register tokens; nil means identities are trusted as supplied
	Verifier *permission.Verifier

	// RequireKnownUser rejects registration of identities the store does not know
	RequireKnownUser bool

	// RateLimit is the minimum interval between accepted sends per identity
	RateLimit time.Duration

	// TypingTimeout is how long a typing indicator lasts without refresh
	TypingTimeout time.Duration

	// SweepEvery is how often expired typing entries are removed; keep it below TypingTimeout
	SweepEvery time.Duration

	// PruneEvery is how often stale rate limit entries are forgotten
	PruneEvery time.Duration

	// PersistTimeout bounds each call to the store
	PersistTimeout time.Duration

	// Metrics receives prometheus updates; nil creates an unregistered set
	Metrics *Metrics
}

// NewDefaultConfig returns a pointer to a Config struct with default parameters
func NewDefaultConfig() *Config {
	return &Config{
		Store:          store.NewMemory(),
		RateLimit:      limit.DefaultInterval,
		TypingTimeout:  typing.DefaultTimeout,
		SweepEvery:     time.Second,
		PruneEvery:     5 * time.Minute,
		PersistTimeout: 5 * time.Second,
	}
}

// WithStore sets the store
func (c *Config) WithStore(s store.Store) *Config {
	c.Store = s
	return c
}

// WithVerifier enables token checks on register
func (c *Config) WithVerifier(v *permission.Verifier) *Config {
	c.Verifier = v
	return c
}

// WithRateLimit sets the minimum interval between sends
func (c *Config) WithRateLimit(interval time.Duration) *Config {
	c.RateLimit = interval
	return c
}

// WithTypingTimeout sets the typing expiry window
func (c *Config) WithTypingTimeout(timeout time.Duration) *Config {
	c.TypingTimeout = timeout
	return c
}

// WithSweepEvery sets the typing sweep interval
func (c *Config) WithSweepEvery(interval time.Duration) *Config {
	c.SweepEvery = interval
	return c
}

// WithMetrics sets the metrics
func (c *Config) WithMetrics(m *Metrics) *Config {
	c.Metrics = m
	return c
}

// Client is a middleperson between a transport connection and the hub.
// The hub closes Send when the client is disconnected.
type Client struct {

	// ID is unique per live connection
	ID string

	// Buffered channel of outbound events
	Send chan message.Outbound

	ConnectedAt time.Time

	RemoteAddr string

	UserAgent string
}

// NewClient returns a client with an outbound buffer of the given size
func NewClient(id string, buffer int) *Client {
	return &Client{
		ID:          id,
		Send:        make(chan message.Outbound, buffer),
		ConnectedAt: time.Now(),
	}
}

// Hub maintains the set of live clients and the ephemeral chat state
type Hub struct {
	mu sync.Mutex

	// Live clients by connection id
	clients map[string]*Client

	// Clients whose send buffer overflowed, disconnected on unlock
	full map[string]*Client

	registry *registry.Registry

	groups *subscription.Table

	typing *typing.Tracker

	limit *limit.Limit

	stats *chanstats.ChanStats

	metrics *Metrics

	config Config

	// Now is a function for getting the time - useful for mocking in test
	Now func() time.Time
}

// New returns a pointer to an initialised Hub
func New(config Config) *Hub {

	if config.Store == nil {
		config.Store = store.NewMemory()
	}

	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}

	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 5 * time.Second
	}

	return &Hub{
		clients:  make(map[string]*Client),
		full:     make(map[string]*Client),
		registry: registry.New(),
		groups:   subscription.New(),
		typing:   typing.New().WithTimeout(config.TypingTimeout),
		limit:    limit.New().WithInterval(config.RateLimit),
		stats:    chanstats.New(),
		metrics:  config.Metrics,
		config:   config,
		Now:      time.Now,
	}
}

// Connect adds a client that has just opened a transport connection.
// The client is sent the current presence list straight away.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	defer h.unlock()

	if _, ok := h.clients[c.ID]; ok {
		log.WithField("connection", c.ID).Warn("hub.Connect(): connection already known")
		return
	}

	h.clients[c.ID] = c
	h.metrics.Connections.Set(float64(len(h.clients)))

	log.WithFields(log.Fields{"connection": c.ID, "remoteAddr": c.RemoteAddr}).Debug("hub.Connect()")

	h.push(c, message.Presence{Identities: h.registry.Online()})
}

// Disconnect removes a client from every index and closes its Send channel.
// It is safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.unlock()
	h.remove(c)
}

// remove is Disconnect for callers that already hold h.mu
func (h *Hub) remove(c *Client) {

	if !h.live(c) {
		return
	}

	delete(h.clients, c.ID)
	delete(h.full, c.ID)
	close(c.Send)

	left := h.groups.RemoveConnection(c.ID)

	identity, last, registered := h.registry.Remove(c.ID)

	log.WithFields(log.Fields{"connection": c.ID, "identity": identity, "groups": left, "last": last}).Debug("hub.Disconnect()")

	h.metrics.Connections.Set(float64(len(h.clients)))

	if !registered {
		return
	}

	if last {
		// a user closing their only tab stops typing everywhere
		for _, s := range h.typing.ClearIdentity(identity) {
			h.broadcastTyping(s)
		}
	} else {
		h.clearGroupTyping(identity, left)
	}

	h.broadcastPresence()
}

// unlock disconnects the clients whose buffers overflowed while h.mu
// was held, then releases h.mu. Removal can overflow further clients,
// so it repeats until none are left.
func (h *Hub) unlock() {
	for len(h.full) > 0 {
		for id, c := range h.full {
			delete(h.full, id)
			if !h.live(c) {
				continue
			}
			log.WithField("connection", c.ID).Warn("hub: send buffer full, disconnecting")
			h.stats.Evicted++
			h.remove(c)
		}
	}
	h.mu.Unlock()
}

// Run performs the periodic typing sweep and rate limit pruning until ctx is done
func (h *Hub) Run(ctx context.Context) {

	sweepEvery := h.config.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = time.Second
	}

	pruneEvery := h.config.PruneEvery
	if pruneEvery <= 0 {
		pruneEvery = 5 * time.Minute
	}

	sweep := time.NewTicker(sweepEvery)
	prune := time.NewTicker(pruneEvery)

	defer func() {
		sweep.Stop()
		prune.Stop()
		log.Trace("hub.Run(): stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			h.Sweep()
		case <-prune.C:
			h.mu.Lock()
			h.limit.Prune(h.Now())
			h.mu.Unlock()
		}
	}
}

// Sweep removes expired typing entries and notifies the affected scopes
func (h *Hub) Sweep() {
	h.mu.Lock()
	defer h.unlock()

	for _, s := range h.typing.Expire(h.Now()) {
		log.WithField("scope", s.String()).Trace("hub.Sweep(): typing expired")
		h.broadcastTyping(s)
	}
}

// Online returns the identities with at least one live connection
func (h *Hub) Online() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Online()
}

// Typing returns the identities typing in s
func (h *Hub) Typing(s scope.Scope) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.typing.Typing(s, h.Now())
}

// Subscribers returns the connections that currently have group open
func (h *Hub) Subscribers(group string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups.Members(group)
}

// Report represents a snapshot of the hub's state and statistics
type Report struct {
	Connections int               `json:"connections"`
	Registered  int               `json:"registered"`
	Online      int               `json:"online"`
	Groups      int               `json:"groups"`
	Stats       *chanstats.Report `json:"stats"`
}

// GetReport returns a snapshot of the hub's state and statistics
func (h *Hub) GetReport() Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Report{
		Connections: len(h.clients),
		Registered:  h.registry.Count(),
		Online:      len(h.registry.ConnectionsByIdentity),
		Groups:      len(h.groups.ConnectionsByGroup),
		Stats:       chanstats.NewReport(h.stats),
	}
}
