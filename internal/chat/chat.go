// Package chat wires the store, hub, websocket transport and REST API into one server
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/practable/teamchat/internal/access"
	"github.com/practable/teamchat/internal/crossbar"
	"github.com/practable/teamchat/internal/hub"
	"github.com/practable/teamchat/internal/permission"
	"github.com/practable/teamchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config represents configuration options for the chat server
type Config struct {
	Listen           int
	Store            string
	DataDir          string
	Fixture          string
	Audience         string
	Secret           string
	RequireKnownUser bool
	RateLimit        time.Duration
	TypingTimeout    time.Duration
	SweepEvery       time.Duration
	PruneEvery       time.Duration
	PersistTimeout   time.Duration
	SendBuffer       int
	AllowedOrigins   []string
	Profile          bool
	ShutdownWait     time.Duration
}

// NewDefaultConfig returns a pointer to a Config struct with default parameters
func NewDefaultConfig() *Config {
	h := hub.NewDefaultConfig()
	return &Config{
		Listen:         3000,
		Store:          StoreMemory,
		RateLimit:      h.RateLimit,
		TypingTimeout:  h.TypingTimeout,
		SweepEvery:     h.SweepEvery,
		PruneEvery:     h.PruneEvery,
		PersistTimeout: h.PersistTimeout,
		SendBuffer:     crossbar.DefaultSendBuffer,
		ShutdownWait:   5 * time.Second,
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {

	if c.Listen < 1 || c.Listen > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Listen)
	}

	switch c.Store {
	case StoreMemory:
	case StoreBadger:
		if c.DataDir == "" {
			return errors.New("badger store needs a data directory")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if c.TypingTimeout > 0 && c.SweepEvery >= c.TypingTimeout {
		return fmt.Errorf("sweep interval %s must be shorter than typing timeout %s", c.SweepEvery, c.TypingTimeout)
	}

	if c.Secret != "" && c.Audience == "" {
		return errors.New("audience is required when a secret is set")
	}

	return nil
}

type backend interface {
	store.Store
	store.History
	store.Seeder
}

func openStore(c Config) (backend, func() error, error) {

	if c.Store == StoreBadger {
		b, err := store.OpenBadger(c.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening badger store: %w", err)
		}
		return b, b.Close, nil
	}

	return store.NewMemory(), func() error { return nil }, nil
}

// Run runs the chat server until ctx is cancelled
func Run(ctx context.Context, config Config) error {

	if err := config.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, closeStore, err := openStore(config)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStore(); err != nil {
			log.WithField("error", err.Error()).Error("chat: closing store")
		}
	}()

	if config.Fixture != "" {
		if err := store.LoadFixture(ctx, s, config.Fixture); err != nil {
			return err
		}
		log.WithField("fixture", config.Fixture).Info("chat: fixture loaded")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	hc := hub.NewDefaultConfig().
		WithStore(s).
		WithRateLimit(config.RateLimit).
		WithTypingTimeout(config.TypingTimeout).
		WithSweepEvery(config.SweepEvery).
		WithMetrics(hub.NewMetrics(reg))

	hc.PruneEvery = config.PruneEvery
	hc.PersistTimeout = config.PersistTimeout
	hc.RequireKnownUser = config.RequireKnownUser

	if config.Secret != "" {
		hc.WithVerifier(&permission.Verifier{Audience: config.Audience, Secret: config.Secret})
	}

	h := hub.New(*hc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	router := mux.NewRouter()

	cc := crossbar.NewDefaultConfig().
		WithSendBuffer(config.SendBuffer).
		WithAllowedOrigins(config.AllowedOrigins)

	router.HandleFunc("/ws", crossbar.Handler(ctx, h, *cc))

	access.Routes(router, access.Config{Hub: h, History: s, Gatherer: reg})

	if config.Profile {
		router.HandleFunc("/debug/pprof/", pprof.Index)
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		router.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Listen),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		// returns ErrServerClosed on graceful close
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	log.WithFields(log.Fields{"listen": config.Listen, "store": config.Store}).Info("chat: serving")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("listening: %w", err)
	}

	sctx, done := context.WithTimeout(context.Background(), config.ShutdownWait)
	defer done()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(sctx); err != nil {
		log.WithField("error", err.Error()).Warn("chat: http server did not shut down cleanly")
	}

	wg.Wait()

	log.Info("chat: stopped")

	return nil
}
