// Package access provides the read-only REST snapshot API over the hub
package access

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/practable/teamchat/internal/hub"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHistory = 50
	maxHistory     = 500
)

// Config specifies parameters for the access API
type Config struct {

	// Hub answers the presence and typing snapshots
	Hub *hub.Hub

	// History serves recent messages; nil disables the history endpoint
	History store.History

	// Gatherer is exposed at /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Routes adds the API routes to router
func Routes(router *mux.Router, config Config) {

	a := &api{config: config}

	router.HandleFunc("/api/online", a.handleOnline).Methods("GET")
	router.HandleFunc("/api/typing/global", a.handleTypingGlobal).Methods("GET")
	router.HandleFunc(`/api/typing/group/{id}`, a.handleTypingGroup).Methods("GET")
	router.HandleFunc("/api/stats", a.handleStats).Methods("GET")
	router.HandleFunc("/healthcheck", handleHealthcheck).Methods("GET")

	if config.History != nil {
		router.HandleFunc("/api/messages/global", a.handleMessagesGlobal).Methods("GET")
	}

	if config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

type api struct {
	config Config
}

func (a *api) handleOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, Online{Identities: a.config.Hub.Online()})
}

func (a *api) handleTypingGlobal(w http.ResponseWriter, r *http.Request) {
	s := scope.Global()
	writeJSON(w, Typing{Scope: s, Identities: a.config.Hub.Typing(s)})
}

func (a *api) handleTypingGroup(w http.ResponseWriter, r *http.Request) {
	s := scope.Group(mux.Vars(r)["id"])
	writeJSON(w, Typing{Scope: s, Identities: a.config.Hub.Typing(s)})
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {

	stats := Stats{Hub: a.config.Hub.GetReport()}

	p, err := processStats()
	if err != nil {
		log.WithField("error", err.Error()).Debug("access: process stats unavailable")
	} else {
		stats.Process = p
	}

	writeJSON(w, stats)
}

func (a *api) handleMessagesGlobal(w http.ResponseWriter, r *http.Request) {

	n := defaultHistory

	if q := r.URL.Query().Get("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		n = v
	}

	if n > maxHistory {
		n = maxHistory
	}

	msgs, err := a.config.History.ListGlobalMessages(r.Context(), n)
	if err != nil {
		log.WithField("error", err.Error()).Error("access: listing global messages")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, Messages{Scope: scope.Global(), Messages: msgs})
}

func handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		log.WithField("error", err.Error()).Debug("access: writing healthcheck")
	}
}

func processStats() (*Process, error) {

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	cpu, err := p.CPUPercent()
	if err != nil {
		return nil, err
	}

	mem, err := p.MemoryPercent()
	if err != nil {
		return nil, err
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}

	return &Process{
		PID:           p.Pid,
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpu,
		MemoryPercent: mem,
		RSS:           info.RSS,
	}, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("error", err.Error()).Error("access: encoding response")
	}
}
