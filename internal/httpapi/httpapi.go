// Package httpapi is the operator-facing HTTP surface: health, metrics,
// the current VRP set, the current check list, and a live websocket tail
// of checks as a run produces them. None of this is part of the RTR feed
// itself — that stays RTR-only; it exists purely for operators and
// dashboards.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

var (
	walksTotal     = metrics.NewCounter(`rpki_validator_walks_total`)
	vrpCount       = metrics.NewGauge(`rpki_validator_vrp_count`, nil)
	rejectCount    = metrics.NewGauge(`rpki_validator_reject_count`, nil)
	warningCount   = metrics.NewGauge(`rpki_validator_warning_count`, nil)
	lastWalkMillis = metrics.NewGauge(`rpki_validator_last_walk_duration_ms`, nil)
)

// Snapshot is the latest completed run's state, as served by this API.
type Snapshot struct {
	VRPs     []store.VRP
	Checks   check.List
	Duration time.Duration
}

// State holds the most recent Snapshot plus fans out new Checks to any
// connected websocket tail as Report is called. Build one with NewState
// and share it between the engine run loop and the HTTP handlers.
type State struct {
	mu       sync.RWMutex
	snapshot Snapshot

	subMu sync.Mutex
	subs  map[chan check.Check]struct{}
}

// NewState builds an empty State.
func NewState() *State {
	return &State{subs: make(map[chan check.Check]struct{})}
}

// Publish replaces the current Snapshot and updates the process metrics.
// Called once per completed validation run.
func (s *State) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	walksTotal.Inc()
	vrpCount.Set(float64(len(snap.VRPs)))
	rejectCount.Set(float64(len(snap.Checks.Rejects())))
	warningCount.Set(float64(len(snap.Checks.Warnings())))
	lastWalkMillis.Set(float64(snap.Duration.Milliseconds()))
}

// Report fans a single Check out to every connected websocket tail,
// dropping it for any subscriber whose buffer is full rather than
// blocking the walker on a slow client.
func (s *State) Report(c check.Check) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *State) subscribe() chan check.Check {
	ch := make(chan check.Check, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *State) unsubscribe(ch chan check.Check) {
	s.subMu.Lock()
	delete(s.subs, ch)
	s.subMu.Unlock()
	close(ch)
}

func (s *State) current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Router builds the full chi mux for the operator API.
func Router(state *State, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", handleHealthz)
	r.Get("/metrics", handleMetrics)
	r.Get("/vrps", handleVRPs(state))
	r.Get("/checks", handleChecks(state))
	r.Get("/ws/checks", handleWSChecks(state, log))

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("httpapi: request")
		})
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, true)
}

func handleVRPs(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := state.current()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap.VRPs)
	}
}

func handleChecks(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := state.current()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap.Checks)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func handleWSChecks(state *State, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("httpapi: websocket upgrade failed")
			return
		}
		defer conn.Close()

		ch := state.subscribe()
		defer state.unsubscribe(ch)

		for c := range ch {
			if err := conn.WriteJSON(c); err != nil {
				return
			}
		}
	}
}
