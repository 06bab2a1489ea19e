// Package diag exposes the outcome of the agent's most recent measurement
// cycle over a tiny read-only HTTP surface, in the same spirit as this
// codebase's per-device HTTP wrappers (e.g. envsrv.Envmon.HTTPYield):
// something an operator or a health check can poll without parsing log
// files. It is not part of the core SHDLC/SPS30 contract; spec.md's
// external interface for this agent is its CLI, not an HTTP API, so this
// surface is optional and off unless cmd/airmonitor is given -listen.
package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/sps30agent/sps30"
)

// Status holds the outcome of the most recent cycle. Recording a new
// outcome is concurrent-safe so the HTTP handler can read it while the
// next cycle is still running.
type Status struct {
	mu        sync.RWMutex
	lastRun   time.Time
	lastErr   string
	lastValue *sps30.Sample
}

// RecordSuccess stores a successful cycle's sample.
func (s *Status) RecordSuccess(sample sps30.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now()
	s.lastErr = ""
	v := sample
	s.lastValue = &v
}

// RecordFailure stores a failed cycle's error.
func (s *Status) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now()
	s.lastErr = err.Error()
	s.lastValue = nil
}

type statusDTO struct {
	LastRun time.Time          `json:"last_run"`
	LastErr string             `json:"last_error,omitempty"`
	Sample  map[string]float64 `json:"sample,omitempty"`
}

func (s *Status) snapshot() statusDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dto := statusDTO{LastRun: s.lastRun, LastErr: s.lastErr}
	if s.lastValue != nil {
		dto.Sample = s.lastValue.AsMap()
	}
	return dto
}

// NewRouter returns a chi.Mux serving s read-only as JSON on GET /status.
func NewRouter(s *Status) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(s.snapshot())
	})
	return r
}
