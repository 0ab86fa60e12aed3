// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector reports in-flight work per queue.
type QueueInspector interface {
	ActiveCounts() map[string]int
}

type probeResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time,omitempty"`
}

type readyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// Server answers /live, /health and /ready.
type Server struct {
	serviceName string
	version     string
	addr        string
	logger      *logrus.Logger
	db          Pinger
	queues      QueueInspector
	server      *http.Server

	mu    sync.RWMutex
	ready bool
}

// Options configures the health server.
type Options struct {
	ServiceName string
	Version     string
	Addr        string
	Logger      *logrus.Logger
	DB          Pinger
	Queues      QueueInspector
}

// NewServer creates a health server. It starts not-ready; call SetReady once
// the composition root has finished wiring.
func NewServer(opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = ":8081"
	}
	return &Server{
		serviceName: opts.ServiceName,
		version:     opts.Version,
		addr:        addr,
		logger:      opts.Logger,
		db:          opts.DB,
		queues:      opts.Queues,
	}
}

// SetReady flips the readiness gate.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady reports the readiness gate.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start runs the server in the background and shuts it down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"addr":    s.addr,
				"service": s.serviceName,
			}).Info("Health server starting")
		}
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithError(err).Error("Health server error")
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("Health server shutting down")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{
		Status:  "ok",
		Service: s.serviceName,
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{Status: "ok", Service: s.serviceName})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := make(map[string]string)
	healthy := true

	if s.IsReady() {
		checks["service"] = "ok"
	} else {
		healthy = false
		checks["service"] = "not_ready"
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			healthy = false
			checks["database"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["database"] = "ok"
		}
	}

	if s.queues != nil {
		for name, active := range s.queues.ActiveCounts() {
			checks["queue:"+name] = fmt.Sprintf("%d active", active)
		}
	}

	resp := readyResponse{
		Service:  s.serviceName,
		Checks:   checks,
		Duration: time.Since(start).String(),
	}
	if healthy {
		resp.Status = "ok"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
