package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Server exposes the Prometheus registry on its own listener so scrape
// traffic stays off the health and API ports.
type Server struct {
	addr   string
	logger *logrus.Logger
	server *http.Server
}

// NewServer creates a metrics exposition server
func NewServer(addr string, logger *logrus.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	return &Server{addr: addr, logger: logger}
}

// Start runs the server in the background and shuts it down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if s.logger != nil {
			s.logger.WithField("addr", s.addr).Info("Metrics server starting")
		}
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithError(err).Error("Metrics server error")
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
