// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api exposes the reporting endpoint: merged session statistics,
// Prometheus metrics and a health probe. It is read-only glue over the
// stats aggregator; nothing here touches the packet path.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/streamgate/internal/config"
	"grimm.is/streamgate/internal/logging"
	"grimm.is/streamgate/internal/stats"
)

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultServerConfig returns conservative server timeouts.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StatsSource provides the merged counters the endpoint reports. The
// engine's aggregator satisfies it.
type StatsSource interface {
	Proto() string
	Totals() stats.SessionStats
}

// Server serves the reporting API.
type Server struct {
	cfg    *config.Config
	source StatsSource
	logger *logging.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer wires the routes. cfg supplies the display-only configuration
// summary; source supplies the counters.
func NewServer(cfg *config.Config, source StatsSource, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		cfg:    cfg,
		source: source,
		logger: logger.WithComponent("api"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.Handle("/metrics", promhttp.HandlerFor(
		stats.Get().Prometheus(), promhttp.HandlerOpts{}))

	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	sc := DefaultServerConfig()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
	s.logger.Info("Reporting API listening", "addr", addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statsResponse is the JSON shape of /api/stats.
type statsResponse struct {
	Proto          string             `json:"proto"`
	SessionTimeout string             `json:"session_timeout"`
	Totals         stats.SessionStats `json:"totals"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statsResponse{
		Proto:          s.source.Proto(),
		SessionTimeout: s.cfg.ICMPSessionTimeout().String(),
		Totals:         s.source.Totals(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to encode stats response", "error", err)
	}
}
