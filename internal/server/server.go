// Package server exposes the engine over HTTP: public evaluation and event
// ingestion endpoints for app builds, plus a token-protected operator API
// for managing definitions and reading results.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/carsuggester/roadtest/internal/engine"
	"github.com/carsuggester/roadtest/internal/store"
)

type Server struct {
	store     store.Store
	engine    *engine.Engine
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
	log       zerolog.Logger
}

func New(s store.Store, eng *engine.Engine, port int, tokenFile string, logger zerolog.Logger) *Server {
	srv := &Server{
		store:     s,
		engine:    eng,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
		log:       logger,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints used by app builds
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/v1/evaluate", s.handleEvaluate)
	s.router.HandleFunc("/v1/events", s.handleEvents)
	s.router.HandleFunc("/v1/flags/evaluate", s.handleFlagEvaluate)

	// Operator endpoints (token protected)
	s.router.Handle("/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
	s.router.Handle("/api/experiments/", s.authMiddleware(http.HandlerFunc(s.handleExperiment)))
	s.router.Handle("/api/flags", s.authMiddleware(http.HandlerFunc(s.handleFlags)))
	s.router.Handle("/api/flags/", s.authMiddleware(http.HandlerFunc(s.handleFlag)))
	s.router.Handle("/api/export", s.authMiddleware(http.HandlerFunc(s.handleExport)))
	s.router.Handle("/api/data", s.authMiddleware(http.HandlerFunc(s.handleData)))
}

func (s *Server) Start() error {
	// Write token to file so the CLI token command can find it
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn().Err(err).Msg("failed to write token file")
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info().Int("port", s.port).Msg("server listening")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a fixed token if crypto/rand fails
		return "a1b2c3d4e5f60718"
	}
	return hex.EncodeToString(bytes)
}
