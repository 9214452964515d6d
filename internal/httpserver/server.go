package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/gateway"
	"github.com/pogonboskrupa/sumarija-sub000/internal/proxy"
)

// Server hosts the report gateway endpoints, the proxy control channel and
// the interception catch-all on a single listener.
type Server struct {
	gateway *gateway.Gateway
	proxy   *proxy.Proxy
	reports *ReportHandler
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates the HTTP server wiring both caching subsystems.
func NewServer(gw *gateway.Gateway, px *proxy.Proxy, reports *ReportHandler, logger *zap.Logger) *Server {
	return &Server{
		gateway: gw,
		proxy:   px,
		reports: reports,
		logger:  logger,
	}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	router := s.createRouter()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// createRouter creates and configures the HTTP router
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()

	// Report gateway endpoints
	router.HandleFunc("/reports/{view}", s.reports.HandleReport).Methods("GET")
	router.HandleFunc("/reports/{view}", s.reports.HandleInvalidate).Methods("DELETE")

	// Proxy control channel
	router.HandleFunc("/control", s.handleControl).Methods("POST")

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Everything else is intercepted traffic.
	router.PathPrefix("/").Handler(s.proxy)

	return router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// readBody reads and closes the request body.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}
