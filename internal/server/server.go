// Package server exposes the plugin contract to the orchestrator as a JSON
// HTTP API. Response codes mirror the plugin's failure codes directly.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"tellusnode/internal/logging"
	"tellusnode/internal/provisioning"
	"tellusnode/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server serves the configuration API for one plugin instance.
type Server struct {
	plugin  provisioning.Plugin
	metrics *telemetry.Metrics
	addr    string
}

// NewServer creates a Server listening on addr.
func NewServer(plugin provisioning.Plugin, metrics *telemetry.Metrics, addr string) *Server {
	return &Server{plugin: plugin, metrics: metrics, addr: addr}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /configurations", s.instrument("create", s.handleCreate))
	mux.HandleFunc("GET /configurations/{key}", s.instrument("status", s.handleStatus))
	mux.HandleFunc("DELETE /configurations/{key}", s.instrument("destroy", s.handleDestroy))
	mux.HandleFunc("PUT /configurations/{key}", s.instrument("update", s.handleUpdate))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	logging.Logger().Info("Starting configuration API", zap.String("addr", s.addr))
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// errorBody is the JSON error envelope shared by create and destroy.
type errorBody struct {
	Error string `json:"error,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) int {
	var offering provisioning.Offering
	if err := json.NewDecoder(r.Body).Decode(&offering); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return http.StatusBadRequest
	}
	if offering.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "order_id is required"})
		return http.StatusBadRequest
	}

	if err := s.plugin.Create(r.Context(), offering); err != nil {
		f := provisioning.AsFailure(err)
		writeJSON(w, f.Code, errorBody{Error: f.Message})
		return f.Code
	}
	writeJSON(w, http.StatusCreated, errorBody{})
	return http.StatusCreated
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) int {
	status, err := s.plugin.Status(r.Context(), r.PathValue("key"))
	if err != nil {
		f := provisioning.AsFailure(err)
		if status == nil {
			status = &provisioning.Status{}
		}
		status.Error = f.Message
		writeJSON(w, f.Code, status)
		return f.Code
	}
	writeJSON(w, http.StatusOK, status)
	return http.StatusOK
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) int {
	if err := s.plugin.Destroy(r.Context(), r.PathValue("key")); err != nil {
		f := provisioning.AsFailure(err)
		writeJSON(w, f.Code, errorBody{Error: f.Message})
		return f.Code
	}
	w.WriteHeader(http.StatusNoContent)
	return http.StatusNoContent
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) int {
	var offering provisioning.Offering
	if err := json.NewDecoder(r.Body).Decode(&offering); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return http.StatusBadRequest
	}

	if err := s.plugin.Update(r.Context(), r.PathValue("key"), offering); err != nil {
		f := provisioning.AsFailure(err)
		writeJSON(w, f.Code, errorBody{Error: f.Message})
		return f.Code
	}
	writeJSON(w, http.StatusOK, errorBody{})
	return http.StatusOK
}

// instrument wraps a handler with request logging and metrics.
func (s *Server) instrument(operation string, h func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()

		code := h(w, r)

		elapsed := time.Since(start)
		s.metrics.ObserveOperation(operation, code, elapsed)
		logging.Logger().Info("request handled",
			zap.String("request_id", requestID),
			zap.String("operation", operation),
			zap.String("path", logging.Truncate(r.URL.Path)),
			zap.Int("code", code),
			zap.Duration("elapsed", elapsed))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger().Error("failed to encode response", zap.Error(err))
	}
}
