// Package api exposes the Core's query surface and signal ingestion over
// HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/meridianapps/resilience-core/internal/core"
	"github.com/meridianapps/resilience-core/internal/model"
)

// signalSchema validates inbound raw-signal payloads before classification.
// Validation failures are rejected at the edge; anything past the edge
// degrades gracefully inside the classifier instead of failing.
const signalSchema = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind": {
			"type": "string",
			"enum": ["runtime-fault", "async-rejection", "content-fault", "trap-activation"]
		},
		"message":   {"type": "string"},
		"stack":     {"type": "string"},
		"reason":    {"type": "string"},
		"key":       {"type": "string"},
		"lang":      {"type": "string"},
		"target_id": {"type": "string"},
		"metadata":  {"type": "object", "additionalProperties": {"type": "string"}},
		"severity":  {"type": "string"},
		"component": {"type": "string"}
	}
}`

// Server serves the telemetry core HTTP API.
type Server struct {
	core   *core.Core
	router *mux.Router
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// NewServer builds the router and compiles the signal schema.
func NewServer(c *core.Core, logger *slog.Logger) (*Server, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(signalSchema))
	if err != nil {
		return nil, err
	}

	s := &Server{
		core:   c,
		router: mux.NewRouter(),
		schema: schema,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/v1/signals", s.handleSubmitSignal).Methods("POST")
	s.router.HandleFunc("/v1/health", s.handleHealthState).Methods("GET")
	s.router.HandleFunc("/v1/logs", s.handleLogs).Methods("GET")
	s.router.HandleFunc("/v1/logs/clear", s.handleClear).Methods("POST")
	s.router.HandleFunc("/v1/logs/{id}/resolve", s.handleResolve).Methods("POST")
	s.router.HandleFunc("/v1/interventions", s.handleInterventions).Methods("GET")
	s.router.HandleFunc("/v1/mtd", s.handleMtdState).Methods("GET")
	s.router.HandleFunc("/v1/mtd/rotate", s.handleForceRotate).Methods("POST")
	s.router.HandleFunc("/v1/mtd/trap/{target_id}", s.handleTrap).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.HandleFunc("/readyz", s.handleHealthz).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil || !result.Valid() {
		s.logger.Warn("rejected signal payload", "error", err)
		writeError(w, http.StatusBadRequest, "signal payload failed validation")
		return
	}

	var sig model.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal")
		return
	}

	entry, ok := s.core.Submit(r.Context(), sig)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"deduplicated": true})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"entry": entry})
}

func (s *Server) handleHealthState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"health":    s.core.Health(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var entries []model.LogEntry
	if r.URL.Query().Get("all") == "true" {
		entries = s.core.Entries()
	} else {
		entries = s.core.UnresolvedEntries()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.core.Resolve(id) {
		writeError(w, http.StatusNotFound, "no unresolved entry with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resolved": id, "health": s.core.Health()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.core.ClearAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{"health": s.core.Health()})
}

func (s *Server) handleInterventions(w http.ResponseWriter, r *http.Request) {
	ivs := s.core.Interventions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"interventions": ivs,
		"count":         len(ivs),
	})
}

func (s *Server) handleMtdState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.MtdState())
}

func (s *Server) handleForceRotate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ForceRotate())
}

// handleTrap is the concealed interaction surface. Any request reaching it
// is treated as a security incident.
func (s *Server) handleTrap(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["target_id"]
	metadata := map[string]string{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	}
	s.core.LogMtdEvent(r.Context(), "interaction", targetID, metadata)

	// Respond as if the target did not exist.
	http.NotFound(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "resilience-core",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
