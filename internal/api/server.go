// Package api exposes the registry over HTTP/JSON. This surface is a
// thin consumer of the registry; policy lives in internal/registry.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proxyrank/proxyrank/internal/endpoint"
	"github.com/proxyrank/proxyrank/internal/registry"
)

// Server wires HTTP routes to a registry.
type Server struct {
	reg *registry.Registry
	log *slog.Logger
}

// NewServer creates the HTTP facade over reg.
func NewServer(reg *registry.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{reg: reg, log: log}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/random", s.handleRandom).Methods("GET")
	r.HandleFunc("/count", s.handleCount).Methods("GET")
	r.HandleFunc("/all", s.handleAll).Methods("GET")
	r.HandleFunc("/batch", s.handleBatch).Methods("GET")
	r.HandleFunc("/exists", s.handleExists).Methods("GET")
	r.HandleFunc("/endpoints", s.handleAdd).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.reg.Count(r.Context())
	status := "healthy"
	if err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"service": "proxyrank",
		"count":   n,
	})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	e, err := s.reg.Sample(r.Context())
	if errors.Is(err, registry.ErrPoolEmpty) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "pool is empty, retry later",
		})
		return
	}
	if err != nil {
		s.storeError(w, "sample", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoint": e.String()})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.reg.Count(r.Context())
	if err != nil {
		s.storeError(w, "count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	eps, err := s.reg.All(r.Context())
	if err != nil {
		s.storeError(w, "all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": asStrings(eps)})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	start, err1 := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	end, err2 := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "start and end query params must be integers",
		})
		return
	}
	eps, err := s.reg.Batch(r.Context(), start, end)
	if err != nil {
		s.storeError(w, "batch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": asStrings(eps)})
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	e, err := endpoint.Parse(r.URL.Query().Get("endpoint"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed endpoint"})
		return
	}
	ok, err := s.reg.Exists(r.Context(), e)
	if err != nil {
		s.storeError(w, "exists", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoint": e.String(), "exists": ok})
}

type addRequest struct {
	Endpoints []string `json:"endpoints"`
}

// handleAdd feeds candidate endpoints into the pool. Malformed entries
// are dropped by the registry, not rejected wholesale.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	var inserted int
	for _, raw := range req.Endpoints {
		ok, err := s.reg.Add(r.Context(), raw)
		if err != nil {
			s.storeError(w, "add", err)
			return
		}
		if ok {
			inserted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": len(req.Endpoints),
		"inserted": inserted,
	})
}

// storeError reports a store/transport failure. The registry never
// retries these; surfacing the category lets callers decide.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	s.log.Error("store operation failed", "op", op, "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]any{"error": "store unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func asStrings(eps []endpoint.Endpoint) []string {
	out := make([]string, len(eps))
	for i, e := range eps {
		out[i] = e.String()
	}
	return out
}
