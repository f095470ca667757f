package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cflp/internal/model"
	"cflp/internal/opt"
	"cflp/internal/result"
)

const maxSolveBody = 32 << 20

// SolveResponse is the body returned by POST /v1/solve.
type SolveResponse struct {
	RunID        string        `json:"runId"`
	Scenario     string        `json:"scenario"`
	Cache        string        `json:"cache"`
	Persisted    bool          `json:"persisted"`
	PersistError string        `json:"persistError,omitempty"`
	Solution     opt.Solution  `json:"solution"`
	Report       result.Report `json:"report"`
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSolveBody)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	key := req.Scenario
	if key == "" {
		key = model.ScenarioKey(req.City)
	}
	sc, err := req.scenario(s.Config.SolverFor(key))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Engine.Solve(r.Context(), sc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := SolveResponse{
		RunID:     res.RunID,
		Scenario:  res.Scenario,
		Cache:     string(res.CacheOutcome),
		Persisted: res.Persisted,
		Solution:  res.Solution,
		Report:    res.Report(),
	}
	if res.PersistErr != nil {
		out.PersistError = res.PersistErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// pathKey returns the {key} path segment, answering 400 when it is not a normalized
// scenario key. The mux unescapes %2F, so the raw value may still hold separators.
func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.PathValue("key")
	if !model.ValidScenarioKey(key) {
		writeProblem(w, http.StatusBadRequest, "Invalid scenario key",
			fmt.Sprintf("scenario %q must be lower case letters, digits, '-' or '_'", key), r.URL.Path)
		return "", false
	}
	return key, true
}

// AssignmentHandler handles GET /v1/scenarios/{key}/assignments
func (s *Server) AssignmentHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	a, err := s.Store.LoadAssignment(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": key, "assignments": a})
}

// CostMatrixHandler handles GET /v1/scenarios/{key}/cost-matrix
func (s *Server) CostMatrixHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	m, err := s.Store.LoadCostMatrix(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, f := m.Len()
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":   key,
		"demand":     d,
		"facilities": f,
		"missing":    m.Missing(),
		"costs":      m,
	})
}

// InvalidateHandler handles DELETE /v1/scenarios/{key}/cost-matrix
func (s *Server) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	if err := s.Engine.Invalidate(r.Context(), key); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunsHandler handles GET /v1/scenarios/{key}/runs?limit=n
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	runs, err := s.Store.ListSolveRuns(r.Context(), key, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": key, "items": runs})
}

// SolveMetricsHandler handles GET /v1/scenarios/{key}/metrics: the last solve per
// backend as seen by this process.
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	items := []map[string]any{}
	for backend, m := range opt.GetMetrics(key) {
		items = append(items, map[string]any{"backend": backend, "metrics": m})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": key, "items": items})
}

// SolverConfigHandler handles GET /v1/solver/config?scenario=key
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("scenario")
	if key == "" {
		key = model.ScenarioKey(s.Config.City)
	}
	sv := s.Config.SolverFor(key)
	_, overridden := s.Config.Overrides[key]
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":   key,
		"overridden": overridden,
		"defaults": map[string]any{
			"fixCost":          sv.FixCost,
			"timeLimitSec":     sv.TimeLimit.Seconds(),
			"gapLimit":         sv.GapLimit,
			"facilityCapacity": sv.FacilityCapacity,
			"demandQuantity":   sv.DemandQuantity,
		},
	})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
