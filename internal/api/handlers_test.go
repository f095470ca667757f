package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"cflp/internal/config"
	"cflp/internal/engine"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store = "memory"
	cfg.MIPGapLimit = 0
	cfg.RateRPS = 0
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, cfg.Validate())
	s, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const solveBody = `{
  "scenario": "berlin",
  "demand": [
	{"id": "D1", "lon": 13.40, "lat": 52.51},
	{"id": "D2", "lon": 13.41, "lat": 52.50},
	{"id": "D3", "geometry": {"type": "Point", "coordinates": [13.50, 52.51]}}
  ],
  "facilities": [
	{"id": "F1", "lon": 13.40, "lat": 52.50, "capacity": 2},
	{"id": "F2", "lon": 13.50, "lat": 52.50, "capacity": 2}
  ]
}`

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestSolveAndScenarioResources(t *testing.T) {
	h := newTestServer(t).Routes()

	rr := do(t, h, http.MethodPost, "/v1/solve", solveBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		RunID    string `json:"runId"`
		Cache    string `json:"cache"`
		Persisted bool  `json:"persisted"`
		Solution struct {
			Status         string            `json:"status"`
			OpenFacilities []string          `json:"openFacilities"`
			Assignments    map[string]string `json:"assignments"`
		} `json:"solution"`
		Report struct {
			Assigned int `json:"assigned"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.NotEmpty(t, res.RunID)
	require.Equal(t, "miss", res.Cache)
	require.True(t, res.Persisted)
	require.Equal(t, "Optimal", res.Solution.Status)
	require.Equal(t, []string{"F1", "F2"}, res.Solution.OpenFacilities)
	require.Equal(t, map[string]string{"D1": "F1", "D2": "F1", "D3": "F2"}, res.Solution.Assignments)
	require.Equal(t, 3, res.Report.Assigned)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/berlin/assignments", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var a struct{ Assignments map[string]string `json:"assignments"` }
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
	require.Equal(t, res.Solution.Assignments, a.Assignments)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/berlin/cost-matrix", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var cm struct {
		Demand     int                           `json:"demand"`
		Facilities int                           `json:"facilities"`
		Costs      map[string]map[string]float64 `json:"costs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cm))
	require.Equal(t, 3, cm.Demand)
	require.Equal(t, 2, cm.Facilities)
	require.InDelta(t, 1113, cm.Costs["D1"]["F1"], 10)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/berlin/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs struct{ Items []struct{ ID string `json:"id"` } `json:"items"` }
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs.Items, 1)
	require.Equal(t, res.RunID, runs.Items[0].ID)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/berlin/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "branch-and-bound")

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/scenarios/berlin/cost-matrix", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/scenarios/berlin/cost-matrix", "").Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/scenarios/berlin/cost-matrix", "").Code)

	rr = do(t, h, http.MethodPost, "/v1/solve", solveBody)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"cache":"miss"`)
	rr = do(t, h, http.MethodPost, "/v1/solve", solveBody)
	require.Contains(t, rr.Body.String(), `"cache":"hit"`)
}

func TestSolveRejectsBadInput(t *testing.T) {
	h := newTestServer(t).Routes()
	cases := map[string]struct {
		body string
		code int
	}{
		"bad json":        {`{"scenario":`, http.StatusBadRequest},
		"no scenario":     {`{"demand":[],"facilities":[]}`, http.StatusBadRequest},
		"bad scenario":    {`{"scenario":"Berlin, DE"}`, http.StatusBadRequest},
		"gap":             {`{"scenario":"x","gapLimit":1.5}`, http.StatusBadRequest},
		"time limit":      {`{"scenario":"x","timeLimitSec":0}`, http.StatusBadRequest},
		"half coordinate": {`{"scenario":"x","demand":[{"id":"D1","lon":1}]}`, http.StatusBadRequest},
		"bad geometry":    {`{"scenario":"x","demand":[{"id":"D1","geometry":{"type":"Blob"}}]}`, http.StatusBadRequest},
		"duplicate id": {`{"scenario":"x",
			"demand":[{"id":"D1","lon":13.4,"lat":52.5},{"id":"D1","lon":13.5,"lat":52.5}],
			"facilities":[{"id":"F1","lon":13.4,"lat":52.5}]}`, http.StatusUnprocessableEntity},
		"missing geometry": {`{"scenario":"x","demand":[{"id":"D1"}],
			"facilities":[{"id":"F1","lon":13.4,"lat":52.5}]}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/solve", tc.body)
			require.Equal(t, tc.code, rr.Code, rr.Body.String())
			var p Problem
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
			require.Equal(t, tc.code, p.Status)
		})
	}
}

func TestSolveKeepsZeroCapacity(t *testing.T) {
	h := newTestServer(t).Routes()
	body := strings.Replace(solveBody, `"capacity": 2},`, `"capacity": 0},`, 1)
	body = strings.Replace(body, `"lat": 52.50, "capacity": 2}`, `"lat": 52.50, "capacity": 3}`, 1)
	rr := do(t, h, http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		Solution struct {
			OpenFacilities []string          `json:"openFacilities"`
			Assignments    map[string]string `json:"assignments"`
		} `json:"solution"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, []string{"F2"}, res.Solution.OpenFacilities)
	require.Equal(t, map[string]string{"D1": "F2", "D2": "F2", "D3": "F2"}, res.Solution.Assignments)
}

func TestSolveByCityWithOptions(t *testing.T) {
	h := newTestServer(t).Routes()
	body := strings.Replace(solveBody, `"scenario": "berlin"`, `"city": "Shibuya, Tokyo, Japan", "fixedCost": 1000000, "facilityCapacity": 3`, 1)
	body = strings.ReplaceAll(body, `, "capacity": 2`, "")
	rr := do(t, h, http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		Scenario string `json:"scenario"`
		Solution struct {
			OpenFacilities []string `json:"openFacilities"`
		} `json:"solution"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "shibuya", res.Scenario)
	require.Equal(t, []string{"F1"}, res.Solution.OpenFacilities)
}

func TestUnknownScenarioResources(t *testing.T) {
	h := newTestServer(t).Routes()
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/scenarios/nowhere/assignments", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/scenarios/nowhere/runs?limit=x", "").Code)
	rr := do(t, h, http.MethodGet, "/v1/scenarios/nowhere/runs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"items":[]`)
}

func TestScenarioKeyMustBeNormalized(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	h := newTestServer(t, func(c *config.Config) {
		c.Store = "file"
		c.DataDir = dir
	}).Routes()

	// escaped separators in the key would otherwise name files outside or below the data dir
	outside := filepath.Join(root, "victim.json")
	nested := filepath.Join(dir, "cost_matrix_a", "b.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	for _, p := range []string{outside, nested} {
		require.NoError(t, os.WriteFile(p, []byte(`{"p":{"f":1}}`), 0o644))
	}

	for _, key := range []string{"x%2F..%2F..%2Fvictim", "a%2Fb", "a%5Cb", "Berlin", "a.b"} {
		for _, req := range []struct{ method, path string }{
			{http.MethodDelete, "/v1/scenarios/" + key + "/cost-matrix"},
			{http.MethodGet, "/v1/scenarios/" + key + "/cost-matrix"},
			{http.MethodGet, "/v1/scenarios/" + key + "/assignments"},
			{http.MethodGet, "/v1/scenarios/" + key + "/runs"},
			{http.MethodGet, "/v1/scenarios/" + key + "/metrics"},
			{http.MethodGet, "/v1/scenarios/" + key + "/events/ws"},
		} {
			rr := do(t, h, req.method, req.path, "")
			require.Equal(t, http.StatusBadRequest, rr.Code, "%s %s", req.method, req.path)
		}
	}
	require.FileExists(t, outside)
	require.FileExists(t, nested)
}

func TestCorruptCostMatrix(t *testing.T) {
	s := newTestServer(t)
	type rawPutter interface{ PutRaw(string, []byte) }
	s.Store.(rawPutter).PutRaw("broken", []byte("{not json"))
	require.Equal(t, http.StatusConflict, do(t, s.Routes(), http.MethodGet, "/v1/scenarios/broken/cost-matrix", "").Code)
}

func TestSolveRateLimited(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.RateRPS = 0.001; c.RateBurst = 1 }).Routes()
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/solve", `{}`).Code)
	rr := do(t, h, http.MethodPost, "/v1/solve", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	// other endpoints are not limited
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestSolverConfig(t *testing.T) {
	fix := 42.0
	s := newTestServer(t, func(c *config.Config) {
		c.Overrides = config.Overrides{"berlin": {FixCost: &fix}}
	})
	h := s.Routes()

	var out struct {
		Scenario   string         `json:"scenario"`
		Overridden bool           `json:"overridden"`
		Defaults   map[string]any `json:"defaults"`
	}
	rr := do(t, h, http.MethodGet, "/v1/solver/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "berlin", out.Scenario)
	require.True(t, out.Overridden)
	require.Equal(t, 42.0, out.Defaults["fixCost"])
	require.Equal(t, 3600.0, out.Defaults["timeLimitSec"])

	rr = do(t, h, http.MethodGet, "/v1/solver/config?scenario=munich", "")
	out.Defaults = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.False(t, out.Overridden)
	require.Equal(t, 0.001, out.Defaults["fixCost"])
}

func TestMetricsAndDebug(t *testing.T) {
	h := newTestServer(t).Routes()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/solve", solveBody).Code)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "cflp_solves_total")
	require.Contains(t, rr.Body.String(), `path="POST /v1/solve"`)

	rr = do(t, h, http.MethodGet, "/debug/info", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"CFLP_STORE":"memory"`)
	require.NotContains(t, rr.Body.String(), "postgres://")
}

func TestEventsWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/scenarios/berlin/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	require.Equal(t, "subscribed", m.Type)

	resp, err := http.Post(srv.URL+"/v1/solve", "application/json", bytes.NewBufferString(solveBody))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&m))
	require.Equal(t, engine.EventSolveCompleted, m.Type)
	require.Equal(t, "Optimal", m.Data["status"])
	require.Equal(t, true, m.Data["accepted"])
}
