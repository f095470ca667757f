package api

import (
	"net/http"
	"time"

	"cflp/internal/buildinfo"
)

// DebugJSON handles GET /debug/info. Secrets and connection strings are never echoed.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 c.Port,
			"CFLP_STORE":           c.Store,
			"CFLP_LOCK":            c.Lock,
			"CFLP_CITY":            c.City,
			"CFLP_DATA_DIR":        c.DataDir,
			"RATE_RPS":             c.RateRPS,
			"RATE_BURST":           c.RateBurst,
			"LOG_LEVEL":            c.LogLevel,
			"SCENARIO_OVERRIDES":   len(c.Overrides),
			"HAS_DATABASE_URL":     c.DatabaseURL != "",
			"HAS_REDIS_URL":        c.RedisURL != "",
			"HAS_WEBHOOK_URL":      c.WebhookURL != "",
			"WEBHOOK_MAX_ATTEMPTS": c.WebhookMaxAttempts,
		},
	}
	writeJSON(w, http.StatusOK, info)
}
