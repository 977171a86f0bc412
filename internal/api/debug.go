package api

import (
	"encoding/json"
	"net/http"
	"time"

	"vrpsolve/internal/buildinfo"
)

// DebugJSON reports build info and the effective (non-secret) configuration.
// Admin only; handy when diagnosing a deployment.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if !s.getPrincipal(r).IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":              s.Cfg.Port,
			"authMode":          s.Cfg.Auth.Mode,
			"logLevel":          s.Cfg.Log.Level,
			"rateLimitPerSec":   s.Cfg.RateLimit.PerSecond,
			"maxConcurrentRuns": s.Cfg.Solver.MaxConcurrentRuns,
			"defaultWorkers":    s.Cfg.Solver.DefaultWorkers,
			"softTimeWindows":   s.Cfg.Solver.SoftTimeWindows,
			"webhookAttempts":   s.Cfg.Webhooks.MaxAttempts,
			"hasDatabaseUrl":    s.Cfg.DatabaseURL != "",
			"hasRedisUrl":       s.Cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
