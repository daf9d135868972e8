package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// RedisCheck pings the redis behind the job API.
func RedisCheck(rdb *redis.Client) Check {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

type HealthHandler struct {
	required map[string]Check
	optional map[string]Check
}

// NewHealthHandler takes the checks readiness depends on and the checks of
// dependencies that only back optional features.
func NewHealthHandler(required, optional map[string]Check) *HealthHandler {
	return &HealthHandler{required: required, optional: optional}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz answers 503 if a required check fails. A failing optional check
// only marks the instance degraded.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.required)+len(h.optional))
	status, code := "ok", http.StatusOK

	for name, check := range h.optional {
		if err := runCheck(r.Context(), check); err != nil {
			results[name] = "degraded: " + err.Error()
			status = "degraded"
			continue
		}
		results[name] = "ok"
	}

	for name, check := range h.required {
		if err := runCheck(r.Context(), check); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, code, map[string]interface{}{"status": status, "checks": results})
}

func runCheck(ctx context.Context, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return check(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
