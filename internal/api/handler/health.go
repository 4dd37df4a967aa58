package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
type HealthHandler struct {
	checks map[string]Check
	notes  map[string]func() string
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: map[string]Check{}, notes: map[string]func() string{}}
}

// WithCheck adds a dependency that must be reachable for readiness.
func (h *HealthHandler) WithCheck(name string, check Check) *HealthHandler {
	if check != nil {
		h.checks[name] = check
	}
	return h
}

// WithNote reports a state in the readiness body without failing it, such as
// a storage medium that accepts no writes.
func (h *HealthHandler) WithNote(name string, note func() string) *HealthHandler {
	if note != nil {
		h.notes[name] = note
	}
	return h
}

// Live always reports OK – if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every registered check.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks)+len(h.notes))
	var failed []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unavailable"
			failed = append(failed, name)
			continue
		}
		results[name] = "ok"
	}
	for name, note := range h.notes {
		results[name] = note()
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		RespondError(w, r, http.StatusServiceUnavailable, "health/not-ready", strings.Join(failed, ", ")+" unavailable")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": results})
}
