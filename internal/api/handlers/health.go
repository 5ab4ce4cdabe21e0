package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HealthLive is an unconditional 200 (spec §4.5.d).
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady is 200 iff the runtime connection and database test
// both succeed, else 503 (spec §4.5.d) — deliberately narrower than
// HealthComprehensive, per the Open Question resolution in DESIGN.md.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Runtime.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "runtime unreachable"})
		return
	}
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "database unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type subCheck struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
	Details         string `json:"details,omitempty"`
}

// HealthComprehensive dispatches four sub-checks and aggregates them
// to an overall status, worst-of wins (spec §4.5.d).
func (h *Handlers) HealthComprehensive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]subCheck{
		"database":  h.checkDatabase(ctx),
		"runtime":   h.checkRuntime(ctx),
		"mount_dir": h.checkMountDir(),
		"workdir":   h.checkWorkdir(),
	}

	overall := "healthy"
	for _, c := range checks {
		if c.Status == "unhealthy" {
			overall = "unhealthy"
			break
		}
		if c.Status == "degraded" && overall != "unhealthy" {
			overall = "degraded"
		}
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

func (h *Handlers) checkDatabase(ctx context.Context) subCheck {
	start := time.Now()
	if h.DB == nil {
		return subCheck{Status: "degraded", Message: "no database configured", ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	if err := h.DB.PingContext(ctx); err != nil {
		return subCheck{Status: "unhealthy", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	return subCheck{Status: "healthy", Message: "ok", ResponseTimeMs: time.Since(start).Milliseconds()}
}

func (h *Handlers) checkRuntime(ctx context.Context) subCheck {
	start := time.Now()
	version, err := h.Runtime.Version(ctx)
	if err != nil {
		return subCheck{Status: "unhealthy", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	if _, err := h.Runtime.List(ctx, nil); err != nil {
		return subCheck{Status: "degraded", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	return subCheck{Status: "healthy", Message: "ok", ResponseTimeMs: time.Since(start).Milliseconds(), Details: version}
}

func (h *Handlers) checkMountDir() subCheck {
	start := time.Now()
	dir := filepath.Join(h.DataDir, "litefs", "mounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return subCheck{Status: "unhealthy", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return subCheck{Status: "unhealthy", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	_ = os.Remove(probe)
	return subCheck{Status: "healthy", Message: "writable", ResponseTimeMs: time.Since(start).Milliseconds()}
}

func (h *Handlers) checkWorkdir() subCheck {
	start := time.Now()
	if _, err := os.Getwd(); err != nil {
		return subCheck{Status: "degraded", Message: err.Error(), ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	return subCheck{Status: "healthy", Message: "accessible", ResponseTimeMs: time.Since(start).Milliseconds()}
}
