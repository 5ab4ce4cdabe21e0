package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/minifly/minifly/internal/deploy"
)

// AdminStatus reports process uptime in both seconds and human form
// (spec §4.5 table).
func (h *Handlers) AdminStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.StartedAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(uptime.Seconds()),
		"uptime_human":   uptime.Round(time.Second).String(),
	})
}

// AdminShutdown acknowledges then exits the process 100ms later, so
// the response has time to reach the client (spec §4.5 table).
func (h *Handlers) AdminShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprintln(os.Stderr, "minifly: admin shutdown requested, exiting")
		exitProcess(0)
	}()
}

// exitProcess is a thin indirection over os.Exit so tests can stub it
// rather than terminating the test binary.
var exitProcess = os.Exit

type deployRequest struct {
	Dir         string `json:"dir"`
	FlyTomlPath string `json:"fly_toml_path"`
}

// AdminDeploy runs the deploy pipeline in-process against dir (which
// must be a path on the same filesystem the server sees, since CLI and
// server share a host). Only one deploy runs at a time; a concurrent
// caller gets a 409 rather than being queued (spec §5 "Single-flight").
func (h *Handlers) AdminDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dir == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dir is required"})
		return
	}

	if !h.deployMu.TryLock() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "another deployment is in progress, skipping"})
		return
	}
	defer h.deployMu.Unlock()

	deployer := &deploy.Deployer{
		Store: h.Store, Runtime: h.Runtime, DNS: h.DNS, LiteFS: h.LiteFS,
		DataDir: h.DataDir, Network: h.Network,
	}
	result, err := deployer.Deploy(r.Context(), req.Dir, req.FlyTomlPath)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"app_name":   result.AppName,
		"machine_id": result.MachineID,
		"url":        result.URL,
		"warnings":   result.Warnings,
	})
}
