package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/apperror"
)

// volume is the supplemented volumes surface (SPEC_FULL.md §6),
// grounded on original_source/minifly-api/src/handlers/volumes.rs: a
// thin lister/creator over the same bind-mount directory convention
// the Docker runtime adapter uses (<data_dir>/minifly-data/<app>/volumes/<name>).
type volume struct {
	Name string `json:"name"`
}

func (h *Handlers) volumesDir(app string) string {
	return filepath.Join(h.DataDir, "minifly-data", app, "volumes")
}

func (h *Handlers) ListVolumes(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	if _, ok := h.Store.GetApp(app); !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "app not found"))
		return
	}

	entries, err := os.ReadDir(h.volumesDir(app))
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"volumes": []volume{}})
			return
		}
		writeError(w, r, apperror.Wrap(apperror.Internal, "list volumes", err))
		return
	}

	volumes := make([]volume, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			volumes = append(volumes, volume{Name: e.Name()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"volumes": volumes})
}

type createVolumeRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) CreateVolume(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	if _, ok := h.Store.GetApp(app); !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "app not found"))
		return
	}

	var req createVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, r, apperror.New(apperror.BadRequest, "name is required"))
		return
	}

	dir := filepath.Join(h.volumesDir(app), req.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, r, apperror.Wrap(apperror.Internal, "create volume", err))
		return
	}
	writeJSON(w, http.StatusOK, volume{Name: req.Name})
}
