package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/model"
)

type createAppRequest struct {
	AppName string `json:"app_name"`
	OrgSlug string `json:"org_slug"`
}

// CreateApp inserts an App with status "pending" (spec §4.5 table).
// Duplicate creates overwrite rather than 409ing, per the documented
// gap in spec §9 ("Duplicate app create... Treat this as a known gap").
func (h *Handlers) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "invalid request body"))
		return
	}
	if req.AppName == "" {
		writeError(w, r, apperror.New(apperror.BadRequest, "app_name is required"))
		return
	}

	now := time.Now()
	app := model.App{
		ID:        req.AppName,
		Name:      req.AppName,
		OrgSlug:   req.OrgSlug,
		Status:    model.AppPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.Store.PutApp(app)
	writeJSON(w, http.StatusOK, app)
}

// ListApps is the supplemented GET /v1/apps endpoint (SPEC_FULL.md §6).
func (h *Handlers) ListApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.ListApps())
}

func (h *Handlers) GetApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["app"]
	app, ok := h.Store.GetApp(name)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "app not found"))
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handlers) DeleteApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["app"]
	if _, ok := h.Store.GetApp(name); !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "app not found"))
		return
	}
	h.Store.DeleteApp(name)
	okTrue(w)
}
