// Package handlers implements the Machines API REST surface (spec
// §4.5, component C5) plus the supplemented endpoints of SPEC_FULL.md
// §6 (GET /v1/apps, volumes).
package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/minifly/minifly/internal/api/middleware"
	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/dns"
	"github.com/minifly/minifly/internal/litefs"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
	"k8s.io/klog/v2"
)

// Deps is everything the handler set needs.
type Deps struct {
	Store     *store.Store
	Runtime   runtime.Runtime
	DNS       *dns.Resolver
	LiteFS    *litefs.Manager
	DB        *sql.DB
	DataDir   string
	Network   string
	StartedAt time.Time
}

// Handlers holds the shared dependencies behind every route.
type Handlers struct {
	Deps

	// deployMu serializes /admin/deploy calls (spec §5's "Single-flight"
	// rule): a request that lands while one is in flight is rejected
	// rather than queued.
	deployMu sync.Mutex
}

// New builds a Handlers value from deps.
func New(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		klog.Warningf("encode response: %v", err)
	}
}

// writeError maps err to its apperror.Kind HTTP status and serializes
// it to the wire shape {error: "<message>"} (spec §7). 5xx responses
// never carry the raw error text to the client: the real message is
// logged against the request's correlation id instead, and the client
// gets a generic message, so internal Docker/DB failure detail never
// leaks over the wire.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.As(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		klog.Errorf("correlation_id=%s %s %s: %v", middleware.CorrelationID(r.Context()), r.Method, r.URL.Path, err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func okTrue(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
