// Package api wires the REST surface (spec §4.5/§4.6, components C5
// and C6) onto the state store, Docker runtime, DNS resolver and
// LiteFS manager.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/api/handlers"
	"github.com/minifly/minifly/internal/api/middleware"
	"github.com/minifly/minifly/internal/dns"
	"github.com/minifly/minifly/internal/litefs"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
)

// Deps is everything a Server needs, assembled once at startup by
// internal/serve.Run.
type Deps struct {
	Store      *store.Store
	Runtime    runtime.Runtime
	DNS        *dns.Resolver
	LiteFS     *litefs.Manager
	DB         *sql.DB
	DataDir    string
	Network    string // MINIFLY_NETWORK_PREFIX
}

// Server owns the gorilla/mux router and its own construction time;
// /admin/status reports uptime from the handlers' StartedAt, which is
// set in the same call.
type Server struct {
	router    *mux.Router
	startedAt time.Time
}

// NewServer builds the full route tree.
func NewServer(deps Deps) *Server {
	h := handlers.New(handlers.Deps{
		Store:     deps.Store,
		Runtime:   deps.Runtime,
		DNS:       deps.DNS,
		LiteFS:    deps.LiteFS,
		DB:        deps.DB,
		DataDir:   deps.DataDir,
		Network:   deps.Network,
		StartedAt: time.Now(),
	})

	r := mux.NewRouter()
	r.Use(middleware.Correlation)

	r.HandleFunc("/health", h.HealthLive).Methods(http.MethodGet)
	r.HandleFunc("/health/live", h.HealthLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", h.HealthReady).Methods(http.MethodGet)
	r.HandleFunc("/health/comprehensive", h.HealthComprehensive).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/apps", h.ListApps).Methods(http.MethodGet)
	v1.HandleFunc("/apps", h.CreateApp).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}", h.GetApp).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}", h.DeleteApp).Methods(http.MethodDelete)

	v1.HandleFunc("/apps/{app}/volumes", h.ListVolumes).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}/volumes", h.CreateVolume).Methods(http.MethodPost)

	v1.HandleFunc("/apps/{app}/machines", h.ListMachines).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}/machines", h.CreateMachine).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}", h.GetMachine).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}/machines/{id}", h.UpdateMachine).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}", h.DeleteMachine).Methods(http.MethodDelete)
	v1.HandleFunc("/apps/{app}/machines/{id}/start", h.StartMachine).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}/stop", h.StopMachine).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}/suspend", h.SuspendMachine).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}/wait", h.WaitMachine).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}/machines/{id}/lease", h.CreateLease).Methods(http.MethodPost)
	v1.HandleFunc("/apps/{app}/machines/{id}/lease", h.GetLease).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{app}/machines/{id}/lease", h.ReleaseLease).Methods(http.MethodDelete)
	v1.HandleFunc("/apps/{app}/machines/{id}/logs", h.StreamLogs).Methods(http.MethodGet)

	r.HandleFunc("/admin/status", h.AdminStatus).Methods(http.MethodGet)
	r.HandleFunc("/admin/shutdown", h.AdminShutdown).Methods(http.MethodPost)
	r.HandleFunc("/admin/deploy", h.AdminDeploy).Methods(http.MethodPost)

	return &Server{router: r, startedAt: time.Now()}
}

func (s *Server) Handler() http.Handler { return s.router }
