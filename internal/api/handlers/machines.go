package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/model"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
	"k8s.io/klog/v2"
)

type createMachineRequest struct {
	Name       string              `json:"name"`
	Region     string              `json:"region"`
	Config     model.MachineConfig `json:"config"`
	SkipLaunch bool                `json:"skip_launch"`
	LeaseTTL   *int64              `json:"lease_ttl"`
}

func regionOrDefault(region string) string {
	if region == "" {
		return "local"
	}
	return region
}

// ListMachines filters by app (via the stored AppName field rather
// than the fragile name-prefix check spec §9 flags), region, and
// destroyed exclusion unless opted in (spec §4.5 table).
func (h *Handlers) ListMachines(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]

	all := h.Store.ListMachinesByApp(app)

	region := r.URL.Query().Get("region")
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	out := make([]model.Machine, 0, len(all))
	for _, m := range all {
		if region != "" && m.Region != region {
			continue
		}
		if !includeDeleted && m.State == model.StateDestroyed {
			continue
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMachine implements spec §4.5.a.
func (h *Handlers) CreateMachine(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	if _, ok := h.Store.GetApp(app); !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "app not found"))
		return
	}

	var req createMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "invalid request body"))
		return
	}
	if req.Config.Image == "" {
		writeError(w, r, apperror.New(apperror.BadRequest, "config.image is required"))
		return
	}

	machineID, err := store.GenerateMachineID()
	if err != nil {
		writeError(w, r, err)
		return
	}
	instanceID, err := store.GenerateInstanceID()
	if err != nil {
		writeError(w, r, err)
		return
	}

	machineIndex := uint32(len(h.Store.ListMachinesByApp(app)))
	privateIP := store.GeneratePrivateIP(h.Network, app, machineIndex)
	region := regionOrDefault(req.Region)

	name := req.Name
	if name == "" {
		name = app + "-" + machineID
	}

	state := model.StateStarting
	if req.SkipLaunch {
		state = model.StateCreated
	}

	now := time.Now()
	machine := model.Machine{
		ID:         machineID,
		Name:       name,
		AppName:    app,
		State:      state,
		Region:     region,
		ImageRef:   runtime.ParseImageRef(req.Config.Image),
		InstanceID: instanceID,
		PrivateIP:  privateIP,
		CreatedAt:  now,
		UpdatedAt:  now,
		Config:     req.Config,
	}
	machine.AddEvent("launch", "created", "user", now)

	hasMounts := len(req.Config.Mounts) > 0

	if !req.SkipLaunch {
		if hasMounts {
			isPrimary := true
			if v, ok := req.Config.Env["FLY_LITEFS_PRIMARY"]; ok {
				isPrimary = v == "true"
			}
			if err := h.LiteFS.StartForMachine(machineID, isPrimary); err != nil {
				writeError(w, r, apperror.Wrap(apperror.LiteFS, "start litefs", err))
				return
			}
		}

		containerID, err := h.Runtime.Create(r.Context(), machineID, app, runtime.CreateConfig{
			Config:  req.Config,
			Region:  region,
			DataDir: h.DataDir,
		})
		if err != nil {
			if hasMounts {
				_ = h.LiteFS.StopForMachine(machineID)
			}
			writeError(w, r, apperror.Wrap(apperror.Runtime, "create container", err))
			return
		}
		machine.ContainerID = containerID

		if err := h.Runtime.Start(r.Context(), containerID); err != nil {
			if hasMounts {
				_ = h.LiteFS.StopForMachine(machineID)
			}
			writeError(w, r, apperror.Wrap(apperror.Runtime, "start container", err))
			return
		}

		time.Sleep(500 * time.Millisecond)
		if info, err := h.Runtime.Inspect(r.Context(), containerID); err == nil && info.Networks.IPv4 != "" {
			h.DNS.Register(app, machineID, info.Networks.IPv4)
		} else if err != nil {
			klog.Warningf("inspect container for dns registration: %v", err)
		}
		machine.State = model.StateStarted
	}

	h.Store.PutMachine(machine)

	if req.LeaseTTL != nil {
		h.Store.PutLease(model.Lease{
			MachineID: machineID,
			Nonce:     newNonce(),
			ExpiresAt: now.Unix() + *req.LeaseTTL,
		})
	}

	writeJSON(w, http.StatusOK, machine)
}

func (h *Handlers) GetMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateMachineRequest struct {
	Config model.MachineConfig `json:"config"`
}

// UpdateMachine replaces config wholesale and bumps updated_at, honoring
// the lease-nonce header if a lease is held (spec §4.5 table, §6).
func (h *Handlers) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}

	if err := h.Store.CheckLeaseNonce(id, r.Header.Get("fly-machine-lease-nonce"), time.Now().Unix()); err != nil {
		writeError(w, r, err)
		return
	}

	var req updateMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "invalid request body"))
		return
	}

	m.Config = req.Config
	m.UpdatedAt = time.Now()
	h.Store.PutMachine(m)
	writeJSON(w, http.StatusOK, m)
}

// DeleteMachine implements spec §4.5.b.
func (h *Handlers) DeleteMachine(w http.ResponseWriter, r *http.Request) {
	app, id := mux.Vars(r)["app"], mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"

	lock := h.Store.MachineLock(id)
	lock.Lock()
	defer lock.Unlock()

	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}

	if m.State == model.StateStarted || force {
		if m.ContainerID != "" {
			if err := h.Runtime.Stop(r.Context(), m.ContainerID, 30); err != nil && !force {
				writeError(w, r, apperror.Wrap(apperror.Runtime, "stop container", err))
				return
			}
			if err := h.Runtime.Remove(r.Context(), m.ContainerID, force); err != nil {
				writeError(w, r, apperror.Wrap(apperror.Runtime, "remove container", err))
				return
			}
		}
		if h.LiteFS.IsRunning(id) {
			if err := h.LiteFS.StopForMachine(id); err != nil && !force {
				writeError(w, r, apperror.Wrap(apperror.LiteFS, "stop litefs", err))
				return
			}
		}
	}

	m.State = model.StateDestroyed
	h.Store.PutMachine(m)
	h.Store.DeleteMachine(id)
	h.DNS.Unregister(app, id)

	okTrue(w)
}

// StartMachine implements spec §4.5.c.
func (h *Handlers) StartMachine(w http.ResponseWriter, r *http.Request) {
	app, id := mux.Vars(r)["app"], mux.Vars(r)["id"]

	lock := h.Store.MachineLock(id)
	lock.Lock()
	defer lock.Unlock()

	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}
	previousState := m.State

	if m.ContainerID != "" {
		if err := h.Runtime.Start(r.Context(), m.ContainerID); err != nil {
			writeError(w, r, apperror.Wrap(apperror.Runtime, "start container", err))
			return
		}
		time.Sleep(500 * time.Millisecond)
		if info, err := h.Runtime.Inspect(r.Context(), m.ContainerID); err == nil && info.Networks.IPv4 != "" {
			h.DNS.Register(app, id, info.Networks.IPv4)
		}
	}

	m.State = model.StateStarted
	m.UpdatedAt = time.Now()
	m.AddEvent("start", "started", "user", m.UpdatedAt)
	h.Store.PutMachine(m)

	writeJSON(w, http.StatusOK, map[string]any{
		"previous_state": previousState,
		"migrated":       false,
		"new_host":       "",
	})
}

type stopMachineRequest struct {
	Timeout *int `json:"timeout"`
}

// StopMachine stops the container, sets state Stopped, unregisters DNS.
func (h *Handlers) StopMachine(w http.ResponseWriter, r *http.Request) {
	h.stopOrSuspend(w, r, model.StateStopped, "stop")
}

// SuspendMachine is implementation-equivalent to stop (spec §4.5.e —
// the platform lacks a true suspend primitive) but lands in Suspended.
func (h *Handlers) SuspendMachine(w http.ResponseWriter, r *http.Request) {
	h.stopOrSuspend(w, r, model.StateSuspended, "suspend")
}

func (h *Handlers) stopOrSuspend(w http.ResponseWriter, r *http.Request, target model.MachineState, eventType string) {
	app, id := mux.Vars(r)["app"], mux.Vars(r)["id"]

	var req stopMachineRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	timeout := 30
	if req.Timeout != nil {
		timeout = *req.Timeout
	}

	lock := h.Store.MachineLock(id)
	lock.Lock()
	defer lock.Unlock()

	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}

	if m.ContainerID != "" {
		if err := h.Runtime.Stop(r.Context(), m.ContainerID, timeout); err != nil {
			writeError(w, r, apperror.Wrap(apperror.Runtime, "stop container", err))
			return
		}
	}
	h.DNS.Unregister(app, id)

	m.State = target
	m.UpdatedAt = time.Now()
	m.AddEvent(eventType, string(target), "user", m.UpdatedAt)
	h.Store.PutMachine(m)

	okTrue(w)
}

// WaitMachine is a state snapshot, not a true wait (spec §4.5 table).
func (h *Handlers) WaitMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"state":       m.State,
		"instance_id": m.InstanceID,
	})
}

func newNonce() string {
	n, err := store.GenerateInstanceID()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return n
}
