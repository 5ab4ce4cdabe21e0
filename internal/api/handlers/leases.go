package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/model"
)

type createLeaseRequest struct {
	TTL         int64  `json:"ttl"`
	Description string `json:"description,omitempty"`
}

// defaultLeaseTTL is the spec §5 default when ttl is unset or zero.
const defaultLeaseTTL = 300

// CreateLease fails if a live lease already exists on the machine,
// else creates one (spec §4.5 table).
func (h *Handlers) CreateLease(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.Store.GetMachine(id); !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}

	now := time.Now()
	if existing, ok := h.Store.GetLease(id); ok && !existing.Expired(now.Unix()) {
		writeError(w, r, apperror.New(apperror.LeaseConflict, "machine already has an active lease"))
		return
	}

	var req createLeaseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	lease := model.Lease{
		MachineID:   id,
		Nonce:       newNonce(),
		ExpiresAt:   now.Unix() + ttl,
		Description: req.Description,
	}
	h.Store.PutLease(lease)
	writeJSON(w, http.StatusOK, lease)
}

func (h *Handlers) GetLease(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lease, ok := h.Store.GetLease(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "lease not found"))
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

// ReleaseLease requires the lease-nonce header to match (spec §6).
func (h *Handlers) ReleaseLease(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lease, ok := h.Store.GetLease(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "lease not found"))
		return
	}

	nonce := r.Header.Get("fly-machine-lease-nonce")
	if nonce == "" || nonce != lease.Nonce {
		writeError(w, r, apperror.New(apperror.InvalidLeaseNonce, "invalid lease nonce"))
		return
	}

	h.Store.DeleteLease(id)
	okTrue(w)
}
