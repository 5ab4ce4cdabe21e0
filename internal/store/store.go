// Package store owns the control plane's in-memory App, Machine and
// Lease maps and the concurrency discipline around them (spec §4.4,
// component C4).
package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/model"
)

// Store holds the apps/machines/leases maps, each behind its own
// single-writer/multi-reader lock, plus a per-machine mutex shard used
// by start/stop/delete to close the read-modify-write race spec §9
// flags: those operations acquire the machine's shard for their full
// duration instead of dropping the lock across I/O and re-acquiring
// it to commit.
//
// Lock acquisition order when more than one is held: apps -> machines
// -> leases -> dns. No operation here currently needs more than one at
// once, but this order must not be inverted.
type Store struct {
	appsMu sync.RWMutex
	apps   map[string]model.App

	machinesMu sync.RWMutex
	machines   map[string]model.Machine

	leasesMu sync.RWMutex
	leases   map[string]model.Lease

	shardsMu sync.Mutex
	shards   map[string]*sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		apps:     make(map[string]model.App),
		machines: make(map[string]model.Machine),
		leases:   make(map[string]model.Lease),
		shards:   make(map[string]*sync.Mutex),
	}
}

// MachineLock returns the mutex sharded off machineID, creating it on
// first use. Callers hold it across an entire start/stop/delete
// lifecycle operation, including the I/O in the middle, so a second
// concurrent operation on the same machine blocks instead of racing.
func (s *Store) MachineLock(machineID string) *sync.Mutex {
	s.shardsMu.Lock()
	defer s.shardsMu.Unlock()
	m, ok := s.shards[machineID]
	if !ok {
		m = &sync.Mutex{}
		s.shards[machineID] = m
	}
	return m
}

// --- Apps ---

func (s *Store) PutApp(app model.App) {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()
	s.apps[app.Name] = app
}

func (s *Store) GetApp(name string) (model.App, bool) {
	s.appsMu.RLock()
	defer s.appsMu.RUnlock()
	app, ok := s.apps[name]
	return app, ok
}

func (s *Store) DeleteApp(name string) {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()
	delete(s.apps, name)
}

func (s *Store) ListApps() []model.App {
	s.appsMu.RLock()
	defer s.appsMu.RUnlock()
	out := make([]model.App, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app)
	}
	return out
}

// --- Machines ---

func (s *Store) PutMachine(m model.Machine) {
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	s.machines[m.ID] = m
}

func (s *Store) GetMachine(id string) (model.Machine, bool) {
	s.machinesMu.RLock()
	defer s.machinesMu.RUnlock()
	m, ok := s.machines[id]
	return m, ok
}

func (s *Store) DeleteMachine(id string) {
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	delete(s.machines, id)

	s.shardsMu.Lock()
	delete(s.shards, id)
	s.shardsMu.Unlock()
}

// ListMachinesByApp returns every machine belonging to appName.
func (s *Store) ListMachinesByApp(appName string) []model.Machine {
	s.machinesMu.RLock()
	defer s.machinesMu.RUnlock()
	var out []model.Machine
	for _, m := range s.machines {
		if m.AppName == appName {
			out = append(out, m)
		}
	}
	return out
}

// --- Leases ---

func (s *Store) PutLease(l model.Lease) {
	s.leasesMu.Lock()
	defer s.leasesMu.Unlock()
	s.leases[l.MachineID] = l
}

func (s *Store) GetLease(machineID string) (model.Lease, bool) {
	s.leasesMu.RLock()
	defer s.leasesMu.RUnlock()
	l, ok := s.leases[machineID]
	return l, ok
}

func (s *Store) DeleteLease(machineID string) {
	s.leasesMu.Lock()
	defer s.leasesMu.Unlock()
	delete(s.leases, machineID)
}

// CheckLeaseNonce validates that nonce matches the machine's current
// lease. A machine with no lease, or with an expired one, accepts any
// nonce; otherwise a missing or different nonce yields an
// apperror.InvalidLeaseNonce error.
func (s *Store) CheckLeaseNonce(machineID, nonce string, nowUnix int64) error {
	lease, ok := s.GetLease(machineID)
	if !ok {
		return nil
	}
	if lease.Expired(nowUnix) {
		return nil
	}
	if nonce == "" || nonce != lease.Nonce {
		return apperror.New(apperror.InvalidLeaseNonce, "machine is leased; a valid lease nonce is required")
	}
	return nil
}

// --- ID generation, grounded on original_source/minifly-api/src/state.rs ---

// GenerateMachineID returns a 15-hex-character id.
func GenerateMachineID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", apperror.Wrap(apperror.Internal, "generate machine id", err)
	}
	return hex.EncodeToString(buf)[:15], nil
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateInstanceID returns a 26-character base36 id in Fly's format.
func GenerateInstanceID() (string, error) {
	buf := make([]byte, 26)
	if _, err := rand.Read(buf); err != nil {
		return "", apperror.Wrap(apperror.Internal, "generate instance id", err)
	}
	out := make([]byte, 26)
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%36]
	}
	return string(out), nil
}

// GeneratePrivateIP returns the synthetic IPv6 address
// "<prefix><app-hash>:a7b:<machineIndex>::2", where app-hash is the
// first two bytes of sha256(appName) as 4 hex digits.
func GeneratePrivateIP(networkPrefix, appName string, machineIndex uint32) string {
	sum := sha256.Sum256([]byte(appName))
	appHash := fmt.Sprintf("%02x%02x", sum[0], sum[1])
	return fmt.Sprintf("%s%s:a7b:%d::2", networkPrefix, appHash, machineIndex)
}
