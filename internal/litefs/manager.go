package litefs

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/minifly/minifly/internal/apperror"
	"k8s.io/klog/v2"
)

// Manager supervises one LiteFS child process per machine, rooted
// under baseDir/{bin,mounts,data,configs} (original_source/
// minifly-litefs/src/manager.rs::LiteFSManager).
type Manager struct {
	baseDir    string
	binaryPath string
	available  bool

	mu        sync.Mutex
	processes map[string]*process
}

// NewManager discovers the litefs binary (baseDir/bin/litefs, else
// $PATH) and prepares baseDir's subdirectories. A missing binary is
// not an error: Available() reports false and StartForMachine becomes
// a warn-only no-op, matching spec §4.3's "no-op that logs a warning".
func NewManager(baseDir string) (*Manager, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "bin"), filepath.Join(baseDir, "mounts"), filepath.Join(baseDir, "data"), filepath.Join(baseDir, "configs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperror.Wrap(apperror.LiteFS, "create litefs directory "+dir, err)
		}
	}

	m := &Manager{baseDir: baseDir, processes: make(map[string]*process)}

	localBinary := filepath.Join(baseDir, "bin", "litefs")
	if path, ok := discoverBinary(localBinary); ok {
		m.binaryPath = path
		m.available = true
		return m, nil
	}

	if path, ok := discoverBinary("litefs"); ok {
		m.binaryPath = path
		m.available = true
		return m, nil
	}

	klog.Warning("litefs binary not found; LiteFS features are disabled")
	klog.Warning("install it from https://github.com/superfly/litefs/releases to enable replication")
	m.binaryPath = "litefs"
	m.available = false
	return m, nil
}

func discoverBinary(path string) (string, bool) {
	cmd := exec.Command(path, "--version")
	if err := cmd.Run(); err != nil {
		return "", false
	}
	return path, true
}

// Available reports whether a real litefs binary was found.
func (m *Manager) Available() bool { return m.available }

func (m *Manager) mountDir(machineID string) string {
	return filepath.Join(m.baseDir, "mounts", machineID)
}

func (m *Manager) dataDir(machineID string) string {
	return filepath.Join(m.baseDir, "data", machineID)
}

// StartForMachine generates a local-dev config for machineID and
// spawns the litefs process, unless no binary is installed, in which
// case it warns and returns nil.
func (m *Manager) StartForMachine(machineID string, isPrimary bool) error {
	if !m.available {
		klog.Warningf("skipping litefs start for machine %s: litefs not installed", machineID)
		return nil
	}

	mountDir := m.mountDir(machineID)
	dataDir := m.dataDir(machineID)
	configDir := filepath.Join(m.baseDir, "configs")

	for _, dir := range []string{mountDir, dataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperror.Wrap(apperror.LiteFS, "create dir "+dir, err)
		}
	}

	cfg := ForLocalDev(machineID, mountDir, dataDir, isPrimary)
	yamlBytes, err := Marshal(cfg)
	if err != nil {
		return apperror.Wrap(apperror.LiteFS, "marshal litefs config", err)
	}

	configPath := filepath.Join(configDir, machineID+".yml")
	if err := os.WriteFile(configPath, yamlBytes, 0o644); err != nil {
		return apperror.Wrap(apperror.LiteFS, "write litefs config", err)
	}

	proc, err := startProcess(machineID, m.binaryPath, configPath, mountDir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.processes[machineID] = proc
	m.mu.Unlock()
	return nil
}

// StartForMachineWithConfig behaves like StartForMachine but adapts a
// production litefs.yml (spec §4.3 "Production-config adaptation")
// instead of generating ForLocalDev defaults, so a deployed app's real
// lease/proxy/log settings carry over with only paths and lease type
// rewritten for local use.
func (m *Manager) StartForMachineWithConfig(machineID, appName string, productionYAML []byte, isPrimary bool) error {
	if !m.available {
		klog.Warningf("skipping litefs start for machine %s: litefs not installed", machineID)
		return nil
	}

	cfg, err := FromProductionConfig(productionYAML, machineID, appName, m.baseDir)
	if err != nil {
		return apperror.Wrap(apperror.LiteFS, "adapt litefs config", err)
	}
	cfg.Lease.Candidate = boolPtr(isPrimary)
	cfg.Lease.Promote = boolPtr(isPrimary)
	if cfg.Static != nil {
		cfg.Static.Primary = isPrimary
	}

	configDir := filepath.Join(m.baseDir, "configs")
	for _, dir := range []string{cfg.FUSE.Dir, cfg.Data.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperror.Wrap(apperror.LiteFS, "create dir "+dir, err)
		}
	}

	yamlBytes, err := Marshal(cfg)
	if err != nil {
		return apperror.Wrap(apperror.LiteFS, "marshal litefs config", err)
	}

	configPath := filepath.Join(configDir, machineID+".yml")
	if err := os.WriteFile(configPath, yamlBytes, 0o644); err != nil {
		return apperror.Wrap(apperror.LiteFS, "write litefs config", err)
	}

	proc, err := startProcess(machineID, m.binaryPath, configPath, cfg.FUSE.Dir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.processes[machineID] = proc
	m.mu.Unlock()
	return nil
}

// StopForMachine stops the machine's litefs process (if any) and
// removes its mount directory, best-effort unmounting first.
func (m *Manager) StopForMachine(machineID string) error {
	m.mu.Lock()
	proc, ok := m.processes[machineID]
	delete(m.processes, machineID)
	m.mu.Unlock()

	if ok {
		if err := proc.stop(); err != nil {
			return err
		}
	}

	mountDir := m.mountDir(machineID)
	if ok && proc.mountDir != "" {
		mountDir = proc.mountDir
	}
	if _, err := os.Stat(mountDir); err == nil {
		_ = exec.Command("umount", mountDir).Run()
		if rmErr := os.RemoveAll(mountDir); rmErr != nil {
			klog.Warningf("failed to remove litefs mount dir %s: %v", mountDir, rmErr)
		}
	}
	return nil
}

// IsRunning reports whether machineID's process is still alive.
func (m *Manager) IsRunning(machineID string) bool {
	m.mu.Lock()
	proc, ok := m.processes[machineID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return proc.isRunning()
}

// StopAll stops every tracked process and cleans up every mount
// directory, used on control-plane shutdown.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.processes))
	for id := range m.processes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopForMachine(id); err != nil {
			klog.Warningf("error stopping litefs for machine %s: %v", id, err)
		}
	}
	return nil
}
