package litefs

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/minifly/minifly/internal/apperror"
	"k8s.io/klog/v2"
)

// killGrace is how long Stop waits after SIGTERM before forcibly
// killing the child (spec §4.3 "sends a terminate signal, waits
// briefly, then forcibly kills").
const killGrace = 3 * time.Second

// process wraps one running litefs child, tracking exit via a
// non-blocking background wait so Stop and IsRunning never block on
// cmd.Wait themselves.
type process struct {
	machineID string
	mountDir  string
	cmd       *exec.Cmd
	done      chan struct{}
	mu        sync.Mutex
	exited    bool
}

func startProcess(machineID, binaryPath, configPath, mountDir string) (*process, error) {
	cmd := exec.Command(binaryPath, "mount", "-config", configPath)
	if err := cmd.Start(); err != nil {
		return nil, apperror.Wrap(apperror.LiteFS, "start litefs for machine "+machineID, err)
	}

	p := &process{machineID: machineID, mountDir: mountDir, cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
		close(p.done)
	}()

	klog.Infof("litefs started for machine %s (pid %d)", machineID, cmd.Process.Pid)
	return p, nil
}

// stop sends SIGTERM, waits up to killGrace for exit, then sends
// SIGKILL if the child is still alive.
func (p *process) stop() error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		klog.Warningf("litefs sigterm for machine %s failed: %v", p.machineID, err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(killGrace):
	}

	if err := p.cmd.Process.Kill(); err != nil {
		return apperror.Wrap(apperror.LiteFS, "kill litefs for machine "+p.machineID, err)
	}
	<-p.done
	return nil
}

func (p *process) isRunning() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
