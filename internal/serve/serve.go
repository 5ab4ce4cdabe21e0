// Package serve implements the watch/serve loop (spec §4.8,
// component C8): dependency checks, directory bootstrap, spawning the
// API server, readiness polling, an optional deploy on startup, an
// optional dev-mode file watcher, and a graceful shutdown sequence on
// SIGINT.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/minifly/minifly/internal/api"
	"github.com/minifly/minifly/internal/config"
	"github.com/minifly/minifly/internal/db"
	"github.com/minifly/minifly/internal/deploy"
	"github.com/minifly/minifly/internal/dns"
	"github.com/minifly/minifly/internal/litefs"
	"github.com/minifly/minifly/internal/model"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
	"k8s.io/klog/v2"
)

// Options configures one run of the serve loop (spec §4.8's
// serve(daemon, port, dev, litefs_config?) signature).
type Options struct {
	Daemon           bool
	Port             int
	Dev              bool
	LiteFSConfigPath string
	Dir              string // working directory to look for fly.toml in
}

const daemonizedEnvVar = "MINIFLY_DAEMONIZED"

// Run executes the full serve algorithm and blocks until shutdown. If
// opts.Daemon is set and this process was not already re-exec'd as the
// daemon child, it forks a detached copy of itself and returns
// immediately, leaving the child to run the rest of this function with
// stdio redirected to a log file under the data dir (spec §4.8 step 4:
// "inherit stdio unless daemon").
func Run(ctx context.Context, opts Options) error {
	if opts.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts.Dir = wd
	}

	if opts.Daemon && os.Getenv(daemonizedEnvVar) == "" {
		return daemonize(opts)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Port != 0 {
		cfg.APIPort = opts.Port
	}
	if opts.LiteFSConfigPath != "" {
		cfg.LiteFSConfigPath = opts.LiteFSConfigPath
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.APIPort)
	if alreadyResponding(healthURL) {
		klog.Infof("minifly is already running on port %d", cfg.APIPort)
		return nil
	}

	if code := runDependencyManager(ctx, cfg); code != 0 {
		return exitError{code}
	}

	if err := bootstrapDirs(cfg.DataDir); err != nil {
		return fmt.Errorf("bootstrap data dir: %w", err)
	}

	dbHandle, err := db.Open(db.PathFromURL(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbHandle.Close()

	dockerRuntime, err := runtime.NewDockerRuntime(cfg.DockerHost)
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}

	litefsManager, err := litefs.NewManager(filepath.Join(cfg.DataDir, "litefs"))
	if err != nil {
		return fmt.Errorf("init litefs manager: %w", err)
	}

	st := store.New()
	resolver := dns.New()

	srv := api.NewServer(api.Deps{
		Store:   st,
		Runtime: dockerRuntime,
		DNS:     resolver,
		LiteFS:  litefsManager,
		DB:      dbHandle.DB,
		DataDir: cfg.DataDir,
		Network: cfg.NetworkPrefix,
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.APIPort), Handler: srv.Handler()}
	serverErrCh := make(chan error, 1)
	go func() {
		klog.Infof("minifly api listening on :%d", cfg.APIPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	if !waitForReady(healthURL, 30*time.Second) {
		return fmt.Errorf("api server did not become ready within 30s")
	}

	deployer := &deploy.Deployer{
		Store: st, Runtime: dockerRuntime, DNS: resolver, LiteFS: litefsManager,
		DataDir: cfg.DataDir, Network: cfg.NetworkPrefix,
	}

	tomlName := "fly.toml"
	if opts.Dev {
		if _, err := os.Stat(filepath.Join(opts.Dir, "fly.dev.toml")); err == nil {
			tomlName = "fly.dev.toml"
		}
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	if _, err := os.Stat(filepath.Join(opts.Dir, tomlName)); err == nil {
		if opts.Dev {
			go func() {
				if err := deployer.Watch(watchCtx, opts.Dir, tomlName); err != nil {
					klog.Warningf("watch mode exited: %v", err)
				}
			}()
		} else if _, err := deployer.Deploy(ctx, opts.Dir, tomlName); err != nil {
			klog.Warningf("startup deploy failed: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		klog.Info("received interrupt, shutting down")
	case err := <-serverErrCh:
		klog.Errorf("api server error: %v", err)
	case <-ctx.Done():
	}

	cancelWatch()
	shutdown(context.Background(), httpServer, dockerRuntime, litefsManager, st, cfg.APIPort)
	return nil
}

// daemonize re-execs the current binary with the same arguments, its
// own stdio redirected to <data_dir>/minifly.log, and SysProcAttr
// detaching it into its own session so it survives the parent exiting.
func daemonize(opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	logPath := filepath.Join(cfg.DataDir, "minifly.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log %s: %w", logPath, err)
	}
	defer logFile.Close()

	self, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonizedEnvVar+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Dir = opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon process: %w", err)
	}
	klog.Infof("minifly daemonized as pid %d, logging to %s", cmd.Process.Pid, logPath)
	return nil
}

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

// ExitCode lets internal/cli's Execute turn this error into the
// process exit code.
func (e exitError) ExitCode() int { return e.code }

func alreadyResponding(healthURL string) bool {
	client := http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func waitForReady(healthURL string, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	client := http.Client{Timeout: 1 * time.Second}
	for time.Now().Before(deadline) {
		if resp, err := client.Get(healthURL); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(1 * time.Second)
	}
	return false
}

func bootstrapDirs(dataDir string) error {
	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, "litefs"),
		filepath.Join(dataDir, "machines"),
		filepath.Join(dataDir, "apps"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// runDependencyManager checks the required (runtime, storage) and
// optional dependencies of spec §4.8 step 2. A failing required
// dependency returns exit code 2; a failing optional one only warns.
func runDependencyManager(ctx context.Context, cfg config.Config) int {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := checkDockerVersion(probeCtx, cfg.DockerHost); err != nil {
		klog.Errorf("container runtime unavailable: %v", err)
		return 2
	}

	probe := filepath.Join(os.TempDir(), "minifly-write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		klog.Errorf("filesystem is not writable: %v", err)
		return 2
	}
	_ = os.Remove(probe)

	if _, err := exec.LookPath("sqlite3"); err != nil {
		klog.Warning("sqlite3 CLI not found on PATH; the bundled driver will still be used for the control plane")
	}

	return 0
}

func checkDockerVersion(ctx context.Context, dockerHost string) error {
	rt, err := runtime.NewDockerRuntime(dockerHost)
	if err != nil {
		return err
	}
	return rt.Ping(ctx)
}

// shutdown runs spec §4.8's shutdown sequence: stop started machines
// (and their LiteFS processes) via the runtime directly, force-remove
// every managed container, prune stale lock files, then ask the API to
// exit gracefully (falling back to a forced close). The cleanup steps
// come before the /admin/shutdown request because that handler exits
// the process 100ms after responding.
func shutdown(ctx context.Context, httpServer *http.Server, rt runtime.Runtime, lfs *litefs.Manager, st *store.Store, apiPort int) {
	containers, err := rt.List(ctx, map[string][]string{"label": {"minifly.managed=true"}})
	if err != nil {
		klog.Warningf("shutdown: list containers: %v", err)
	}

	for _, app := range st.ListApps() {
		for _, m := range st.ListMachinesByApp(app.Name) {
			if m.State != model.StateStarted && m.State != model.StateStarting {
				continue
			}
			if m.ContainerID != "" {
				_ = rt.Stop(ctx, m.ContainerID, 30)
			}
			_ = lfs.StopForMachine(m.ID)
			time.Sleep(500 * time.Millisecond)
		}
	}

	for _, c := range containers {
		_ = rt.Remove(ctx, c.ID, true)
	}

	staleLock := filepath.Join(os.TempDir(), "minifly.lock")
	_ = os.Remove(staleLock)

	shutdownURL := fmt.Sprintf("http://127.0.0.1:%d/admin/shutdown", apiPort)
	client := http.Client{Timeout: 2 * time.Second}
	if _, err := client.Post(shutdownURL, "application/json", nil); err != nil {
		klog.Warningf("admin shutdown request failed, falling back to direct close: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		klog.Warningf("forcing api server close: %v", err)
		_ = httpServer.Close()
	}

	klog.Info("shutdown complete")
}
