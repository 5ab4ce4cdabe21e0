package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/dns"
	"github.com/minifly/minifly/internal/litefs"
	"github.com/minifly/minifly/internal/model"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
	"k8s.io/klog/v2"
)

// Deployer runs the deploy pipeline directly against the in-process
// state store, runtime adapter, DNS resolver and LiteFS manager (spec
// §5.7: "this goes through internal/store directly ... rather than
// over HTTP when deploy is invoked as a library call from serve").
type Deployer struct {
	Store   *store.Store
	Runtime runtime.Runtime
	DNS     *dns.Resolver
	LiteFS  *litefs.Manager
	DataDir string
	Network string
}

// Result is what a deploy hands back to its caller.
type Result struct {
	AppName   string
	MachineID string
	URL       string
	Warnings  []string
}

// Deploy runs the full pipeline (spec §4.7 steps 1-8) against the
// fly.toml found in dir.
func (d *Deployer) Deploy(ctx context.Context, dir, explicitTomlPath string) (Result, error) {
	env := flyEnv()
	tomlPath := ResolveFlyTomlPath(explicitTomlPath, env)
	if !filepath.IsAbs(tomlPath) {
		tomlPath = filepath.Join(dir, tomlPath)
	}

	content, err := os.ReadFile(tomlPath)
	if err != nil {
		return Result{}, apperror.Wrap(apperror.BadRequest, "read "+tomlPath, err)
	}
	cfg, err := ParseFlyToml(content)
	if err != nil {
		return Result{}, apperror.Wrap(apperror.InvalidConfiguration, "parse fly.toml", err)
	}

	warnings := Warnings(cfg)
	for _, w := range warnings {
		klog.Warningf("fly.toml: %s", w)
	}

	d.ensureApp(cfg.App)

	image, err := ResolveImage(dir, cfg)
	if err != nil {
		return Result{}, apperror.Wrap(apperror.Runtime, "resolve image", err)
	}

	litefsContent, hasLiteFS := loadLiteFSConfig(dir, env)

	secrets, err := LoadSecrets(dir, cfg.App)
	if err != nil {
		return Result{}, apperror.Wrap(apperror.InvalidConfiguration, "load secrets", err)
	}

	machineConfig := ComposeMachineConfig(cfg, image, hasLiteFS, secrets)

	machineID, err := d.reconcile(ctx, cfg.App, machineConfig, hasLiteFS, litefsContent)
	if err != nil {
		return Result{}, err
	}

	time.Sleep(2 * time.Second)
	port := d.discoverPort(cfg.App, machineID)

	return Result{
		AppName:   cfg.App,
		MachineID: machineID,
		URL:       fmt.Sprintf("http://localhost:%d", port),
		Warnings:  warnings,
	}, nil
}

func flyEnv() string {
	if e := os.Getenv("FLY_ENV"); e != "" {
		return e
	}
	return os.Getenv("MINIFLY_ENV")
}

// loadLiteFSConfig looks for a LiteFS config in LITEFS_CONFIG_PATH,
// then litefs.<env>.yml, then litefs.yml (spec §4.7 step 4).
func loadLiteFSConfig(dir, env string) ([]byte, bool) {
	if explicit := os.Getenv("LITEFS_CONFIG_PATH"); explicit != "" {
		if content, err := os.ReadFile(explicit); err == nil {
			return content, true
		}
		klog.Warningf("LITEFS_CONFIG_PATH set but file not found: %s", explicit)
	}

	if env != "" {
		envSpecific := filepath.Join(dir, fmt.Sprintf("litefs.%s.yml", strings.ToLower(env)))
		if content, err := os.ReadFile(envSpecific); err == nil {
			return content, true
		}
	}

	defaultPath := filepath.Join(dir, "litefs.yml")
	if content, err := os.ReadFile(defaultPath); err == nil {
		return content, true
	}
	return nil, false
}

func (d *Deployer) ensureApp(appName string) {
	if _, ok := d.Store.GetApp(appName); ok {
		return
	}
	now := time.Now()
	d.Store.PutApp(model.App{
		ID: appName, Name: appName, OrgSlug: "personal",
		Status: model.AppPending, CreatedAt: now, UpdatedAt: now,
	})
	klog.Infof("app %s created", appName)
}

// reconcile implements spec §4.7 step 7: reuse an existing machine if
// one is startable, otherwise create one.
func (d *Deployer) reconcile(ctx context.Context, appName string, cfg model.MachineConfig, hasLiteFS bool, litefsContent []byte) (string, error) {
	existing := d.Store.ListMachinesByApp(appName)
	if len(existing) > 0 {
		m := existing[0]
		switch m.State {
		case model.StateStopped, model.StateCreated:
			if err := d.startExisting(ctx, appName, m); err == nil {
				return m.ID, nil
			}
			klog.Warning("failed to start existing machine, creating a new one instead")
		case model.StateStarted, model.StateStarting:
			klog.Infof("machine %s for app %s is already running", m.ID, appName)
			return m.ID, nil
		}
	}

	return d.createMachine(ctx, appName, cfg, hasLiteFS, litefsContent)
}

func (d *Deployer) startExisting(ctx context.Context, appName string, m model.Machine) error {
	lock := d.Store.MachineLock(m.ID)
	lock.Lock()
	defer lock.Unlock()

	if m.ContainerID != "" {
		if err := d.Runtime.Start(ctx, m.ContainerID); err != nil {
			return apperror.Wrap(apperror.Runtime, "start existing container", err)
		}
		time.Sleep(500 * time.Millisecond)
		if info, err := d.Runtime.Inspect(ctx, m.ContainerID); err == nil && info.Networks.IPv4 != "" {
			d.DNS.Register(appName, m.ID, info.Networks.IPv4)
		}
	}
	m.State = model.StateStarted
	m.UpdatedAt = time.Now()
	m.AddEvent("start", "started", "deploy", m.UpdatedAt)
	d.Store.PutMachine(m)
	return nil
}

func (d *Deployer) createMachine(ctx context.Context, appName string, cfg model.MachineConfig, hasLiteFS bool, litefsContent []byte) (string, error) {
	machineID, err := store.GenerateMachineID()
	if err != nil {
		return "", err
	}
	instanceID, err := store.GenerateInstanceID()
	if err != nil {
		return "", err
	}
	machineIndex := uint32(len(d.Store.ListMachinesByApp(appName)))
	privateIP := store.GeneratePrivateIP(d.Network, appName, machineIndex)

	now := time.Now()
	machine := model.Machine{
		ID:         machineID,
		Name:       appName + "-" + machineID[:8],
		AppName:    appName,
		State:      model.StateStarting,
		Region:     "local",
		ImageRef:   runtime.ParseImageRef(cfg.Image),
		InstanceID: instanceID,
		PrivateIP:  privateIP,
		CreatedAt:  now,
		UpdatedAt:  now,
		Config:     cfg,
	}
	machine.AddEvent("launch", "created", "deploy", now)

	if hasLiteFS {
		isPrimary := true
		if v, ok := cfg.Env["FLY_LITEFS_PRIMARY"]; ok {
			isPrimary = v == "true"
		}
		if litefsContent != nil {
			err = d.LiteFS.StartForMachineWithConfig(machineID, appName, litefsContent, isPrimary)
		} else {
			err = d.LiteFS.StartForMachine(machineID, isPrimary)
		}
		if err != nil {
			return "", apperror.Wrap(apperror.LiteFS, "start litefs", err)
		}
	}

	containerID, err := d.Runtime.Create(ctx, machineID, appName, runtime.CreateConfig{Config: cfg, Region: "local", DataDir: d.DataDir})
	if err != nil {
		if hasLiteFS {
			_ = d.LiteFS.StopForMachine(machineID)
		}
		return "", apperror.Wrap(apperror.Runtime, "create container", err)
	}
	machine.ContainerID = containerID

	if err := d.Runtime.Start(ctx, containerID); err != nil {
		if hasLiteFS {
			_ = d.LiteFS.StopForMachine(machineID)
		}
		return "", apperror.Wrap(apperror.Runtime, "start container", err)
	}

	time.Sleep(500 * time.Millisecond)
	if info, err := d.Runtime.Inspect(ctx, containerID); err == nil && info.Networks.IPv4 != "" {
		d.DNS.Register(appName, machineID, info.Networks.IPv4)
	}

	machine.State = model.StateStarted
	d.Store.PutMachine(machine)
	klog.Infof("machine %s created for app %s", machineID, appName)
	return machineID, nil
}

// discoverPort determines the host port assigned to the deployed
// container (spec §4.7 step 8), grounded on original_source/
// minifly-cli/src/commands/deploy.rs::get_container_port's three-tier
// fallback (docker port, docker ps by exact name, docker ps by latest
// matching name).
func (d *Deployer) discoverPort(appName, machineID string) int {
	containerName := fmt.Sprintf("minifly-%s-%s", appName, machineID)

	if port, ok := portFromDockerPort(containerName); ok {
		return port
	}
	if port, ok := portFromDockerPS("name="+containerName, false); ok {
		return port
	}
	if port, ok := portFromDockerPS("name=minifly-"+appName, true); ok {
		return port
	}
	return 8080
}

func portFromDockerPort(containerName string) (int, bool) {
	out, err := exec.Command("docker", "port", containerName).Output()
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if idx := strings.Index(line, " -> "); idx >= 0 {
			if port, ok := lastPort(line[idx+len(" -> "):]); ok {
				return port, true
			}
		}
	}
	return 0, false
}

func portFromDockerPS(filter string, latest bool) (int, bool) {
	args := []string{"ps", "--filter", filter, "--format", "{{.Ports}}"}
	if latest {
		args = append(args, "--latest")
	}
	out, err := exec.Command("docker", args...).Output()
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if idx := strings.Index(line, "->"); idx >= 0 {
			if port, ok := lastPort(line[:idx]); ok {
				return port, true
			}
		}
	}
	return 0, false
}

func lastPort(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	port, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return 0, false
	}
	return port, true
}
