package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/minifly/minifly/internal/apperror"
	"k8s.io/klog/v2"
)

// dockerRuntime is the Runtime implementation backed by the real Docker
// daemon, grounded on original_source/minifly-api/src/docker.rs for
// exact field semantics and on the Go-idiomatic Runtime interface shape
// of _examples/other_examples/majorcontext-moat's container runtime.
type dockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime dials the Docker daemon at host (empty uses the
// client library's local defaults, e.g. $DOCKER_HOST or the default
// socket).
func NewDockerRuntime(host string) (Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, apperror.Wrap(apperror.Runtime, "connect to docker daemon", err)
	}
	return &dockerRuntime{cli: cli}, nil
}

func (d *dockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return apperror.Wrap(apperror.Runtime, "ping docker daemon", err)
	}
	return nil
}

func (d *dockerRuntime) Version(ctx context.Context) (string, error) {
	v, err := d.cli.ServerVersion(ctx)
	if err != nil {
		return "", apperror.Wrap(apperror.Runtime, "docker server version", err)
	}
	return v.Version, nil
}

// Create pulls the image (unless local), builds the container spec per
// spec §4.1 and asks the daemon to create it, naming it
// "minifly-{app}-{id}" as original_source/minifly-api/src/docker.rs
// does, which the deploy pipeline's post-create port lookup depends on.
func (d *dockerRuntime) Create(ctx context.Context, machineID, appName string, cfg CreateConfig) (string, error) {
	if err := d.pullImage(ctx, cfg.Config.Image); err != nil {
		return "", err
	}

	containerCfg, hostCfg := buildContainerSpec(machineID, appName, cfg)

	binds, err := prepareVolumeBinds(appName, cfg)
	if err != nil {
		return "", err
	}
	hostCfg.Binds = binds

	name := fmt.Sprintf("minifly-%s-%s", appName, machineID)
	resp, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", apperror.Wrap(apperror.Runtime, "create container", err)
	}
	return resp.ID, nil
}

func (d *dockerRuntime) pullImage(ctx context.Context, ref string) error {
	if strings.Contains(ref, "-local:") || strings.HasSuffix(ref, "-local:latest") {
		klog.V(1).Infof("skipping pull for local image %s", ref)
		return nil
	}
	klog.V(1).Infof("pulling image %s", ref)
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return apperror.Wrap(apperror.Runtime, "pull image "+ref, err)
	}
	defer rc.Close()
	// Drain pull progress at debug level; discard otherwise.
	buf := make([]byte, 4096)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			klog.V(4).Infof("pull progress: %s", string(buf[:n]))
		}
		if readErr != nil {
			break
		}
	}
	return nil
}

// prepareVolumeBinds maps each of a machine's mounts onto a host
// directory under "<data_dir>/minifly-data/<app>/volumes/<name>",
// creating the directory and, for a /litefs or "data"-named guest
// path, an "app.db" sentinel file so LiteFS finds a pre-existing
// database on first boot (original_source/minifly-api/src/docker.rs).
func prepareVolumeBinds(appName string, cfg CreateConfig) ([]string, error) {
	if len(cfg.Config.Mounts) == 0 {
		return nil, nil
	}
	binds := make([]string, 0, len(cfg.Config.Mounts))
	for _, mount := range cfg.Config.Mounts {
		hostDir := filepath.Join(cfg.DataDir, "minifly-data", appName, "volumes", mount.Volume)
		if err := os.MkdirAll(hostDir, 0o755); err != nil {
			return nil, apperror.Wrap(apperror.Runtime, "create volume dir "+hostDir, err)
		}

		if mount.Path == "/litefs" || strings.Contains(mount.Path, "data") {
			sentinel := filepath.Join(hostDir, "app.db")
			if _, statErr := os.Stat(sentinel); os.IsNotExist(statErr) {
				f, createErr := os.Create(sentinel)
				if createErr != nil {
					return nil, apperror.Wrap(apperror.Runtime, "create sentinel file "+sentinel, createErr)
				}
				f.Close()
			}
		}

		binds = append(binds, fmt.Sprintf("%s:%s", hostDir, mount.Path))
	}
	return binds, nil
}

func (d *dockerRuntime) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return apperror.Wrap(apperror.Runtime, "start container", err)
	}
	return nil
}

func (d *dockerRuntime) Stop(ctx context.Context, containerID string, timeoutSeconds int) error {
	t := timeoutSeconds
	if t <= 0 {
		t = 30
	}
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &t}); err != nil {
		return apperror.Wrap(apperror.Runtime, "stop container", err)
	}
	return nil
}

func (d *dockerRuntime) Remove(ctx context.Context, containerID string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return apperror.Wrap(apperror.Runtime, "remove container", err)
	}
	return nil
}

func (d *dockerRuntime) Inspect(ctx context.Context, containerID string) (InspectResult, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return InspectResult{}, apperror.Wrap(apperror.Runtime, "inspect container", err)
	}

	result := InspectResult{
		State: ContainerState{
			Status:  info.State.Status,
			Running: info.State.Running,
		},
		Networks: NetworkInfo{
			Ports: map[int]int{},
		},
	}

	for _, netw := range info.NetworkSettings.Networks {
		if netw.IPAddress != "" {
			result.Networks.IPv4 = netw.IPAddress
			break
		}
	}

	for containerPort, bindings := range info.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		cp := containerPort.Int()
		if hp, err := strconv.Atoi(bindings[0].HostPort); err == nil {
			result.Networks.Ports[cp] = hp
		}
	}

	return result, nil
}

func (d *dockerRuntime) List(ctx context.Context, filterMap map[string][]string) ([]ContainerSummary, error) {
	f := filters.NewArgs()
	for key, values := range filterMap {
		for _, v := range values {
			f.Add(key, v)
		}
	}
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, apperror.Wrap(apperror.Runtime, "list containers", err)
	}

	out := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, ContainerSummary{
			ID:     c.ID,
			Name:   name,
			Labels: c.Labels,
			State:  c.State,
		})
	}
	return out, nil
}

func (d *dockerRuntime) StreamLogs(ctx context.Context, containerID string, follow bool, tailLines int, timestamps bool) (io.ReadCloser, error) {
	tail := "all"
	if tailLines > 0 {
		tail = strconv.Itoa(tailLines)
	}
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
		Timestamps: timestamps,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.Runtime, "stream logs", err)
	}
	return rc, nil
}

func (d *dockerRuntime) FindByMachineID(ctx context.Context, machineID string) (string, bool, error) {
	summaries, err := d.List(ctx, map[string][]string{
		"label": {"minifly.machine_id=" + machineID},
	})
	if err != nil {
		return "", false, err
	}
	if len(summaries) == 0 {
		return "", false, nil
	}
	return summaries[0].ID, true, nil
}

// buildContainerSpec constructs the Docker container/host config for a
// machine: hostname, labels, resource limits, restart policy, ports and
// env, per spec §4.1.
func buildContainerSpec(machineID, appName string, cfg CreateConfig) (*container.Config, *container.HostConfig) {
	mc := cfg.Config

	labels := map[string]string{
		"minifly.managed":    "true",
		"minifly.machine_id": machineID,
		"minifly.app_name":   appName,
		"minifly.region":     cfg.Region,
	}

	containerCfg := &container.Config{
		Image:    mc.Image,
		Hostname: fmt.Sprintf("%s.vm.%s.internal", machineID, appName),
		Labels:   labels,
	}

	env := BuildEnv(mc.Env, machineID, appName, nil)
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	containerCfg.Env = envList

	if mc.Init != nil {
		switch {
		case len(mc.Init.Exec) > 0:
			containerCfg.Cmd = mc.Init.Exec
		case len(mc.Init.Entrypoint) > 0:
			containerCfg.Entrypoint = mc.Init.Entrypoint
			if len(mc.Init.Cmd) > 0 {
				containerCfg.Cmd = mc.Init.Cmd
			}
		}
	}

	hostCfg := &container.HostConfig{}
	limits := ResourceLimitsFor(mc.Guest)
	hostCfg.Resources = container.Resources{
		CPUShares: limits.CPUShares,
		CPUPeriod: limits.CPUPeriod,
		CPUQuota:  limits.CPUQuota,
		Memory:    limits.MemoryByte,
	}

	if mc.Restart != nil {
		hostCfg.RestartPolicy = container.RestartPolicy{
			Name:              restartPolicyName(mc.Restart.Policy),
			MaximumRetryCount: mc.Restart.MaxRetries,
		}
	}

	// Ephemeral host ports: publish internal_port/tcp with host port 0
	// so concurrent apps never fight over a fixed host port (spec §4.1).
	if len(mc.Services) > 0 {
		exposed := nat.PortSet{}
		bindings := nat.PortMap{}
		for _, svc := range mc.Services {
			p := nat.Port(fmt.Sprintf("%d/tcp", svc.InternalPort))
			exposed[p] = struct{}{}
			bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}}
		}
		containerCfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	return containerCfg, hostCfg
}

func restartPolicyName(policy string) container.RestartPolicyMode {
	switch policy {
	case "always":
		return container.RestartPolicyAlways
	case "on-failure":
		return container.RestartPolicyOnFailure
	case "unless-stopped":
		return container.RestartPolicyUnlessStopped
	default:
		return container.RestartPolicyDisabled
	}
}
