package deploy

import (
	"github.com/minifly/minifly/internal/model"
)

const (
	defaultCPUKind  = "shared"
	defaultCPUs     = 1
	defaultMemoryMB = 1024
)

// ComposeMachineConfig builds the MachineConfig to launch for a
// deploy (spec §4.7 step 6), grounded on original_source/minifly-cli/
// src/commands/deploy.rs::create_machine_config.
func ComposeMachineConfig(cfg FlyToml, image string, hasLiteFS bool, secrets map[string]string) model.MachineConfig {
	env := make(map[string]string, len(cfg.Env)+len(secrets))
	for k, v := range cfg.Env {
		env[k] = v
	}
	for k, v := range secrets {
		env[k] = v
	}
	if hasLiteFS {
		env["FLY_LITEFS_PRIMARY"] = "true"
		if _, ok := env["DATABASE_PATH"]; !ok {
			env["DATABASE_PATH"] = "/litefs"
		}
	}

	return model.MachineConfig{
		Image:    image,
		Guest:    composeGuest(cfg.VM),
		Env:      env,
		Services: composeServices(cfg),
		Mounts:   composeMounts(cfg.Mounts),
		Restart:  &model.RestartConfig{Policy: "on-failure", MaxRetries: 3},
	}
}

func composeGuest(vms []VMToml) model.GuestConfig {
	guest := model.GuestConfig{CPUKind: defaultCPUKind, CPUs: defaultCPUs, MemoryMB: defaultMemoryMB}
	if len(vms) == 0 {
		return guest
	}
	vm := vms[0]
	if vm.CPUKind != "" {
		guest.CPUKind = vm.CPUKind
	}
	if vm.CPUs != nil {
		guest.CPUs = *vm.CPUs
	}
	if vm.MemoryMB != nil {
		guest.MemoryMB = *vm.MemoryMB
	} else if vm.Memory != "" {
		if mb, ok := parseMemoryMB(vm.Memory); ok {
			guest.MemoryMB = mb
		}
	}
	return guest
}

// composeServices prefers an explicit [[services]] table; failing
// that, it synthesizes a single service from [http_service] with the
// standard 80/443 port pair (spec §4.7 step 6).
func composeServices(cfg FlyToml) []model.ServiceConfig {
	if len(cfg.Services) > 0 {
		out := make([]model.ServiceConfig, 0, len(cfg.Services))
		for _, s := range cfg.Services {
			ports := make([]model.PortConfig, 0, len(s.Ports))
			for _, p := range s.Ports {
				port := model.PortConfig{Port: p.Port, Handlers: p.Handlers}
				if p.ForceHTTPS != nil {
					port.ForceHTTPS = *p.ForceHTTPS
				}
				if p.TLSOptions != nil {
					port.TLSOptions = map[string]any{"alpn": p.TLSOptions.ALPN, "versions": p.TLSOptions.Versions}
				}
				ports = append(ports, port)
			}
			svc := model.ServiceConfig{InternalPort: s.InternalPort, Protocol: s.Protocol, Ports: ports}
			if s.AutoStartMachines != nil {
				svc.Autostart = s.AutoStartMachines
			}
			if s.AutoStopMachines != nil {
				svc.Autostop = s.AutoStopMachines
			}
			out = append(out, svc)
		}
		return out
	}

	if cfg.HTTPService == nil {
		return nil
	}
	svc := model.ServiceConfig{
		InternalPort: cfg.HTTPService.InternalPort,
		Protocol:     "tcp",
		Ports: []model.PortConfig{
			{Port: 80, Handlers: []string{"http"}},
			{Port: 443, Handlers: []string{"tls", "http"}},
		},
	}
	if cfg.HTTPService.ForceHTTPS != nil {
		svc.Ports[0].ForceHTTPS = *cfg.HTTPService.ForceHTTPS
	}
	if cfg.HTTPService.AutoStartMachines != nil {
		svc.Autostart = cfg.HTTPService.AutoStartMachines
	}
	if cfg.HTTPService.AutoStopMachines != "" {
		enabled := cfg.HTTPService.AutoStopMachines != "off"
		svc.Autostop = &enabled
	}
	return []model.ServiceConfig{svc}
}

func composeMounts(raw interface{}) []model.MountConfig {
	entries := resolveMounts(raw)
	if len(entries) == 0 {
		return nil
	}
	out := make([]model.MountConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.MountConfig{Volume: e.Source, Path: e.Destination})
	}
	return out
}
