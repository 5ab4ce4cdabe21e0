// Package deploy implements the fly.toml deploy pipeline (spec §4.7,
// component C7): parsing, image resolution, secrets loading,
// MachineConfig composition and reconcile-or-create against the state
// store, plus watch-mode redeploy.
package deploy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// BuildConfig is fly.toml's [build] table.
type BuildConfig struct {
	Dockerfile string `toml:"dockerfile"`
	Image      string `toml:"image"`
}

// PortToml is one entry of a [[services.ports]] array.
type PortToml struct {
	Port       int             `toml:"port"`
	Handlers   []string        `toml:"handlers"`
	ForceHTTPS *bool           `toml:"force_https"`
	TLSOptions *TLSOptionsToml `toml:"tls_options"`
}

// TLSOptionsToml is a port's [services.ports.tls_options] table.
type TLSOptionsToml struct {
	ALPN     []string `toml:"alpn"`
	Versions []string `toml:"versions"`
}

// ServiceToml is one [[services]] entry.
type ServiceToml struct {
	InternalPort     int        `toml:"internal_port"`
	Protocol         string     `toml:"protocol"`
	Ports            []PortToml `toml:"ports"`
	AutoStopMachines *bool      `toml:"auto_stop_machines"`
	AutoStartMachines *bool     `toml:"auto_start_machines"`
}

// HTTPServiceToml is fly.toml's [http_service] table, the newer,
// simpler alternative to [[services]].
type HTTPServiceToml struct {
	InternalPort       int      `toml:"internal_port"`
	ForceHTTPS         *bool    `toml:"force_https"`
	AutoStopMachines   string   `toml:"auto_stop_machines"`
	AutoStartMachines  *bool    `toml:"auto_start_machines"`
	MinMachinesRunning *int     `toml:"min_machines_running"`
	Processes          []string `toml:"processes"`
}

// VMToml is one [[vm]] entry.
type VMToml struct {
	Size     string `toml:"size"`
	CPUKind  string `toml:"cpu_kind"`
	CPUs     *int   `toml:"cpus"`
	MemoryMB *int   `toml:"memory_mb"`
	Memory   string `toml:"memory"`
}

// DeployToml is fly.toml's [deploy] table, carried through opaquely.
type DeployToml struct {
	Strategy       string `toml:"strategy"`
	ReleaseCommand string `toml:"release_command"`
	WaitTimeout    string `toml:"wait_timeout"`
}

// FlyToml is the parsed shape of a fly.toml file (spec §4.7 step 1).
type FlyToml struct {
	App           string            `toml:"app"`
	PrimaryRegion string            `toml:"primary_region"`
	Build         *BuildConfig      `toml:"build"`
	Env           map[string]string `toml:"env"`
	Mounts        interface{}       `toml:"mounts"`
	Services      []ServiceToml     `toml:"services"`
	HTTPService   *HTTPServiceToml  `toml:"http_service"`
	VM            []VMToml          `toml:"vm"`
	Deploy        *DeployToml       `toml:"deploy"`

	Experimental interface{} `toml:"experimental"`
	Processes    interface{} `toml:"processes"`
	Metrics      interface{} `toml:"metrics"`
}

// ParseFlyToml decodes fly.toml content.
func ParseFlyToml(content []byte) (FlyToml, error) {
	var cfg FlyToml
	if _, err := toml.Decode(string(content), &cfg); err != nil {
		return FlyToml{}, fmt.Errorf("parse fly.toml: %w", err)
	}
	if cfg.App == "" {
		return FlyToml{}, fmt.Errorf("fly.toml: missing required \"app\" field")
	}
	return cfg, nil
}

// ResolveFlyTomlPath picks fly.<env>.toml when it exists and an
// explicit path was not given, else falls back to fly.toml (spec §4.7
// "Inputs").
func ResolveFlyTomlPath(explicitPath, env string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if env != "" {
		envSpecific := fmt.Sprintf("fly.%s.toml", strings.ToLower(env))
		if _, err := os.Stat(envSpecific); err == nil {
			return envSpecific
		}
	}
	return "fly.toml"
}

// Warnings reports unsupported/ignored fly.toml features (spec §4.7
// step 1), grounded on original_source/minifly-cli/src/commands/
// deploy.rs::validate_fly_toml.
func Warnings(cfg FlyToml) []string {
	var warnings []string

	for _, svc := range cfg.Services {
		if svc.AutoStopMachines != nil && *svc.AutoStopMachines {
			warnings = append(warnings, "auto_stop_machines is simulated with container stop, not a true pause")
		}
		if svc.AutoStartMachines != nil && *svc.AutoStartMachines {
			warnings = append(warnings, "auto_start_machines is not automatic here; machines must be started explicitly")
		}
	}
	if cfg.HTTPService != nil {
		if cfg.HTTPService.AutoStopMachines != "" && cfg.HTTPService.AutoStopMachines != "off" {
			warnings = append(warnings, "auto_stop_machines is simulated with container stop, not a true pause")
		}
		if cfg.HTTPService.AutoStartMachines != nil && *cfg.HTTPService.AutoStartMachines {
			warnings = append(warnings, "auto_start_machines is not automatic here; machines must be started explicitly")
		}
	}
	if cfg.Experimental != nil {
		warnings = append(warnings, "experimental features may not be fully supported")
	}
	if cfg.Processes != nil {
		warnings = append(warnings, "multi-process apps are simulated as separate containers")
	}
	if cfg.Metrics != nil {
		warnings = append(warnings, "metrics endpoints are not automatically configured")
	}
	if cfg.PrimaryRegion != "" {
		warnings = append(warnings, "primary_region is ignored; all machines run in region \"local\"")
	}
	return warnings
}

// parseMemoryMB parses a size string like "1gb" or "512mb".
func parseMemoryMB(s string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(lower, "gb"):
		n, err := strconv.Atoi(strings.TrimSuffix(lower, "gb"))
		if err != nil {
			return 0, false
		}
		return n * 1024, true
	case strings.HasSuffix(lower, "mb"):
		n, err := strconv.Atoi(strings.TrimSuffix(lower, "mb"))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// mountEntry is one resolved {source, destination} pair regardless of
// whether fly.toml declared [mounts] as a single table or an array of
// tables (original_source/minifly-cli/src/commands/deploy.rs's custom
// serde visitor handles the same ambiguity).
type mountEntry struct {
	Source      string
	Destination string
}

func resolveMounts(raw interface{}) []mountEntry {
	switch v := raw.(type) {
	case map[string]interface{}:
		if m, ok := mountFromMap(v); ok {
			return []mountEntry{m}
		}
	case []map[string]interface{}:
		var out []mountEntry
		for _, item := range v {
			if m, ok := mountFromMap(item); ok {
				out = append(out, m)
			}
		}
		return out
	case []interface{}:
		var out []mountEntry
		for _, item := range v {
			if mp, ok := item.(map[string]interface{}); ok {
				if m, ok := mountFromMap(mp); ok {
					out = append(out, m)
				}
			}
		}
		return out
	}
	return nil
}

func mountFromMap(m map[string]interface{}) (mountEntry, bool) {
	src, _ := m["source"].(string)
	dst, _ := m["destination"].(string)
	if src == "" || dst == "" {
		return mountEntry{}, false
	}
	return mountEntry{Source: src, Destination: dst}, true
}
