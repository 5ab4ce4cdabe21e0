// Package litefs manages the per-machine LiteFS sidecar process: config
// generation and production-to-local adaptation, binary discovery, and
// process supervision (spec §4.3, component C3).
package litefs

import (
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config mirrors litefs.yml's top-level shape.
type Config struct {
	FUSE   FUSEConfig    `yaml:"fuse"`
	Data   DataConfig    `yaml:"data"`
	Proxy  *ProxyConfig  `yaml:"proxy,omitempty"`
	Lease  LeaseConfig   `yaml:"lease"`
	Log    *LogConfig    `yaml:"log,omitempty"`
	Consul *ConsulConfig `yaml:"consul,omitempty"`
	Static *StaticConfig `yaml:"static,omitempty"`
}

type FUSEConfig struct {
	Dir        string `yaml:"dir"`
	Debug      bool   `yaml:"debug"`
	AllowOther bool   `yaml:"allow_other"`
}

type DataConfig struct {
	Dir                      string `yaml:"dir"`
	Compress                 bool   `yaml:"compress"`
	Retention                string `yaml:"retention"`
	RetentionMonitorInterval string `yaml:"retention_monitor_interval"`
}

type ProxyConfig struct {
	Addr        string   `yaml:"addr"`
	Target      string   `yaml:"target"`
	DB          string   `yaml:"db"`
	Passthrough []string `yaml:"passthrough,omitempty"`
}

type LeaseConfig struct {
	Type         string `yaml:"type"`
	AdvertiseURL string `yaml:"advertise_url,omitempty"`
	Candidate    *bool  `yaml:"candidate,omitempty"`
	Promote      *bool  `yaml:"promote,omitempty"`
	Demote       *bool  `yaml:"demote,omitempty"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type ConsulConfig struct {
	URL          string `yaml:"url"`
	AdvertiseURL string `yaml:"advertise_url"`
	Key          string `yaml:"key,omitempty"`
	TTL          string `yaml:"ttl,omitempty"`
	LockTTL      string `yaml:"lock_ttl,omitempty"`
}

type StaticConfig struct {
	Primary      bool   `yaml:"primary"`
	Hostname     string `yaml:"hostname"`
	AdvertiseURL string `yaml:"advertise_url"`
}

func boolPtr(b bool) *bool { return &b }

// ForLocalDev builds the default local-development config for a fresh
// machine with no production litefs.yml to adapt, matching
// original_source/minifly-litefs/src/config.rs::for_local_dev.
func ForLocalDev(machineID, mountDir, dataDir string, isPrimary bool) Config {
	advertiseURL := "http://" + machineID + ":20202"
	return Config{
		FUSE: FUSEConfig{Dir: mountDir, Debug: true, AllowOther: true},
		Data: DataConfig{
			Dir:                      dataDir,
			Compress:                 true,
			Retention:                "24h",
			RetentionMonitorInterval: "1h",
		},
		Proxy: &ProxyConfig{
			Addr:        ":20202",
			Target:      "localhost:8080",
			DB:          "db",
			Passthrough: []string{},
		},
		Lease: LeaseConfig{
			Type:         "static",
			AdvertiseURL: advertiseURL,
			Candidate:    boolPtr(isPrimary),
			Promote:      boolPtr(isPrimary),
			Demote:       boolPtr(false),
		},
		Log: &LogConfig{Format: "text", Level: "debug"},
		Static: &StaticConfig{
			Primary:      isPrimary,
			Hostname:     machineID,
			AdvertiseURL: advertiseURL,
		},
	}
}

// FromProductionConfig parses a production litefs.yml and adapts it
// for local development: consul leases become static, paths are
// rewritten under baseDir, debug logging and FUSE debug/allow_other
// are switched on, and the static primary block is overwritten
// (original_source/minifly-litefs/src/config.rs::from_production_config).
func FromProductionConfig(content []byte, machineID, appName, baseDir string) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}

	advertiseURL := "http://" + machineID + ":20202"

	if cfg.Lease.Type == "consul" {
		cfg.Lease.Type = "static"
		cfg.Lease.Candidate = boolPtr(true)
		cfg.Lease.Promote = boolPtr(true)
		cfg.Lease.AdvertiseURL = advertiseURL
	}

	machineBase := filepath.Join(baseDir, "minifly-data", appName, "litefs", machineID)
	cfg.FUSE.Dir = filepath.Join(machineBase, "mount")
	cfg.Data.Dir = filepath.Join(machineBase, "data")
	cfg.FUSE.Debug = true
	cfg.FUSE.AllowOther = true

	if cfg.Log == nil {
		cfg.Log = &LogConfig{Format: "text"}
	}
	cfg.Log.Level = "debug"

	cfg.Static = &StaticConfig{
		Primary:      true,
		Hostname:     machineID,
		AdvertiseURL: advertiseURL,
	}
	cfg.Consul = nil

	return cfg, nil
}

// Marshal renders the config as litefs.yml content.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
