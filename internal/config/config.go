// Package config resolves the control plane's environment variables
// (spec §6) through viper, the way cmd/root.go binds cobra flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every environment-derived setting the control plane
// needs at startup.
type Config struct {
	APIPort          int
	DatabaseURL      string
	DockerHost       string
	DataDir          string
	NetworkPrefix    string
	DNSPort          int
	LiteFSPort       int
	Env              string
	LiteFSConfigPath string
}

// Load reads MINIFLY_* environment variables (and DOCKER_HOST, FLY_ENV)
// with the defaults from spec §6.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MINIFLY")
	v.AutomaticEnv()

	v.SetDefault("api_port", 4280)
	v.SetDefault("database_url", "sqlite:minifly.db")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("network_prefix", "fdaa:0:")
	v.SetDefault("dns_port", 5353)
	v.SetDefault("litefs_port", 20202)

	dataDir, err := filepath.Abs(v.GetString("data_dir"))
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}

	env := os.Getenv("FLY_ENV")
	if env == "" {
		env = os.Getenv("MINIFLY_ENV")
	}

	return Config{
		APIPort:          v.GetInt("api_port"),
		DatabaseURL:      v.GetString("database_url"),
		DockerHost:       os.Getenv("DOCKER_HOST"),
		DataDir:          dataDir,
		NetworkPrefix:    v.GetString("network_prefix"),
		DNSPort:          v.GetInt("dns_port"),
		LiteFSPort:       v.GetInt("litefs_port"),
		Env:              env,
		LiteFSConfigPath: os.Getenv("LITEFS_CONFIG_PATH"),
	}, nil
}
