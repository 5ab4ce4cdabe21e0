package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFlyToml = `
app = "my-app"
primary_region = "iad"

[build]
dockerfile = "Dockerfile"

[env]
LOG_LEVEL = "debug"

[http_service]
internal_port = 8080
force_https = true

[[vm]]
cpu_kind = "shared"
cpus = 2
memory = "1gb"

[experimental]
auto_rollback = true
`

func TestParseFlyTomlFields(t *testing.T) {
	cfg, err := ParseFlyToml([]byte(sampleFlyToml))
	require.NoError(t, err)

	assert.Equal(t, "my-app", cfg.App)
	assert.Equal(t, "iad", cfg.PrimaryRegion)
	require.NotNil(t, cfg.Build)
	assert.Equal(t, "Dockerfile", cfg.Build.Dockerfile)
	assert.Equal(t, "debug", cfg.Env["LOG_LEVEL"])
	require.NotNil(t, cfg.HTTPService)
	assert.Equal(t, 8080, cfg.HTTPService.InternalPort)
	require.Len(t, cfg.VM, 1)
	assert.Equal(t, "shared", cfg.VM[0].CPUKind)
}

func TestParseFlyTomlMissingAppErrors(t *testing.T) {
	_, err := ParseFlyToml([]byte(`primary_region = "iad"`))
	assert.Error(t, err)
}

func TestWarningsFlagsExperimentalAndPrimaryRegion(t *testing.T) {
	cfg, err := ParseFlyToml([]byte(sampleFlyToml))
	require.NoError(t, err)

	warnings := Warnings(cfg)
	assert.Contains(t, warnings, "experimental features may not be fully supported")
	assert.Contains(t, warnings, "primary_region is ignored; all machines run in region \"local\"")
}

func TestParseMemoryMB(t *testing.T) {
	mb, ok := parseMemoryMB("1gb")
	assert.True(t, ok)
	assert.Equal(t, 1024, mb)

	mb, ok = parseMemoryMB("512mb")
	assert.True(t, ok)
	assert.Equal(t, 512, mb)

	_, ok = parseMemoryMB("bogus")
	assert.False(t, ok)
}

func TestResolveMountsSingleObject(t *testing.T) {
	raw := map[string]interface{}{"source": "data", "destination": "/litefs"}
	mounts := resolveMounts(raw)
	require.Len(t, mounts, 1)
	assert.Equal(t, "data", mounts[0].Source)
	assert.Equal(t, "/litefs", mounts[0].Destination)
}

func TestResolveMountsArray(t *testing.T) {
	raw := []map[string]interface{}{
		{"source": "data", "destination": "/litefs"},
		{"source": "logs", "destination": "/var/log"},
	}
	mounts := resolveMounts(raw)
	require.Len(t, mounts, 2)
	assert.Equal(t, "logs", mounts[1].Source)
}

func TestResolveFlyTomlPathPrefersEnvSpecific(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fly.staging.toml"), []byte("app=\"x\""), 0o644))

	path := ResolveFlyTomlPath("", "staging")
	assert.Equal(t, "fly.staging.toml", path)
}

func TestResolveFlyTomlPathFallsBackToDefault(t *testing.T) {
	path := ResolveFlyTomlPath("", "")
	assert.Equal(t, "fly.toml", path)
}

func TestResolveFlyTomlPathExplicitWins(t *testing.T) {
	path := ResolveFlyTomlPath("custom/fly.toml", "staging")
	assert.Equal(t, "custom/fly.toml", path)
}
