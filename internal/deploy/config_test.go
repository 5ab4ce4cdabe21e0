package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeMachineConfigSynthesizesServiceFromHTTPService(t *testing.T) {
	cfg, err := ParseFlyToml([]byte(sampleFlyToml))
	require.NoError(t, err)

	machineCfg := ComposeMachineConfig(cfg, "my-app-local:latest", false, nil)

	require.Len(t, machineCfg.Services, 1)
	svc := machineCfg.Services[0]
	assert.Equal(t, 8080, svc.InternalPort)
	require.Len(t, svc.Ports, 2)
	assert.Equal(t, 80, svc.Ports[0].Port)
	assert.True(t, svc.Ports[0].ForceHTTPS)
	assert.Equal(t, 443, svc.Ports[1].Port)

	assert.Equal(t, "shared", machineCfg.Guest.CPUKind)
	assert.Equal(t, 2, machineCfg.Guest.CPUs)
	assert.Equal(t, 1024, machineCfg.Guest.MemoryMB)
	assert.Equal(t, "on-failure", machineCfg.Restart.Policy)
}

func TestComposeMachineConfigMergesSecretsAndLiteFSEnv(t *testing.T) {
	cfg, err := ParseFlyToml([]byte(sampleFlyToml))
	require.NoError(t, err)

	machineCfg := ComposeMachineConfig(cfg, "alpine:latest", true, map[string]string{"API_KEY": "secret"})

	assert.Equal(t, "secret", machineCfg.Env["API_KEY"])
	assert.Equal(t, "debug", machineCfg.Env["LOG_LEVEL"])
	assert.Equal(t, "true", machineCfg.Env["FLY_LITEFS_PRIMARY"])
	assert.Equal(t, "/litefs", machineCfg.Env["DATABASE_PATH"])
}

func TestComposeMachineConfigDefaultGuestWithNoVM(t *testing.T) {
	cfg, err := ParseFlyToml([]byte(`app = "x"`))
	require.NoError(t, err)

	machineCfg := ComposeMachineConfig(cfg, "alpine:latest", false, nil)
	assert.Equal(t, "shared", machineCfg.Guest.CPUKind)
	assert.Equal(t, 1, machineCfg.Guest.CPUs)
	assert.Equal(t, 1024, machineCfg.Guest.MemoryMB)
}
