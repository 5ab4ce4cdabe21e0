package litefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productionYAML = `
fuse:
  dir: "/litefs"
data:
  dir: "/var/lib/litefs"
lease:
  type: "consul"
  advertise_url: "http://10.0.0.1:20202"
consul:
  url: "http://consul:8500"
  advertise_url: "http://10.0.0.1:20202"
log:
  format: "json"
  level: "info"
`

func TestFromProductionConfigRewritesConsulLease(t *testing.T) {
	cfg, err := FromProductionConfig([]byte(productionYAML), "m-123", "my-app", "/data")
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Lease.Type)
	assert.Equal(t, "http://m-123:20202", cfg.Lease.AdvertiseURL)
	assert.True(t, *cfg.Lease.Candidate)
	assert.Nil(t, cfg.Consul)
}

func TestFromProductionConfigRewritesPaths(t *testing.T) {
	cfg, err := FromProductionConfig([]byte(productionYAML), "m-123", "my-app", "/data")
	require.NoError(t, err)

	assert.Equal(t, "/data/minifly-data/my-app/litefs/m-123/mount", cfg.FUSE.Dir)
	assert.Equal(t, "/data/minifly-data/my-app/litefs/m-123/data", cfg.Data.Dir)
	assert.True(t, cfg.FUSE.Debug)
	assert.True(t, cfg.FUSE.AllowOther)
}

func TestFromProductionConfigSetsStaticPrimary(t *testing.T) {
	cfg, err := FromProductionConfig([]byte(productionYAML), "m-123", "my-app", "/data")
	require.NoError(t, err)

	require.NotNil(t, cfg.Static)
	assert.True(t, cfg.Static.Primary)
	assert.Equal(t, "m-123", cfg.Static.Hostname)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestForLocalDevDefaults(t *testing.T) {
	cfg := ForLocalDev("m-1", "/mnt", "/data", true)

	assert.Equal(t, "24h", cfg.Data.Retention)
	assert.Equal(t, "1h", cfg.Data.RetentionMonitorInterval)
	assert.True(t, cfg.Data.Compress)
	assert.Equal(t, "static", cfg.Lease.Type)
	assert.True(t, *cfg.Lease.Promote)
	assert.False(t, *cfg.Lease.Demote)
}
