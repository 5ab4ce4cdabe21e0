package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWatchedChangeMatchesKnownFiles(t *testing.T) {
	assert.True(t, isWatchedChange("/app/fly.toml"))
	assert.True(t, isWatchedChange("/app/Dockerfile"))
	assert.True(t, isWatchedChange("/app/litefs.yml"))
	assert.True(t, isWatchedChange("/app/src/main.rs"))
	assert.True(t, isWatchedChange("/app/server.js"))
	assert.True(t, isWatchedChange("/app/app.py"))
	assert.True(t, isWatchedChange("/app/fly.staging.toml"))
}

func TestIsWatchedChangeIgnoresUnrelatedFiles(t *testing.T) {
	assert.False(t, isWatchedChange("/app/README.md"))
	assert.False(t, isWatchedChange("/app/.git/HEAD"))
	assert.False(t, isWatchedChange("/app/binary.bin"))
}
