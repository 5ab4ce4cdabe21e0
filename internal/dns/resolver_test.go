package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSentinel(t *testing.T) {
	r := New()
	ips, ok := r.Resolve("fly-local-6pn.internal")
	assert.True(t, ok)
	assert.Equal(t, []string{"172.17.0.1"}, ips)
}

func TestRegisterAndResolveAppAndMachine(t *testing.T) {
	r := New()
	r.Register("my-app", "1234567890abcde", "172.19.0.5")

	ips, ok := r.Resolve("my-app.internal")
	assert.True(t, ok)
	assert.Equal(t, []string{"172.19.0.5"}, ips)

	ips, ok = r.Resolve("1234567890abcde.vm.my-app.internal")
	assert.True(t, ok)
	assert.Equal(t, []string{"172.19.0.5"}, ips)
}

func TestResolveMachineRejectsWrongApp(t *testing.T) {
	r := New()
	r.Register("my-app", "1234567890abcde", "172.19.0.5")

	_, ok := r.Resolve("1234567890abcde.vm.other-app.internal")
	assert.False(t, ok, "machine lookup must validate the app segment, not resolve any registered id")
}

func TestUnregisterRestoresPriorState(t *testing.T) {
	r := New()
	r.Register("my-app", "m1", "172.19.0.5")
	r.Unregister("my-app", "m1")

	_, ok := r.Resolve("my-app.internal")
	assert.False(t, ok)
	_, ok = r.Resolve("m1.vm.my-app.internal")
	assert.False(t, ok)
}

func TestUnregisterKeepsSharedIPForOtherMachine(t *testing.T) {
	r := New()
	r.Register("my-app", "m1", "172.19.0.5")
	r.Register("my-app", "m2", "172.19.0.5")
	r.Unregister("my-app", "m1")

	ips, ok := r.Resolve("my-app.internal")
	assert.True(t, ok)
	assert.Equal(t, []string{"172.19.0.5"}, ips)
}

func TestResolveUnknownHost(t *testing.T) {
	r := New()
	_, ok := r.Resolve("nope.internal")
	assert.False(t, ok)
	_, ok = r.Resolve("not-even-internal")
	assert.False(t, ok)
}
