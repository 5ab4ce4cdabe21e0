package store

import (
	"testing"

	"github.com/minifly/minifly/internal/apperror"
	"github.com/minifly/minifly/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDeleteApp(t *testing.T) {
	s := New()
	s.PutApp(model.App{Name: "my-app"})

	app, ok := s.GetApp("my-app")
	require.True(t, ok)
	assert.Equal(t, "my-app", app.Name)

	s.DeleteApp("my-app")
	_, ok = s.GetApp("my-app")
	assert.False(t, ok)
}

func TestListMachinesByApp(t *testing.T) {
	s := New()
	s.PutMachine(model.Machine{ID: "m1", AppName: "a"})
	s.PutMachine(model.Machine{ID: "m2", AppName: "a"})
	s.PutMachine(model.Machine{ID: "m3", AppName: "b"})

	machines := s.ListMachinesByApp("a")
	assert.Len(t, machines, 2)
}

func TestMachineLockReturnsSameMutexForSameID(t *testing.T) {
	s := New()
	l1 := s.MachineLock("m1")
	l2 := s.MachineLock("m1")
	assert.Same(t, l1, l2)

	l3 := s.MachineLock("m2")
	assert.NotSame(t, l1, l3)
}

func TestDeleteMachineDropsShard(t *testing.T) {
	s := New()
	first := s.MachineLock("m1")
	s.PutMachine(model.Machine{ID: "m1"})
	s.DeleteMachine("m1")
	second := s.MachineLock("m1")
	assert.NotSame(t, first, second)
}

func TestCheckLeaseNonceNoLeaseAllowsAny(t *testing.T) {
	s := New()
	err := s.CheckLeaseNonce("m1", "", 0)
	assert.NoError(t, err)
}

func TestCheckLeaseNonceMismatchRejected(t *testing.T) {
	s := New()
	s.PutLease(model.Lease{MachineID: "m1", Nonce: "abc", ExpiresAt: 1000})

	err := s.CheckLeaseNonce("m1", "wrong", 500)
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidLeaseNonce, apperror.As(err))
}

func TestCheckLeaseNonceExpiredAllowsAny(t *testing.T) {
	s := New()
	s.PutLease(model.Lease{MachineID: "m1", Nonce: "abc", ExpiresAt: 100})

	err := s.CheckLeaseNonce("m1", "wrong", 500)
	assert.NoError(t, err)
}

func TestGenerateMachineIDLength(t *testing.T) {
	id, err := GenerateMachineID()
	require.NoError(t, err)
	assert.Len(t, id, 15)
}

func TestGenerateInstanceIDLength(t *testing.T) {
	id, err := GenerateInstanceID()
	require.NoError(t, err)
	assert.Len(t, id, 26)
}

func TestGeneratePrivateIPFormat(t *testing.T) {
	ip := GeneratePrivateIP("fdaa:0:", "my-app", 3)
	assert.Regexp(t, `^fdaa:0:[0-9a-f]{4}:a7b:3::2$`, ip)
}
