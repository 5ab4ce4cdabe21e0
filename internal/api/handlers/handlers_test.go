package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/dns"
	"github.com/minifly/minifly/internal/litefs"
	"github.com/minifly/minifly/internal/model"
	"github.com/minifly/minifly/internal/runtime"
	"github.com/minifly/minifly/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime is an in-memory stand-in for the Docker runtime adapter,
// used the way the teacher's own tests fake out external systems
// rather than hitting them.
type fakeRuntime struct {
	nextID int
}

func (f *fakeRuntime) Create(ctx context.Context, machineID, appName string, cfg runtime.CreateConfig) (string, error) {
	f.nextID++
	return machineID + "-container", nil
}
func (f *fakeRuntime) Start(ctx context.Context, containerID string) error { return nil }
func (f *fakeRuntime) Stop(ctx context.Context, containerID string, timeoutSeconds int) error {
	return nil
}
func (f *fakeRuntime) Remove(ctx context.Context, containerID string, force bool) error { return nil }
func (f *fakeRuntime) Inspect(ctx context.Context, containerID string) (runtime.InspectResult, error) {
	return runtime.InspectResult{
		State:    runtime.ContainerState{Status: "running", Running: true},
		Networks: runtime.NetworkInfo{IPv4: "172.19.0.9", Ports: map[int]int{}},
	}, nil
}
func (f *fakeRuntime) List(ctx context.Context, filters map[string][]string) ([]runtime.ContainerSummary, error) {
	return nil, nil
}
func (f *fakeRuntime) StreamLogs(ctx context.Context, containerID string, follow bool, tailLines int, timestamps bool) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (f *fakeRuntime) FindByMachineID(ctx context.Context, machineID string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeRuntime) Ping(ctx context.Context) error        { return nil }
func (f *fakeRuntime) Version(ctx context.Context) (string, error) { return "fake-1.0", nil }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	lfs, err := litefs.NewManager(t.TempDir())
	require.NoError(t, err)

	return New(Deps{
		Store:     store.New(),
		Runtime:   &fakeRuntime{},
		DNS:       dns.New(),
		LiteFS:    lfs,
		DataDir:   t.TempDir(),
		Network:   "fdaa:0:",
		StartedAt: time.Now(),
	})
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestCreateAndGetApp(t *testing.T) {
	h := newTestHandlers(t)

	body, _ := json.Marshal(map[string]string{"app_name": "my-app", "org_slug": "personal"})
	req := httptest.NewRequest(http.MethodPost, "/v1/apps", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateApp(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = withVars(httptest.NewRequest(http.MethodGet, "/v1/apps/my-app", nil), map[string]string{"app": "my-app"})
	rec = httptest.NewRecorder()
	h.GetApp(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAppNotFound(t *testing.T) {
	h := newTestHandlers(t)
	req := withVars(httptest.NewRequest(http.MethodGet, "/v1/apps/nope", nil), map[string]string{"app": "nope"})
	rec := httptest.NewRecorder()
	h.GetApp(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newTestApp(name string) model.App {
	now := time.Now()
	return model.App{ID: name, Name: name, OrgSlug: "personal", Status: model.AppPending, CreatedAt: now, UpdatedAt: now}
}

func TestCreateMachineLifecycle(t *testing.T) {
	h := newTestHandlers(t)
	h.Store.PutApp(newTestApp("my-app"))

	body, _ := json.Marshal(map[string]any{
		"name": "my-app-1",
		"config": map[string]any{
			"image": "alpine:latest",
			"guest": map[string]any{"cpu_kind": "shared", "cpus": 1, "memory_mb": 256},
		},
	})
	req := withVars(httptest.NewRequest(http.MethodPost, "/v1/apps/my-app/machines", bytes.NewReader(body)), map[string]string{"app": "my-app"})
	rec := httptest.NewRecorder()
	h.CreateMachine(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)
	assert.Equal(t, "started", created["state"])

	ips, ok := h.DNS.Resolve("my-app.internal")
	assert.True(t, ok)
	assert.Equal(t, []string{"172.19.0.9"}, ips)

	req = withVars(httptest.NewRequest(http.MethodPost, "/v1/apps/my-app/machines/"+id+"/stop", nil), map[string]string{"app": "my-app", "id": id})
	rec = httptest.NewRecorder()
	h.StopMachine(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok = h.DNS.Resolve("my-app.internal")
	assert.False(t, ok)

	req = withVars(httptest.NewRequest(http.MethodDelete, "/v1/apps/my-app/machines/"+id, nil), map[string]string{"app": "my-app", "id": id})
	rec = httptest.NewRecorder()
	h.DeleteMachine(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok = h.Store.GetMachine(id)
	assert.False(t, ok)
}

func TestLeaseConflict(t *testing.T) {
	h := newTestHandlers(t)
	h.Store.PutApp(newTestApp("my-app"))
	id := createTestMachine(t, h, "my-app")

	req := withVars(httptest.NewRequest(http.MethodPost, "/lease", bytes.NewReader([]byte(`{"ttl":300}`))), map[string]string{"id": id})
	rec := httptest.NewRecorder()
	h.CreateLease(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = withVars(httptest.NewRequest(http.MethodPost, "/lease", bytes.NewReader([]byte(`{"ttl":300}`))), map[string]string{"id": id})
	rec = httptest.NewRecorder()
	h.CreateLease(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthLiveAlwaysOK(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReadyOKWhenRuntimeUp(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminDeployCreatesMachineFromFlyToml(t *testing.T) {
	h := newTestHandlers(t)

	dir := t.TempDir()
	flyToml := "app = \"deployed-app\"\n\n[http_service]\ninternal_port = 8080\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fly.toml"), []byte(flyToml), 0o644))

	body, _ := json.Marshal(map[string]string{"dir": dir})
	req := httptest.NewRequest(http.MethodPost, "/admin/deploy", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.AdminDeploy(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "deployed-app", result["app_name"])
	assert.NotEmpty(t, result["machine_id"])

	_, ok := h.Store.GetApp("deployed-app")
	assert.True(t, ok)
}

func TestAdminDeployMissingDirIsBadRequest(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/deploy", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.AdminDeploy(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func createTestMachine(t *testing.T, h *Handlers, app string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"config": map[string]any{"image": "alpine:latest"},
	})
	req := withVars(httptest.NewRequest(http.MethodPost, "/v1/apps/"+app+"/machines", bytes.NewReader(body)), map[string]string{"app": app})
	rec := httptest.NewRecorder()
	h.CreateMachine(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created["id"].(string)
}
