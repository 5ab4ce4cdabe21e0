package serve

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlreadyRespondingTrueOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.True(t, alreadyResponding(srv.URL))
}

func TestAlreadyRespondingFalseWhenUnreachable(t *testing.T) {
	assert.False(t, alreadyResponding("http://127.0.0.1:1"))
}

func TestWaitForReadySucceedsOnceServerComesUp(t *testing.T) {
	var ready bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		ready = true
	}()

	assert.True(t, waitForReady(srv.URL, 2*time.Second))
}

func TestBootstrapDirsCreatesExpectedLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, bootstrapDirs(dir))

	for _, sub := range []string{"litefs", "machines", "apps"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
