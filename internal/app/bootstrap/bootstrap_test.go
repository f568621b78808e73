// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	controlhttp "github.com/ManuGH/fingate/internal/control/http"
)

func writeTestConfig(t *testing.T, agentURL, journalPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logLevel: warn
server:
  listenAddr: 127.0.0.1:0
agent:
  baseUrl: ` + agentURL + `
journal:
  backend: sqlite
  path: ` + journalPath + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestWiring_BootsMinimalStack(t *testing.T) {
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer agentSrv.Close()

	configPath := writeTestConfig(t, agentSrv.URL, filepath.Join(t.TempDir(), "journal.sqlite"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	container, err := WireServices(ctx, "test", "test-commit", "now", configPath)
	require.NoError(t, err, "wiring failed")
	defer func() { _ = container.close(context.Background()) }()
	require.NotNil(t, container.Server)
	require.NotNil(t, container.App)
	assert.Equal(t, agentSrv.URL, container.ConfigHolder.Get().Agent.BaseURL)

	handler := container.Server.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(controlhttp.HeaderRequestID))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWiring_RejectsMissingConfigFile(t *testing.T) {
	_, err := WireServices(context.Background(), "test", "", "", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestWiring_RejectsInvalidConfig(t *testing.T) {
	configPath := writeTestConfig(t, "not a url", filepath.Join(t.TempDir(), "journal.sqlite"))
	_, err := WireServices(context.Background(), "test", "", "", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestResolveConfigPath_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: info\n"), 0o600))
	t.Setenv("FINGATE_CONFIG", path)

	got, explicit, err := resolveConfigPath("")
	require.NoError(t, err)
	assert.False(t, explicit)
	assert.Equal(t, path, got)

	t.Setenv("FINGATE_CONFIG", "")
	got, _, err = resolveConfigPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
