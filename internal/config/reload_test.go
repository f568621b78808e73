// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/oasdiff/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// writeConfig marshals a partial config map so tests avoid indentation issues.
func writeConfig(t *testing.T, path string, words int) {
	t.Helper()
	data, err := yaml.Marshal(map[string]any{
		"agent": map[string]any{
			"baseUrl": "http://agent.test:5052",
		},
		"stream": map[string]any{
			"descriptionMaxWords": words,
		},
	})
	require.NoError(t, err)
	require.NoError(t, renameio.WriteFile(path, data, 0o600))
}

func newTestHolder(t *testing.T, words int) (*Holder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, words)
	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewHolder(cfg, loader), path
}

func TestHolder_Reload(t *testing.T) {
	h, path := newTestHolder(t, 5)
	assert.Equal(t, 5, h.Get().Stream.DescriptionMaxWords)

	updates := make(chan AppConfig, 1)
	h.Subscribe(updates)

	writeConfig(t, path, 9)
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 9, h.Get().Stream.DescriptionMaxWords)

	select {
	case cfg := <-updates:
		assert.Equal(t, 9, cfg.Stream.DescriptionMaxWords)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_ReloadRejectsInvalid(t *testing.T) {
	h, path := newTestHolder(t, 5)

	require.NoError(t, os.WriteFile(path, []byte("stream:\n  descriptionMaxWords: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 5, h.Get().Stream.DescriptionMaxWords, "old config must stay active")

	require.NoError(t, os.WriteFile(path, []byte("stream: [broken"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 5, h.Get().Stream.DescriptionMaxWords)
}

func TestHolder_ReloadWithoutLoader(t *testing.T) {
	h := NewHolder(Default(), nil)
	assert.Error(t, h.Reload(context.Background()))
	assert.NoError(t, h.Watch(context.Background()))
}

func TestHolder_WatchPicksUpAtomicReplace(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, path := newTestHolder(t, 5)
	h.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// the watcher registers asynchronously; keep rewriting until observed
	assert.Eventually(t, func() bool {
		writeConfig(t, path, 11)
		return h.Get().Stream.DescriptionMaxWords == 11
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRestartRequired(t *testing.T) {
	old := Default()
	updated := old
	updated.Stream.DescriptionMaxWords = 3
	updated.LogLevel = "debug"
	assert.Empty(t, RestartRequired(old, updated))

	updated.Agent.BaseURL = "http://other:5052"
	updated.Server.AllowedOrigins = []string{"http://x.example"}
	assert.Equal(t, []string{"server", "agent"}, RestartRequired(old, updated))
}
