package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "wokwi.toml", cfg.ConfigFile)
	assert.Equal(t, "diagram.json", cfg.DiagramFile)
	assert.Equal(t, "url.txt", cfg.URLFile)
	assert.Equal(t, 4, cfg.Scan.MaxDepth)
	assert.Equal(t, 2*time.Minute, cfg.Scan.AmbiguityWindow)
	assert.Equal(t, DefaultDiagramEndpoint, cfg.Fetch.Endpoint)
	assert.Equal(t, 4, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Fetch.AttemptTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.Backoff)
	assert.Equal(t, 8*time.Second, cfg.Fetch.MaxBackoff)
	assert.False(t, cfg.Artifact.Enabled)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"WOKWI_URL_FILE":         "project.txt",
		"WOKWI_FETCH_ATTEMPTS":   "2",
		"WOKWI_FETCH_TIMEOUT":    "5s",
		"WOKWI_DIAGRAM_ENDPOINT": "http://localhost:8080/p/{id}/diagram.json",
		"ARTIFACT_S3_ENDPOINT":   "minio:9000",
		"MINIO_ROOT_USER":        "user",
		"ARTIFACT_S3_USE_SSL":    "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "project.txt", cfg.URLFile)
	assert.Equal(t, 2, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Fetch.AttemptTimeout)
	assert.Equal(t, "http://localhost:8080/p/{id}/diagram.json", cfg.Fetch.Endpoint)
	assert.True(t, cfg.Artifact.Enabled)
	assert.Equal(t, "user", cfg.Artifact.AccessKey)
	assert.False(t, cfg.Artifact.UseSSL)
	assert.Equal(t, "wokwi-artifacts", cfg.Artifact.Bucket)
}

func TestArtifactDirEnablesMirror(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"ARTIFACT_DIR": "/srv/wokwi"}))
	require.NoError(t, err)
	assert.True(t, cfg.Artifact.Enabled)
	assert.Equal(t, "/srv/wokwi", cfg.Artifact.Dir)
	assert.Empty(t, cfg.Artifact.Endpoint)
}

func TestMalformedValuesAreEnvironmentErrors(t *testing.T) {
	for _, env := range []map[string]string{
		{"WOKWI_FETCH_ATTEMPTS": "zero"},
		{"WOKWI_SCAN_DEPTH": "0"},
		{"WOKWI_FETCH_BACKOFF": "soon"},
		{"ARTIFACT_S3_USE_SSL": "maybe"},
		{"WOKWI_DIAGRAM_ENDPOINT": "https://example.com/no-placeholder"},
	} {
		_, err := FromLookup(lookupFrom(env))
		require.Error(t, err, "%v", env)
		assert.Equal(t, apperr.KindEnvironment, apperr.KindOf(err))
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WOKWI_CONFIG_FILE=sim.toml\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("WOKWI_CONFIG_FILE", "")
	require.NoError(t, os.Unsetenv("WOKWI_CONFIG_FILE"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sim.toml", cfg.ConfigFile)
}
