package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.DedupWindow)
	assert.Equal(t, 5*time.Minute, cfg.RotationPeriod)
	assert.Equal(t, 50, cfg.EntryCap)
	assert.Equal(t, 50, cfg.InterventionCap)
	assert.False(t, cfg.PostgresEnabled())
	assert.Equal(t, "audit.interventions.default", cfg.Subject())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESILIENCE_TENANT_ID", "acme")
	t.Setenv("RESILIENCE_DEDUP_WINDOW", "10s")
	t.Setenv("RESILIENCE_ENTRY_CAP", "25")
	t.Setenv("RESILIENCE_PG_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "audit.interventions.acme", cfg.Subject())
	assert.Equal(t, 10*time.Second, cfg.DedupWindow)
	assert.Equal(t, 25, cfg.EntryCap)
	assert.True(t, cfg.PostgresEnabled())
}

func TestLoad_YAMLFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenant_id: beta\nhttp_addr: \":9000\"\n"), 0o644))
	t.Setenv("RESILIENCE_CONFIG_FILE", path)
	t.Setenv("RESILIENCE_TENANT_ID", "acme")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "beta", cfg.TenantID)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	t.Setenv("RESILIENCE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
