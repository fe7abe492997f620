package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: memory
workflow:
  escalation_schedule: "*/10 * * * *"
  max_conflict_retries: 5
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "*/10 * * * *", cfg.Workflow.EscalationSchedule)
	assert.Equal(t, "@every 1m", cfg.Workflow.AutoApprovalSchedule)
	assert.Equal(t, 5, cfg.Workflow.MaxConflictRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: postgres\n")
	t.Setenv("STEPFLOW_DATABASE_DSN", "host=db user=flow dbname=flow sslmode=disable")
	t.Setenv("STEPFLOW_REDIS_ADDR", "redis:6379")
	t.Setenv("STEPFLOW_SERVER_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "host=db user=flow dbname=flow sslmode=disable", cfg.Store.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Store.Driver = "sqlite"
	cfg.Workflow.EscalationSchedule = "every so often"
	cfg.Workflow.ReevaluationWorkers = -1

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, `store.driver "sqlite"`)
	assert.Contains(t, msg, "workflow.escalation_schedule")
	assert.Contains(t, msg, "workflow.reevaluation_workers")
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn is required")

	cfg.Store.Driver = "memory"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
