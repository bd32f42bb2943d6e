package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/config"
	"redditstudy/internal/shared"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "study", "migrate", "plan"})
	assert.True(t, root.SilenceUsage)
}

func TestPlanCmd_PrintsEffectivePlan(t *testing.T) {
	t.Setenv("STUDY_PLAN_FILE", "")
	path := writePlan(t, "subreddits: [golang, rust]\nsample_size: 4\nrepeat: 3\n")

	out, err := execute(t, "plan", "--plan", path)
	require.NoError(t, err)

	plan, err := config.ParsePlan([]byte(out))
	require.NoError(t, err, out)
	assert.Equal(t, []string{"golang", "rust"}, plan.Subreddits)
	assert.Equal(t, 4, plan.SampleSize)
	assert.Equal(t, 3, plan.Repeat)
	assert.Contains(t, out, "sample_interval: 30s")
}

func TestPlanCmd_InvalidPlan(t *testing.T) {
	path := writePlan(t, "subreddits: [golang]\nsample_size: 0\n")

	_, err := execute(t, "plan", "--plan", path)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("LOG_CONSOLE_LEVEL", "info")

	root := NewRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--plan", "p.yaml", "--log-level", "debug", "--storage", "postgres"}))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "p.yaml", cfg.Study.PlanFile)
	assert.Equal(t, "debug", cfg.Log.ConsoleLevel)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
}

func TestMigrateCmd_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "study.db"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "logs", "test.log"))
	t.Setenv("LOG_CONSOLE_LEVEL", "error")

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite: migrated from version 0 to 1")

	out, err = execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite: schema up to date at version 1")
}
