package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/experience-mcp/internal/storage"
	"github.com/dshills/experience-mcp/pkg/types"
)

// withLocalEnv points configuration at a temp database and the local provider
func withLocalEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "experiences.db")
	t.Setenv("EXPERIENCE_DATABASE_PATH", dbPath)
	t.Setenv("EXPERIENCE_EMBEDDING_PROVIDER", "local")
	t.Setenv("EXPERIENCE_EMBEDDING_DIMENSION", "16")
	t.Setenv("EXPERIENCE_LIFECYCLE_BATCH_DELAY", "0s")
	t.Setenv("EXPERIENCE_LOG_LEVEL", "error")
	return dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(BuildInfo{Version: "test", BuildTime: "now"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd(BuildInfo{Version: "1.2.3"})

	names := make(map[string]*cobra.Command)
	for _, c := range root.Commands() {
		names[c.Name()] = c
	}
	for _, want := range []string{"serve", "backfill", "probe", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, names["backfill"].Flags().Lookup("limit"))
	assert.NotNil(t, names["probe"].Flags().Lookup("text"))
	assert.Contains(t, root.Version, "1.2.3")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "experience-mcp")
	assert.Contains(t, out, "Version:        test")
	assert.Contains(t, out, storage.CurrentSchemaVersion)
}

func TestProbeCommand(t *testing.T) {
	withLocalEnv(t)

	out, err := execute(t, "probe", "--text", "disk full on CI runner")
	require.NoError(t, err)
	assert.Contains(t, out, "Provider:  local")
	assert.Contains(t, out, "Dimension: 16")
	assert.Contains(t, out, "Available: true")
	assert.Contains(t, out, "Sample:    16 values")
}

func TestProbeCommandUnavailable(t *testing.T) {
	withLocalEnv(t)
	t.Setenv("EXPERIENCE_EMBEDDING_PROVIDER", "disabled")

	out, err := execute(t, "probe")
	require.Error(t, err)
	assert.Contains(t, out, "Available: false")
}

func TestBackfillCommand(t *testing.T) {
	dbPath := withLocalEnv(t)
	ctx := context.Background()

	// Seed the database the command will open
	store, err := storage.NewSQLiteStorage(dbPathWithDir(t, dbPath))
	require.NoError(t, err)
	for _, title := range []string{"a", "b", "c"} {
		exp := &types.Experience{Title: title, Problem: "p", Solution: "s", PublishStatus: types.StatusPublished}
		require.NoError(t, store.CreateExperience(ctx, exp))
	}
	require.NoError(t, store.Close())

	out, err := execute(t, "backfill", "--limit", "2")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(2), res["processed"])
	assert.Equal(t, float64(2), res["succeeded"])
	assert.Equal(t, false, res["cancelled"])

	_, err = execute(t, "backfill", "--offset", "-1")
	assert.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	withLocalEnv(t)
	t.Setenv("EXPERIENCE_LIFECYCLE_SWEEP_SCHEDULE", "every now and then")

	_, err := execute(t, "backfill")
	assert.Error(t, err)
}

func dbPathWithDir(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	return path
}
