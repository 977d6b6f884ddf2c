package dreamlake_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dreamlake "github.com/dreamlake-ai/dreamlake-go"
)

func TestOpen_RequiresWorkspaceAndName(t *testing.T) {
	_, err := dreamlake.Open("", "run-1", dreamlake.WithLocalPath(t.TempDir()), dreamlake.WithoutProfile())
	require.Error(t, err)
	assert.True(t, dreamlake.IsKind(err, dreamlake.BadInput))

	_, err = dreamlake.Open("ws", "", dreamlake.WithLocalPath(t.TempDir()), dreamlake.WithoutProfile())
	require.Error(t, err)
	assert.True(t, dreamlake.IsKind(err, dreamlake.BadInput))
}

func TestOpen_RejectsBothLocalPathAndRemoteURL(t *testing.T) {
	_, err := dreamlake.Open("ws", "run-1",
		dreamlake.WithLocalPath(t.TempDir()),
		dreamlake.WithRemoteURL("http://example.invalid"),
		dreamlake.WithoutProfile(),
	)
	require.Error(t, err)
	assert.True(t, dreamlake.IsKind(err, dreamlake.BadInput))
}

func TestOpen_RejectsNeitherLocalPathNorRemoteURL(t *testing.T) {
	_, err := dreamlake.Open("ws", "run-1", dreamlake.WithoutProfile())
	require.Error(t, err)
	assert.True(t, dreamlake.IsKind(err, dreamlake.BadInput))
}

func TestOpen_EnvVarSuppliesLocalPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DREAMLAKE_LOCAL_PATH", dir)
	t.Setenv("DREAMLAKE_API_URL", "")
	t.Setenv("DREAMLAKE_API_KEY", "")

	sess, err := dreamlake.Open("ws", "run-1", dreamlake.WithoutProfile())
	require.NoError(t, err)
	require.NoError(t, sess.Close())
}

func TestOpen_ExplicitOptionOverridesEnvVar(t *testing.T) {
	t.Setenv("DREAMLAKE_LOCAL_PATH", "/nonexistent/from/env")

	dir := t.TempDir()
	sess, err := dreamlake.Open("ws", "run-1", dreamlake.WithLocalPath(dir), dreamlake.WithoutProfile())
	require.NoError(t, err)
	require.NoError(t, sess.Close())
}

func TestOpen_WithMetricsRegistry_RegistersCountersOnSuppliedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	sess, err := dreamlake.Open("ws", "run-1",
		dreamlake.WithLocalPath(t.TempDir()),
		dreamlake.WithoutProfile(),
		dreamlake.WithMetricsRegistry(reg),
	)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Log(dreamlake.LogLevelInfo, "hello", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "dreamlake_log_appends_total" {
			found = true
			assert.EqualValues(t, 1, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "log_appends_total counter should be visible on the supplied registry")
}

func TestOpen_ReopeningWithSameRegistryDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	sess1, err := dreamlake.Open("ws", "run-1", dreamlake.WithLocalPath(t.TempDir()), dreamlake.WithoutProfile(), dreamlake.WithMetricsRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, sess1.Close())

	require.NotPanics(t, func() {
		sess2, err := dreamlake.Open("ws", "run-2", dreamlake.WithLocalPath(t.TempDir()), dreamlake.WithoutProfile(), dreamlake.WithMetricsRegistry(reg))
		require.NoError(t, err)
		require.NoError(t, sess2.Close())
	})
}
