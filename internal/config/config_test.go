package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamlake-ai/dreamlake-go/internal/config"
)

func TestLoad_MissingFileReturnsZeroProfile(t *testing.T) {
	p, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &config.Profile{}, p)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
local_path: /data/dreamlake
namespace: team-a
workspace: robotics
`), 0o644))

	p, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/dreamlake", p.LocalPath)
	assert.Equal(t, "team-a", p.Namespace)
	assert.Equal(t, "robotics", p.Workspace)
	assert.Empty(t, p.APIURL)
}

func TestLoad_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestDefaultPath_EndsInExpectedLocation(t *testing.T) {
	path, err := config.DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".dreamlake", "config.yaml"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}
