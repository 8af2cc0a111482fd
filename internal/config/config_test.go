package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("RELAYCHAT_CAPACITY", "8")
	t.Setenv("RELAYCHAT_MAX_NAME_LEN", "12")

	cfg, err := Load(newFlags(t, "--capacity=4", "--write-timeout=250ms", "--echo=false"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Capacity)
	assert.Equal(t, 12, cfg.MaxNameLen)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.False(t, cfg.Echo)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capacity: 30\nversion: file build\nlog-format: text\n"), 0o600))

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Capacity)
	assert.Equal(t, "file build", cfg.Version)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_RejectsInvalidCapacity(t *testing.T) {
	_, err := Load(newFlags(t, "--capacity=0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity 0 out of range")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Capacity = 5000
	cfg.MaxNameLen = 0
	cfg.LogLevel = "loud"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}
