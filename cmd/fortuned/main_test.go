package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) (*cobra.Command, flags) {
	t.Helper()
	cmd := &cobra.Command{Use: serviceName}
	var f flags
	bindFlags(cmd, &f)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestResolveConfigDefaults(t *testing.T) {
	t.Setenv("FORTUNE_CONFIG_PATH", "")
	cmd, f := parseFlags(t)

	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Address)
	assert.Equal(t, "fortunes.csv", cfg.Source.Path)
	assert.Equal(t, 5*time.Second, cfg.Rotation.Slice())
}

func TestResolveConfigFlagsOverride(t *testing.T) {
	t.Setenv("FORTUNE_CONFIG_PATH", "")
	t.Setenv("FORTUNE_SERVER_ADDRESS", "127.0.0.1:8080")
	t.Setenv("FORTUNE_ROTATION_SLICE_SECONDS", "30")

	cmd, f := parseFlags(t, "--addr", ":9000", "--slice", "0.5", "--source", "quotes.csv", "--log-level", "debug")

	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Rotation.Slice())
	assert.Equal(t, "quotes.csv", cfg.Source.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestResolveConfigEnvWithoutFlags(t *testing.T) {
	t.Setenv("FORTUNE_CONFIG_PATH", "")
	t.Setenv("FORTUNE_ROTATION_SLICE_SECONDS", "30")

	cmd, f := parseFlags(t)
	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Rotation.Slice())
}

func TestResolveConfigRejectsInvalidSlice(t *testing.T) {
	t.Setenv("FORTUNE_CONFIG_PATH", "")
	cmd, f := parseFlags(t, "--slice", "0")

	_, err := resolveConfig(cmd, f)
	assert.ErrorContains(t, err, "rotation.slice_seconds")
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
