package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8088", cfg.Server.ListenAddr)
	require.Equal(t, "claude-sonnet-4-5", cfg.Model.DefaultModel)
	require.Equal(t, 256, cfg.Stream.BufferSize)
	require.Equal(t, 10, cfg.Session.MaxLoopCount)
}

func TestLoadMergesConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	yaml := []byte("server:\n  listen_addr: \":9999\"\nsession:\n  max_loop_count: 3\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.ListenAddr)
	require.Equal(t, 3, cfg.Session.MaxLoopCount)
	// Untouched fields keep their defaults.
	require.Equal(t, 256, cfg.Stream.BufferSize)
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	yaml := []byte("server:\n  listen_addr: \":9999\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("AGENTRT_SERVER_LISTEN_ADDR", ":7000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.ListenAddr)
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{ListenAddr: ""},
		Model:   ModelConfig{DefaultModel: "m", DefaultMaxTokens: 1},
		Tools:   ToolsConfig{CallDeadline: 1},
		Stream:  StreamConfig{BufferSize: 1, ChunkThresholdBytes: 1},
		Session: SessionConfig{ModelWindow: 1, MaxLoopCount: 1, TopKRelevant: 1},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveMaxLoopCount(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{ListenAddr: ":1"},
		Model:   ModelConfig{DefaultModel: "m", DefaultMaxTokens: 1},
		Tools:   ToolsConfig{CallDeadline: 1},
		Stream:  StreamConfig{BufferSize: 1, ChunkThresholdBytes: 1},
		Session: SessionConfig{ModelWindow: 1, MaxLoopCount: 0, TopKRelevant: 1},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
