package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_addr: "0.0.0.0:9999"
data_dir: "/tmp/spartic-test"
drain_interval: 250ms
listen_addrs:
  - "/ip4/0.0.0.0/tcp/4001"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.APIAddr)
	require.Equal(t, "/tmp/spartic-test", cfg.DataDir)
	require.Equal(t, Duration(250*time.Millisecond), cfg.DrainInterval)
	require.Equal(t, []string{"/ip4/0.0.0.0/tcp/4001"}, cfg.ListenAddrs)

	// Unset fields keep their defaults.
	require.Empty(t, cfg.MetricsAddr)
	require.False(t, cfg.EnablePprof)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drain_interval: -1s\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
}
